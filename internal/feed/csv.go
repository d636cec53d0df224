// Package feed turns external market data sources into engine events.
package feed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"bond_arb/internal/domain"
	"bond_arb/internal/engine"
	"bond_arb/internal/event"
)

// ladderDepth is the number of price levels each CSV row carries per side.
const ladderDepth = 5

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
}

// CSVReplayer loads historical snapshot files and replays them through the
// engine in strict timestamp order. Rows carry five bid and five offer
// levels (BI_price_N/BI_quantity_N, OF_price_N/OF_quantity_N columns).
type CSVReplayer struct {
	dir string
}

// NewCSVReplayer creates a replayer over a directory of CSV files.
func NewCSVReplayer(dir string) *CSVReplayer {
	return &CSVReplayer{dir: dir}
}

// Load reads every CSV file in the directory, merges the rows and sorts
// them chronologically.
func (r *CSVReplayer) Load() ([]*event.BookUpdateEvent, error) {
	files, err := filepath.Glob(filepath.Join(r.dir, "*.csv"))
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no CSV files found in %s", r.dir)
	}
	sort.Strings(files)

	var updates []*event.BookUpdateEvent
	for _, file := range files {
		rows, err := r.loadFile(file)
		if err != nil {
			slog.Error("failed to load market data file",
				slog.String("file", file), slog.Any("error", err))
			continue
		}
		slog.Info("loaded market data file",
			slog.String("file", filepath.Base(file)), slog.Int("rows", len(rows)))
		updates = append(updates, rows...)
	}
	if len(updates) == 0 {
		return nil, fmt.Errorf("no market data rows loaded from %s", r.dir)
	}

	sort.SliceStable(updates, func(i, j int) bool {
		return updates[i].Time.Before(updates[j].Time)
	})
	return updates, nil
}

// RunReplay loads the data and feeds it into the sequencer synchronously
// for a deterministic single-timeline run.
func (r *CSVReplayer) RunReplay(ctx context.Context, seq *engine.Sequencer) error {
	updates, err := r.Load()
	if err != nil {
		return err
	}

	slog.Info("replaying market data updates", slog.Int("count", len(updates)))
	for i, u := range updates {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		u.Seq = uint64(i) + 1
		seq.ReplayEvent(ctx, u)
	}
	return nil
}

func (r *CSVReplayer) loadFile(path string) ([]*event.BookUpdateEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"security", "time"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	var updates []*event.BookUpdateEvent
	line := 1
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			// The reader recovers after a per-record parse error
			// (field-count mismatch, bad quoting); anything else is
			// an I/O failure and would repeat forever.
			var pe *csv.ParseError
			if !errors.As(err, &pe) {
				return nil, fmt.Errorf("reading row %d: %w", line, err)
			}
			slog.Warn("skipping malformed row",
				slog.String("file", filepath.Base(path)),
				slog.Int("line", line),
				slog.Any("error", err))
			continue
		}

		u, err := parseRow(record, col)
		if err != nil {
			slog.Warn("skipping malformed row",
				slog.String("file", filepath.Base(path)),
				slog.Int("line", line),
				slog.Any("error", err))
			continue
		}
		updates = append(updates, u)
	}
	return updates, nil
}

func parseRow(record []string, col map[string]int) (*event.BookUpdateEvent, error) {
	field := func(name string) (string, bool) {
		i, ok := col[name]
		if !ok || i >= len(record) {
			return "", false
		}
		return strings.TrimSpace(record[i]), true
	}

	security, _ := field("security")
	if security == "" {
		return nil, fmt.Errorf("empty security")
	}

	rawTime, _ := field("time")
	ts, err := parseTime(rawTime)
	if err != nil {
		return nil, err
	}

	parseSide := func(prefix string) ([]domain.PriceLevel, error) {
		var levels []domain.PriceLevel
		for i := 1; i <= ladderDepth; i++ {
			rawPrice, okP := field(fmt.Sprintf("%s_price_%d", prefix, i))
			rawQty, okQ := field(fmt.Sprintf("%s_quantity_%d", prefix, i))
			if !okP || !okQ || rawPrice == "" || rawQty == "" {
				continue
			}
			price, err := decimal.NewFromString(rawPrice)
			if err != nil {
				return nil, fmt.Errorf("%s price %d: %w", prefix, i, err)
			}
			qty, err := decimal.NewFromString(rawQty)
			if err != nil {
				return nil, fmt.Errorf("%s quantity %d: %w", prefix, i, err)
			}
			if price.IsZero() && qty.IsZero() {
				// Empty ladder slot.
				continue
			}
			levels = append(levels, domain.PriceLevel{Price: price, Quantity: qty})
		}
		if levels == nil {
			levels = []domain.PriceLevel{}
		}
		return levels, nil
	}

	bids, err := parseSide("BI")
	if err != nil {
		return nil, err
	}
	offers, err := parseSide("OF")
	if err != nil {
		return nil, err
	}

	ev := event.AcquireBookUpdateEvent()
	ev.Security = security
	ev.Time = ts
	ev.Bids = bids
	ev.Offers = offers
	return ev, nil
}

func parseTime(raw string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable time %q", raw)
}
