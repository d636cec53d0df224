// Package engine runs the single-threaded simulation hotpath.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"bond_arb/internal/domain"
	"bond_arb/internal/event"
	"bond_arb/internal/infra"
	"bond_arb/internal/strategy"
)

// RateProvider supplies the current ARS/USD end-of-day rate.
type RateProvider interface {
	GetRate() decimal.Decimal
}

// Executor runs the leg sequence for one opportunity.
type Executor interface {
	Execute(ctx context.Context, opp *domain.Opportunity, fxRateEOD decimal.Decimal) *domain.ExecutionResult
}

// Recorder receives finished execution results.
type Recorder interface {
	Record(res *domain.ExecutionResult)
}

// Sequencer is the core single-threaded event processor. Each market data
// update mutates its book and the resulting evaluate/execute/record cycle
// runs to completion before the next update is touched; this serialized
// timeline is what keeps the round-trip evaluation consistent with the
// balances it reads.
type Sequencer struct {
	inbox   chan event.Event
	books   map[string]*domain.OrderBook
	nextSeq uint64

	set      *domain.InstrumentSet
	ledger   *domain.Ledger
	eval     *strategy.Evaluator
	executor Executor
	recorder Recorder
	rates    RateProvider

	// maxIterations caps the drain loop after an executed opportunity
	// mutates the books and may expose another one.
	maxIterations int

	// mu guards books against external readers (GetBook) while the loop
	// goroutine mutates them.
	mu sync.RWMutex
}

// NewSequencer creates a new sequencer instance.
func NewSequencer(
	inboxSize int,
	set *domain.InstrumentSet,
	ledger *domain.Ledger,
	eval *strategy.Evaluator,
	executor Executor,
	recorder Recorder,
	rates RateProvider,
	maxIterations int,
) *Sequencer {
	if maxIterations < 1 {
		maxIterations = 100
	}
	return &Sequencer{
		inbox:         make(chan event.Event, inboxSize),
		books:         make(map[string]*domain.OrderBook),
		nextSeq:       1,
		set:           set,
		ledger:        ledger,
		eval:          eval,
		executor:      executor,
		recorder:      recorder,
		rates:         rates,
		maxIterations: maxIterations,
	}
}

// Inbox returns the event channel. Feed workers send events here.
func (s *Sequencer) Inbox() chan<- event.Event {
	return s.inbox
}

// Run starts the main event loop. This MUST be run in a single goroutine.
func (s *Sequencer) Run(ctx context.Context) {
	slog.Info("Sequencer started (Single-Thread Hotpath)")

	defer func() {
		if r := recover(); r != nil {
			slog.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
			s.DumpState("panic_dump.json")
			panic(fmt.Sprintf("HALTED: %v", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Sequencer stopping...")
			return
		case ev := <-s.inbox:
			s.processEvent(ctx, ev)
		}
	}
}

func (s *Sequencer) processEvent(ctx context.Context, ev event.Event) {
	// Sequence Gap Check (Halt Policy)
	if ev.GetSeq() != s.nextSeq {
		panic(fmt.Sprintf("SEQUENCE_GAP_DETECTED: expected %d, got %d", s.nextSeq, ev.GetSeq()))
	}

	switch e := ev.(type) {
	case *event.BookUpdateEvent:
		s.handleBookUpdate(ctx, e)
		event.ReleaseBookUpdateEvent(e)
	default:
		slog.Warn("Unknown event type", slog.Any("type", ev.GetType()))
	}

	s.nextSeq++
}

// ReplayEvent processes an event synchronously, bypassing the inbox.
// This is used exclusively by the historical replay feed.
func (s *Sequencer) ReplayEvent(ctx context.Context, ev event.Event) {
	s.processEvent(ctx, ev)
}

func (s *Sequencer) handleBookUpdate(ctx context.Context, e *event.BookUpdateEvent) {
	infra.UpdatesTotal.Inc()

	s.mu.Lock()
	book, ok := s.books[e.Security]
	if !ok {
		book = domain.NewOrderBook(e.Security)
		s.books[e.Security] = book
	}
	err := book.ApplyUpdate(e.Update())
	s.mu.Unlock()

	if err != nil {
		switch err.(type) {
		case *domain.StaleDataError:
			// Dropped entirely: stale data must not trigger an evaluation.
			infra.StaleUpdatesTotal.Inc()
			slog.Warn("stale update dropped", slog.Any("error", err))
			return
		case *domain.CrossedBookError:
			// The book keeps its prior state; nothing to re-evaluate.
			infra.CrossedBooksTotal.Inc()
			slog.Warn("crossed update rejected", slog.Any("error", err))
			return
		default:
			slog.Warn("update rejected", slog.String("security", e.Security), slog.Any("error", err))
			return
		}
	}

	if !s.set.Contains(e.Security) {
		return
	}

	s.drainOpportunities(ctx, e.Time)
}

// drainOpportunities evaluates and executes until the books hold no further
// profitable round trip, the iteration cap is hit, or an execution fails.
func (s *Sequencer) drainOpportunities(ctx context.Context, ts time.Time) {
	for i := 0; i < s.maxIterations; i++ {
		rate := s.rates.GetRate()
		opp := s.eval.Evaluate(s.books, s.ledger, rate)
		if opp == nil {
			return
		}

		infra.OpportunitiesTotal.Inc()
		slog.Info("ARBITRAGE_OPPORTUNITY",
			slog.Time("market_time", ts),
			slog.String("buy_pair", opp.BuyPair),
			slog.String("sell_pair", opp.SellPair),
			slog.String("fx_buy", opp.ImpliedFXBuy.StringFixed(4)),
			slog.String("fx_sell", opp.ImpliedFXSell.StringFixed(4)),
			slog.String("nominals", opp.Nominals.String()),
			slog.String("expected_net_ars", opp.ExpectedNetPnL.StringFixed(2)),
		)

		res := s.executor.Execute(ctx, opp, rate)
		s.recorder.Record(res)
		s.settleBooks(res)
		s.publishBalances()

		infra.LegsFilledTotal.Add(float64(res.FilledLegs))
		if res.State != domain.StateCompleted {
			// A failing gateway would fail the identical re-detected
			// opportunity again; stop draining this tick.
			return
		}
		infra.TradesExecutedTotal.Inc()
	}
	slog.Warn("opportunity drain hit iteration cap", slog.Int("cap", s.maxIterations))
}

// settleBooks consumes the resting quantity our fills took out of the
// ladders; the replayed exchange will not send us a post-trade snapshot.
func (s *Sequencer) settleBooks(res *domain.ExecutionResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, lr := range res.Legs {
		if !lr.Filled {
			continue
		}
		if book, ok := s.books[lr.Leg.Security]; ok {
			book.Consume(lr.Leg.BookSide(), lr.Leg.Price, lr.Leg.Quantity)
		}
	}
}

func (s *Sequencer) publishBalances() {
	for ccy, bal := range s.ledger.Snapshot() {
		f, _ := bal.Float64()
		infra.BalanceGauge.WithLabelValues(string(ccy)).Set(f)
	}
}

// GetBook returns a copy of a book's ladders for external readers.
func (s *Sequencer) GetBook(security string) (bids, offers []domain.PriceLevel, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	book, found := s.books[security]
	if !found {
		return nil, nil, false
	}
	return book.Levels(domain.BookSideBid), book.Levels(domain.BookSideOffer), true
}

// DumpState writes the entire internal state to a file (for post-mortem).
func (s *Sequencer) DumpState(filename string) {
	slog.Info("Dumping internal state...", slog.String("file", filename))

	type bookDump struct {
		Bids       []domain.PriceLevel `json:"bids"`
		Offers     []domain.PriceLevel `json:"offers"`
		LastUpdate time.Time           `json:"last_update"`
	}

	books := make(map[string]bookDump, len(s.books))
	for sec, book := range s.books {
		books[sec] = bookDump{
			Bids:       book.Levels(domain.BookSideBid),
			Offers:     book.Levels(domain.BookSideOffer),
			LastUpdate: book.LastUpdate,
		}
	}

	data := struct {
		NextSeq  uint64                              `json:"next_seq"`
		Books    map[string]bookDump                 `json:"books"`
		Balances map[domain.Currency]decimal.Decimal `json:"balances"`
	}{
		NextSeq:  s.nextSeq,
		Books:    books,
		Balances: s.ledger.Snapshot(),
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		slog.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	if err := os.WriteFile(filename, b, 0644); err != nil {
		slog.Error("Failed to write state dump", slog.Any("error", err))
	}
}
