package report

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"bond_arb/internal/domain"
)

// jsonlRecord is the flattened per-trade line written by JSONLSink.
type jsonlRecord struct {
	OpportunityID string              `json:"opportunity_id"`
	State         string              `json:"state"`
	FilledLegs    int                 `json:"filled_legs"`
	FailedLegs    int                 `json:"failed_legs"`
	RetriesUsed   int                 `json:"retries_used"`
	RealizedARS   string              `json:"realized_ars"`
	RealizedUSD   string              `json:"realized_usd"`
	CommissionARS string              `json:"commission_ars"`
	LatencyMS     float64             `json:"latency_ms"`
	CompletedAt   time.Time           `json:"completed_at"`
	Legs          []jsonlLeg          `json:"legs"`
}

type jsonlLeg struct {
	Security string `json:"security"`
	Side     string `json:"side"`
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
	Filled   bool   `json:"filled"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

// JSONLSink appends one JSON line per execution result.
type JSONLSink struct {
	mu sync.Mutex
	w  io.Writer
	c  io.Closer
}

// NewJSONLSink wraps an arbitrary writer.
func NewJSONLSink(w io.Writer) *JSONLSink {
	return &JSONLSink{w: w}
}

// OpenJSONLSink opens (appending) a JSON lines file.
func OpenJSONLSink(path string) (*JSONLSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &JSONLSink{w: f, c: f}, nil
}

// Write implements Sink.
func (s *JSONLSink) Write(res *domain.ExecutionResult) error {
	rec := jsonlRecord{
		OpportunityID: res.OpportunityID,
		State:         string(res.State),
		FilledLegs:    res.FilledLegs,
		FailedLegs:    res.FailedLegs,
		RetriesUsed:   res.RetriesUsed,
		RealizedARS:   res.RealizedPnL[domain.CurrencyARS].StringFixed(2),
		RealizedUSD:   res.RealizedPnL[domain.CurrencyUSD].StringFixed(2),
		CommissionARS: res.Commission.StringFixed(2),
		LatencyMS:     float64(res.Latency.Microseconds()) / 1000.0,
		CompletedAt:   res.CompletedAt,
	}
	for _, lr := range res.Legs {
		rec.Legs = append(rec.Legs, jsonlLeg{
			Security: lr.Leg.Security,
			Side:     lr.Leg.Side,
			Price:    lr.Leg.Price.String(),
			Quantity: lr.Leg.Quantity.String(),
			Filled:   lr.Filled,
			Attempts: lr.Attempts,
			Error:    lr.Error,
		})
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.w.Write(append(line, '\n'))
	return err
}

// Close closes the underlying file when one was opened.
func (s *JSONLSink) Close() error {
	if s.c == nil {
		return nil
	}
	return s.c.Close()
}
