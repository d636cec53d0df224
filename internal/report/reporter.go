// Package report aggregates per-trade and run-level outcomes.
package report

import (
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"bond_arb/internal/domain"
)

// Sink persists or prints finished execution results. The reporter has no
// opinion on serialization format.
type Sink interface {
	Write(res *domain.ExecutionResult) error
}

// Summary is a run-level aggregate snapshot.
type Summary struct {
	TradesExecuted   int                                 `json:"trades_executed"`
	PartialFills     int                                 `json:"partial_fills"`
	FailedSequences  int                                 `json:"failed_sequences"`
	LegsExecuted     int                                 `json:"legs_executed"`
	RetriesUsed      int                                 `json:"retries_used"`
	TotalLatency     time.Duration                       `json:"total_latency_ns"`
	AvgLatencyPerLeg time.Duration                       `json:"avg_latency_per_leg_ns"`
	TotalCommission  decimal.Decimal                     `json:"total_commission_ars"`
	PnLByCurrency    map[domain.Currency]decimal.Decimal `json:"pnl_by_currency"`
	FinalBalances    map[domain.Currency]decimal.Decimal `json:"final_balances"`
}

// Reporter accumulates execution results. Aggregation is purely additive:
// the realized PnL attached to each result is the single source of truth,
// never recomputed from market data, so commission effects are counted
// exactly once.
type Reporter struct {
	mu sync.Mutex

	ledger *domain.Ledger
	sinks  []Sink

	trades      int
	partials    int
	failures    int
	legs        int
	retries     int
	totalLat    time.Duration
	commission  decimal.Decimal
	pnl         map[domain.Currency]decimal.Decimal
}

// NewReporter creates a reporter reading final balances from the ledger.
func NewReporter(ledger *domain.Ledger, sinks ...Sink) *Reporter {
	return &Reporter{
		ledger: ledger,
		sinks:  sinks,
		pnl: map[domain.Currency]decimal.Decimal{
			domain.CurrencyARS: decimal.Zero,
			domain.CurrencyUSD: decimal.Zero,
		},
	}
}

// Record folds one execution result into the aggregates and forwards it to
// every sink. Sink failures are logged, never fatal to the run.
func (r *Reporter) Record(res *domain.ExecutionResult) {
	r.mu.Lock()
	switch res.State {
	case domain.StateCompleted:
		r.trades++
	case domain.StatePartiallyFilled:
		r.partials++
	case domain.StateFailed:
		r.failures++
	}
	r.legs += res.FilledLegs
	r.retries += res.RetriesUsed
	r.totalLat += res.Latency
	r.commission = r.commission.Add(res.Commission)
	for ccy, delta := range res.RealizedPnL {
		r.pnl[ccy] = r.pnl[ccy].Add(delta)
	}
	r.mu.Unlock()

	for _, sink := range r.sinks {
		if err := sink.Write(res); err != nil {
			slog.Error("report sink write failed", slog.Any("error", err))
		}
	}
}

// Summary returns the current run-level aggregates.
func (r *Reporter) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	avg := time.Duration(0)
	if r.legs > 0 {
		avg = r.totalLat / time.Duration(r.legs)
	}

	pnl := make(map[domain.Currency]decimal.Decimal, len(r.pnl))
	for ccy, v := range r.pnl {
		pnl[ccy] = v
	}

	return Summary{
		TradesExecuted:   r.trades,
		PartialFills:     r.partials,
		FailedSequences:  r.failures,
		LegsExecuted:     r.legs,
		RetriesUsed:      r.retries,
		TotalLatency:     r.totalLat,
		AvgLatencyPerLeg: avg,
		TotalCommission:  r.commission,
		PnLByCurrency:    pnl,
		FinalBalances:    r.ledger.Snapshot(),
	}
}

// LogSummary writes the run summary to the structured log.
func (r *Reporter) LogSummary() {
	s := r.Summary()
	slog.Info("RUN_SUMMARY",
		slog.Int("trades_executed", s.TradesExecuted),
		slog.Int("partial_fills", s.PartialFills),
		slog.Int("failed_sequences", s.FailedSequences),
		slog.Int("legs_executed", s.LegsExecuted),
		slog.Int("retries_used", s.RetriesUsed),
		slog.Duration("total_latency", s.TotalLatency),
		slog.Duration("avg_latency_per_leg", s.AvgLatencyPerLeg),
		slog.String("total_commission_ars", s.TotalCommission.StringFixed(2)),
		slog.String("pnl_ars", s.PnLByCurrency[domain.CurrencyARS].StringFixed(2)),
		slog.String("pnl_usd", s.PnLByCurrency[domain.CurrencyUSD].StringFixed(2)),
		slog.String("final_ars", s.FinalBalances[domain.CurrencyARS].StringFixed(2)),
		slog.String("final_usd", s.FinalBalances[domain.CurrencyUSD].StringFixed(2)),
	)
}
