package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Leg is one individual order within a multi-order arbitrage sequence.
// Price is the resting market price; commissions are accounted separately
// and always settle in ARS.
type Leg struct {
	ID       string
	Security string
	Side     string // SideBuy or SideSell
	Currency Currency
	Price    decimal.Decimal
	Quantity decimal.Decimal // nominals
}

// GrossAmount is price times quantity in the leg's settlement currency.
func (l Leg) GrossAmount() decimal.Decimal {
	return l.Price.Mul(l.Quantity)
}

// BookSide is the ladder side the leg consumes: buys lift offers, sells hit
// bids.
func (l Leg) BookSide() string {
	if l.Side == SideBuy {
		return BookSideOffer
	}
	return BookSideBid
}

// Opportunity is a detected arbitrage round trip. Created by the evaluator,
// consumed exactly once by the execution sequencer, then discarded whether
// executed or rejected.
type Opportunity struct {
	ID         string
	BuyPair    string // pair used to acquire dollars
	SellPair   string // pair used to dispose of dollars
	Legs       []Leg  // ordered; leg i+1 is submitted only after leg i resolves
	Nominals   decimal.Decimal
	DetectedAt time.Time

	ImpliedFXBuy  decimal.Decimal // ARS per USD paid acquiring dollars, fees included
	ImpliedFXSell decimal.Decimal // ARS per USD received disposing dollars, fees included

	ExpectedGrossPnL   decimal.Decimal // ARS, before commissions
	ExpectedCommission decimal.Decimal // ARS, all legs
	ExpectedNetPnL     decimal.Decimal // ARS, USD residual converted at EOD rate

	// ExposureDeltas are the cash-flow deltas per currency the full round
	// trip is expected to leave on the ledger.
	ExposureDeltas map[Currency]decimal.Decimal
}

// SequenceState is the terminal state of an execution sequence.
type SequenceState string

const (
	StatePending         SequenceState = "PENDING"
	StateSubmitting      SequenceState = "SUBMITTING"
	StateCompleted       SequenceState = "COMPLETED"
	StateFailed          SequenceState = "FAILED"
	StatePartiallyFilled SequenceState = "PARTIALLY_FILLED"
)

// LegResult records the outcome of a single leg submission.
type LegResult struct {
	Leg      Leg
	Filled   bool
	Attempts int
	Latency  time.Duration
	Error    string // empty on fill
}

// ExecutionResult is produced by the execution sequencer at the end of an
// attempt and owned by the report generator thereafter. Immutable.
type ExecutionResult struct {
	OpportunityID string
	State         SequenceState
	Legs          []LegResult
	FilledLegs    int
	FailedLegs    int
	RetriesUsed   int

	// RealizedPnL holds the confirmed cash-flow deltas per currency,
	// commissions included. The single source of truth for PnL.
	RealizedPnL map[Currency]decimal.Decimal
	Commission  decimal.Decimal // ARS

	// Exposure is the unintended currency exposure left behind by a
	// partial fill; empty when the sequence completed or nothing filled.
	Exposure map[Currency]decimal.Decimal

	Latency     time.Duration
	StartedAt   time.Time
	CompletedAt time.Time
}
