package execution

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"bond_arb/internal/commission"
	"bond_arb/internal/domain"
	"bond_arb/internal/infra"
)

// Config holds the retry policy for leg submissions.
type Config struct {
	// MaxRetries is the number of additional attempts allowed per leg
	// after the first submission fails transiently.
	MaxRetries int
	// RetryDelay is the fixed wait between attempts when UseBackoff is
	// false.
	RetryDelay time.Duration
	// UseBackoff switches to capped exponential backoff between attempts.
	UseBackoff bool
}

// Sequencer executes an opportunity's legs in order against the gateway.
// Leg i+1 is submitted only after leg i resolves; balances are re-validated
// immediately before each leg and mutated only on confirmed fills, never
// pre-committed for the whole opportunity. Transient gateway failures are
// retried within the configured budget; a reject or an insufficient balance
// aborts the remaining legs. When at least one leg already filled the
// sequence ends PartiallyFilled and the unintended currency exposure is
// recorded for strategy-level follow-up rather than unwound.
type Sequencer struct {
	gateway Gateway
	ledger  *domain.Ledger
	comm    *commission.Model
	cfg     Config
}

// NewSequencer wires the execution sequencer.
func NewSequencer(gateway Gateway, ledger *domain.Ledger, comm *commission.Model, cfg Config) *Sequencer {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Sequencer{gateway: gateway, ledger: ledger, comm: comm, cfg: cfg}
}

// Execute runs the full leg sequence for one opportunity and returns the
// terminal ExecutionResult. The opportunity is consumed either way.
func (s *Sequencer) Execute(ctx context.Context, opp *domain.Opportunity, fxRateEOD decimal.Decimal) *domain.ExecutionResult {
	started := time.Now()
	res := &domain.ExecutionResult{
		OpportunityID: opp.ID,
		State:         domain.StatePending,
		StartedAt:     started,
		RealizedPnL: map[domain.Currency]decimal.Decimal{
			domain.CurrencyARS: decimal.Zero,
			domain.CurrencyUSD: decimal.Zero,
		},
		Exposure: map[domain.Currency]decimal.Decimal{},
	}

	for _, leg := range opp.Legs {
		res.State = domain.StateSubmitting
		lr, delta, comm := s.runLeg(ctx, leg, fxRateEOD)
		res.Legs = append(res.Legs, lr)
		if lr.Attempts > 1 {
			res.RetriesUsed += lr.Attempts - 1
		}

		if !lr.Filled {
			res.FailedLegs++
			if res.FilledLegs > 0 {
				res.State = domain.StatePartiallyFilled
				for ccy, d := range res.RealizedPnL {
					if !d.IsZero() {
						res.Exposure[ccy] = d
					}
				}
			} else {
				res.State = domain.StateFailed
			}
			slog.Warn("execution sequence aborted",
				slog.String("opportunity", opp.ID),
				slog.String("leg", leg.ID),
				slog.String("state", string(res.State)),
				slog.String("error", lr.Error),
			)
			break
		}

		res.FilledLegs++
		res.RealizedPnL[leg.Currency] = res.RealizedPnL[leg.Currency].Add(delta)
		res.RealizedPnL[domain.CurrencyARS] = res.RealizedPnL[domain.CurrencyARS].Sub(comm)
		res.Commission = res.Commission.Add(comm)
	}

	if res.State == domain.StateSubmitting {
		res.State = domain.StateCompleted
	}
	res.Latency = time.Since(started)
	res.CompletedAt = time.Now()

	if bal := s.ledger.Balance(domain.CurrencyUSD); bal.IsNegative() {
		slog.Warn("USD balance is negative after execution",
			slog.String("opportunity", opp.ID),
			slog.String("usd_balance", bal.String()))
	}
	return res
}

// runLeg submits a single leg with bounded retries. It returns the leg
// result plus the confirmed cash-flow delta in the leg's currency and the
// ARS commission charged.
func (s *Sequencer) runLeg(ctx context.Context, leg domain.Leg, fx decimal.Decimal) (domain.LegResult, decimal.Decimal, decimal.Decimal) {
	legStart := time.Now()
	lr := domain.LegResult{Leg: leg}

	amount := leg.GrossAmount()
	comm := s.comm.Compute(amount, leg.Currency, fx)

	// Balances may have moved since evaluation: re-check immediately
	// before submitting, and treat a shortfall as a hard stop, not a retry.
	if err := s.checkAffordable(leg, amount, comm); err != nil {
		lr.Error = err.Error()
		lr.Latency = time.Since(legStart)
		return lr, decimal.Decimal{}, decimal.Decimal{}
	}

	for attempt := 1; ; attempt++ {
		lr.Attempts = attempt
		out := s.gateway.Submit(ctx, leg)

		switch out.Kind {
		case OutcomeAck:
			delta, err := s.settle(leg, amount, comm)
			if err != nil {
				lr.Error = err.Error()
				lr.Latency = time.Since(legStart)
				return lr, decimal.Decimal{}, decimal.Decimal{}
			}
			lr.Filled = true
			lr.Latency = time.Since(legStart)
			infra.LegLatency.Observe(lr.Latency.Seconds())
			return lr, delta, comm

		case OutcomeReject:
			err := &domain.SubmissionError{Security: leg.Security, Reason: out.Reason, Transient: false}
			lr.Error = err.Error()
			lr.Latency = time.Since(legStart)
			return lr, decimal.Decimal{}, decimal.Decimal{}

		case OutcomeTransient:
			infra.RetriesTotal.Inc()
			if attempt > s.cfg.MaxRetries {
				err := &domain.SubmissionError{
					Security:  leg.Security,
					Reason:    fmt.Sprintf("retry budget exhausted after %d attempts: %s", attempt, out.Reason),
					Transient: false,
				}
				lr.Error = err.Error()
				lr.Latency = time.Since(legStart)
				return lr, decimal.Decimal{}, decimal.Decimal{}
			}
			delay := s.cfg.RetryDelay
			if s.cfg.UseBackoff {
				delay = infra.CalculateBackoff(attempt - 1)
			}
			slog.Debug("transient submission failure, retrying",
				slog.String("leg", leg.ID),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
			)
			select {
			case <-ctx.Done():
				lr.Error = ctx.Err().Error()
				lr.Latency = time.Since(legStart)
				return lr, decimal.Decimal{}, decimal.Decimal{}
			case <-time.After(delay):
			}
		}
	}
}

func (s *Sequencer) checkAffordable(leg domain.Leg, amount, comm decimal.Decimal) error {
	arsNeed := comm
	usdNeed := decimal.Zero
	if leg.Side == domain.SideBuy {
		if leg.Currency == domain.CurrencyARS {
			arsNeed = arsNeed.Add(amount)
		} else {
			usdNeed = amount
		}
	}
	if arsNeed.GreaterThan(decimal.Zero) && !s.ledger.CanAfford(domain.CurrencyARS, arsNeed) {
		return &domain.InsufficientBalanceError{
			Currency:  domain.CurrencyARS,
			Need:      arsNeed,
			Available: s.ledger.Balance(domain.CurrencyARS),
		}
	}
	if usdNeed.GreaterThan(decimal.Zero) && !s.ledger.CanAfford(domain.CurrencyUSD, usdNeed) {
		return &domain.InsufficientBalanceError{
			Currency:  domain.CurrencyUSD,
			Need:      usdNeed,
			Available: s.ledger.Balance(domain.CurrencyUSD),
		}
	}
	return nil
}

// settle applies the confirmed fill to the ledger and returns the cash-flow
// delta in the leg's currency (commission excluded, it always hits ARS).
func (s *Sequencer) settle(leg domain.Leg, amount, comm decimal.Decimal) (decimal.Decimal, error) {
	if leg.Side == domain.SideBuy {
		if err := s.ledger.Debit(leg.Currency, amount); err != nil {
			return decimal.Decimal{}, err
		}
	} else {
		s.ledger.Credit(leg.Currency, amount)
	}
	if err := s.ledger.Debit(domain.CurrencyARS, comm); err != nil {
		// Undo the principal movement; a fill settles fully or not at all.
		if leg.Side == domain.SideBuy {
			s.ledger.Credit(leg.Currency, amount)
		} else {
			_ = s.ledger.Debit(leg.Currency, amount)
		}
		return decimal.Decimal{}, err
	}
	if leg.Side == domain.SideBuy {
		return amount.Neg(), nil
	}
	return amount, nil
}
