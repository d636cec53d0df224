package domain

import (
	"github.com/shopspring/decimal"
)

// Ledger tracks the ARS/USD cash balances of the simulated account.
// Mutated only by confirmed executions, on the engine goroutine; it holds
// no lock of its own.
//
// The allowNegative flag is the run's named overdraft policy: when false
// (the default, conservative mode) any debit beyond the available balance
// fails with InsufficientBalanceError; when true the debit succeeds and the
// resulting negative balance is the caller's to report.
type Ledger struct {
	balances      map[Currency]decimal.Decimal
	allowNegative bool
}

// NewLedger creates a ledger seeded with the initial balances.
func NewLedger(ars, usd decimal.Decimal, allowNegative bool) *Ledger {
	return &Ledger{
		balances: map[Currency]decimal.Decimal{
			CurrencyARS: ars,
			CurrencyUSD: usd,
		},
		allowNegative: allowNegative,
	}
}

// AllowsNegative reports the configured overdraft policy.
func (l *Ledger) AllowsNegative() bool {
	return l.allowNegative
}

// Balance returns the current balance for a currency.
func (l *Ledger) Balance(ccy Currency) decimal.Decimal {
	return l.balances[ccy]
}

// CanAfford reports whether a debit of the given amount would succeed under
// the current policy and balances.
func (l *Ledger) CanAfford(ccy Currency, amount decimal.Decimal) bool {
	if l.allowNegative {
		return true
	}
	return amount.LessThanOrEqual(l.balances[ccy])
}

// Debit removes funds. Fails with InsufficientBalanceError when the amount
// exceeds the available balance and overdrafts are not permitted.
func (l *Ledger) Debit(ccy Currency, amount decimal.Decimal) error {
	if !l.allowNegative && amount.GreaterThan(l.balances[ccy]) {
		return &InsufficientBalanceError{
			Currency:  ccy,
			Need:      amount,
			Available: l.balances[ccy],
		}
	}
	l.balances[ccy] = l.balances[ccy].Sub(amount)
	return nil
}

// Credit adds funds.
func (l *Ledger) Credit(ccy Currency, amount decimal.Decimal) {
	l.balances[ccy] = l.balances[ccy].Add(amount)
}

// Snapshot returns a copy of all balances.
func (l *Ledger) Snapshot() map[Currency]decimal.Decimal {
	out := make(map[Currency]decimal.Decimal, len(l.balances))
	for ccy, bal := range l.balances {
		out[ccy] = bal
	}
	return out
}
