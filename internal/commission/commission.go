// Package commission computes peso-denominated trading commissions.
package commission

import (
	"fmt"

	"github.com/shopspring/decimal"

	"bond_arb/internal/domain"
)

var bpsDivisor = decimal.NewFromInt(10000)

// Model holds the commission rate per settlement currency, in basis points.
// Compute is a pure function: commissions are always expressed in ARS, with
// USD notionals converted at the end-of-day FX rate passed by the caller.
// The USD rate is typically set higher to reflect settlement risk.
type Model struct {
	rates map[domain.Currency]decimal.Decimal
}

// NewModel builds a model from per-currency rates in basis points.
func NewModel(arsBps, usdBps decimal.Decimal) (*Model, error) {
	if arsBps.IsNegative() || usdBps.IsNegative() {
		return nil, fmt.Errorf("commission rates must be non-negative: ars=%s usd=%s", arsBps, usdBps)
	}
	return &Model{
		rates: map[domain.Currency]decimal.Decimal{
			domain.CurrencyARS: arsBps,
			domain.CurrencyUSD: usdBps,
		},
	}, nil
}

// Compute returns the ARS commission for a notional in the given currency.
func (m *Model) Compute(notional decimal.Decimal, ccy domain.Currency, fxRateEOD decimal.Decimal) decimal.Decimal {
	notionalARS := notional
	if ccy == domain.CurrencyUSD {
		notionalARS = notional.Mul(fxRateEOD)
	}
	return notionalARS.Mul(m.rates[ccy]).Div(bpsDivisor)
}

// Rate returns the configured rate for a currency as a fraction (bps/10000),
// the factor the evaluator folds into fee-adjusted prices.
func (m *Model) Rate(ccy domain.Currency) decimal.Decimal {
	return m.rates[ccy].Div(bpsDivisor)
}
