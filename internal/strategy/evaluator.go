// Package strategy holds the triangular arbitrage evaluator.
package strategy

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bond_arb/internal/commission"
	"bond_arb/internal/domain"
)

var one = decimal.NewFromInt(1)

// Evaluator scans the order books of every configured bond pair for a
// profitable FX round trip: buy dollars through one pair (buy the peso
// bond, sell its dollar twin) and sell them back through another (buy the
// dollar bond, sell its peso twin). An opportunity exists when the implied
// FX rate paid, fees included, is below the implied FX rate received.
//
// Sizing never assumes unlimited liquidity: the nominal count is bounded by
// the resting quantity within the configured book-walk depth on all four
// ladders and by the cash the ledger can commit under the run's overdraft
// policy.
type Evaluator struct {
	set      *domain.InstrumentSet
	comm     *commission.Model
	maxDepth int
}

// NewEvaluator creates an evaluator. maxDepth is clamped to at least 1.
func NewEvaluator(set *domain.InstrumentSet, comm *commission.Model, maxDepth int) *Evaluator {
	if maxDepth < 1 {
		maxDepth = 1
	}
	return &Evaluator{set: set, comm: comm, maxDepth: maxDepth}
}

// quote is one ladder's depth-capped liquidity. Price is the worst level
// touched within the walk, so sizing below the full walk is conservative.
type quote struct {
	price decimal.Decimal
	qty   decimal.Decimal
}

func (e *Evaluator) quoteFor(books map[string]*domain.OrderBook, security, side string) (quote, bool) {
	book, ok := books[security]
	if !ok {
		return quote{}, false
	}
	qty, worst, ok := book.AvailableWithin(side, e.maxDepth)
	if !ok {
		return quote{}, false
	}
	return quote{price: worst, qty: qty}, true
}

// Evaluate returns the most profitable opportunity across all ordered pair
// combinations, or nil when no round trip is profitable net of commissions
// and affordable at current balances.
func (e *Evaluator) Evaluate(books map[string]*domain.OrderBook, ledger *domain.Ledger, fxRateEOD decimal.Decimal) *domain.Opportunity {
	if fxRateEOD.LessThanOrEqual(decimal.Zero) {
		return nil
	}

	var best *domain.Opportunity
	for _, buyPair := range e.set.Pairs() {
		for _, sellPair := range e.set.Pairs() {
			if buyPair.Name == sellPair.Name {
				continue
			}
			opp := e.evaluateDirection(books, ledger, buyPair, sellPair, fxRateEOD)
			if opp == nil {
				continue
			}
			if best == nil || opp.ExpectedNetPnL.GreaterThan(best.ExpectedNetPnL) {
				best = opp
			}
		}
	}
	return best
}

func (e *Evaluator) evaluateDirection(
	books map[string]*domain.OrderBook,
	ledger *domain.Ledger,
	buyPair, sellPair domain.BondPair,
	fx decimal.Decimal,
) *domain.Opportunity {
	pesoBuy, ok1 := e.quoteFor(books, buyPair.PesoSecurity, domain.BookSideOffer)
	dollarBuy, ok2 := e.quoteFor(books, buyPair.DollarSecurity, domain.BookSideBid)
	dollarSell, ok3 := e.quoteFor(books, sellPair.DollarSecurity, domain.BookSideOffer)
	pesoSell, ok4 := e.quoteFor(books, sellPair.PesoSecurity, domain.BookSideBid)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil
	}

	feeARS := e.comm.Rate(domain.CurrencyARS)
	feeUSD := e.comm.Rate(domain.CurrencyUSD)

	buyDenom := dollarBuy.price.Mul(one.Sub(feeUSD))
	sellDenom := dollarSell.price.Mul(one.Add(feeUSD))
	if buyDenom.LessThanOrEqual(decimal.Zero) || sellDenom.LessThanOrEqual(decimal.Zero) {
		return nil
	}
	fxBuy := pesoBuy.price.Mul(one.Add(feeARS)).Div(buyDenom)
	fxSell := pesoSell.price.Mul(one.Sub(feeARS)).Div(sellDenom)
	if !fxBuy.LessThan(fxSell) {
		return nil
	}

	// Per-nominal cash flows at raw prices; commissions settle in ARS.
	p1 := pesoBuy.price    // leg 1: buy peso bond, ARS out
	d1 := dollarBuy.price  // leg 2: sell dollar bond, USD in
	d2 := dollarSell.price // leg 3: buy dollar bond, USD out
	p2 := pesoSell.price   // leg 4: sell peso bond, ARS in

	c1 := e.comm.Compute(p1, domain.CurrencyARS, fx)
	c2 := e.comm.Compute(d1, domain.CurrencyUSD, fx)
	c3 := e.comm.Compute(d2, domain.CurrencyUSD, fx)
	c4 := e.comm.Compute(p2, domain.CurrencyARS, fx)
	commPerNominal := c1.Add(c2).Add(c3).Add(c4)

	grossPerNominal := p2.Sub(p1).Add(d1.Sub(d2).Mul(fx))
	netPerNominal := grossPerNominal.Sub(commPerNominal)
	if netPerNominal.LessThanOrEqual(decimal.Zero) {
		return nil
	}

	nominals := e.sizeNominals(ledger, p1, d1, d2, c1, c2, c3,
		decimal.Min(pesoBuy.qty, dollarBuy.qty, dollarSell.qty, pesoSell.qty))
	if nominals.LessThan(one) {
		slog.Debug("opportunity detected but unsizeable",
			slog.String("buy_pair", buyPair.Name),
			slog.String("sell_pair", sellPair.Name),
			slog.String("net_per_nominal", netPerNominal.String()))
		return nil
	}

	legs := []domain.Leg{
		{ID: uuid.New().String(), Security: buyPair.PesoSecurity, Side: domain.SideBuy,
			Currency: domain.CurrencyARS, Price: p1, Quantity: nominals},
		{ID: uuid.New().String(), Security: buyPair.DollarSecurity, Side: domain.SideSell,
			Currency: domain.CurrencyUSD, Price: d1, Quantity: nominals},
		{ID: uuid.New().String(), Security: sellPair.DollarSecurity, Side: domain.SideBuy,
			Currency: domain.CurrencyUSD, Price: d2, Quantity: nominals},
		{ID: uuid.New().String(), Security: sellPair.PesoSecurity, Side: domain.SideSell,
			Currency: domain.CurrencyARS, Price: p2, Quantity: nominals},
	}

	return &domain.Opportunity{
		ID:         uuid.New().String(),
		BuyPair:    buyPair.Name,
		SellPair:   sellPair.Name,
		Legs:       legs,
		Nominals:   nominals,
		DetectedAt: time.Now().UTC(),

		ImpliedFXBuy:  fxBuy,
		ImpliedFXSell: fxSell,

		ExpectedGrossPnL:   grossPerNominal.Mul(nominals),
		ExpectedCommission: commPerNominal.Mul(nominals),
		ExpectedNetPnL:     netPerNominal.Mul(nominals),

		ExposureDeltas: map[domain.Currency]decimal.Decimal{
			domain.CurrencyARS: p2.Sub(p1).Sub(commPerNominal).Mul(nominals),
			domain.CurrencyUSD: d1.Sub(d2).Mul(nominals),
		},
	}
}

// sizeNominals bounds the integer nominal count by book liquidity and by
// the ledger's balances. Conservative mode projects every intermediate
// balance of the leg sequence and refuses sizes that would overdraw a
// currency before the round trip closes; aggressive mode only requires the
// ARS to fund the opening leg.
func (e *Evaluator) sizeNominals(
	ledger *domain.Ledger,
	p1, d1, d2, c1, c2, c3 decimal.Decimal,
	bookQty decimal.Decimal,
) decimal.Decimal {
	n := bookQty.Floor()

	arsPerNominal := p1.Add(c1)
	if !ledger.AllowsNegative() {
		// Worst ARS point is after leg 3's commission, before leg 4 pays out.
		arsPerNominal = arsPerNominal.Add(c2).Add(c3)
	}
	if arsPerNominal.GreaterThan(decimal.Zero) {
		n = decimal.Min(n, ledger.Balance(domain.CurrencyARS).Div(arsPerNominal).Floor())
	}

	if !ledger.AllowsNegative() {
		// Worst USD point is after leg 3: the proceeds of leg 2 must cover
		// leg 3's outflow together with the opening USD balance.
		usdShortfall := d2.Sub(d1)
		if usdShortfall.GreaterThan(decimal.Zero) {
			n = decimal.Min(n, ledger.Balance(domain.CurrencyUSD).Div(usdShortfall).Floor())
		}
	}

	if n.IsNegative() {
		return decimal.Zero
	}
	return n
}
