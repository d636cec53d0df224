package strategy

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bond_arb/internal/commission"
	"bond_arb/internal/domain"
)

func testSet(t *testing.T) *domain.InstrumentSet {
	t.Helper()
	al30, err := domain.NewBondPair("AL30", "AL30", "AL30D")
	if err != nil {
		t.Fatal(err)
	}
	gd30, err := domain.NewBondPair("GD30", "GD30", "GD30D")
	if err != nil {
		t.Fatal(err)
	}
	set, err := domain.NewInstrumentSet([]domain.BondPair{al30, gd30})
	if err != nil {
		t.Fatal(err)
	}
	return set
}

func oneBps(t *testing.T) *commission.Model {
	t.Helper()
	m, err := commission.NewModel(decimal.NewFromInt(1), decimal.NewFromInt(1))
	if err != nil {
		t.Fatal(err)
	}
	return m
}

type ladder struct {
	bid, bidQty     string
	offer, offerQty string
}

func makeBooks(t *testing.T, ladders map[string]ladder) map[string]*domain.OrderBook {
	t.Helper()
	books := make(map[string]*domain.OrderBook, len(ladders))
	ts := time.Date(2024, 3, 11, 11, 0, 0, 0, time.UTC)
	for sec, l := range ladders {
		ob := domain.NewOrderBook(sec)
		u := domain.BookUpdate{Security: sec, Time: ts}
		if l.bid != "" {
			u.Bids = []domain.PriceLevel{{
				Price:    decimal.RequireFromString(l.bid),
				Quantity: decimal.RequireFromString(l.bidQty),
			}}
		}
		if l.offer != "" {
			u.Offers = []domain.PriceLevel{{
				Price:    decimal.RequireFromString(l.offer),
				Quantity: decimal.RequireFromString(l.offerQty),
			}}
		}
		if err := ob.ApplyUpdate(u); err != nil {
			t.Fatalf("seeding %s: %v", sec, err)
		}
		books[sec] = ob
	}
	return books
}

// profitableBooks prices a round trip that acquires dollars through AL30 at
// an implied ~1000 ARS/USD and disposes of them through GD30 at ~1014.
func profitableBooks(t *testing.T) map[string]*domain.OrderBook {
	return makeBooks(t, map[string]ladder{
		"AL30":  {bid: "5750", bidQty: "100", offer: "5800", offerQty: "100"},
		"AL30D": {bid: "5.80", bidQty: "100", offer: "5.85", offerQty: "100"},
		"GD30":  {bid: "5830", bidQty: "100", offer: "5880", offerQty: "100"},
		"GD30D": {bid: "5.70", bidQty: "100", offer: "5.75", offerQty: "100"},
	})
}

func TestEvaluator_DetectsRoundTrip(t *testing.T) {
	eval := NewEvaluator(testSet(t), oneBps(t), 5)
	ledger := domain.NewLedger(decimal.NewFromInt(1_000_000), decimal.NewFromInt(1_000), false)

	opp := eval.Evaluate(profitableBooks(t), ledger, decimal.NewFromInt(1000))
	if opp == nil {
		t.Fatal("expected an opportunity")
	}

	if opp.BuyPair != "AL30" || opp.SellPair != "GD30" {
		t.Errorf("direction = buy %s / sell %s, want buy AL30 / sell GD30", opp.BuyPair, opp.SellPair)
	}
	if !opp.ImpliedFXBuy.LessThan(opp.ImpliedFXSell) {
		t.Errorf("implied fx buy %s not below sell %s", opp.ImpliedFXBuy, opp.ImpliedFXSell)
	}

	if len(opp.Legs) != 4 {
		t.Fatalf("legs = %d, want 4", len(opp.Legs))
	}
	wantLegs := []struct {
		security, side string
		ccy            domain.Currency
	}{
		{"AL30", domain.SideBuy, domain.CurrencyARS},
		{"AL30D", domain.SideSell, domain.CurrencyUSD},
		{"GD30D", domain.SideBuy, domain.CurrencyUSD},
		{"GD30", domain.SideSell, domain.CurrencyARS},
	}
	for i, want := range wantLegs {
		leg := opp.Legs[i]
		if leg.Security != want.security || leg.Side != want.side || leg.Currency != want.ccy {
			t.Errorf("leg %d = %s %s %s, want %s %s %s",
				i, leg.Side, leg.Security, leg.Currency, want.side, want.security, want.ccy)
		}
		if leg.ID == "" {
			t.Errorf("leg %d has no ID", i)
		}
		if !leg.Quantity.Equal(opp.Nominals) {
			t.Errorf("leg %d quantity %s != nominals %s", i, leg.Quantity, opp.Nominals)
		}
	}

	// Net is exactly gross minus total commission.
	if !opp.ExpectedNetPnL.Equal(opp.ExpectedGrossPnL.Sub(opp.ExpectedCommission)) {
		t.Errorf("net %s != gross %s - commission %s",
			opp.ExpectedNetPnL, opp.ExpectedGrossPnL, opp.ExpectedCommission)
	}
	if !opp.ExpectedNetPnL.GreaterThan(decimal.Zero) {
		t.Errorf("net PnL %s not positive", opp.ExpectedNetPnL)
	}

	// Gross per nominal: (5830-5800) + (5.80-5.75)*1000 = 80 ARS.
	wantGross := decimal.NewFromInt(80).Mul(opp.Nominals)
	if !opp.ExpectedGrossPnL.Equal(wantGross) {
		t.Errorf("gross PnL = %s, want %s", opp.ExpectedGrossPnL, wantGross)
	}
}

func TestEvaluator_CommissionSwallowsEdge(t *testing.T) {
	eval := NewEvaluator(testSet(t), oneBps(t), 5)
	ledger := domain.NewLedger(decimal.NewFromInt(1_000_000), decimal.NewFromInt(1_000), false)

	// Gross edge of 1 ARS per nominal against ~2.3 ARS of commissions.
	books := makeBooks(t, map[string]ladder{
		"AL30":  {bid: "5750", bidQty: "100", offer: "5800", offerQty: "100"},
		"AL30D": {bid: "5.80", bidQty: "100", offer: "5.85", offerQty: "100"},
		"GD30":  {bid: "5801", bidQty: "100", offer: "5880", offerQty: "100"},
		"GD30D": {bid: "5.75", bidQty: "100", offer: "5.80", offerQty: "100"},
	})

	if opp := eval.Evaluate(books, ledger, decimal.NewFromInt(1000)); opp != nil {
		t.Errorf("expected no opportunity, got net %s", opp.ExpectedNetPnL)
	}
}

func TestEvaluator_SizingBoundedByBook(t *testing.T) {
	eval := NewEvaluator(testSet(t), oneBps(t), 5)
	ledger := domain.NewLedger(decimal.NewFromInt(100_000_000), decimal.NewFromInt(10_000), false)

	books := profitableBooks(t)
	// Thin out one ladder of the round trip.
	ob := domain.NewOrderBook("GD30D")
	if err := ob.ApplyUpdate(domain.BookUpdate{
		Security: "GD30D",
		Time:     time.Date(2024, 3, 11, 11, 0, 0, 0, time.UTC),
		Bids:     []domain.PriceLevel{{Price: decimal.RequireFromString("5.70"), Quantity: decimal.NewFromInt(100)}},
		Offers:   []domain.PriceLevel{{Price: decimal.RequireFromString("5.75"), Quantity: decimal.NewFromInt(7)}},
	}); err != nil {
		t.Fatal(err)
	}
	books["GD30D"] = ob

	opp := eval.Evaluate(books, ledger, decimal.NewFromInt(1000))
	if opp == nil {
		t.Fatal("expected an opportunity")
	}
	if !opp.Nominals.Equal(decimal.NewFromInt(7)) {
		t.Errorf("nominals = %s, want 7 (thinnest ladder)", opp.Nominals)
	}
}

func TestEvaluator_SizingBoundedByBalance(t *testing.T) {
	eval := NewEvaluator(testSet(t), oneBps(t), 5)
	// Roughly 5802 ARS committed per nominal; 20k funds 3.
	ledger := domain.NewLedger(decimal.NewFromInt(20_000), decimal.NewFromInt(10_000), false)

	opp := eval.Evaluate(profitableBooks(t), ledger, decimal.NewFromInt(1000))
	if opp == nil {
		t.Fatal("expected an opportunity")
	}
	if !opp.Nominals.Equal(decimal.NewFromInt(3)) {
		t.Errorf("nominals = %s, want 3 (ARS-bounded)", opp.Nominals)
	}
}

func TestEvaluator_OverdraftPolicy(t *testing.T) {
	// The round trip pays 5.70 per dollar bond sold but needs 5.75 per
	// dollar bond bought: 0.05 USD of intermediate shortfall per nominal.
	books := func(t *testing.T) map[string]*domain.OrderBook {
		return makeBooks(t, map[string]ladder{
			"AL30":  {bid: "5600", bidQty: "100", offer: "5650", offerQty: "100"},
			"AL30D": {bid: "5.70", bidQty: "100", offer: "5.78", offerQty: "100"},
			"GD30":  {bid: "5800", bidQty: "100", offer: "5880", offerQty: "100"},
			"GD30D": {bid: "5.60", bidQty: "100", offer: "5.75", offerQty: "100"},
		})
	}

	t.Run("conservative rejects unfundable shortfall", func(t *testing.T) {
		eval := NewEvaluator(testSet(t), oneBps(t), 5)
		ledger := domain.NewLedger(decimal.NewFromInt(1_000_000), decimal.Zero, false)
		if opp := eval.Evaluate(books(t), ledger, decimal.NewFromInt(1000)); opp != nil {
			t.Errorf("expected nil with zero USD, got nominals %s", opp.Nominals)
		}
	})

	t.Run("conservative sizes to USD balance", func(t *testing.T) {
		eval := NewEvaluator(testSet(t), oneBps(t), 5)
		ledger := domain.NewLedger(decimal.NewFromInt(1_000_000), decimal.NewFromInt(2), false)
		opp := eval.Evaluate(books(t), ledger, decimal.NewFromInt(1000))
		if opp == nil {
			t.Fatal("expected an opportunity")
		}
		// 2 USD / 0.05 shortfall per nominal = 40 nominals.
		if !opp.Nominals.Equal(decimal.NewFromInt(40)) {
			t.Errorf("nominals = %s, want 40 (USD-bounded)", opp.Nominals)
		}
	})

	t.Run("aggressive ignores USD shortfall", func(t *testing.T) {
		eval := NewEvaluator(testSet(t), oneBps(t), 5)
		ledger := domain.NewLedger(decimal.NewFromInt(1_000_000), decimal.Zero, true)
		opp := eval.Evaluate(books(t), ledger, decimal.NewFromInt(1000))
		if opp == nil {
			t.Fatal("expected an opportunity")
		}
		if !opp.Nominals.Equal(decimal.NewFromInt(100)) {
			t.Errorf("nominals = %s, want 100 (book-bounded)", opp.Nominals)
		}
	})
}

func TestEvaluator_EmptyBooks(t *testing.T) {
	eval := NewEvaluator(testSet(t), oneBps(t), 5)
	ledger := domain.NewLedger(decimal.NewFromInt(1_000_000), decimal.NewFromInt(1_000), false)

	if opp := eval.Evaluate(map[string]*domain.OrderBook{}, ledger, decimal.NewFromInt(1000)); opp != nil {
		t.Error("expected nil on empty books")
	}

	// One ladder missing a side.
	books := profitableBooks(t)
	books["GD30"] = domain.NewOrderBook("GD30")
	if opp := eval.Evaluate(books, ledger, decimal.NewFromInt(1000)); opp != nil {
		t.Error("expected nil with a one-sided ladder missing")
	}
}
