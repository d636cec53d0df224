package execution

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"bond_arb/internal/commission"
	"bond_arb/internal/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func twoBps(t *testing.T) *commission.Model {
	t.Helper()
	m, err := commission.NewModel(decimal.NewFromInt(2), decimal.NewFromInt(2))
	if err != nil {
		t.Fatal(err)
	}
	return m
}

// roundTripOpp builds a four-leg round trip on 100 nominals: 1,000,000 ARS
// opening notional, 5,000 ARS gross edge, ~801 ARS of commissions at 2bps
// per leg, so roughly 4,200 ARS net.
func roundTripOpp() *domain.Opportunity {
	n := decimal.NewFromInt(100)
	return &domain.Opportunity{
		ID: "opp-1",
		Legs: []domain.Leg{
			{ID: "L1", Security: "AL30", Side: domain.SideBuy,
				Currency: domain.CurrencyARS, Price: dec("10000"), Quantity: n},
			{ID: "L2", Security: "AL30D", Side: domain.SideSell,
				Currency: domain.CurrencyUSD, Price: dec("10.02"), Quantity: n},
			{ID: "L3", Security: "GD30D", Side: domain.SideBuy,
				Currency: domain.CurrencyUSD, Price: dec("10.00"), Quantity: n},
			{ID: "L4", Security: "GD30", Side: domain.SideSell,
				Currency: domain.CurrencyARS, Price: dec("10030"), Quantity: n},
		},
		Nominals: n,
	}
}

func TestSequencer_CompletedRoundTrip(t *testing.T) {
	gw := NewSimGateway(0)
	ledger := domain.NewLedger(dec("1100000"), decimal.Zero, false)
	seq := NewSequencer(gw, ledger, twoBps(t), Config{MaxRetries: 3, RetryDelay: time.Millisecond})

	res := seq.Execute(context.Background(), roundTripOpp(), decimal.NewFromInt(1000))

	if res.State != domain.StateCompleted {
		t.Fatalf("state = %s, want COMPLETED", res.State)
	}
	if res.FilledLegs != 4 || res.FailedLegs != 0 {
		t.Errorf("filled/failed = %d/%d, want 4/0", res.FilledLegs, res.FailedLegs)
	}
	if res.RetriesUsed != 0 {
		t.Errorf("retries = %d, want 0", res.RetriesUsed)
	}
	if len(res.Exposure) != 0 {
		t.Errorf("completed run left exposure: %v", res.Exposure)
	}

	// Commissions: 200 + 200.4 + 200 + 200.6 ARS.
	if !res.Commission.Equal(dec("801")) {
		t.Errorf("commission = %s, want 801", res.Commission)
	}
	// ARS: -1,000,000 + 1,003,000 - 801; USD: +1,002 - 1,000.
	if got := res.RealizedPnL[domain.CurrencyARS]; !got.Equal(dec("2199")) {
		t.Errorf("realized ARS = %s, want 2199", got)
	}
	if got := res.RealizedPnL[domain.CurrencyUSD]; !got.Equal(dec("2")) {
		t.Errorf("realized USD = %s, want 2", got)
	}
	// ~4,200 ARS net with the USD residual converted at the EOD rate.
	net := res.RealizedPnL[domain.CurrencyARS].Add(res.RealizedPnL[domain.CurrencyUSD].Mul(decimal.NewFromInt(1000)))
	if !net.Equal(dec("4199")) {
		t.Errorf("net = %s, want 4199", net)
	}

	if bal := ledger.Balance(domain.CurrencyARS); !bal.Equal(dec("1102199")) {
		t.Errorf("final ARS = %s, want 1102199", bal)
	}
	if bal := ledger.Balance(domain.CurrencyUSD); !bal.Equal(dec("2")) {
		t.Errorf("final USD = %s, want 2", bal)
	}
}

func TestSequencer_TransientRetriesThenFill(t *testing.T) {
	gw := NewSimGateway(0)
	gw.Script("AL30",
		Outcome{Kind: OutcomeTransient, Reason: "session drop"},
		Outcome{Kind: OutcomeTransient, Reason: "session drop"},
	)
	ledger := domain.NewLedger(dec("1100000"), decimal.Zero, false)
	seq := NewSequencer(gw, ledger, twoBps(t), Config{MaxRetries: 3, RetryDelay: time.Millisecond})

	res := seq.Execute(context.Background(), roundTripOpp(), decimal.NewFromInt(1000))

	if res.State != domain.StateCompleted {
		t.Fatalf("state = %s, want COMPLETED", res.State)
	}
	if res.RetriesUsed != 2 {
		t.Errorf("retries = %d, want 2", res.RetriesUsed)
	}
	if res.Legs[0].Attempts != 3 {
		t.Errorf("leg 1 attempts = %d, want 3", res.Legs[0].Attempts)
	}
	// Balances identical to the clean run: retries must not double-count.
	if bal := ledger.Balance(domain.CurrencyARS); !bal.Equal(dec("1102199")) {
		t.Errorf("final ARS = %s, want 1102199", bal)
	}
}

func TestSequencer_RejectAbortsSequence(t *testing.T) {
	gw := NewSimGateway(0)
	gw.Script("AL30D", Outcome{Kind: OutcomeReject, Reason: "price no longer available"})
	ledger := domain.NewLedger(dec("1100000"), decimal.Zero, false)
	seq := NewSequencer(gw, ledger, twoBps(t), Config{MaxRetries: 3, RetryDelay: time.Millisecond})

	res := seq.Execute(context.Background(), roundTripOpp(), decimal.NewFromInt(1000))

	if res.State != domain.StatePartiallyFilled {
		t.Fatalf("state = %s, want PARTIALLY_FILLED", res.State)
	}
	if res.FilledLegs != 1 || res.FailedLegs != 1 {
		t.Errorf("filled/failed = %d/%d, want 1/1", res.FilledLegs, res.FailedLegs)
	}
	if len(res.Legs) != 2 {
		t.Errorf("legs attempted = %d, want 2 (later legs never submitted)", len(res.Legs))
	}
	if got := gw.Submissions(); got != 2 {
		t.Errorf("gateway submissions = %d, want 2", got)
	}
	if res.Legs[1].Attempts != 1 {
		t.Errorf("rejected leg attempts = %d, want 1 (no retry on reject)", res.Legs[1].Attempts)
	}

	// Exposure is leg 1's confirmed outflow: 1,000,000 principal + 200 commission.
	if got := res.Exposure[domain.CurrencyARS]; !got.Equal(dec("-1000200")) {
		t.Errorf("ARS exposure = %s, want -1000200", got)
	}
	if _, ok := res.Exposure[domain.CurrencyUSD]; ok {
		t.Error("unexpected USD exposure")
	}
}

func TestSequencer_RetryBudgetExhausted(t *testing.T) {
	gw := NewSimGateway(0)
	gw.Script("AL30",
		Outcome{Kind: OutcomeTransient, Reason: "timeout"},
		Outcome{Kind: OutcomeTransient, Reason: "timeout"},
	)
	ledger := domain.NewLedger(dec("1100000"), decimal.Zero, false)
	seq := NewSequencer(gw, ledger, twoBps(t), Config{MaxRetries: 1, RetryDelay: time.Millisecond})

	res := seq.Execute(context.Background(), roundTripOpp(), decimal.NewFromInt(1000))

	if res.State != domain.StateFailed {
		t.Fatalf("state = %s, want FAILED", res.State)
	}
	if res.Legs[0].Attempts != 2 {
		t.Errorf("attempts = %d, want 2 (initial + one retry)", res.Legs[0].Attempts)
	}
	if !strings.Contains(res.Legs[0].Error, "retry budget exhausted") {
		t.Errorf("error = %q, want retry budget exhaustion", res.Legs[0].Error)
	}
	// Nothing filled, nothing moved.
	if bal := ledger.Balance(domain.CurrencyARS); !bal.Equal(dec("1100000")) {
		t.Errorf("ARS balance changed on failed run: %s", bal)
	}
	if len(res.Exposure) != 0 {
		t.Errorf("failed run with no fills left exposure: %v", res.Exposure)
	}
}

func TestSequencer_InsufficientBalanceIsTerminal(t *testing.T) {
	gw := NewSimGateway(0)
	ledger := domain.NewLedger(dec("500"), decimal.Zero, false) // cannot fund leg 1
	seq := NewSequencer(gw, ledger, twoBps(t), Config{MaxRetries: 3, RetryDelay: time.Millisecond})

	res := seq.Execute(context.Background(), roundTripOpp(), decimal.NewFromInt(1000))

	if res.State != domain.StateFailed {
		t.Fatalf("state = %s, want FAILED", res.State)
	}
	if got := gw.Submissions(); got != 0 {
		t.Errorf("gateway submissions = %d, want 0 (checked before submitting)", got)
	}
	if res.Legs[0].Attempts != 0 {
		t.Errorf("attempts = %d, want 0", res.Legs[0].Attempts)
	}
	if !strings.Contains(res.Legs[0].Error, "insufficient ARS balance") {
		t.Errorf("error = %q, want insufficient balance", res.Legs[0].Error)
	}
}

func TestSequencer_OverdraftAllowedCompletes(t *testing.T) {
	gw := NewSimGateway(0)
	// Not enough ARS for leg 1, but the aggressive policy permits it.
	ledger := domain.NewLedger(dec("500"), decimal.Zero, true)
	seq := NewSequencer(gw, ledger, twoBps(t), Config{MaxRetries: 0})

	res := seq.Execute(context.Background(), roundTripOpp(), decimal.NewFromInt(1000))

	if res.State != domain.StateCompleted {
		t.Fatalf("state = %s, want COMPLETED", res.State)
	}
	// 500 + 2,199 realized ARS.
	if bal := ledger.Balance(domain.CurrencyARS); !bal.Equal(dec("2699")) {
		t.Errorf("final ARS = %s, want 2699", bal)
	}
}
