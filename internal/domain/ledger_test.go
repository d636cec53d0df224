package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestLedger_DebitCredit(t *testing.T) {
	l := NewLedger(decimal.NewFromInt(1000), decimal.NewFromInt(50), false)

	if err := l.Debit(CurrencyARS, decimal.NewFromInt(300)); err != nil {
		t.Fatalf("debit: %v", err)
	}
	l.Credit(CurrencyUSD, decimal.NewFromInt(10))

	if bal := l.Balance(CurrencyARS); !bal.Equal(decimal.NewFromInt(700)) {
		t.Errorf("ARS balance = %s, want 700", bal)
	}
	if bal := l.Balance(CurrencyUSD); !bal.Equal(decimal.NewFromInt(60)) {
		t.Errorf("USD balance = %s, want 60", bal)
	}
}

func TestLedger_OverdraftRejected(t *testing.T) {
	l := NewLedger(decimal.NewFromInt(100), decimal.Zero, false)

	err := l.Debit(CurrencyARS, decimal.NewFromInt(101))
	var insufficient *InsufficientBalanceError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientBalanceError, got %v", err)
	}
	if IsRetriable(err) {
		t.Error("insufficient balance must not be retriable")
	}
	if bal := l.Balance(CurrencyARS); !bal.Equal(decimal.NewFromInt(100)) {
		t.Errorf("failed debit changed balance: %s", bal)
	}
	if l.CanAfford(CurrencyARS, decimal.NewFromInt(101)) {
		t.Error("CanAfford should reject beyond-balance debit")
	}
	if !l.CanAfford(CurrencyARS, decimal.NewFromInt(100)) {
		t.Error("CanAfford should accept exact-balance debit")
	}
}

func TestLedger_OverdraftAllowed(t *testing.T) {
	l := NewLedger(decimal.Zero, decimal.NewFromInt(5), true)

	if !l.CanAfford(CurrencyUSD, decimal.NewFromInt(100)) {
		t.Error("aggressive mode should afford anything")
	}
	if err := l.Debit(CurrencyUSD, decimal.NewFromInt(20)); err != nil {
		t.Fatalf("debit: %v", err)
	}
	if bal := l.Balance(CurrencyUSD); !bal.Equal(decimal.NewFromInt(-15)) {
		t.Errorf("USD balance = %s, want -15", bal)
	}
}

func TestLedger_SnapshotIsCopy(t *testing.T) {
	l := NewLedger(decimal.NewFromInt(100), decimal.Zero, false)

	snap := l.Snapshot()
	snap[CurrencyARS] = decimal.Zero

	if bal := l.Balance(CurrencyARS); !bal.Equal(decimal.NewFromInt(100)) {
		t.Errorf("snapshot mutation leaked into ledger: %s", bal)
	}
}
