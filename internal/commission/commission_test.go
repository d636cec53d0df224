package commission

import (
	"testing"

	"github.com/shopspring/decimal"

	"bond_arb/internal/domain"
)

func TestModel_Compute(t *testing.T) {
	m, err := NewModel(decimal.NewFromInt(1), decimal.NewFromInt(2)) // 1bps ARS, 2bps USD
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	fx := decimal.NewFromInt(1000)

	t.Run("ARS notional", func(t *testing.T) {
		got := m.Compute(decimal.NewFromInt(1_000_000), domain.CurrencyARS, fx)
		if !got.Equal(decimal.NewFromInt(100)) {
			t.Errorf("commission = %s, want 100", got)
		}
	})

	t.Run("USD notional converts at EOD rate", func(t *testing.T) {
		// 500 USD * 1000 ARS/USD * 2bps = 100 ARS
		got := m.Compute(decimal.NewFromInt(500), domain.CurrencyUSD, fx)
		if !got.Equal(decimal.NewFromInt(100)) {
			t.Errorf("commission = %s, want 100", got)
		}
	})

	t.Run("zero notional", func(t *testing.T) {
		if got := m.Compute(decimal.Zero, domain.CurrencyARS, fx); !got.IsZero() {
			t.Errorf("commission = %s, want 0", got)
		}
	})
}

func TestModel_ComputeIsPure(t *testing.T) {
	m, _ := NewModel(decimal.NewFromInt(1), decimal.NewFromInt(1))
	fx := decimal.RequireFromString("1035.5")
	notional := decimal.RequireFromString("123456.78")

	first := m.Compute(notional, domain.CurrencyUSD, fx)
	for i := 0; i < 5; i++ {
		if got := m.Compute(notional, domain.CurrencyUSD, fx); !got.Equal(first) {
			t.Fatalf("call %d returned %s, first returned %s", i, got, first)
		}
	}
}

func TestModel_Rate(t *testing.T) {
	m, _ := NewModel(decimal.NewFromInt(1), decimal.NewFromInt(25))

	if got := m.Rate(domain.CurrencyARS); !got.Equal(decimal.RequireFromString("0.0001")) {
		t.Errorf("ARS rate = %s, want 0.0001", got)
	}
	if got := m.Rate(domain.CurrencyUSD); !got.Equal(decimal.RequireFromString("0.0025")) {
		t.Errorf("USD rate = %s, want 0.0025", got)
	}
}

func TestNewModel_RejectsNegative(t *testing.T) {
	if _, err := NewModel(decimal.NewFromInt(-1), decimal.Zero); err == nil {
		t.Error("negative ARS rate accepted")
	}
	if _, err := NewModel(decimal.Zero, decimal.NewFromInt(-1)); err == nil {
		t.Error("negative USD rate accepted")
	}
}
