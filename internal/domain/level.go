// Package domain holds the core market data and accounting types for the
// bond arbitrage simulation.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Currency identifies a settlement currency.
type Currency string

const (
	CurrencyARS Currency = "ARS"
	CurrencyUSD Currency = "USD"
)

// Trade direction of a leg.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// Order book sides. A buy consumes offers, a sell consumes bids.
const (
	BookSideBid   = "BID"
	BookSideOffer = "OFFER"
)

// PriceLevel is one rung of an order book ladder.
type PriceLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// BookUpdate is a timestamped snapshot of one or both sides of a security's
// book. A nil side means that side is untouched by this update; an empty
// non-nil slice clears it.
type BookUpdate struct {
	Security string
	Time     time.Time
	Bids     []PriceLevel
	Offers   []PriceLevel
}
