package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// OrderBook maintains the bid/offer ladder for a single security.
// Bids are kept in descending price order, offers ascending. Updates carry
// snapshot semantics: each incoming side is the new truth for that side as
// of its timestamp. Not safe for concurrent use; the engine serializes all
// mutations on a single goroutine.
type OrderBook struct {
	Security   string
	bids       []PriceLevel
	offers     []PriceLevel
	LastUpdate time.Time
}

// NewOrderBook creates an empty book for the given security.
func NewOrderBook(security string) *OrderBook {
	return &OrderBook{Security: security}
}

// ApplyUpdate replaces the targeted sides of the ladder with the update's
// levels. Zero-quantity levels are removed. Returns StaleDataError when the
// update is older than the book (book unchanged), ErrInvalidLevel when a
// level carries a non-positive price or negative quantity (update dropped),
// and CrossedBookError when the resulting best bid would meet or exceed the
// best offer (the update is rejected, the book keeps its prior state).
func (ob *OrderBook) ApplyUpdate(u BookUpdate) error {
	if !ob.LastUpdate.IsZero() && u.Time.Before(ob.LastUpdate) {
		return &StaleDataError{Security: ob.Security, Got: u.Time, Last: ob.LastUpdate}
	}

	bids, err := normalizeSide(u.Bids, true)
	if err != nil {
		return fmt.Errorf("%s bids: %w", ob.Security, err)
	}
	offers, err := normalizeSide(u.Offers, false)
	if err != nil {
		return fmt.Errorf("%s offers: %w", ob.Security, err)
	}

	candBids := ob.bids
	if u.Bids != nil {
		candBids = bids
	}
	candOffers := ob.offers
	if u.Offers != nil {
		candOffers = offers
	}

	// The touched side(s) are rejected when they would cross; resting
	// state stays untouched and the book timestamp does not advance.
	if len(candBids) > 0 && len(candOffers) > 0 && candBids[0].Price.GreaterThanOrEqual(candOffers[0].Price) {
		return &CrossedBookError{
			Security: ob.Security,
			Bid:      candBids[0].Price,
			Offer:    candOffers[0].Price,
		}
	}

	if u.Bids != nil {
		ob.bids = bids
	}
	if u.Offers != nil {
		ob.offers = offers
	}
	ob.LastUpdate = u.Time
	return nil
}

// normalizeSide validates, drops zero-quantity levels, sorts by price
// priority and merges duplicate price entries.
func normalizeSide(levels []PriceLevel, descending bool) ([]PriceLevel, error) {
	if levels == nil {
		return nil, nil
	}
	out := make([]PriceLevel, 0, len(levels))
	for _, lvl := range levels {
		if lvl.Price.LessThanOrEqual(decimal.Zero) || lvl.Quantity.IsNegative() {
			return nil, ErrInvalidLevel
		}
		if lvl.Quantity.IsZero() {
			continue
		}
		out = append(out, lvl)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if descending {
			return out[i].Price.GreaterThan(out[j].Price)
		}
		return out[i].Price.LessThan(out[j].Price)
	})
	// Merge duplicates so each price appears at most once.
	merged := out[:0]
	for _, lvl := range out {
		if n := len(merged); n > 0 && merged[n-1].Price.Equal(lvl.Price) {
			merged[n-1].Quantity = merged[n-1].Quantity.Add(lvl.Quantity)
			continue
		}
		merged = append(merged, lvl)
	}
	return merged, nil
}

// BestBid returns the highest resting bid, if any.
func (ob *OrderBook) BestBid() (PriceLevel, bool) {
	if len(ob.bids) == 0 {
		return PriceLevel{}, false
	}
	return ob.bids[0], true
}

// BestOffer returns the lowest resting offer, if any.
func (ob *OrderBook) BestOffer() (PriceLevel, bool) {
	if len(ob.offers) == 0 {
		return PriceLevel{}, false
	}
	return ob.offers[0], true
}

// Depth returns up to n levels of the requested side in price priority order.
// The returned slice is a copy.
func (ob *OrderBook) Depth(side string, n int) []PriceLevel {
	src := ob.bids
	if side == BookSideOffer {
		src = ob.offers
	}
	if n > len(src) {
		n = len(src)
	}
	if n <= 0 {
		return nil
	}
	out := make([]PriceLevel, n)
	copy(out, src[:n])
	return out
}

// Levels returns a copy of one full side of the ladder.
func (ob *OrderBook) Levels(side string) []PriceLevel {
	if side == BookSideOffer {
		return ob.Depth(side, len(ob.offers))
	}
	return ob.Depth(side, len(ob.bids))
}

// Spread returns best offer minus best bid when both sides exist.
func (ob *OrderBook) Spread() (decimal.Decimal, bool) {
	bid, okB := ob.BestBid()
	offer, okO := ob.BestOffer()
	if !okB || !okO {
		return decimal.Decimal{}, false
	}
	return offer.Price.Sub(bid.Price), true
}

// Consume reduces resting quantity at the given price after a simulated
// fill, removing the level when exhausted. The exchange does not push a
// fresh snapshot after our own trade, so the book is adjusted locally.
func (ob *OrderBook) Consume(side string, price, quantity decimal.Decimal) {
	ladder := &ob.bids
	if side == BookSideOffer {
		ladder = &ob.offers
	}
	for i, lvl := range *ladder {
		if !lvl.Price.Equal(price) {
			continue
		}
		remaining := lvl.Quantity.Sub(quantity)
		if remaining.LessThanOrEqual(decimal.Zero) {
			*ladder = append((*ladder)[:i], (*ladder)[i+1:]...)
		} else {
			(*ladder)[i] = PriceLevel{Price: lvl.Price, Quantity: remaining}
		}
		return
	}
}

// AvailableWithin walks up to maxDepth levels of a side and returns the
// cumulative resting quantity together with the worst price touched.
func (ob *OrderBook) AvailableWithin(side string, maxDepth int) (quantity, worstPrice decimal.Decimal, ok bool) {
	levels := ob.Depth(side, maxDepth)
	if len(levels) == 0 {
		return decimal.Decimal{}, decimal.Decimal{}, false
	}
	total := decimal.Zero
	for _, lvl := range levels {
		total = total.Add(lvl.Quantity)
	}
	return total, levels[len(levels)-1].Price, true
}

func (ob *OrderBook) String() string {
	bid := "-"
	if b, ok := ob.BestBid(); ok {
		bid = b.Price.String()
	}
	offer := "-"
	if o, ok := ob.BestOffer(); ok {
		offer = o.Price.String()
	}
	return fmt.Sprintf("OrderBook(%s bid=%s offer=%s levels=%d/%d)",
		ob.Security, bid, offer, len(ob.bids), len(ob.offers))
}
