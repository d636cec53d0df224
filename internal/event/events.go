// Package event defines the messages flowing into the engine hotpath.
package event

import (
	"time"

	"bond_arb/internal/domain"
)

// Type identifies an event kind.
type Type string

const (
	EvBookUpdate Type = "BOOK_UPDATE"
)

// Event is the common interface for sequenced engine inputs.
type Event interface {
	GetType() Type
	GetSeq() uint64
}

// BookUpdateEvent carries one price-level snapshot for a security. Sides
// follow domain.BookUpdate semantics: a non-nil side replaces the ladder.
type BookUpdateEvent struct {
	Seq      uint64
	Security string
	Time     time.Time
	Bids     []domain.PriceLevel
	Offers   []domain.PriceLevel
}

func (e *BookUpdateEvent) GetType() Type {
	return EvBookUpdate
}

func (e *BookUpdateEvent) GetSeq() uint64 {
	return e.Seq
}

// Update converts the event to the domain update the book applies.
func (e *BookUpdateEvent) Update() domain.BookUpdate {
	return domain.BookUpdate{
		Security: e.Security,
		Time:     e.Time,
		Bids:     e.Bids,
		Offers:   e.Offers,
	}
}
