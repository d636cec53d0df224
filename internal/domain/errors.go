package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// StaleDataError is returned when a book update carries a timestamp older
// than the book's last applied update. The update is dropped and the
// simulation continues; never retriable.
type StaleDataError struct {
	Security string
	Got      time.Time
	Last     time.Time
}

func (e *StaleDataError) Error() string {
	return fmt.Sprintf("stale market data for %s: got %s, book at %s",
		e.Security, e.Got.Format(time.RFC3339Nano), e.Last.Format(time.RFC3339Nano))
}

func (e *StaleDataError) IsRetriable() bool {
	return false
}

// CrossedBookError is returned when applying an update would leave the best
// bid at or above the best offer. The update is rejected and logged; a
// crossed book is never traded through.
type CrossedBookError struct {
	Security string
	Bid      decimal.Decimal
	Offer    decimal.Decimal
}

func (e *CrossedBookError) Error() string {
	return fmt.Sprintf("crossed book for %s: bid %s >= offer %s",
		e.Security, e.Bid.String(), e.Offer.String())
}

func (e *CrossedBookError) IsRetriable() bool {
	return false
}

// InsufficientBalanceError is returned when a debit exceeds the available
// balance for a currency. Terminal for the current leg, never retried.
type InsufficientBalanceError struct {
	Currency  Currency
	Need      decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance: need %s, available %s",
		e.Currency, e.Need.String(), e.Available.String())
}

func (e *InsufficientBalanceError) IsRetriable() bool {
	return false
}

// SubmissionError represents a gateway submission failure. Transient
// failures are retried up to the configured budget; rejects are terminal.
type SubmissionError struct {
	Security  string
	Reason    string
	Transient bool
}

func (e *SubmissionError) Error() string {
	kind := "terminal"
	if e.Transient {
		kind = "transient"
	}
	return fmt.Sprintf("%s submission failure for %s: %s", kind, e.Security, e.Reason)
}

func (e *SubmissionError) IsRetriable() bool {
	return e.Transient
}

var (
	// ErrInvalidLevel is returned when an update contains a non-positive
	// price or a negative quantity. The update is dropped. Not retriable.
	ErrInvalidLevel = errors.New("invalid price level")

	// ErrUnknownSecurity is returned when a security cannot be resolved to
	// a configured bond pair.
	ErrUnknownSecurity = errors.New("unknown security")

	// ErrInvalidPair is returned when a bond pair's legs do not settle in
	// the expected currencies.
	ErrInvalidPair = errors.New("invalid bond pair")
)
