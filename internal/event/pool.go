package event

import (
	"sync"
	"time"
)

// BookUpdateEvent pool reduces GC pressure in the hotpath: feeds acquire,
// the engine releases after processing.
var bookUpdatePool = sync.Pool{
	New: func() interface{} {
		return &BookUpdateEvent{}
	},
}

// AcquireBookUpdateEvent gets a BookUpdateEvent from the pool.
// The returned event has zero values and must be initialized.
func AcquireBookUpdateEvent() *BookUpdateEvent {
	return bookUpdatePool.Get().(*BookUpdateEvent)
}

// ReleaseBookUpdateEvent returns a BookUpdateEvent to the pool.
// The event is reset to zero values before being pooled.
func ReleaseBookUpdateEvent(ev *BookUpdateEvent) {
	if ev == nil {
		return
	}
	ev.Seq = 0
	ev.Security = ""
	ev.Time = time.Time{}
	ev.Bids = nil
	ev.Offers = nil

	bookUpdatePool.Put(ev)
}
