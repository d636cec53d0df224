// Package execution submits arbitrage legs through an abstract order
// gateway and drives the per-opportunity execution state machine.
package execution

import (
	"context"

	"bond_arb/internal/domain"
)

// OutcomeKind classifies a gateway response.
type OutcomeKind string

const (
	// OutcomeAck confirms the leg filled.
	OutcomeAck OutcomeKind = "ACK"
	// OutcomeReject is a terminal refusal; the leg is not retried.
	OutcomeReject OutcomeKind = "REJECT"
	// OutcomeTransient is a retryable network/session failure.
	OutcomeTransient OutcomeKind = "TRANSIENT_FAILURE"
)

// Outcome is the gateway's answer to a single submission attempt.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
}

// Gateway is the FIX-like order submission boundary. The core has no
// opinion on wire encoding; it only needs submit-and-classify semantics.
type Gateway interface {
	Submit(ctx context.Context, leg domain.Leg) Outcome
}
