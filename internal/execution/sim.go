package execution

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"bond_arb/internal/domain"
)

// SimGateway is a simulated order gateway. Every submission is acknowledged
// after a fixed artificial latency unless a scripted outcome queue exists
// for the leg's security, in which case outcomes are consumed in order.
// Scripting lets tests and replay runs exercise retry and abort paths
// deterministically.
type SimGateway struct {
	mu      sync.Mutex
	latency time.Duration
	scripts map[string][]Outcome
	submits int
}

// NewSimGateway creates a gateway with the given per-submission latency.
func NewSimGateway(latency time.Duration) *SimGateway {
	return &SimGateway{
		latency: latency,
		scripts: make(map[string][]Outcome),
	}
}

// Script queues outcomes for a security. Once the queue drains, further
// submissions for that security are acknowledged.
func (g *SimGateway) Script(security string, outcomes ...Outcome) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.scripts[security] = append(g.scripts[security], outcomes...)
}

// Submissions returns the total number of submissions seen.
func (g *SimGateway) Submissions() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.submits
}

// Submit simulates sending the order to the market. We assume fills at the
// resting price: the simulation is always first in the queue.
func (g *SimGateway) Submit(ctx context.Context, leg domain.Leg) Outcome {
	if g.latency > 0 {
		select {
		case <-ctx.Done():
			return Outcome{Kind: OutcomeTransient, Reason: ctx.Err().Error()}
		case <-time.After(g.latency):
		}
	}

	g.mu.Lock()
	g.submits++
	queue := g.scripts[leg.Security]
	var out Outcome
	if len(queue) > 0 {
		out = queue[0]
		g.scripts[leg.Security] = queue[1:]
	} else {
		out = Outcome{Kind: OutcomeAck}
	}
	g.mu.Unlock()

	slog.Debug("sim gateway submission",
		slog.String("leg", leg.ID),
		slog.String("security", leg.Security),
		slog.String("side", leg.Side),
		slog.String("price", leg.Price.String()),
		slog.String("qty", leg.Quantity.String()),
		slog.String("outcome", string(out.Kind)),
	)
	return out
}
