package engine

import (
	"context"

	"github.com/visorlabs/headsetd/internal/telemetry"
)

// Publisher is the telemetry transport boundary. The engine only knows
// how to hand a snapshot over and learn whether it arrived; connection
// management, exchange declaration, and acknowledgment semantics belong
// to the adapter behind this interface.
//
// A failed Publish increments the fault counter and the loop continues;
// retries happen naturally at the next scheduled telemetry tick, never
// in a dedicated retry loop.
type Publisher interface {
	// Publish serializes and sends one snapshot. The context carries the
	// per-publish timeout; exceeding it is a publish failure.
	Publish(ctx context.Context, s *telemetry.Snapshot) error

	// Ready reports whether the transport can currently accept
	// snapshots. A not-ready transport counts as a publish failure so no
	// condition is silently dropped.
	Ready() bool
}
