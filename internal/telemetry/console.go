package telemetry

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Console writes telemetry payloads as JSON lines to an io.Writer. It
// is the publisher used in -no-broker mode and in tests.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsole creates a console sink writing to w.
func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

// Publish encodes the snapshot and writes it followed by a newline.
func (c *Console) Publish(_ context.Context, s *Snapshot) error {
	line := append(Encode(s), '\n')

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.w.Write(line); err != nil {
		return fmt.Errorf("console publish: %w", err)
	}
	return nil
}

// Ready reports whether the sink can accept snapshots. A console sink
// always can.
func (c *Console) Ready() bool { return true }

// Close is a no-op; the underlying writer is owned by the caller.
func (c *Console) Close() error { return nil }
