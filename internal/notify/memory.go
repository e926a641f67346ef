package notify

import (
	"context"
	"sync"

	"esign-backend/internal/envelopes"
	"esign-backend/internal/shared/telemetry"
)

// Capture records notifications in memory. Used by tests.
type Capture struct {
	mu   sync.Mutex
	sent []envelopes.Notification
}

// NewCapture constructs an empty capture notifier.
func NewCapture() *Capture {
	return &Capture{}
}

// Send records the notification.
func (c *Capture) Send(ctx context.Context, n envelopes.Notification) error {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
	return nil
}

// Sent returns a copy of everything recorded so far.
func (c *Capture) Sent() []envelopes.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]envelopes.Notification(nil), c.sent...)
}

// Logger writes notifications to the structured log instead of delivering
// them. Used when no dispatch queue is configured.
type Logger struct{}

// Send logs the rendered notification.
func (Logger) Send(ctx context.Context, n envelopes.Notification) error {
	_ = ctx
	rendered := Render(n)
	telemetry.Info("notify.logged", map[string]any{
		"kind":        n.Kind,
		"envelope_id": n.EnvelopeID,
		"to":          n.To,
		"subject":     rendered.Subject,
	})
	return nil
}

var (
	_ envelopes.Notifier = (*Capture)(nil)
	_ envelopes.Notifier = Logger{}
)
