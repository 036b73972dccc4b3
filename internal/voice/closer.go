package voice

import (
	"context"
	"fmt"
)

// shutdownCapabilities is the priority order for session shutdown operations
// across runtime variants.
var shutdownCapabilities = []string{"disconnect", "stop", "end", "close", "terminate", "shutdown"}

// SessionCloser shuts a voice session down through whichever shutdown
// operations its runtime supports. Capabilities are probed once, at session
// construction, not on every termination.
type SessionCloser struct {
	session      Session
	capabilities []string
}

// NewSessionCloser probes the session for its shutdown capabilities and
// returns a closer bound to them.
func NewSessionCloser(s Session) *SessionCloser {
	c := &SessionCloser{session: s}
	if s == nil {
		return c
	}
	for _, name := range shutdownCapabilities {
		if s.HasCapability(name) {
			c.capabilities = append(c.capabilities, name)
		}
	}
	return c
}

// Shutdown invokes the probed capabilities in priority order and stops at the
// first one that succeeds.
func (c *SessionCloser) Shutdown(ctx context.Context) error {
	if len(c.capabilities) == 0 {
		return fmt.Errorf("voice session exposes no shutdown capability")
	}
	var lastErr error
	for _, name := range c.capabilities {
		if err := c.session.InvokeCapability(ctx, name); err != nil {
			lastErr = fmt.Errorf("invoke %s: %w", name, err)
			continue
		}
		return nil
	}
	return lastErr
}
