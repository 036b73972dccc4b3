package voice

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	capabilities map[string]bool
	invokeErr    map[string]error
	invoked      []string
}

func (f *fakeSession) Speak(ctx context.Context, instructions string) error { return nil }

func (f *fakeSession) HasCapability(name string) bool { return f.capabilities[name] }

func (f *fakeSession) InvokeCapability(ctx context.Context, name string) error {
	f.invoked = append(f.invoked, name)
	return f.invokeErr[name]
}

func TestCloserProbesCapabilitiesInPriorityOrder(t *testing.T) {
	s := &fakeSession{capabilities: map[string]bool{"shutdown": true, "stop": true, "close": true}}
	c := NewSessionCloser(s)

	require.NoError(t, c.Shutdown(context.Background()))
	// "stop" outranks "close" and "shutdown".
	assert.Equal(t, []string{"stop"}, s.invoked)
}

func TestCloserFallsThroughFailedCapabilities(t *testing.T) {
	s := &fakeSession{
		capabilities: map[string]bool{"disconnect": true, "close": true},
		invokeErr:    map[string]error{"disconnect": errors.New("not connected")},
	}
	c := NewSessionCloser(s)

	require.NoError(t, c.Shutdown(context.Background()))
	assert.Equal(t, []string{"disconnect", "close"}, s.invoked)
}

func TestCloserReturnsLastErrorWhenAllFail(t *testing.T) {
	s := &fakeSession{
		capabilities: map[string]bool{"disconnect": true, "stop": true},
		invokeErr: map[string]error{
			"disconnect": errors.New("not connected"),
			"stop":       errors.New("already stopped"),
		},
	}
	c := NewSessionCloser(s)

	err := c.Shutdown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stop")
}

func TestCloserWithoutCapabilities(t *testing.T) {
	t.Run("nil session", func(t *testing.T) {
		c := NewSessionCloser(nil)
		assert.Error(t, c.Shutdown(context.Background()))
	})

	t.Run("no shutdown capability", func(t *testing.T) {
		c := NewSessionCloser(&fakeSession{capabilities: map[string]bool{}})
		assert.Error(t, c.Shutdown(context.Background()))
	})
}
