package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chatforge/realtime-console/internal/core/domain"
	"github.com/chatforge/realtime-console/internal/core/ports"
	"github.com/chatforge/realtime-console/internal/core/realtime"
)

// Shared harness for the binding tests: a manager over a loopback channel.
// Inbound envelopes are injected straight into the dispatch registry;
// outbound envelopes are captured by the channel.

type loopChannel struct {
	mu      sync.Mutex
	inbound chan []byte
	sent    []domain.Envelope
	closed  bool
}

func (c *loopChannel) ReadMessage() ([]byte, error) {
	data, ok := <-c.inbound
	if !ok {
		return nil, errors.New("channel closed")
	}
	return data, nil
}

func (c *loopChannel) WriteMessage(data []byte) error {
	env, err := domain.DecodeEnvelope(data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.sent = append(c.sent, env)
	c.mu.Unlock()
	return nil
}

func (c *loopChannel) Close(string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.inbound)
	}
	return nil
}

func (c *loopChannel) sentOfType(eventType domain.EventType) []domain.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.Envelope
	for _, env := range c.sent {
		if env.Type == eventType {
			out = append(out, env)
		}
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestManager returns a connected manager and its loopback channel.
func newTestManager(t *testing.T) (*realtime.Manager, *loopChannel) {
	t.Helper()

	ch := &loopChannel{inbound: make(chan []byte, 16)}
	dialer := ports.DialerFunc(func(context.Context, string, []string) (ports.Channel, error) {
		return ch, nil
	})

	mgr := realtime.NewManager(realtime.Config{
		URL:             "ws://session.test/ws",
		EnableReconnect: false,
	}, dialer, nil, testLogger())
	t.Cleanup(mgr.Close)

	mgr.Connect()
	require.Eventually(t, func() bool {
		return mgr.Status().State == realtime.StateConnected
	}, time.Second, 2*time.Millisecond)

	return mgr, ch
}

// dispatch injects an envelope as if it had arrived over the wire.
func dispatch(mgr *realtime.Manager, env domain.Envelope) {
	mgr.Registry().Dispatch(env)
}

func envelopeOf(t *testing.T, eventType domain.EventType, payload any) domain.Envelope {
	t.Helper()
	env, err := domain.NewEnvelope(eventType, payload)
	require.NoError(t, err)
	return env
}
