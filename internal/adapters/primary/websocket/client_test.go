package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatforge/realtime-console/internal/auth"
	"github.com/chatforge/realtime-console/internal/core/domain"
)

// stubResponder returns a fixed reply without delay.
type stubResponder struct {
	reply domain.ChatResponsePayload
}

func (s *stubResponder) Respond(_ context.Context, _ string, _ domain.ChatMessagePayload) domain.ChatResponsePayload {
	return s.reply
}

func newTestClient(t *testing.T, cfg ClientConfig) (*Client, *Hub) {
	t.Helper()

	h := NewHub(testLogger())
	go h.Run()

	claims := &auth.Claims{WidgetID: "wgt-1", TenantID: "tenant-1", SessionID: "sess-1"}
	tm := auth.NewTokenManager("client-test-secret", time.Hour)
	responder := &stubResponder{reply: domain.ChatResponsePayload{Response: "canned reply"}}

	c := NewClient(h, nil, claims, cfg, responder, nil, tm, testLogger())
	register(t, h, c)
	return c, h
}

func encode(t *testing.T, env domain.Envelope) []byte {
	t.Helper()
	data, err := env.Encode()
	require.NoError(t, err)
	return data
}

func TestClient_HeartbeatEchoedVerbatim(t *testing.T) {
	c, _ := newTestClient(t, ClientConfig{})

	hb := testEnvelope(t, domain.EventHeartbeat)
	c.handleIncomingEnvelope(encode(t, hb))

	echo := receive(t, c)
	assert.Equal(t, domain.EventHeartbeat, echo.Type)
	assert.Equal(t, hb.ID, echo.ID)
}

func TestClient_HeartbeatBypassesRateLimit(t *testing.T) {
	c, _ := newTestClient(t, ClientConfig{SessionRPS: 0.001, SessionBurst: 1})

	for i := 0; i < 5; i++ {
		c.handleIncomingEnvelope(encode(t, testEnvelope(t, domain.EventHeartbeat)))
	}
	for i := 0; i < 5; i++ {
		assert.Equal(t, domain.EventHeartbeat, receive(t, c).Type)
	}
}

func TestClient_RateLimitedEnvelope(t *testing.T) {
	c, _ := newTestClient(t, ClientConfig{
		SessionRPS:       0.001,
		SessionBurst:     1,
		ResponseDelayMin: time.Millisecond,
		ResponseDelayMax: 2 * time.Millisecond,
	})

	msg := testEnvelope(t, domain.EventTypingStart)
	c.handleIncomingEnvelope(encode(t, msg)) // consumes the burst
	c.handleIncomingEnvelope(encode(t, msg)) // rejected

	var sawLimit bool
	deadline := time.After(time.Second)
	for !sawLimit {
		select {
		case env := <-c.Send:
			if env.Type != domain.EventError {
				continue
			}
			var payload domain.ErrorPayload
			require.NoError(t, env.DecodeData(&payload))
			assert.Equal(t, "RATE_LIMITED", payload.Code)
			sawLimit = true
		case <-deadline:
			t.Fatal("no rate limit error delivered")
		}
	}
}

func TestClient_ChatMessageFlow(t *testing.T) {
	c, _ := newTestClient(t, ClientConfig{
		ResponseDelayMin: time.Millisecond,
		ResponseDelayMax: 2 * time.Millisecond,
	})

	msg := testEnvelope(t, domain.EventChatMessage)
	msg.Data = []byte(`{"message":"what about pricing"}`)
	c.handleIncomingEnvelope(encode(t, msg))

	var got []domain.Envelope
	deadline := time.After(2 * time.Second)
	for len(got) < 4 {
		select {
		case env := <-c.Send:
			got = append(got, env)
		case <-deadline:
			t.Fatalf("only received %d envelopes", len(got))
		}
	}

	// Echo back to the sender's session, then the simulated pipeline.
	assert.Equal(t, domain.EventChatMessage, got[0].Type)
	assert.Equal(t, msg.ID, got[0].ID)
	assert.Equal(t, domain.EventTypingStart, got[1].Type)
	assert.Equal(t, "assistant", got[1].UserID)
	assert.Equal(t, domain.EventChatResponse, got[2].Type)
	assert.Equal(t, domain.EventTypingStop, got[3].Type)

	var reply domain.ChatResponsePayload
	require.NoError(t, got[2].DecodeData(&reply))
	assert.Equal(t, "canned reply", reply.Response)
	assert.Equal(t, "sess-1", reply.SessionID)
	assert.GreaterOrEqual(t, reply.ResponseTimeMs, int64(0))
	assert.Equal(t, "sess-1", got[2].SessionID)
	assert.Equal(t, "wgt-1", got[2].DeploymentID)
}

func TestClient_MalformedEnvelopeDropped(t *testing.T) {
	c, _ := newTestClient(t, ClientConfig{})

	c.handleIncomingEnvelope([]byte("{not json"))

	select {
	case env := <-c.Send:
		t.Fatalf("unexpected envelope %s", env.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClient_AuthRefresh(t *testing.T) {
	c, _ := newTestClient(t, ClientConfig{})

	t.Run("accepts matching widget token", func(t *testing.T) {
		token, err := c.tm.GenerateToken("wgt-1", "tenant-1", "sess-1")
		require.NoError(t, err)

		env := testEnvelope(t, domain.EventAuthRefresh)
		env.Data = []byte(`{"token":"` + token + `"}`)
		c.handleIncomingEnvelope(encode(t, env))

		select {
		case got := <-c.Send:
			t.Fatalf("unexpected envelope %s", got.Type)
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("rejects token for another widget", func(t *testing.T) {
		token, err := c.tm.GenerateToken("wgt-other", "tenant-1", "sess-1")
		require.NoError(t, err)

		env := testEnvelope(t, domain.EventAuthRefresh)
		env.Data = []byte(`{"token":"` + token + `"}`)
		c.handleIncomingEnvelope(encode(t, env))

		got := receive(t, c)
		require.Equal(t, domain.EventError, got.Type)
		var payload domain.ErrorPayload
		require.NoError(t, got.DecodeData(&payload))
		assert.Equal(t, "UNAUTHORIZED", payload.Code)
	})

	t.Run("rejects garbage token", func(t *testing.T) {
		env := testEnvelope(t, domain.EventAuthRefresh)
		env.Data = []byte(`{"token":"not-a-jwt"}`)
		c.handleIncomingEnvelope(encode(t, env))

		got := receive(t, c)
		assert.Equal(t, domain.EventError, got.Type)
	})
}
