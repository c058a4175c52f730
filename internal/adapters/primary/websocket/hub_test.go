package websocket

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatforge/realtime-console/internal/core/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newRoomClient builds a client with just the identity and queue the hub
// touches. No websocket connection is involved.
func newRoomClient(h *Hub, widgetID, sessionID string, buffer int) *Client {
	return &Client{
		Hub:       h,
		Send:      make(chan domain.Envelope, buffer),
		WidgetID:  widgetID,
		TenantID:  "tenant-1",
		SessionID: sessionID,
		logger:    testLogger(),
	}
}

func register(t *testing.T, h *Hub, c *Client) {
	t.Helper()
	before := h.ClientCount()
	h.Register <- c
	require.Eventually(t, func() bool {
		return h.ClientCount() == before+1
	}, time.Second, 2*time.Millisecond)
}

func receive(t *testing.T, c *Client) domain.Envelope {
	t.Helper()
	select {
	case env := <-c.Send:
		return env
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for envelope")
		return domain.Envelope{}
	}
}

func testEnvelope(t *testing.T, eventType domain.EventType) domain.Envelope {
	t.Helper()
	env, err := domain.NewEnvelope(eventType, nil)
	require.NoError(t, err)
	return env
}

func TestHub_BroadcastToWidget(t *testing.T) {
	h := NewHub(testLogger())
	go h.Run()

	a := newRoomClient(h, "wgt-1", "sess-a", 8)
	b := newRoomClient(h, "wgt-1", "sess-b", 8)
	other := newRoomClient(h, "wgt-2", "sess-c", 8)
	register(t, h, a)
	register(t, h, b)
	register(t, h, other)

	// a registered first, so it sees b joining.
	assert.Equal(t, domain.EventUserJoined, receive(t, a).Type)

	env := testEnvelope(t, domain.EventDeploymentStatus)
	h.BroadcastToWidget("wgt-1", env)

	assert.Equal(t, env.ID, receive(t, a).ID)
	assert.Equal(t, env.ID, receive(t, b).ID)

	select {
	case got := <-other.Send:
		t.Fatalf("client in another room received %s", got.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_PresenceAnnouncements(t *testing.T) {
	h := NewHub(testLogger())
	go h.Run()

	a := newRoomClient(h, "wgt-1", "sess-a", 8)
	b := newRoomClient(h, "wgt-1", "sess-b", 8)
	register(t, h, a)
	register(t, h, b)

	joined := receive(t, a)
	assert.Equal(t, domain.EventUserJoined, joined.Type)
	assert.Equal(t, "sess-b", joined.UserID)
	assert.Equal(t, "wgt-1", joined.DeploymentID)

	h.Unregister <- b
	left := receive(t, a)
	assert.Equal(t, domain.EventUserLeft, left.Type)
	assert.Equal(t, "sess-b", left.UserID)

	// The departed client's queue is closed.
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-b.Send:
			return !ok
		default:
			return false
		}
	}, time.Second, 2*time.Millisecond)
}

func TestHub_UnregisterUnknownClientIsNoOp(t *testing.T) {
	h := NewHub(testLogger())
	go h.Run()

	stranger := newRoomClient(h, "wgt-1", "sess-x", 1)
	h.Unregister <- stranger

	// A registered client keeps working afterwards.
	a := newRoomClient(h, "wgt-1", "sess-a", 8)
	register(t, h, a)
	assert.Equal(t, 1, h.RoomSize("wgt-1"))
}

func TestHub_SendToSession(t *testing.T) {
	h := NewHub(testLogger())
	go h.Run()

	tab1 := newRoomClient(h, "wgt-1", "sess-a", 8)
	tab2 := newRoomClient(h, "wgt-1", "sess-a", 8)
	peer := newRoomClient(h, "wgt-1", "sess-b", 8)
	register(t, h, tab1)
	register(t, h, tab2)
	register(t, h, peer)

	drain := func(c *Client) {
		for {
			select {
			case <-c.Send:
			default:
				return
			}
		}
	}
	drain(tab1)
	drain(tab2)
	drain(peer)

	env := testEnvelope(t, domain.EventChatResponse)
	h.SendToSession("wgt-1", "sess-a", env)

	assert.Equal(t, env.ID, receive(t, tab1).ID)
	assert.Equal(t, env.ID, receive(t, tab2).ID)

	select {
	case got := <-peer.Send:
		t.Fatalf("other session received %s", got.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_SlowClientIsEvicted(t *testing.T) {
	h := NewHub(testLogger())
	go h.Run()

	slow := newRoomClient(h, "wgt-1", "sess-slow", 1)
	register(t, h, slow)

	// Fill the one-slot buffer, then broadcast again to trip eviction.
	h.BroadcastToWidget("wgt-1", testEnvelope(t, domain.EventAnalyticsUpdate))
	h.BroadcastToWidget("wgt-1", testEnvelope(t, domain.EventAnalyticsUpdate))

	require.Eventually(t, func() bool {
		return h.RoomSize("wgt-1") == 0
	}, time.Second, 2*time.Millisecond)
}

func TestHub_Counts(t *testing.T) {
	h := NewHub(testLogger())
	go h.Run()

	assert.Equal(t, 0, h.RoomSize("wgt-1"))
	assert.Equal(t, 0, h.ClientCount())

	a := newRoomClient(h, "wgt-1", "sess-a", 8)
	b := newRoomClient(h, "wgt-2", "sess-b", 8)
	register(t, h, a)
	register(t, h, b)

	assert.Equal(t, 1, h.RoomSize("wgt-1"))
	assert.Equal(t, 1, h.RoomSize("wgt-2"))
	assert.Equal(t, 2, h.ClientCount())

	h.Unregister <- a
	require.Eventually(t, func() bool {
		return h.ClientCount() == 1
	}, time.Second, 2*time.Millisecond)
	assert.Equal(t, 0, h.RoomSize("wgt-1"))
}

func TestHub_BroadcastToEmptyRoom(t *testing.T) {
	h := NewHub(testLogger())
	go h.Run()

	h.BroadcastToWidget("nobody-home", testEnvelope(t, domain.EventSystemNotification))
	assert.Equal(t, 0, h.ClientCount())
}
