package realtime

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatforge/realtime-console/internal/core/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEnvelope(t *testing.T, eventType domain.EventType) domain.Envelope {
	t.Helper()
	env, err := domain.NewEnvelope(eventType, nil)
	require.NoError(t, err)
	return env
}

func TestRegistry_DispatchInRegistrationOrder(t *testing.T) {
	r := NewRegistry(testLogger())

	var order []string
	r.Subscribe(domain.EventChatMessage, func(domain.Envelope) { order = append(order, "first") })
	r.Subscribe(domain.EventChatMessage, func(domain.Envelope) { order = append(order, "second") })
	r.Subscribe(domain.EventChatMessage, func(domain.Envelope) { order = append(order, "third") })

	r.Dispatch(testEnvelope(t, domain.EventChatMessage))

	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestRegistry_UnsubscribeIsIdempotent(t *testing.T) {
	r := NewRegistry(testLogger())

	calls := 0
	unsubA := r.Subscribe(domain.EventChatMessage, func(domain.Envelope) { calls++ })
	r.Subscribe(domain.EventChatMessage, func(domain.Envelope) { calls += 10 })

	unsubA()
	unsubA() // second call is a no-op

	r.Dispatch(testEnvelope(t, domain.EventChatMessage))
	assert.Equal(t, 10, calls)
	assert.Equal(t, 1, r.HandlerCount(domain.EventChatMessage))
}

func TestRegistry_UnsubscribeTypeClearsAll(t *testing.T) {
	r := NewRegistry(testLogger())

	called := false
	r.Subscribe(domain.EventChatMessage, func(domain.Envelope) { called = true })
	r.Subscribe(domain.EventChatMessage, func(domain.Envelope) { called = true })

	r.Unsubscribe(domain.EventChatMessage)
	r.Dispatch(testEnvelope(t, domain.EventChatMessage))

	assert.False(t, called)
	assert.Equal(t, 0, r.HandlerCount(domain.EventChatMessage))
}

func TestRegistry_CatchAllSeesEverything(t *testing.T) {
	r := NewRegistry(testLogger())

	var seen []domain.EventType
	r.SetCatchAll(func(env domain.Envelope) { seen = append(seen, env.Type) })

	typed := 0
	r.Subscribe(domain.EventChatMessage, func(domain.Envelope) { typed++ })

	r.Dispatch(testEnvelope(t, domain.EventChatMessage))
	r.Dispatch(testEnvelope(t, domain.EventType("future_event")))

	assert.Equal(t, []domain.EventType{domain.EventChatMessage, "future_event"}, seen)
	assert.Equal(t, 1, typed, "typed handler must not receive unknown types")
}

func TestRegistry_CatchAllRunsBeforeTyped(t *testing.T) {
	r := NewRegistry(testLogger())

	var order []string
	r.SetCatchAll(func(domain.Envelope) { order = append(order, "catch_all") })
	r.Subscribe(domain.EventChatMessage, func(domain.Envelope) { order = append(order, "typed") })

	r.Dispatch(testEnvelope(t, domain.EventChatMessage))
	assert.Equal(t, []string{"catch_all", "typed"}, order)
}

func TestRegistry_PanickingHandlerDoesNotBlockOthers(t *testing.T) {
	r := NewRegistry(testLogger())

	var survived bool
	r.Subscribe(domain.EventChatMessage, func(domain.Envelope) { panic("boom") })
	r.Subscribe(domain.EventChatMessage, func(domain.Envelope) { survived = true })

	r.Dispatch(testEnvelope(t, domain.EventChatMessage))
	assert.True(t, survived)
}

func TestRegistry_MutationDuringDispatchIsSafe(t *testing.T) {
	r := NewRegistry(testLogger())

	var unsubSelf func()
	selfCalls := 0
	unsubSelf = r.Subscribe(domain.EventChatMessage, func(domain.Envelope) {
		selfCalls++
		unsubSelf()
		// Subscribing mid-dispatch must not affect the in-flight delivery.
		r.Subscribe(domain.EventChatMessage, func(domain.Envelope) {})
	})

	r.Dispatch(testEnvelope(t, domain.EventChatMessage))
	r.Dispatch(testEnvelope(t, domain.EventChatMessage))

	assert.Equal(t, 1, selfCalls, "self-unsubscribed handler must not fire again")
	assert.Equal(t, 1, r.HandlerCount(domain.EventChatMessage))
}
