package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatforge/realtime-console/internal/core/domain"
)

func TestLatencyWindow_EvictsOldest(t *testing.T) {
	w := newLatencyWindow(3)

	w.Push(10 * time.Millisecond)
	w.Push(20 * time.Millisecond)
	w.Push(30 * time.Millisecond)
	w.Push(40 * time.Millisecond)

	assert.Equal(t, 3, w.Len())
	assert.Equal(t, []time.Duration{
		20 * time.Millisecond,
		30 * time.Millisecond,
		40 * time.Millisecond,
	}, w.Samples())
	assert.Equal(t, 30*time.Millisecond, w.Average())
}

func TestLatencyWindow_EmptyAverageIsZero(t *testing.T) {
	w := newLatencyWindow(5)
	assert.Equal(t, time.Duration(0), w.Average())
	assert.Empty(t, w.Samples())
}

func TestLatencyWindow_SamplesReturnsCopy(t *testing.T) {
	w := newLatencyWindow(2)
	w.Push(time.Millisecond)

	samples := w.Samples()
	samples[0] = time.Hour

	assert.Equal(t, time.Millisecond, w.Samples()[0])
}

func TestEnvelopeWindow_KeepsMostRecent(t *testing.T) {
	w := newEnvelopeWindow(2)

	for _, id := range []string{"a", "b", "c"} {
		env, err := domain.NewEnvelope(domain.EventChatMessage, nil)
		require.NoError(t, err)
		env.ID = id
		w.Push(env)
	}

	recent := w.Recent()
	require.Len(t, recent, 2)
	assert.Equal(t, "b", recent[0].ID)
	assert.Equal(t, "c", recent[1].ID)
}
