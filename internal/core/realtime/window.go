package realtime

import (
	"time"

	"github.com/chatforge/realtime-console/internal/core/domain"
)

// Bounded rolling windows backing the manager's diagnostic state. Neither is
// safe for concurrent use on its own; the manager's lock guards both.

// latencyWindow keeps the most recent heartbeat round-trip samples, evicting
// oldest first once capacity is reached. The average is always derived.
type latencyWindow struct {
	samples  []time.Duration
	capacity int
}

func newLatencyWindow(capacity int) *latencyWindow {
	if capacity <= 0 {
		capacity = 1
	}
	return &latencyWindow{capacity: capacity}
}

func (w *latencyWindow) Push(sample time.Duration) {
	if len(w.samples) == w.capacity {
		w.samples = append(w.samples[:0], w.samples[1:]...)
		w.samples = w.samples[:w.capacity-1]
	}
	w.samples = append(w.samples, sample)
}

func (w *latencyWindow) Len() int {
	return len(w.samples)
}

func (w *latencyWindow) Average() time.Duration {
	if len(w.samples) == 0 {
		return 0
	}
	var total time.Duration
	for _, s := range w.samples {
		total += s
	}
	return total / time.Duration(len(w.samples))
}

func (w *latencyWindow) Samples() []time.Duration {
	out := make([]time.Duration, len(w.samples))
	copy(out, w.samples)
	return out
}

// envelopeWindow keeps the most recent inbound envelopes for diagnostics.
// It is a historical record, not a delivery guarantee queue.
type envelopeWindow struct {
	entries  []domain.Envelope
	capacity int
}

func newEnvelopeWindow(capacity int) *envelopeWindow {
	if capacity <= 0 {
		capacity = 1
	}
	return &envelopeWindow{capacity: capacity}
}

func (w *envelopeWindow) Push(env domain.Envelope) {
	if len(w.entries) == w.capacity {
		w.entries = append(w.entries[:0], w.entries[1:]...)
		w.entries = w.entries[:w.capacity-1]
	}
	w.entries = append(w.entries, env)
}

func (w *envelopeWindow) Recent() []domain.Envelope {
	out := make([]domain.Envelope, len(w.entries))
	copy(out, w.entries)
	return out
}
