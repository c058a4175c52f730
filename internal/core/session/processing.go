package session

import (
	"log/slog"
	"sync"

	"github.com/chatforge/realtime-console/internal/core/domain"
	"github.com/chatforge/realtime-console/internal/core/realtime"
)

// ProcessingFeed binds the connection manager to the content-processing
// progress stream, keeping the latest update per source.
type ProcessingFeed struct {
	logger *slog.Logger

	mu       sync.Mutex
	updates  map[string]domain.ProcessingUpdatePayload
	unsub    func()
	onChange func()
}

// NewProcessingFeed subscribes to processing_update events.
func NewProcessingFeed(mgr *realtime.Manager, logger *slog.Logger) *ProcessingFeed {
	f := &ProcessingFeed{
		logger:  logger.With("component", "processing_feed"),
		updates: make(map[string]domain.ProcessingUpdatePayload),
	}
	f.unsub = mgr.Subscribe(domain.EventProcessingUpdate, f.handleUpdate)
	return f
}

// SetOnChange registers the hook invoked after every derived-state update.
func (f *ProcessingFeed) SetOnChange(fn func()) {
	f.mu.Lock()
	f.onChange = fn
	f.mu.Unlock()
}

// Updates returns a copy of the latest update per source.
func (f *ProcessingFeed) Updates() map[string]domain.ProcessingUpdatePayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]domain.ProcessingUpdatePayload, len(f.updates))
	for k, v := range f.updates {
		out[k] = v
	}
	return out
}

// Get returns the latest update for one source.
func (f *ProcessingFeed) Get(sourceID string) (domain.ProcessingUpdatePayload, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	update, ok := f.updates[sourceID]
	return update, ok
}

// Close unsubscribes the feed.
func (f *ProcessingFeed) Close() {
	f.unsub()
}

func (f *ProcessingFeed) handleUpdate(env domain.Envelope) {
	var payload domain.ProcessingUpdatePayload
	if err := env.DecodeData(&payload); err != nil {
		f.logger.Warn("malformed processing update payload", "error", err)
		return
	}
	if payload.SourceID == "" {
		return
	}

	f.mu.Lock()
	f.updates[payload.SourceID] = payload
	fn := f.onChange
	f.mu.Unlock()

	if fn != nil {
		fn()
	}
}
