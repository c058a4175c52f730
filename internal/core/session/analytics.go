package session

import (
	"log/slog"
	"sync"

	"github.com/chatforge/realtime-console/internal/core/domain"
	"github.com/chatforge/realtime-console/internal/core/realtime"
)

// analyticsHistoryCap bounds the retained analytics history per feed.
const analyticsHistoryCap = 60

// AnalyticsFeed binds the connection manager to pushed analytics refreshes,
// keeping the latest snapshot and a bounded history for charting.
type AnalyticsFeed struct {
	logger       *slog.Logger
	deploymentID string

	mu       sync.Mutex
	latest   domain.AnalyticsUpdatePayload
	hasData  bool
	history  []domain.AnalyticsUpdatePayload
	unsub    func()
	onChange func()
}

// NewAnalyticsFeed subscribes to analytics_update events. An empty
// deploymentID accepts every deployment.
func NewAnalyticsFeed(mgr *realtime.Manager, deploymentID string, logger *slog.Logger) *AnalyticsFeed {
	f := &AnalyticsFeed{
		logger:       logger.With("component", "analytics_feed"),
		deploymentID: deploymentID,
	}
	f.unsub = mgr.Subscribe(domain.EventAnalyticsUpdate, f.handleUpdate)
	return f
}

// SetOnChange registers the hook invoked after every derived-state update.
func (f *AnalyticsFeed) SetOnChange(fn func()) {
	f.mu.Lock()
	f.onChange = fn
	f.mu.Unlock()
}

// Latest returns the most recent analytics snapshot, if any has arrived.
func (f *AnalyticsFeed) Latest() (domain.AnalyticsUpdatePayload, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.latest, f.hasData
}

// History returns a copy of the bounded snapshot history, oldest first.
func (f *AnalyticsFeed) History() []domain.AnalyticsUpdatePayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.AnalyticsUpdatePayload, len(f.history))
	copy(out, f.history)
	return out
}

// Close unsubscribes the feed.
func (f *AnalyticsFeed) Close() {
	f.unsub()
}

func (f *AnalyticsFeed) handleUpdate(env domain.Envelope) {
	var payload domain.AnalyticsUpdatePayload
	if err := env.DecodeData(&payload); err != nil {
		f.logger.Warn("malformed analytics update payload", "error", err)
		return
	}

	key := payload.DeploymentID
	if key == "" {
		key = env.DeploymentID
	}
	if f.deploymentID != "" && key != f.deploymentID {
		return
	}

	f.mu.Lock()
	f.latest = payload
	f.hasData = true
	if len(f.history) == analyticsHistoryCap {
		f.history = append(f.history[:0], f.history[1:]...)
		f.history = f.history[:analyticsHistoryCap-1]
	}
	f.history = append(f.history, payload)
	fn := f.onChange
	f.mu.Unlock()

	if fn != nil {
		fn()
	}
}
