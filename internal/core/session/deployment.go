package session

import (
	"log/slog"
	"sync"

	"github.com/chatforge/realtime-console/internal/core/domain"
	"github.com/chatforge/realtime-console/internal/core/realtime"
)

// DeploymentFeed binds the connection manager to the deployment-status
// stream, keeping the latest status per deployment. An optional scoping key
// restricts the feed to one deployment.
type DeploymentFeed struct {
	logger       *slog.Logger
	deploymentID string

	mu       sync.Mutex
	statuses map[string]domain.DeploymentStatusPayload
	unsub    func()
	onChange func()
}

// NewDeploymentFeed subscribes to deployment_status events. An empty
// deploymentID accepts every deployment.
func NewDeploymentFeed(mgr *realtime.Manager, deploymentID string, logger *slog.Logger) *DeploymentFeed {
	f := &DeploymentFeed{
		logger:       logger.With("component", "deployment_feed"),
		deploymentID: deploymentID,
		statuses:     make(map[string]domain.DeploymentStatusPayload),
	}
	f.unsub = mgr.Subscribe(domain.EventDeploymentStatus, f.handleStatus)
	return f
}

// SetOnChange registers the hook invoked after every derived-state update.
func (f *DeploymentFeed) SetOnChange(fn func()) {
	f.mu.Lock()
	f.onChange = fn
	f.mu.Unlock()
}

// Statuses returns a copy of the latest status per deployment.
func (f *DeploymentFeed) Statuses() map[string]domain.DeploymentStatusPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]domain.DeploymentStatusPayload, len(f.statuses))
	for k, v := range f.statuses {
		out[k] = v
	}
	return out
}

// Get returns the latest status for one deployment.
func (f *DeploymentFeed) Get(deploymentID string) (domain.DeploymentStatusPayload, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.statuses[deploymentID]
	return status, ok
}

// Close unsubscribes the feed.
func (f *DeploymentFeed) Close() {
	f.unsub()
}

func (f *DeploymentFeed) handleStatus(env domain.Envelope) {
	var payload domain.DeploymentStatusPayload
	if err := env.DecodeData(&payload); err != nil {
		f.logger.Warn("malformed deployment status payload", "error", err)
		return
	}

	key := payload.DeploymentID
	if key == "" {
		key = env.DeploymentID
	}
	if key == "" {
		return
	}
	if f.deploymentID != "" && key != f.deploymentID {
		return
	}

	f.mu.Lock()
	f.statuses[key] = payload
	fn := f.onChange
	f.mu.Unlock()

	if fn != nil {
		fn()
	}
}
