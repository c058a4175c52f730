// Package view bridges the connection manager and session bindings to
// whatever renders them. It exposes read-only snapshots plus the outbound
// actions, and nothing else; rendering frameworks layer on top of the
// observer subscription without the core depending on them.
package view

import (
	"log/slog"
	"sync"
	"time"

	"github.com/chatforge/realtime-console/internal/core/domain"
	"github.com/chatforge/realtime-console/internal/core/realtime"
	"github.com/chatforge/realtime-console/internal/core/session"
)

// Snapshot is the read-only projection handed to the rendering layer.
type Snapshot struct {
	ConnectionState   realtime.State
	IsConnected       bool
	IsConnecting      bool
	ReconnectAttempts int
	LatencyAvg        time.Duration
	LastHeartbeatAt   time.Time

	Transcript   []session.ChatEntry
	RemoteTyping bool
	Processing   map[string]domain.ProcessingUpdatePayload
	Deployments  map[string]domain.DeploymentStatusPayload
	Analytics    *domain.AnalyticsUpdatePayload
}

// Bindings are the active session bindings projected into the snapshot. Any
// of them may be nil when the hosting surface does not need that feed.
type Bindings struct {
	Chat        *session.ChatSession
	Processing  *session.ProcessingFeed
	Deployments *session.DeploymentFeed
	Analytics   *session.AnalyticsFeed
}

// Presenter projects manager and binding state to render subscribers. It is
// constructed once per UI surface; surfaces sharing one manager share its
// bindings through their own presenters rather than constructing new
// managers.
type Presenter struct {
	mgr      *realtime.Manager
	bindings Bindings
	logger   *slog.Logger

	mu         sync.Mutex
	subs       map[uint64]func(Snapshot)
	nextID     uint64
	unsubState func()
}

// NewPresenter wires the presenter to the manager's state stream and every
// provided binding's change hook.
func NewPresenter(mgr *realtime.Manager, bindings Bindings, logger *slog.Logger) *Presenter {
	p := &Presenter{
		mgr:      mgr,
		bindings: bindings,
		logger:   logger.With("component", "presenter"),
		subs:     make(map[uint64]func(Snapshot)),
	}

	p.unsubState = mgr.OnStateChange(func(realtime.Status) { p.broadcast() })
	if bindings.Chat != nil {
		bindings.Chat.SetOnChange(p.broadcast)
	}
	if bindings.Processing != nil {
		bindings.Processing.SetOnChange(p.broadcast)
	}
	if bindings.Deployments != nil {
		bindings.Deployments.SetOnChange(p.broadcast)
	}
	if bindings.Analytics != nil {
		bindings.Analytics.SetOnChange(p.broadcast)
	}

	return p
}

// Snapshot assembles the current projection.
func (p *Presenter) Snapshot() Snapshot {
	status := p.mgr.Status()

	snap := Snapshot{
		ConnectionState:   status.State,
		IsConnected:       status.State == realtime.StateConnected,
		IsConnecting:      status.State == realtime.StateConnecting || status.State == realtime.StateReconnecting,
		ReconnectAttempts: status.ReconnectAttempts,
		LatencyAvg:        status.LatencyAvg,
		LastHeartbeatAt:   status.LastHeartbeatAt,
	}

	if p.bindings.Chat != nil {
		snap.Transcript = p.bindings.Chat.Transcript()
		snap.RemoteTyping = p.bindings.Chat.RemoteTyping()
	}
	if p.bindings.Processing != nil {
		snap.Processing = p.bindings.Processing.Updates()
	}
	if p.bindings.Deployments != nil {
		snap.Deployments = p.bindings.Deployments.Statuses()
	}
	if p.bindings.Analytics != nil {
		if latest, ok := p.bindings.Analytics.Latest(); ok {
			snap.Analytics = &latest
		}
	}

	return snap
}

// Subscribe registers a render callback and immediately invokes it with the
// current snapshot. The returned function removes the subscription.
func (p *Presenter) Subscribe(fn func(Snapshot)) func() {
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.subs[id] = fn
	p.mu.Unlock()

	fn(p.Snapshot())

	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

// Outbound actions, passed through without exposing internal structures.

func (p *Presenter) Connect()    { p.mgr.Connect() }
func (p *Presenter) Disconnect() { p.mgr.Disconnect() }
func (p *Presenter) Reconnect()  { p.mgr.Reconnect() }

func (p *Presenter) Send(env domain.Envelope) bool {
	return p.mgr.Send(env)
}

func (p *Presenter) SubscribeEvents(eventType domain.EventType, fn realtime.Handler) func() {
	return p.mgr.Subscribe(eventType, fn)
}

// Close detaches the presenter from the manager's state stream. The manager
// and bindings are owned elsewhere and stay alive.
func (p *Presenter) Close() {
	p.unsubState()
	p.mu.Lock()
	p.subs = make(map[uint64]func(Snapshot))
	p.mu.Unlock()
}

func (p *Presenter) broadcast() {
	snap := p.Snapshot()

	p.mu.Lock()
	subs := make([]func(Snapshot), 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	p.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}
