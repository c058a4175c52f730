package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chatforge/realtime-console/internal/core/domain"
	"github.com/chatforge/realtime-console/internal/core/ports"
)

// State is the connection manager's lifecycle state.
type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
	StateClosed       State = "closed"
)

// Callbacks are the optional lifecycle hooks exposed to the embedding
// application. OnMessage doubles as the registry's catch-all handler.
type Callbacks struct {
	OnConnect    func()
	OnDisconnect func(reason string)
	OnError      func(err error)
	OnMessage    func(env domain.Envelope)
}

// Config controls one Manager instance. The zero value is unusable; call
// withDefaults (done by NewManager) to fill in the documented defaults.
type Config struct {
	// URL of the channel endpoint. http(s) schemes are rewritten to ws(s).
	URL       string
	Protocols []string

	AutoConnect     bool
	EnableHeartbeat bool
	EnableReconnect bool

	MaxReconnectAttempts  int           // default 5
	ReconnectInitialDelay time.Duration // default 1s
	ReconnectMultiplier   float64       // default 2
	ReconnectMaxDelay     time.Duration // default 30s

	ConnectTimeout    time.Duration // default 10s
	HeartbeatInterval time.Duration // default 30s
	HeartbeatTimeout  time.Duration // default 5s
	SettleDelay       time.Duration // default 100ms

	MaxPayloadBytes   int // default 1 MiB
	LatencyWindowSize int // default 10
	InboundWindowSize int // default 50

	Debug bool

	Callbacks Callbacks
}

func (c Config) withDefaults() Config {
	if c.MaxReconnectAttempts == 0 {
		c.MaxReconnectAttempts = 5
	}
	if c.ReconnectInitialDelay == 0 {
		c.ReconnectInitialDelay = time.Second
	}
	if c.ReconnectMultiplier == 0 {
		c.ReconnectMultiplier = 2
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.HeartbeatTimeout == 0 {
		c.HeartbeatTimeout = 5 * time.Second
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = 100 * time.Millisecond
	}
	if c.MaxPayloadBytes == 0 {
		c.MaxPayloadBytes = 1 << 20
	}
	if c.LatencyWindowSize == 0 {
		c.LatencyWindowSize = 10
	}
	if c.InboundWindowSize == 0 {
		c.InboundWindowSize = 50
	}
	return c
}

// Status is a read-only snapshot of the manager's connection state.
type Status struct {
	State             State
	ReconnectAttempts int
	LastHeartbeatAt   time.Time
	LatencyAvg        time.Duration
	LatencySamples    []time.Duration
}

// Manager owns one channel instance end to end: dialing, the heartbeat
// liveness probe, reconnect backoff, and fan-out of inbound envelopes to the
// dispatch registry. All exported methods are non-blocking; asynchronous
// effects run on named timers or the per-connection read goroutine.
type Manager struct {
	cfg      Config
	dialer   ports.Dialer
	creds    ports.CredentialProvider
	notifier ports.Notifier
	logger   *slog.Logger

	registry *Registry
	timers   *timerSet

	mu                sync.Mutex
	state             State
	conn              ports.Channel
	epoch             uint64
	reconnectAttempts int
	lastHeartbeatAt   time.Time
	latency           *latencyWindow
	inbound           *envelopeWindow
	everConnected     bool

	subMu     sync.Mutex
	stateSubs map[uint64]func(Status)
	nextSubID uint64

	unsubCreds func()
}

// Option customizes a Manager beyond its Config.
type Option func(*Manager)

// WithNotifier routes the two user-visible connection notices (first
// successful connect, permanent failure) to the given toast surface.
func WithNotifier(n ports.Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

// NewManager wires a manager to its transport and credential source. The
// caller owns exactly one manager per real-time session and must call Close
// when the surface backing it goes away.
func NewManager(cfg Config, dialer ports.Dialer, creds ports.CredentialProvider, logger *slog.Logger, opts ...Option) *Manager {
	cfg = cfg.withDefaults()

	m := &Manager{
		cfg:       cfg,
		dialer:    dialer,
		creds:     creds,
		logger:    logger.With("component", "connection_manager"),
		registry:  NewRegistry(logger),
		timers:    newTimerSet(),
		state:     StateDisconnected,
		latency:   newLatencyWindow(cfg.LatencyWindowSize),
		inbound:   newEnvelopeWindow(cfg.InboundWindowSize),
		stateSubs: make(map[uint64]func(Status)),
	}
	for _, opt := range opts {
		opt(m)
	}

	if cfg.Callbacks.OnMessage != nil {
		m.registry.SetCatchAll(cfg.Callbacks.OnMessage)
	}
	if creds != nil {
		m.unsubCreds = creds.Subscribe(m.onCredentialChange)
	}
	if cfg.AutoConnect {
		m.Connect()
	}

	return m
}

// Connect opens the channel. It is a no-op while a connection attempt is in
// flight or the channel is already open.
func (m *Manager) Connect() {
	m.mu.Lock()
	switch m.state {
	case StateConnecting, StateConnected, StateReconnecting:
		m.mu.Unlock()
		return
	}
	m.setStateLocked(StateConnecting)
	epoch := m.nextEpochLocked()
	m.mu.Unlock()

	m.notifyState()
	m.startAttempt(epoch)
}

// Disconnect closes the channel and cancels every pending timer. This is the
// only path that suppresses automatic reconnection.
func (m *Manager) Disconnect() {
	m.timers.CancelAll()

	m.mu.Lock()
	m.nextEpochLocked()
	conn := m.conn
	m.conn = nil
	alreadyClosed := m.state == StateClosed
	m.setStateLocked(StateClosed)
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close("client disconnect")
	}
	if !alreadyClosed {
		m.notifyState()
		m.fireDisconnect("client disconnect")
	}
}

// Reconnect tears the connection down and dials again after a short settling
// delay. It is the only way to leave the failed state.
func (m *Manager) Reconnect() {
	m.Disconnect()
	m.timers.Arm(timerSettle, m.cfg.SettleDelay, func() {
		m.mu.Lock()
		// A Disconnect racing in during the settle window wins.
		if m.state != StateClosed {
			m.mu.Unlock()
			return
		}
		m.setStateLocked(StateDisconnected)
		m.mu.Unlock()
		m.Connect()
	})
}

// Close permanently tears the manager down: the channel is closed, all
// timers cancelled and the credential subscription released.
func (m *Manager) Close() {
	m.Disconnect()
	if m.unsubCreds != nil {
		m.unsubCreds()
	}
}

// Send serializes the envelope and writes it to the channel. It reports
// false, without blocking or panicking, when the channel is not connected,
// the payload is oversized, or the write fails. Callers needing delivery
// guarantees retry above this layer.
func (m *Manager) Send(env domain.Envelope) bool {
	m.mu.Lock()
	conn := m.conn
	connected := m.state == StateConnected
	m.mu.Unlock()

	if !connected || conn == nil {
		m.debugf("send rejected: not connected", "event_type", env.Type)
		return false
	}

	if env.Timestamp.IsZero() {
		env.Timestamp = time.Now().UTC()
	}

	data, err := env.Encode()
	if err != nil {
		m.logger.Error("failed to encode envelope", "event_type", env.Type, "error", err)
		return false
	}
	if len(data) > m.cfg.MaxPayloadBytes {
		m.logger.Warn("outbound envelope exceeds payload limit",
			"event_type", env.Type,
			"size", len(data),
			"limit", m.cfg.MaxPayloadBytes,
		)
		return false
	}

	if err := conn.WriteMessage(data); err != nil {
		m.logger.Warn("channel write failed", "event_type", env.Type, "error", err)
		m.fireError(err)
		return false
	}
	return true
}

// Subscribe registers a handler for an event type on the dispatch registry.
func (m *Manager) Subscribe(eventType domain.EventType, fn Handler) func() {
	return m.registry.Subscribe(eventType, fn)
}

// Unsubscribe clears every handler for a type.
func (m *Manager) Unsubscribe(eventType domain.EventType) {
	m.registry.Unsubscribe(eventType)
}

// Registry exposes the dispatch registry for tests and bindings.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Status returns a snapshot of connection state and latency diagnostics.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

// RecentEnvelopes returns the bounded diagnostic window of inbound traffic.
func (m *Manager) RecentEnvelopes() []domain.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inbound.Recent()
}

// OnStateChange registers an observer invoked after every state transition
// and heartbeat round-trip. The returned function removes the observer.
func (m *Manager) OnStateChange(fn func(Status)) func() {
	m.subMu.Lock()
	m.nextSubID++
	id := m.nextSubID
	m.stateSubs[id] = fn
	m.subMu.Unlock()

	return func() {
		m.subMu.Lock()
		delete(m.stateSubs, id)
		m.subMu.Unlock()
	}
}

// --- connection lifecycle ---

// startAttempt dials under the given epoch. The epoch gates every delayed
// effect: a dial result, timer fire or read-loop exit belonging to an older
// epoch is discarded.
func (m *Manager) startAttempt(epoch uint64) {
	m.timers.Arm(timerConnect, m.cfg.ConnectTimeout, func() {
		m.onConnectTimeout(epoch)
	})

	go m.dial(epoch)
}

func (m *Manager) dial(epoch uint64) {
	target := m.dialURL()

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ConnectTimeout)
	defer cancel()

	conn, err := m.dialer.Dial(ctx, target, m.cfg.Protocols)

	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		if err == nil {
			_ = conn.Close("stale connect attempt")
		}
		return
	}

	if err != nil {
		m.mu.Unlock()
		m.timers.Cancel(timerConnect)
		m.logger.Warn("connection attempt failed", "error", err)
		m.fireError(err)
		m.connectionLost(epoch, fmt.Sprintf("dial failed: %v", err))
		return
	}

	m.conn = conn
	m.setStateLocked(StateConnected)
	m.reconnectAttempts = 0
	m.lastHeartbeatAt = time.Now()
	firstConnect := !m.everConnected
	m.everConnected = true
	m.mu.Unlock()

	m.timers.Cancel(timerConnect)
	m.logger.Info("channel connected", "url", redactToken(target))

	if m.cfg.EnableHeartbeat {
		m.armHeartbeat(epoch)
	}
	if firstConnect && m.notifier != nil {
		m.notifier.Success("Connected to real-time updates")
	}
	if cb := m.cfg.Callbacks.OnConnect; cb != nil {
		cb()
	}
	m.notifyState()

	go m.readLoop(conn, epoch)
}

func (m *Manager) onConnectTimeout(epoch uint64) {
	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		return
	}
	if m.state != StateConnecting && m.state != StateReconnecting {
		m.mu.Unlock()
		return
	}
	// Invalidate the in-flight dial before walking the failure path.
	m.nextEpochLocked()
	next := m.epoch
	m.mu.Unlock()

	m.logger.Warn("connection establishment timed out", "timeout", m.cfg.ConnectTimeout)
	m.connectionLost(next, "connection timeout")
}

// connectionLost drives the shared failure path for dial errors, connect
// timeouts, peer closes and heartbeat-forced closes.
func (m *Manager) connectionLost(epoch uint64, reason string) {
	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		return
	}
	if m.state == StateClosed || m.state == StateFailed {
		m.mu.Unlock()
		return
	}

	m.timers.Cancel(timerHeartbeat)
	m.timers.Cancel(timerHeartbeatTimeout)

	if conn := m.conn; conn != nil {
		m.conn = nil
		go func() { _ = conn.Close(reason) }()
	}

	if !m.cfg.EnableReconnect {
		m.setStateLocked(StateDisconnected)
		m.mu.Unlock()
		m.logger.Info("channel disconnected", "reason", reason)
		m.notifyState()
		m.fireDisconnect(reason)
		return
	}

	if m.reconnectAttempts >= m.cfg.MaxReconnectAttempts {
		m.setStateLocked(StateFailed)
		m.mu.Unlock()
		m.logger.Error("reconnect budget exhausted",
			"attempts", m.cfg.MaxReconnectAttempts,
			"reason", reason,
		)
		if m.notifier != nil {
			m.notifier.Error("Real-time connection lost. Refresh the page to retry.")
		}
		m.notifyState()
		m.fireDisconnect(reason)
		return
	}

	m.setStateLocked(StateDisconnected)
	m.reconnectAttempts++
	attempt := m.reconnectAttempts
	delay := backoffDelay(attempt, m.cfg.ReconnectInitialDelay, m.cfg.ReconnectMultiplier, m.cfg.ReconnectMaxDelay)
	m.mu.Unlock()

	m.logger.Info("scheduling reconnect",
		"attempt", attempt,
		"max_attempts", m.cfg.MaxReconnectAttempts,
		"delay", delay,
		"reason", reason,
	)
	m.notifyState()
	m.fireDisconnect(reason)

	m.timers.Arm(timerReconnect, delay, func() {
		m.mu.Lock()
		if epoch != m.epoch || m.state != StateDisconnected {
			m.mu.Unlock()
			return
		}
		m.setStateLocked(StateReconnecting)
		next := m.nextEpochLocked()
		m.mu.Unlock()

		m.notifyState()
		m.startAttempt(next)
	})
}

func (m *Manager) readLoop(conn ports.Channel, epoch uint64) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			m.connectionLost(epoch, fmt.Sprintf("channel closed: %v", err))
			return
		}
		m.handleInbound(epoch, data)
	}
}

func (m *Manager) handleInbound(epoch uint64, data []byte) {
	if len(data) > m.cfg.MaxPayloadBytes {
		m.logger.Warn("dropping oversized inbound message",
			"size", len(data),
			"limit", m.cfg.MaxPayloadBytes,
		)
		return
	}

	env, err := domain.DecodeEnvelope(data)
	if err != nil {
		m.logger.Warn("dropping malformed inbound message", "error", err)
		return
	}

	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		return
	}
	m.inbound.Push(env)
	m.mu.Unlock()

	// Heartbeat echoes belong to the manager; domain subscribers never see
	// them.
	if env.Type == domain.EventHeartbeat {
		m.handleHeartbeatEcho(epoch, env)
		return
	}

	if !env.Type.Known() {
		m.debugf("inbound envelope with unknown type", "event_type", env.Type)
	}
	m.registry.Dispatch(env)
}

// --- heartbeat ---

func (m *Manager) armHeartbeat(epoch uint64) {
	m.timers.Arm(timerHeartbeat, m.cfg.HeartbeatInterval, func() {
		m.sendHeartbeat(epoch)
	})
}

func (m *Manager) sendHeartbeat(epoch uint64) {
	m.mu.Lock()
	if epoch != m.epoch || m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	env, err := domain.NewEnvelope(domain.EventHeartbeat, domain.HeartbeatPayload{
		SentAt: time.Now().UTC(),
	})
	if err != nil {
		m.logger.Error("failed to build heartbeat envelope", "error", err)
		return
	}

	if m.Send(env) {
		m.timers.Arm(timerHeartbeatTimeout, m.cfg.HeartbeatTimeout, func() {
			m.onHeartbeatTimeout(epoch)
		})
	}
	m.armHeartbeat(epoch)
}

func (m *Manager) handleHeartbeatEcho(epoch uint64, env domain.Envelope) {
	var payload domain.HeartbeatPayload
	if err := env.DecodeData(&payload); err != nil {
		m.logger.Warn("malformed heartbeat echo", "error", err)
		return
	}

	now := time.Now()
	m.mu.Lock()
	if epoch != m.epoch {
		m.mu.Unlock()
		return
	}
	m.timers.Cancel(timerHeartbeatTimeout)
	if !payload.SentAt.IsZero() {
		m.latency.Push(now.Sub(payload.SentAt))
	}
	m.lastHeartbeatAt = now
	m.mu.Unlock()

	m.debugf("heartbeat round-trip", "latency", now.Sub(payload.SentAt))
	m.notifyState()
}

// onHeartbeatTimeout force-closes a channel that stopped echoing. The read
// loop observes the close and drives the standard disconnect path, so a hung
// connection and a cleanly closed one converge on the same handling.
func (m *Manager) onHeartbeatTimeout(epoch uint64) {
	m.mu.Lock()
	if epoch != m.epoch || m.state != StateConnected {
		m.mu.Unlock()
		return
	}
	conn := m.conn
	m.mu.Unlock()

	m.logger.Warn("heartbeat echo missed, closing channel",
		"timeout", m.cfg.HeartbeatTimeout,
	)
	if conn != nil {
		_ = conn.Close("heartbeat timeout")
	}
}

// --- credentials ---

// onCredentialChange pushes the fresh token over the live channel so the
// peer can re-authenticate without a reconnect. While disconnected the new
// token is simply picked up by the next dial.
func (m *Manager) onCredentialChange(token string) {
	m.mu.Lock()
	connected := m.state == StateConnected
	m.mu.Unlock()

	if !connected {
		m.debugf("credentials updated while disconnected")
		return
	}

	env, err := domain.NewEnvelope(domain.EventAuthRefresh, domain.AuthRefreshPayload{Token: token})
	if err != nil {
		m.logger.Error("failed to build auth refresh envelope", "error", err)
		return
	}
	if m.Send(env) {
		m.logger.Info("pushed credential refresh over live channel")
	}
}

// --- helpers ---

func (m *Manager) dialURL() string {
	target := m.cfg.URL
	target = strings.Replace(target, "https://", "wss://", 1)
	target = strings.Replace(target, "http://", "ws://", 1)

	if m.creds == nil {
		return target
	}
	token := m.creds.Token()
	if token == "" {
		return target
	}

	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + "token=" + url.QueryEscape(token)
}

func (m *Manager) setStateLocked(next State) {
	if m.state == next {
		return
	}
	m.debugf("state transition", "from", m.state, "to", next)
	m.state = next
}

func (m *Manager) nextEpochLocked() uint64 {
	m.epoch++
	return m.epoch
}

func (m *Manager) statusLocked() Status {
	return Status{
		State:             m.state,
		ReconnectAttempts: m.reconnectAttempts,
		LastHeartbeatAt:   m.lastHeartbeatAt,
		LatencyAvg:        m.latency.Average(),
		LatencySamples:    m.latency.Samples(),
	}
}

func (m *Manager) notifyState() {
	status := m.Status()

	m.subMu.Lock()
	subs := make([]func(Status), 0, len(m.stateSubs))
	for _, fn := range m.stateSubs {
		subs = append(subs, fn)
	}
	m.subMu.Unlock()

	for _, fn := range subs {
		fn(status)
	}
}

func (m *Manager) fireDisconnect(reason string) {
	if cb := m.cfg.Callbacks.OnDisconnect; cb != nil {
		cb(reason)
	}
}

func (m *Manager) fireError(err error) {
	if cb := m.cfg.Callbacks.OnError; cb != nil {
		cb(err)
	}
}

func (m *Manager) debugf(msg string, args ...any) {
	if m.cfg.Debug {
		m.logger.Debug(msg, args...)
	}
}

// redactToken strips the token query parameter from a URL for logging.
func redactToken(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if q.Has("token") {
		q.Set("token", "[REDACTED]")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
