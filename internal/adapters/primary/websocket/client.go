package websocket

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/chatforge/realtime-console/internal/auth"
	"github.com/chatforge/realtime-console/internal/core/domain"
	"github.com/chatforge/realtime-console/internal/core/ports"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	defaultPongWait = 60 * time.Second

	// Maximum message size allowed from peer.
	defaultMaxMessageSize = 1 << 20
)

// ClientConfig tunes one relay connection.
type ClientConfig struct {
	PongWait         time.Duration
	PingInterval     time.Duration
	MaxMessageSize   int64
	SessionRPS       float64
	SessionBurst     int
	ResponseDelayMin time.Duration
	ResponseDelayMax time.Duration
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.PongWait == 0 {
		c.PongWait = defaultPongWait
	}
	if c.PingInterval == 0 {
		c.PingInterval = (c.PongWait * 9) / 10
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = defaultMaxMessageSize
	}
	if c.SessionRPS == 0 {
		c.SessionRPS = 5
	}
	if c.SessionBurst == 0 {
		c.SessionBurst = 10
	}
	return c
}

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	Hub *Hub

	// The websocket connection.
	Conn *websocket.Conn

	// Buffered channel of outbound envelopes.
	Send chan domain.Envelope

	// Identity established at upgrade time.
	WidgetID  string
	TenantID  string
	SessionID string

	cfg       ClientConfig
	limiter   *rate.Limiter
	responder ports.ChatResponder
	archive   ports.EnvelopeArchive
	tm        *auth.TokenManager

	// closeOnce ensures the Send channel is only closed once
	closeOnce sync.Once

	logger *slog.Logger
}

// NewClient creates a relay client for an upgraded connection.
func NewClient(
	hub *Hub,
	conn *websocket.Conn,
	claims *auth.Claims,
	cfg ClientConfig,
	responder ports.ChatResponder,
	archive ports.EnvelopeArchive,
	tm *auth.TokenManager,
	logger *slog.Logger,
) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		Hub:       hub,
		Conn:      conn,
		Send:      make(chan domain.Envelope, 256),
		WidgetID:  claims.WidgetID,
		TenantID:  claims.TenantID,
		SessionID: claims.SessionID,
		cfg:       cfg,
		limiter:   rate.NewLimiter(rate.Limit(cfg.SessionRPS), cfg.SessionBurst),
		responder: responder,
		archive:   archive,
		tm:        tm,
		logger: logger.With(
			"widget_id", claims.WidgetID,
			"session_id", claims.SessionID,
		),
	}
}

// CloseSend safely closes the Send channel exactly once
func (c *Client) CloseSend() {
	c.closeOnce.Do(func() {
		close(c.Send)
	})
}

// ReadPump pumps envelopes from the websocket connection to the relay.
// This method runs in its own goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.cfg.MaxMessageSize)
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait)); err != nil {
		c.logger.Error("failed to set read deadline", "error", err)
		return
	}

	c.Conn.SetPongHandler(func(string) error {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait)); err != nil {
			c.logger.Error("failed to set read deadline in pong handler", "error", err)
		}
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			}
			break
		}

		c.handleIncomingEnvelope(message)
	}
}

// WritePump pumps envelopes from the hub to the websocket connection.
// This method runs in its own goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case env, ok := <-c.Send:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error("failed to set write deadline", "error", err)
				return
			}

			if !ok {
				// The hub closed the channel. Send close message.
				if err := c.Conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					c.logger.Debug("failed to send close message", "error", err)
				}
				return
			}

			if err := c.Conn.WriteJSON(env); err != nil {
				c.logger.Error("failed to write envelope", "error", err)
				return
			}

		case <-ticker.C:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error("failed to set write deadline for ping", "error", err)
				return
			}

			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
				return
			}
		}
	}
}

// --- Incoming Envelope Handling ---

// handleIncomingEnvelope processes envelopes received from the client
func (c *Client) handleIncomingEnvelope(message []byte) {
	env, err := domain.DecodeEnvelope(message)
	if err != nil {
		c.logger.Warn("failed to decode client envelope", "error", err)
		return
	}

	// Heartbeats are liveness traffic; they bypass the rate limiter and are
	// echoed straight back so the client can measure round-trip time.
	if env.Type == domain.EventHeartbeat {
		c.queue(env)
		return
	}

	if !c.limiter.Allow() {
		c.logger.Warn("session rate limited", "event_type", env.Type)
		c.queueError("RATE_LIMITED", "Too many messages. Please slow down.")
		return
	}

	switch env.Type {
	case domain.EventChatMessage:
		c.handleChatMessage(env)

	case domain.EventTypingStart, domain.EventTypingStop:
		c.relayTyping(env)

	case domain.EventAuthRefresh:
		c.handleAuthRefresh(env)

	default:
		c.logger.Debug("received unhandled envelope type", "event_type", env.Type)
	}
}

func (c *Client) handleChatMessage(env domain.Envelope) {
	var payload domain.ChatMessagePayload
	if err := env.DecodeData(&payload); err != nil {
		c.logger.Warn("failed to decode chat message payload", "error", err)
		return
	}

	if c.archive != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := c.archive.Append(ctx, c.WidgetID, env); err != nil {
			c.logger.Warn("failed to archive chat message", "error", err)
		}
		cancel()
	}

	// Confirm receipt to the sender's other tabs and this one.
	c.Hub.SendToSession(c.WidgetID, c.SessionID, env)

	go c.respond(payload)
}

// respond simulates the assistant pipeline: typing indicator, a thinking
// delay, the reply, then typing stop.
func (c *Client) respond(msg domain.ChatMessagePayload) {
	start := time.Now()

	c.queueTyping(true)

	delay := c.cfg.ResponseDelayMin
	if c.cfg.ResponseDelayMax > c.cfg.ResponseDelayMin {
		delay += time.Duration(rand.Int63n(int64(c.cfg.ResponseDelayMax - c.cfg.ResponseDelayMin)))
	}
	time.Sleep(delay)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	reply := c.responder.Respond(ctx, c.WidgetID, msg)
	reply.SessionID = c.SessionID
	reply.ResponseTimeMs = time.Since(start).Milliseconds()

	env, err := domain.NewEnvelope(domain.EventChatResponse, reply)
	if err != nil {
		c.logger.Error("failed to build chat response", "error", err)
		return
	}
	env.SessionID = c.SessionID
	env.DeploymentID = c.WidgetID

	if c.archive != nil {
		if err := c.archive.Append(ctx, c.WidgetID, env); err != nil {
			c.logger.Warn("failed to archive chat response", "error", err)
		}
	}

	c.queue(env)
	c.queueTyping(false)
}

// relayTyping forwards a typing indicator to the session's other
// connections.
func (c *Client) relayTyping(env domain.Envelope) {
	env.UserID = c.SessionID
	env.SessionID = c.SessionID
	c.Hub.SendToSession(c.WidgetID, c.SessionID, env)
}

func (c *Client) handleAuthRefresh(env domain.Envelope) {
	var payload domain.AuthRefreshPayload
	if err := env.DecodeData(&payload); err != nil {
		c.logger.Warn("failed to decode auth refresh payload", "error", err)
		return
	}

	claims, err := c.tm.ValidateToken(payload.Token)
	if err != nil || claims.WidgetID != c.WidgetID {
		c.logger.Warn("rejected auth refresh", "error", err)
		c.queueError("UNAUTHORIZED", "Credential refresh rejected.")
		return
	}

	c.logger.Info("credentials refreshed in place")
}

func (c *Client) queueTyping(active bool) {
	eventType := domain.EventTypingStart
	if !active {
		eventType = domain.EventTypingStop
	}

	env, err := domain.NewEnvelope(eventType, domain.TypingPayload{Typing: active})
	if err != nil {
		c.logger.Error("failed to build typing envelope", "error", err)
		return
	}
	env.UserID = "assistant"
	env.SessionID = c.SessionID
	c.queue(env)
}

func (c *Client) queueError(code, message string) {
	env, err := domain.NewEnvelope(domain.EventError, domain.ErrorPayload{Code: code, Message: message})
	if err != nil {
		c.logger.Error("failed to build error envelope", "error", err)
		return
	}
	env.SessionID = c.SessionID
	c.queue(env)
}

func (c *Client) queue(env domain.Envelope) {
	select {
	case c.Send <- env:
	default:
		// Channel full, drop rather than block the read pump.
		c.logger.Warn("send buffer full, dropping envelope", "event_type", env.Type)
	}
}
