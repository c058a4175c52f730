package websocket

import (
	"log/slog"
	"sync"

	"github.com/chatforge/realtime-console/internal/core/domain"
	"github.com/chatforge/realtime-console/internal/core/ports"
)

// Hub maintains the set of active Clients and broadcasts envelopes to them.
type Hub struct {
	// Rooms maps widget IDs to connected clients
	rooms map[string]map[*Client]bool

	// Broadcast channel for feed envelopes
	broadcast chan targetedEnvelope

	// Register requests from clients
	Register chan *Client

	// Unregister requests from clients
	Unregister chan *Client

	// mu protects the rooms map
	mu sync.RWMutex

	// logger for the hub
	logger *slog.Logger
}

type targetedEnvelope struct {
	widgetID string
	env      domain.Envelope
}

// Ensure Hub implements the FeedBroadcaster interface.
var _ ports.FeedBroadcaster = (*Hub)(nil)

// NewHub creates a new WebSocket hub
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		broadcast:  make(chan targetedEnvelope, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		logger:     logger.With("component", "websocket_hub"),
	}
}

// BroadcastToWidget queues an envelope for every connection watching a
// widget. This method implements the ports.FeedBroadcaster interface.
func (h *Hub) BroadcastToWidget(widgetID string, env domain.Envelope) {
	select {
	case h.broadcast <- targetedEnvelope{widgetID: widgetID, env: env}:
	default:
		h.logger.Warn("broadcast channel full, dropping envelope",
			"event_type", env.Type,
			"widget_id", widgetID,
		)
	}
}

// Run starts the hub's event loop. This MUST be run as a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case t := <-h.broadcast:
			h.broadcastEnvelope(t.widgetID, t.env)
		}
	}
}

// registerClient adds a client to its widget room and announces presence
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	if h.rooms[client.WidgetID] == nil {
		h.rooms[client.WidgetID] = make(map[*Client]bool)
	}
	h.rooms[client.WidgetID][client] = true
	total := len(h.rooms[client.WidgetID])
	h.mu.Unlock()

	h.logger.Info("client registered",
		"widget_id", client.WidgetID,
		"session_id", client.SessionID,
		"room_size", total,
	)

	h.announcePresence(client, domain.EventUserJoined)
}

// unregisterClient removes a client from its widget room
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	room, ok := h.rooms[client.WidgetID]
	if !ok || !room[client] {
		h.mu.Unlock()
		return
	}
	delete(room, client)
	if len(room) == 0 {
		delete(h.rooms, client.WidgetID)
	}
	h.mu.Unlock()

	// Safely close the send channel
	client.CloseSend()

	h.logger.Info("client unregistered",
		"widget_id", client.WidgetID,
		"session_id", client.SessionID,
	)

	h.announcePresence(client, domain.EventUserLeft)
}

// broadcastEnvelope sends an envelope to all clients watching the widget
func (h *Hub) broadcastEnvelope(widgetID string, env domain.Envelope) {
	h.mu.RLock()
	room, ok := h.rooms[widgetID]
	if !ok {
		h.mu.RUnlock()
		return
	}

	// Copy the client list to avoid holding the lock while sending
	clients := make([]*Client, 0, len(room))
	for client := range room {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	h.logger.Debug("broadcasting envelope",
		"event_type", env.Type,
		"widget_id", widgetID,
		"client_count", len(clients),
	)

	for _, client := range clients {
		select {
		case client.Send <- env:
			// Successfully queued
		default:
			// Client's send buffer is full, unregister them. Done inline:
			// queuing on h.Unregister here would deadlock the run loop.
			h.logger.Warn("client send buffer full, unregistering",
				"widget_id", client.WidgetID,
				"session_id", client.SessionID,
			)
			h.unregisterClient(client)
		}
	}
}

// announcePresence tells the other room members that a session came or went
func (h *Hub) announcePresence(client *Client, eventType domain.EventType) {
	env, err := domain.NewEnvelope(eventType, domain.PresencePayload{UserID: client.SessionID})
	if err != nil {
		h.logger.Error("failed to build presence envelope", "error", err)
		return
	}
	env.UserID = client.SessionID
	env.TenantID = client.TenantID
	env.DeploymentID = client.WidgetID

	h.mu.RLock()
	room := h.rooms[client.WidgetID]
	peers := make([]*Client, 0, len(room))
	for peer := range room {
		if peer != client {
			peers = append(peers, peer)
		}
	}
	h.mu.RUnlock()

	for _, peer := range peers {
		select {
		case peer.Send <- env:
		default:
			// Buffer full, skip this connection
		}
	}
}

// SendToSession sends an envelope directly to one session's connections
func (h *Hub) SendToSession(widgetID, sessionID string, env domain.Envelope) {
	h.mu.RLock()
	room := h.rooms[widgetID]
	clients := make([]*Client, 0, len(room))
	for client := range room {
		if client.SessionID == sessionID {
			clients = append(clients, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range clients {
		select {
		case client.Send <- env:
		default:
			// Buffer full, skip this connection
		}
	}
}

// RoomSize returns the number of clients watching a widget
func (h *Hub) RoomSize(widgetID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[widgetID])
}

// ClientCount returns the total number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, room := range h.rooms {
		count += len(room)
	}
	return count
}
