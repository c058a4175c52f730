package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of real-time event carried by an Envelope.
type EventType string

const (
	EventChatMessage        EventType = "chat_message"
	EventChatResponse       EventType = "chat_response"
	EventTypingStart        EventType = "typing_start"
	EventTypingStop         EventType = "typing_stop"
	EventUserJoined         EventType = "user_joined"
	EventUserLeft           EventType = "user_left"
	EventProcessingUpdate   EventType = "processing_update"
	EventDeploymentStatus   EventType = "deployment_status"
	EventAnalyticsUpdate    EventType = "analytics_update"
	EventSystemNotification EventType = "system_notification"
	EventError              EventType = "error"
	EventHeartbeat          EventType = "heartbeat"
	EventPresenceUpdate     EventType = "presence_update"
	EventAuthRefresh        EventType = "auth_refresh"
)

// knownEventTypes is the closed set of event types this build understands.
// Inbound envelopes with other types are still delivered to catch-all
// subscribers; they are never an error.
var knownEventTypes = map[EventType]bool{
	EventChatMessage:        true,
	EventChatResponse:       true,
	EventTypingStart:        true,
	EventTypingStop:         true,
	EventUserJoined:         true,
	EventUserLeft:           true,
	EventProcessingUpdate:   true,
	EventDeploymentStatus:   true,
	EventAnalyticsUpdate:    true,
	EventSystemNotification: true,
	EventError:              true,
	EventHeartbeat:          true,
	EventPresenceUpdate:     true,
	EventAuthRefresh:        true,
}

// Known reports whether t is part of the closed event type enumeration.
func (t EventType) Known() bool {
	return knownEventTypes[t]
}

// Envelope is the uniform wire shape for every message exchanged over the
// real-time channel, in both directions. Data stays raw until a subscriber
// decodes it against the payload type implied by Type.
type Envelope struct {
	Type         EventType       `json:"type"`
	Data         json.RawMessage `json:"data,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	ID           string          `json:"id,omitempty"`
	UserID       string          `json:"userId,omitempty"`
	TenantID     string          `json:"tenantId,omitempty"`
	DeploymentID string          `json:"deploymentId,omitempty"`
	SessionID    string          `json:"sessionId,omitempty"`
}

// NewEnvelope builds an envelope of the given type with a marshalled payload,
// a fresh correlation ID and the current timestamp. A payload that cannot be
// marshalled is a programming error and is reported to the caller.
func NewEnvelope(eventType EventType, payload any) (Envelope, error) {
	env := Envelope{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		ID:        uuid.NewString(),
	}

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, err
		}
		env.Data = data
	}

	return env, nil
}

// DecodeData unmarshals the opaque payload into dst.
func (e Envelope) DecodeData(dst any) error {
	if len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, dst)
}

// Encode marshals the envelope for the wire.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEnvelope parses raw wire data into an Envelope. The payload is left
// raw; only the outer shape is validated.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}
