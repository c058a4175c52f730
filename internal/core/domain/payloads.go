package domain

import "time"

// Payload shapes for the known event types. The envelope keeps Data raw on
// the wire; these are the schemas subscribers decode against.

// ChatMessagePayload is an outbound visitor/operator chat message.
type ChatMessagePayload struct {
	Message  string         `json:"message"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ChatResponsePayload is the assistant's reply to a chat message.
type ChatResponsePayload struct {
	Response       string   `json:"response"`
	SessionID      string   `json:"session_id,omitempty"`
	Sources        []string `json:"sources,omitempty"`
	Suggestions    []string `json:"suggestions,omitempty"`
	ResponseTimeMs int64    `json:"response_time_ms,omitempty"`
}

// TypingPayload accompanies typing_start / typing_stop.
type TypingPayload struct {
	Typing bool `json:"typing"`
}

// PresencePayload accompanies user_joined, user_left and presence_update.
type PresencePayload struct {
	UserID string `json:"userId"`
	Status string `json:"status,omitempty"`
}

// ProcessingUpdatePayload reports content-ingestion progress for one source.
type ProcessingUpdatePayload struct {
	SourceID   string  `json:"sourceId"`
	SourceName string  `json:"sourceName,omitempty"`
	Stage      string  `json:"stage"`
	Progress   float64 `json:"progress"`
	ChunkCount int     `json:"chunkCount,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// DeploymentStatusPayload reports the lifecycle state of one deployment.
type DeploymentStatusPayload struct {
	DeploymentID string `json:"deploymentId"`
	Status       string `json:"status"`
	WidgetID     string `json:"widgetId,omitempty"`
	Message      string `json:"message,omitempty"`
}

// AnalyticsUpdatePayload is a pushed analytics refresh for a deployment.
type AnalyticsUpdatePayload struct {
	DeploymentID      string  `json:"deploymentId"`
	TotalConversations int64  `json:"totalConversations"`
	TotalMessages      int64  `json:"totalMessages"`
	ActiveSessions     int64  `json:"activeSessions"`
	AvgResponseTimeMs  float64 `json:"avgResponseTimeMs"`
}

// NotificationPayload is a user-facing system notice.
type NotificationPayload struct {
	Level   string `json:"level,omitempty"`
	Message string `json:"message"`
}

// ErrorPayload is the server's in-band error report.
type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// HeartbeatPayload carries the sender's timestamp so the echo can be turned
// into a round-trip measurement.
type HeartbeatPayload struct {
	SentAt time.Time `json:"sentAt"`
}

// AuthRefreshPayload carries a replacement token over a live channel so the
// connection does not have to be rebuilt when credentials rotate.
type AuthRefreshPayload struct {
	Token string `json:"token"`
}
