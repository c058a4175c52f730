package ports

import (
	"context"

	"github.com/chatforge/realtime-console/internal/core/domain"
)

// Channel is the minimal transport surface the connection manager drives.
// Exactly one component owns a Channel at a time; nothing else touches it.
type Channel interface {
	// ReadMessage blocks until the next complete message arrives or the
	// channel dies. It is called from the manager's read loop only.
	ReadMessage() ([]byte, error)

	// WriteMessage sends one complete message. Safe for concurrent use.
	WriteMessage(data []byte) error

	// Close tears the channel down with a diagnostic reason. Closing an
	// already-closed channel is a no-op.
	Close(reason string) error
}

// Dialer opens a new Channel. The manager owns redial policy; the dialer
// owns only the handshake.
type Dialer interface {
	Dial(ctx context.Context, url string, protocols []string) (Channel, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, url string, protocols []string) (Channel, error)

func (f DialerFunc) Dial(ctx context.Context, url string, protocols []string) (Channel, error) {
	return f(ctx, url, protocols)
}

// CredentialProvider supplies the auth token used at dial time and notifies
// when it changes so a live connection can re-authenticate in place.
type CredentialProvider interface {
	// Token returns the current token, possibly empty.
	Token() string

	// Subscribe registers a change callback and returns an unsubscribe
	// function. The callback receives the new token.
	Subscribe(fn func(token string)) (unsubscribe func())
}

// Notifier is the toast surface for the few connection events that warrant
// interrupting the user. Routine reconnect churn never goes through here.
type Notifier interface {
	Success(message string)
	Error(message string)
}

// EnvelopeArchive persists envelopes for diagnostics and analytics. It is a
// bounded historical record, not a delivery queue.
type EnvelopeArchive interface {
	Append(ctx context.Context, widgetID string, env domain.Envelope) error
	ListBySession(ctx context.Context, widgetID, sessionID string, limit int) ([]domain.Envelope, error)
}

// FeedBroadcaster pushes an envelope to every connection watching a widget.
// Implemented by the relay hub; consumed by the simulation endpoints.
type FeedBroadcaster interface {
	BroadcastToWidget(widgetID string, env domain.Envelope)
}

// ChatResponder produces the assistant reply for one inbound chat message.
type ChatResponder interface {
	Respond(ctx context.Context, widgetID string, msg domain.ChatMessagePayload) domain.ChatResponsePayload
}

// WidgetDirectory stores widget deployments and resolves them at token-mint
// time.
type WidgetDirectory interface {
	Register(ctx context.Context, widget *domain.Widget) error
	Lookup(ctx context.Context, widgetID string) (*domain.Widget, error)
}
