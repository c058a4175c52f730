package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/chatforge/realtime-console/internal/core/domain"
	"github.com/chatforge/realtime-console/internal/core/realtime"
)

// Chat transcript roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleRemote    = "remote"
)

// defaultTypingTTL bounds how long a remote typing indicator survives
// without a typing_stop. A lost stop event would otherwise pin the
// indicator forever.
const defaultTypingTTL = 10 * time.Second

// ChatEntry is one line of the accumulated chat transcript.
type ChatEntry struct {
	ID        string
	Role      string
	Text      string
	UserID    string
	Timestamp time.Time
	Pending   bool
}

// ChatSession binds the shared connection manager to one chat thread. It
// subscribes to the chat-related event types on construction, accumulates a
// transcript, tracks remote typing state, and translates outgoing actions
// into envelopes. It holds a reference to the manager but never owns it.
type ChatSession struct {
	mgr       *realtime.Manager
	logger    *slog.Logger
	sessionID string
	typingTTL time.Duration

	mu           sync.Mutex
	transcript   []ChatEntry
	remoteTyping map[string]bool
	typingTimers map[string]*time.Timer
	unsubs       []func()
	onChange     func()
}

// ChatOption customizes a ChatSession.
type ChatOption func(*ChatSession)

// WithTypingTTL overrides the inactivity timeout for remote typing
// indicators.
func WithTypingTTL(ttl time.Duration) ChatOption {
	return func(s *ChatSession) { s.typingTTL = ttl }
}

// NewChatSession creates a binding scoped to sessionID. An empty sessionID
// accepts chat traffic for every session.
func NewChatSession(mgr *realtime.Manager, sessionID string, logger *slog.Logger, opts ...ChatOption) *ChatSession {
	s := &ChatSession{
		mgr:          mgr,
		logger:       logger.With("component", "chat_session", "session_id", sessionID),
		sessionID:    sessionID,
		typingTTL:    defaultTypingTTL,
		remoteTyping: make(map[string]bool),
		typingTimers: make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.unsubs = []func(){
		mgr.Subscribe(domain.EventChatMessage, s.handleChatMessage),
		mgr.Subscribe(domain.EventChatResponse, s.handleChatResponse),
		mgr.Subscribe(domain.EventTypingStart, s.handleTypingStart),
		mgr.Subscribe(domain.EventTypingStop, s.handleTypingStop),
		mgr.Subscribe(domain.EventUserJoined, s.handlePresence),
		mgr.Subscribe(domain.EventUserLeft, s.handlePresence),
	}

	return s
}

// SetOnChange registers the hook invoked after every derived-state update.
func (s *ChatSession) SetOnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// SendMessage builds a chat_message envelope, optimistically appends it to
// the transcript and forwards it to the manager. On a failed send the
// optimistic entry is rolled back and false is returned.
func (s *ChatSession) SendMessage(text string) bool {
	env, err := domain.NewEnvelope(domain.EventChatMessage, domain.ChatMessagePayload{Message: text})
	if err != nil {
		s.logger.Error("failed to build chat message", "error", err)
		return false
	}
	env.SessionID = s.sessionID

	entry := ChatEntry{
		ID:        env.ID,
		Role:      RoleUser,
		Text:      text,
		Timestamp: env.Timestamp,
		Pending:   true,
	}

	s.mu.Lock()
	s.transcript = append(s.transcript, entry)
	s.mu.Unlock()
	s.notify()

	if !s.mgr.Send(env) {
		s.mu.Lock()
		for i := len(s.transcript) - 1; i >= 0; i-- {
			if s.transcript[i].ID == entry.ID {
				s.transcript = append(s.transcript[:i], s.transcript[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
		s.notify()
		return false
	}
	return true
}

// SendTyping reports the local composing state to the peer.
func (s *ChatSession) SendTyping(active bool) bool {
	eventType := domain.EventTypingStart
	if !active {
		eventType = domain.EventTypingStop
	}

	env, err := domain.NewEnvelope(eventType, domain.TypingPayload{Typing: active})
	if err != nil {
		s.logger.Error("failed to build typing envelope", "error", err)
		return false
	}
	env.SessionID = s.sessionID
	return s.mgr.Send(env)
}

// Transcript returns a copy of the accumulated transcript.
func (s *ChatSession) Transcript() []ChatEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChatEntry, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// RemoteTyping reports whether any remote participant is composing.
func (s *ChatSession) RemoteTyping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.remoteTyping) > 0
}

// Close unsubscribes every handler and stops the typing timers. The binding
// must not be used afterwards.
func (s *ChatSession) Close() {
	for _, unsub := range s.unsubs {
		unsub()
	}

	s.mu.Lock()
	for user, t := range s.typingTimers {
		t.Stop()
		delete(s.typingTimers, user)
	}
	s.mu.Unlock()
}

func (s *ChatSession) inScope(env domain.Envelope) bool {
	return s.sessionID == "" || env.SessionID == "" || env.SessionID == s.sessionID
}

func (s *ChatSession) handleChatMessage(env domain.Envelope) {
	if !s.inScope(env) {
		return
	}

	var payload domain.ChatMessagePayload
	if err := env.DecodeData(&payload); err != nil {
		s.logger.Warn("malformed chat message payload", "error", err)
		return
	}

	s.mu.Lock()
	// Our own optimistic entry comes back with the same correlation ID;
	// confirm it instead of duplicating.
	confirmed := false
	for i := range s.transcript {
		if s.transcript[i].ID == env.ID && env.ID != "" {
			s.transcript[i].Pending = false
			confirmed = true
			break
		}
	}
	if !confirmed {
		s.transcript = append(s.transcript, ChatEntry{
			ID:        env.ID,
			Role:      RoleRemote,
			Text:      payload.Message,
			UserID:    env.UserID,
			Timestamp: env.Timestamp,
		})
	}
	s.mu.Unlock()
	s.notify()
}

func (s *ChatSession) handleChatResponse(env domain.Envelope) {
	if !s.inScope(env) {
		return
	}

	var payload domain.ChatResponsePayload
	if err := env.DecodeData(&payload); err != nil {
		s.logger.Warn("malformed chat response payload", "error", err)
		return
	}

	s.mu.Lock()
	s.transcript = append(s.transcript, ChatEntry{
		ID:        env.ID,
		Role:      RoleAssistant,
		Text:      payload.Response,
		Timestamp: env.Timestamp,
	})
	s.mu.Unlock()
	s.notify()
}

func (s *ChatSession) handleTypingStart(env domain.Envelope) {
	if !s.inScope(env) || env.UserID == "" {
		return
	}
	user := env.UserID

	s.mu.Lock()
	s.remoteTyping[user] = true
	if t, ok := s.typingTimers[user]; ok {
		t.Stop()
	}
	s.typingTimers[user] = time.AfterFunc(s.typingTTL, func() {
		s.clearTyping(user)
	})
	s.mu.Unlock()
	s.notify()
}

func (s *ChatSession) handleTypingStop(env domain.Envelope) {
	if !s.inScope(env) || env.UserID == "" {
		return
	}
	s.clearTyping(env.UserID)
}

func (s *ChatSession) handlePresence(env domain.Envelope) {
	if !s.inScope(env) {
		return
	}
	if env.Type == domain.EventUserLeft && env.UserID != "" {
		s.clearTyping(env.UserID)
		return
	}
	s.notify()
}

func (s *ChatSession) clearTyping(user string) {
	s.mu.Lock()
	if t, ok := s.typingTimers[user]; ok {
		t.Stop()
		delete(s.typingTimers, user)
	}
	_, present := s.remoteTyping[user]
	delete(s.remoteTyping, user)
	s.mu.Unlock()

	if present {
		s.notify()
	}
}

func (s *ChatSession) notify() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}
