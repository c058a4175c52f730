package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/chatforge/realtime-console/internal/core/domain"
	"github.com/chatforge/realtime-console/internal/core/ports"
)

// ResponderService produces assistant replies for relay chat traffic. It is
// the stand-in for the full retrieval pipeline: per-widget canned replies
// with contextual follow-up suggestions.
type ResponderService struct {
	mu sync.RWMutex

	// greetings maps widget IDs to a configured welcome/fallback reply.
	greetings map[string]string

	// quickReplies maps widget IDs to operator-configured suggestions.
	quickReplies map[string][]string
}

var _ ports.ChatResponder = (*ResponderService)(nil)

// NewResponderService creates a responder with no per-widget configuration.
func NewResponderService() *ResponderService {
	return &ResponderService{
		greetings:    make(map[string]string),
		quickReplies: make(map[string][]string),
	}
}

// Configure sets the canned reply and quick replies for a widget.
func (s *ResponderService) Configure(widgetID, greeting string, quickReplies []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if greeting != "" {
		s.greetings[widgetID] = greeting
	}
	if len(quickReplies) > 0 {
		s.quickReplies[widgetID] = quickReplies
	}
}

// Respond builds the reply for one inbound chat message.
func (s *ResponderService) Respond(ctx context.Context, widgetID string, msg domain.ChatMessagePayload) domain.ChatResponsePayload {
	s.mu.RLock()
	greeting := s.greetings[widgetID]
	quick := s.quickReplies[widgetID]
	s.mu.RUnlock()

	text := s.replyText(greeting, msg.Message)

	return domain.ChatResponsePayload{
		Response:    text,
		Suggestions: suggestedReplies(quick, text),
	}
}

func (s *ResponderService) replyText(greeting, message string) string {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		if greeting != "" {
			return greeting
		}
		return "Hi! How can I help you today?"
	}

	lower := strings.ToLower(trimmed)
	switch {
	case strings.Contains(lower, "hello"), strings.Contains(lower, "hi "):
		if greeting != "" {
			return greeting
		}
		return "Hello! What can I do for you?"
	case strings.Contains(lower, "thank"):
		return "You're welcome! Is there anything else I can help with?"
	default:
		return fmt.Sprintf("I received your message about %q. Let me look into that for you.", truncate(trimmed, 80))
	}
}

// suggestedReplies mirrors the follow-up chips the dashboard renders under a
// reply. Operator-configured quick replies win; otherwise suggestions are
// keyed off the reply content.
func suggestedReplies(quickReplies []string, response string) []string {
	if len(quickReplies) > 0 {
		if len(quickReplies) > 3 {
			return quickReplies[:3]
		}
		return quickReplies
	}

	lower := strings.ToLower(response)
	var suggestions []string

	if strings.Contains(lower, "contact") || strings.Contains(lower, "support") {
		suggestions = append(suggestions, "How can I contact support?")
	}
	if strings.Contains(lower, "price") || strings.Contains(lower, "cost") {
		suggestions = append(suggestions, "What are your pricing options?")
	}
	if strings.Contains(lower, "feature") || strings.Contains(lower, "how to") {
		suggestions = append(suggestions, "Can you show me more features?")
	}

	if len(suggestions) == 0 {
		suggestions = []string{
			"Tell me more",
			"What else can you help with?",
			"Thank you",
		}
	}

	if len(suggestions) > 3 {
		suggestions = suggestions[:3]
	}
	return suggestions
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
