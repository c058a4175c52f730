package services

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatforge/realtime-console/internal/core/domain"
)

func TestResponderService_EmptyMessageUsesDefaultGreeting(t *testing.T) {
	s := NewResponderService()

	reply := s.Respond(context.Background(), "wgt-1", domain.ChatMessagePayload{Message: "   "})
	assert.Equal(t, "Hi! How can I help you today?", reply.Response)
}

func TestResponderService_ConfiguredGreeting(t *testing.T) {
	s := NewResponderService()
	s.Configure("wgt-1", "Welcome to Acme support!", nil)

	reply := s.Respond(context.Background(), "wgt-1", domain.ChatMessagePayload{Message: ""})
	assert.Equal(t, "Welcome to Acme support!", reply.Response)

	reply = s.Respond(context.Background(), "wgt-1", domain.ChatMessagePayload{Message: "hello there"})
	assert.Equal(t, "Welcome to Acme support!", reply.Response)

	// Other widgets keep the built-in replies.
	reply = s.Respond(context.Background(), "wgt-2", domain.ChatMessagePayload{Message: "hello there"})
	assert.Equal(t, "Hello! What can I do for you?", reply.Response)
}

func TestResponderService_ThanksReply(t *testing.T) {
	s := NewResponderService()

	reply := s.Respond(context.Background(), "wgt-1", domain.ChatMessagePayload{Message: "thanks a lot"})
	assert.Equal(t, "You're welcome! Is there anything else I can help with?", reply.Response)
}

func TestResponderService_EchoesTopicAndTruncates(t *testing.T) {
	s := NewResponderService()

	reply := s.Respond(context.Background(), "wgt-1", domain.ChatMessagePayload{Message: "what is the refund policy"})
	assert.Contains(t, reply.Response, `"what is the refund policy"`)

	long := strings.Repeat("x", 200)
	reply = s.Respond(context.Background(), "wgt-1", domain.ChatMessagePayload{Message: long})
	assert.Contains(t, reply.Response, strings.Repeat("x", 80)+"...")
	assert.NotContains(t, reply.Response, strings.Repeat("x", 81))
}

func TestResponderService_QuickRepliesWinAndCapAtThree(t *testing.T) {
	s := NewResponderService()
	s.Configure("wgt-1", "", []string{"One", "Two", "Three", "Four"})

	reply := s.Respond(context.Background(), "wgt-1", domain.ChatMessagePayload{Message: "anything"})
	assert.Equal(t, []string{"One", "Two", "Three"}, reply.Suggestions)
}

func TestResponderService_ContextualSuggestions(t *testing.T) {
	s := NewResponderService()
	s.Configure("wgt-1", "Reach out to support about pricing and features.", nil)

	reply := s.Respond(context.Background(), "wgt-1", domain.ChatMessagePayload{Message: "hello"})
	require.Len(t, reply.Suggestions, 2)
	assert.Contains(t, reply.Suggestions, "How can I contact support?")
	assert.Contains(t, reply.Suggestions, "Can you show me more features?")
}

func TestResponderService_DefaultSuggestions(t *testing.T) {
	s := NewResponderService()

	reply := s.Respond(context.Background(), "wgt-1", domain.ChatMessagePayload{Message: "hello"})
	assert.Equal(t, []string{
		"Tell me more",
		"What else can you help with?",
		"Thank you",
	}, reply.Suggestions)
}
