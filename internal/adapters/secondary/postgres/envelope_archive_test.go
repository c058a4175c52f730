package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatforge/realtime-console/internal/core/domain"
)

func archiveTestEnvelope(t *testing.T, eventType domain.EventType, sessionID string, occurredAt time.Time) domain.Envelope {
	t.Helper()

	env, err := domain.NewEnvelope(eventType, domain.ChatMessagePayload{Message: "hello"})
	require.NoError(t, err)
	env.SessionID = sessionID
	env.TenantID = "tenant-1"
	env.Timestamp = occurredAt
	return env
}

func TestEnvelopeArchive_AppendList(t *testing.T) {
	ctx := context.Background()
	archive := NewEnvelopeArchive(testPool)

	widgetID := "wgt_" + uuid.NewString()
	sessionID := uuid.NewString()
	base := time.Now().UTC().Truncate(time.Millisecond)

	first := archiveTestEnvelope(t, domain.EventChatMessage, sessionID, base)
	second := archiveTestEnvelope(t, domain.EventChatResponse, sessionID, base.Add(time.Second))

	require.NoError(t, archive.Append(ctx, widgetID, first))
	require.NoError(t, archive.Append(ctx, widgetID, second))

	// An envelope from another session must not leak in
	other := archiveTestEnvelope(t, domain.EventChatMessage, uuid.NewString(), base)
	require.NoError(t, archive.Append(ctx, widgetID, other))

	envelopes, err := archive.ListBySession(ctx, widgetID, sessionID, 10)
	require.NoError(t, err)
	require.Len(t, envelopes, 2)

	// Newest first
	assert.Equal(t, second.ID, envelopes[0].ID)
	assert.Equal(t, first.ID, envelopes[1].ID)
	assert.Equal(t, domain.EventChatResponse, envelopes[0].Type)
	assert.Equal(t, widgetID, envelopes[0].DeploymentID)
	assert.Equal(t, sessionID, envelopes[0].SessionID)

	var payload domain.ChatMessagePayload
	require.NoError(t, json.Unmarshal(envelopes[1].Data, &payload))
	assert.Equal(t, "hello", payload.Message)
}

func TestEnvelopeArchive_AppendIdempotent(t *testing.T) {
	ctx := context.Background()
	archive := NewEnvelopeArchive(testPool)

	widgetID := "wgt_" + uuid.NewString()
	sessionID := uuid.NewString()
	env := archiveTestEnvelope(t, domain.EventChatMessage, sessionID, time.Now().UTC())

	require.NoError(t, archive.Append(ctx, widgetID, env))
	require.NoError(t, archive.Append(ctx, widgetID, env))

	envelopes, err := archive.ListBySession(ctx, widgetID, sessionID, 10)
	require.NoError(t, err)
	assert.Len(t, envelopes, 1)
}

func TestEnvelopeArchive_ListRespectsLimit(t *testing.T) {
	ctx := context.Background()
	archive := NewEnvelopeArchive(testPool)

	widgetID := "wgt_" + uuid.NewString()
	sessionID := uuid.NewString()
	base := time.Now().UTC()

	for i := 0; i < 5; i++ {
		env := archiveTestEnvelope(t, domain.EventChatMessage, sessionID, base.Add(time.Duration(i)*time.Second))
		require.NoError(t, archive.Append(ctx, widgetID, env))
	}

	envelopes, err := archive.ListBySession(ctx, widgetID, sessionID, 3)
	require.NoError(t, err)
	assert.Len(t, envelopes, 3)
}
