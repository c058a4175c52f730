package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatforge/realtime-console/internal/core/domain"
	"github.com/chatforge/realtime-console/internal/core/ports"
)

// EnvelopeArchive persists relay envelopes for diagnostics and session
// history.
type EnvelopeArchive struct {
	pool *pgxpool.Pool
}

var _ ports.EnvelopeArchive = (*EnvelopeArchive)(nil)

// NewEnvelopeArchive creates a new envelope archive.
func NewEnvelopeArchive(pool *pgxpool.Pool) *EnvelopeArchive {
	return &EnvelopeArchive{pool: pool}
}

// Append persists one envelope.
func (r *EnvelopeArchive) Append(ctx context.Context, widgetID string, env domain.Envelope) error {
	const query = `
		INSERT INTO envelopes (envelope_id, widget_id, tenant_id, session_id, event_type, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (envelope_id) DO NOTHING`

	payload := env.Data
	if payload == nil {
		payload = json.RawMessage(`null`)
	}

	_, err := GetDBTX(ctx, r.pool).Exec(ctx, query,
		env.ID,
		widgetID,
		env.TenantID,
		env.SessionID,
		string(env.Type),
		[]byte(payload),
		env.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to archive envelope: %w", err)
	}
	return nil
}

// ListBySession retrieves up to limit envelopes for a session, newest first.
func (r *EnvelopeArchive) ListBySession(ctx context.Context, widgetID, sessionID string, limit int) ([]domain.Envelope, error) {
	const query = `
		SELECT envelope_id, tenant_id, session_id, event_type, payload, occurred_at
		FROM envelopes
		WHERE widget_id = $1 AND session_id = $2
		ORDER BY occurred_at DESC
		LIMIT $3`

	rows, err := GetDBTX(ctx, r.pool).Query(ctx, query, widgetID, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list envelopes: %w", err)
	}
	defer rows.Close()

	var envelopes []domain.Envelope
	for rows.Next() {
		env, err := scanEnvelope(rows, widgetID)
		if err != nil {
			return nil, err
		}
		envelopes = append(envelopes, env)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate envelopes: %w", err)
	}

	return envelopes, nil
}

func scanEnvelope(row pgx.Row, widgetID string) (domain.Envelope, error) {
	var (
		env       domain.Envelope
		eventType string
		payload   []byte
	)
	if err := row.Scan(&env.ID, &env.TenantID, &env.SessionID, &eventType, &payload, &env.Timestamp); err != nil {
		return domain.Envelope{}, fmt.Errorf("failed to scan envelope: %w", err)
	}
	env.Type = domain.EventType(eventType)
	env.Data = payload
	env.DeploymentID = widgetID
	return env, nil
}
