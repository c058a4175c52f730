package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatforge/realtime-console/internal/core/domain"
	apperrors "github.com/chatforge/realtime-console/internal/core/errors"
	"github.com/chatforge/realtime-console/internal/core/ports"
)

// WidgetRepository handles persistence for widget deployments.
type WidgetRepository struct {
	pool *pgxpool.Pool
}

var _ ports.WidgetDirectory = (*WidgetRepository)(nil)

// NewWidgetRepository creates a new widget repository.
func NewWidgetRepository(pool *pgxpool.Pool) *WidgetRepository {
	return &WidgetRepository{pool: pool}
}

// Register persists a new widget.
func (r *WidgetRepository) Register(ctx context.Context, widget *domain.Widget) error {
	const query = `
		INSERT INTO widgets (widget_id, tenant_id, name, api_key_hash, greeting, quick_replies, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := GetDBTX(ctx, r.pool).Exec(ctx, query,
		widget.WidgetID,
		widget.TenantID,
		widget.Name,
		widget.APIKeyHash,
		widget.Greeting,
		widget.QuickReplies,
		widget.Active,
		widget.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to register widget: %w", err)
	}
	return nil
}

// Lookup retrieves a widget by its public ID.
func (r *WidgetRepository) Lookup(ctx context.Context, widgetID string) (*domain.Widget, error) {
	const query = `
		SELECT widget_id, tenant_id, name, api_key_hash, greeting, quick_replies, active, created_at
		FROM widgets
		WHERE widget_id = $1`

	var widget domain.Widget
	err := GetDBTX(ctx, r.pool).QueryRow(ctx, query, widgetID).Scan(
		&widget.WidgetID,
		&widget.TenantID,
		&widget.Name,
		&widget.APIKeyHash,
		&widget.Greeting,
		&widget.QuickReplies,
		&widget.Active,
		&widget.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrWidgetNotFound
		}
		return nil, fmt.Errorf("failed to look up widget: %w", err)
	}

	return &widget, nil
}

// Deactivate marks a widget inactive, revoking future token mints.
func (r *WidgetRepository) Deactivate(ctx context.Context, widgetID string) error {
	const query = `UPDATE widgets SET active = false WHERE widget_id = $1`

	tag, err := GetDBTX(ctx, r.pool).Exec(ctx, query, widgetID)
	if err != nil {
		return fmt.Errorf("failed to deactivate widget: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrWidgetNotFound
	}
	return nil
}
