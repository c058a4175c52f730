package services

import (
	"context"
	"sync"

	"github.com/chatforge/realtime-console/internal/core/domain"
	apperrors "github.com/chatforge/realtime-console/internal/core/errors"
	"github.com/chatforge/realtime-console/internal/core/ports"
)

// MemoryWidgetDirectory is an in-process widget store used when the relay
// runs without a database. Registrations do not survive a restart.
type MemoryWidgetDirectory struct {
	mu      sync.RWMutex
	widgets map[string]domain.Widget
}

var _ ports.WidgetDirectory = (*MemoryWidgetDirectory)(nil)

// NewMemoryWidgetDirectory creates an empty in-memory directory.
func NewMemoryWidgetDirectory() *MemoryWidgetDirectory {
	return &MemoryWidgetDirectory{
		widgets: make(map[string]domain.Widget),
	}
}

// Register stores a widget.
func (d *MemoryWidgetDirectory) Register(_ context.Context, widget *domain.Widget) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.widgets[widget.WidgetID] = *widget
	return nil
}

// Lookup retrieves a widget by its public ID.
func (d *MemoryWidgetDirectory) Lookup(_ context.Context, widgetID string) (*domain.Widget, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	widget, ok := d.widgets[widgetID]
	if !ok {
		return nil, apperrors.ErrWidgetNotFound
	}
	copied := widget
	return &copied, nil
}
