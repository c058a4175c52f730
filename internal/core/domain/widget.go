package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Widget is one embeddable chatbot deployment. The widget ID is the public
// room key; the API key (stored hashed) is what the embedding site uses to
// mint connection tokens.
type Widget struct {
	WidgetID     string
	TenantID     string
	Name         string
	APIKeyHash   string
	Greeting     string
	QuickReplies []string
	Active       bool
	CreatedAt    time.Time
}

// NewWidget creates a widget with a fresh public ID.
func NewWidget(name, tenantID, greeting string, quickReplies []string, apiKeyHash string) *Widget {
	return &Widget{
		WidgetID:     "wgt_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:20],
		TenantID:     tenantID,
		Name:         name,
		APIKeyHash:   apiKeyHash,
		Greeting:     greeting,
		QuickReplies: quickReplies,
		Active:       true,
		CreatedAt:    time.Now().UTC(),
	}
}
