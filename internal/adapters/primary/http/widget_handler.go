package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	mw "github.com/chatforge/realtime-console/internal/adapters/primary/http/middleware"
	"github.com/chatforge/realtime-console/internal/auth"
	"github.com/chatforge/realtime-console/internal/core/domain"
	apperrors "github.com/chatforge/realtime-console/internal/core/errors"
	"github.com/chatforge/realtime-console/internal/core/ports"
)

// WidgetHandler handles widget registration and connection token minting
type WidgetHandler struct {
	directory    ports.WidgetDirectory
	tm           *auth.TokenManager
	errorHandler *ErrorHandler
	logger       *slog.Logger

	// mintLimiter slows down API key guessing against a single widget.
	mintLimiter *mw.RateLimitByKey
}

// NewWidgetHandler creates a new widget handler
func NewWidgetHandler(
	directory ports.WidgetDirectory,
	tm *auth.TokenManager,
	errorHandler *ErrorHandler,
	logger *slog.Logger,
) *WidgetHandler {
	return &WidgetHandler{
		directory:    directory,
		tm:           tm,
		errorHandler: errorHandler,
		logger:       logger,
		mintLimiter:  mw.NewRateLimitByKey(2, 5),
	}
}

// RegisterWidgetRequest is the payload for creating a widget deployment
type RegisterWidgetRequest struct {
	Name         string   `json:"name"`
	TenantID     string   `json:"tenantId"`
	Greeting     string   `json:"greeting,omitempty"`
	QuickReplies []string `json:"quickReplies,omitempty"`
}

// RegisterWidgetResponse returns the new widget's ID and its API key. The
// key is shown here once and never again.
type RegisterWidgetResponse struct {
	WidgetID string `json:"widgetId"`
	APIKey   string `json:"apiKey"`
}

// HandleRegister creates a new widget deployment
func (h *WidgetHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterWidgetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorHandler.Handle(w, r, apperrors.NewBadRequestError(err, "Invalid request body"))
		return
	}

	if strings.TrimSpace(req.Name) == "" {
		h.errorHandler.Handle(w, r, apperrors.NewBadRequestError(apperrors.ErrBadRequest, "Widget name is required"))
		return
	}
	if strings.TrimSpace(req.TenantID) == "" {
		h.errorHandler.Handle(w, r, apperrors.NewBadRequestError(apperrors.ErrBadRequest, "Tenant ID is required"))
		return
	}

	apiKey, err := auth.GenerateAPIKey()
	if HandleError(w, r, err, h.errorHandler) {
		return
	}
	hash, err := auth.HashAPIKey(apiKey)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	widget := domain.NewWidget(req.Name, req.TenantID, req.Greeting, req.QuickReplies, hash)
	if err := h.directory.Register(r.Context(), widget); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	h.logger.Info("widget registered",
		"widget_id", widget.WidgetID,
		"tenant_id", widget.TenantID,
	)

	WriteCreated(w, RegisterWidgetResponse{
		WidgetID: widget.WidgetID,
		APIKey:   apiKey,
	})
}

// MintTokenRequest is the payload for exchanging an API key for a
// connection token
type MintTokenRequest struct {
	WidgetID  string `json:"widgetId"`
	APIKey    string `json:"apiKey"`
	SessionID string `json:"sessionId,omitempty"`
}

// MintTokenResponse carries the signed connection token
type MintTokenResponse struct {
	Token     string `json:"token"`
	SessionID string `json:"sessionId"`
	ExpiresAt string `json:"expiresAt"`
}

// HandleMintToken exchanges a widget API key for a short-lived connection
// token. The widget embeds this call server-side; the token is what the
// browser presents on the websocket query string.
func (h *WidgetHandler) HandleMintToken(w http.ResponseWriter, r *http.Request) {
	var req MintTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorHandler.Handle(w, r, apperrors.NewBadRequestError(err, "Invalid request body"))
		return
	}

	if !h.mintLimiter.Allow(req.WidgetID) {
		h.logger.Warn("token mint rate limited",
			"widget_id", req.WidgetID,
			"remote_addr", r.RemoteAddr,
		)
		h.errorHandler.Handle(w, r, apperrors.ErrRateLimited)
		return
	}

	widget, err := h.directory.Lookup(r.Context(), req.WidgetID)
	if err != nil {
		// Do not leak whether the widget exists
		h.errorHandler.Handle(w, r, apperrors.NewUnauthorizedError("Invalid widget credentials"))
		return
	}

	if !widget.Active || !auth.CheckAPIKey(widget.APIKeyHash, req.APIKey) {
		h.logger.Warn("token mint rejected",
			"widget_id", req.WidgetID,
			"remote_addr", r.RemoteAddr,
		)
		h.errorHandler.Handle(w, r, apperrors.NewUnauthorizedError("Invalid widget credentials"))
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	token, err := h.tm.GenerateToken(widget.WidgetID, widget.TenantID, sessionID)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	expiry, err := auth.TokenExpiry(token)
	if err != nil {
		expiry = time.Now().Add(time.Hour)
	}

	WriteJSON(w, http.StatusOK, MintTokenResponse{
		Token:     token,
		SessionID: sessionID,
		ExpiresAt: expiry.UTC().Format(time.RFC3339),
	})
}
