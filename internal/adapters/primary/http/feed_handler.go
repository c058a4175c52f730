package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	mw "github.com/chatforge/realtime-console/internal/adapters/primary/http/middleware"
	"github.com/chatforge/realtime-console/internal/core/domain"
	apperrors "github.com/chatforge/realtime-console/internal/core/errors"
	"github.com/chatforge/realtime-console/internal/core/ports"
)

// FeedHandler pushes dashboard feed envelopes (processing, deployment,
// analytics) into widget rooms and serves archived session history. The
// push endpoints exist so backend jobs can publish progress without holding
// a websocket of their own.
type FeedHandler struct {
	broadcaster  ports.FeedBroadcaster
	archive      ports.EnvelopeArchive
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

// NewFeedHandler creates a new feed handler
func NewFeedHandler(
	broadcaster ports.FeedBroadcaster,
	archive ports.EnvelopeArchive,
	errorHandler *ErrorHandler,
	logger *slog.Logger,
) *FeedHandler {
	return &FeedHandler{
		broadcaster:  broadcaster,
		archive:      archive,
		errorHandler: errorHandler,
		logger:       logger,
	}
}

// HandleProcessingUpdate pushes a content-ingestion progress envelope
func (h *FeedHandler) HandleProcessingUpdate(w http.ResponseWriter, r *http.Request) {
	var payload domain.ProcessingUpdatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.errorHandler.Handle(w, r, apperrors.NewBadRequestError(err, "Invalid request body"))
		return
	}
	if payload.SourceID == "" {
		h.errorHandler.Handle(w, r, apperrors.NewBadRequestError(apperrors.ErrBadRequest, "sourceId is required"))
		return
	}
	h.push(w, r, domain.EventProcessingUpdate, payload)
}

// HandleDeploymentStatus pushes a deployment lifecycle envelope
func (h *FeedHandler) HandleDeploymentStatus(w http.ResponseWriter, r *http.Request) {
	var payload domain.DeploymentStatusPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.errorHandler.Handle(w, r, apperrors.NewBadRequestError(err, "Invalid request body"))
		return
	}
	if payload.Status == "" {
		h.errorHandler.Handle(w, r, apperrors.NewBadRequestError(apperrors.ErrBadRequest, "status is required"))
		return
	}
	h.push(w, r, domain.EventDeploymentStatus, payload)
}

// HandleAnalyticsUpdate pushes a refreshed analytics snapshot
func (h *FeedHandler) HandleAnalyticsUpdate(w http.ResponseWriter, r *http.Request) {
	var payload domain.AnalyticsUpdatePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.errorHandler.Handle(w, r, apperrors.NewBadRequestError(err, "Invalid request body"))
		return
	}
	h.push(w, r, domain.EventAnalyticsUpdate, payload)
}

// HandleNotification pushes a user-facing system notice
func (h *FeedHandler) HandleNotification(w http.ResponseWriter, r *http.Request) {
	var payload domain.NotificationPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.errorHandler.Handle(w, r, apperrors.NewBadRequestError(err, "Invalid request body"))
		return
	}
	if payload.Message == "" {
		h.errorHandler.Handle(w, r, apperrors.NewBadRequestError(apperrors.ErrBadRequest, "message is required"))
		return
	}
	h.push(w, r, domain.EventSystemNotification, payload)
}

// push builds the envelope for the authenticated widget and hands it to the
// hub.
func (h *FeedHandler) push(w http.ResponseWriter, r *http.Request, eventType domain.EventType, payload any) {
	claims, ok := mw.GetWidgetClaims(r.Context())
	if !ok {
		h.errorHandler.Handle(w, r, apperrors.NewUnauthorizedError("Authentication required"))
		return
	}

	env, err := domain.NewEnvelope(eventType, payload)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}
	env.TenantID = claims.TenantID
	env.DeploymentID = claims.WidgetID

	h.broadcaster.BroadcastToWidget(claims.WidgetID, env)

	h.logger.Debug("feed envelope pushed",
		"event_type", eventType,
		"widget_id", claims.WidgetID,
	)

	WriteJSON(w, http.StatusAccepted, SuccessResponse{Message: "queued"})
}

// HandleSessionHistory returns archived envelopes for one session, newest
// first
func (h *FeedHandler) HandleSessionHistory(w http.ResponseWriter, r *http.Request) {
	claims, ok := mw.GetWidgetClaims(r.Context())
	if !ok {
		h.errorHandler.Handle(w, r, apperrors.NewUnauthorizedError("Authentication required"))
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		h.errorHandler.Handle(w, r, apperrors.ErrSessionRequired)
		return
	}

	if h.archive == nil {
		h.errorHandler.Handle(w, r, apperrors.NewNotFoundError(apperrors.ErrNotFound, "Envelope archive is not enabled"))
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 200 {
			limit = parsed
		}
	}

	envelopes, err := h.archive.ListBySession(r.Context(), claims.WidgetID, sessionID, limit)
	if HandleError(w, r, err, h.errorHandler) {
		return
	}

	WriteList(w, envelopes)
}
