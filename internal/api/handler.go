package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketfleet/courier/internal/circuitbreaker"
	"github.com/marketfleet/courier/internal/db"
	"github.com/marketfleet/courier/internal/metrics"
	"github.com/marketfleet/courier/internal/notify"
	"github.com/marketfleet/courier/internal/redis"
)

// Orchestrator is the send pipeline the API drives.
// *notify.Orchestrator implements it.
type Orchestrator interface {
	Send(ctx context.Context, n *db.Notification, opts notify.Options) (*notify.Outcome, error)
	SendFromTemplate(ctx context.Context, req notify.TemplateRequest, opts notify.Options) (*notify.Outcome, error)
	SendBatch(ctx context.Context, notifications []*db.Notification, opts notify.Options) *notify.BatchOutcome
}

// InboxService serves the in-app notification feed.
// *notify.Inbox implements it.
type InboxService interface {
	List(ctx context.Context, q db.InboxQuery) ([]*db.Notification, error)
	UnreadCount(ctx context.Context, userID string, userType db.UserType) (int, error)
	MarkRead(ctx context.Context, id uuid.UUID, userID string) (bool, error)
	MarkAllRead(ctx context.Context, userID string, userType db.UserType) (int64, error)
	Delete(ctx context.Context, id uuid.UUID, userID string) (bool, error)
}

// NotificationStore covers the direct lookups and lifecycle callbacks
// the API needs outside the send pipeline. *db.Repository implements it.
type NotificationStore interface {
	GetNotification(ctx context.Context, id uuid.UUID) (*db.Notification, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error)
	CancelScheduled(ctx context.Context, id uuid.UUID) (bool, error)
	RecordOpen(ctx context.Context, id uuid.UUID) error
	RecordClick(ctx context.Context, id uuid.UUID) error
}

// PreferenceRepository reads and writes per-user preference rows.
// *db.Repository implements it.
type PreferenceRepository interface {
	GetPreferences(ctx context.Context, userID string) (*db.Preferences, error)
	UpsertPreferences(ctx context.Context, p *db.Preferences) error
}

// TemplateStore is the template admin surface.
// *db.TemplateRepository implements it.
type TemplateStore interface {
	Upsert(ctx context.Context, t *db.Template) error
	List(ctx context.Context, activeOnly bool) ([]*db.Template, error)
}

// BreakerAdmin exposes provider circuit breakers to operators.
// *circuitbreaker.Registry implements it.
type BreakerAdmin interface {
	AllStats() []circuitbreaker.Stats
	Lookup(provider string) (*circuitbreaker.CircuitBreaker, bool)
}

// SendRequest is the body of POST /api/v1/notifications.
type SendRequest struct {
	Recipient db.Recipient `json:"recipient"`
	Channels  []db.Channel `json:"channels"`
	Category  db.Category  `json:"category,omitempty"`
	Priority  db.Priority  `json:"priority,omitempty"`

	EmailContent *db.EmailContent `json:"email_content,omitempty"`
	SMSContent   *db.SMSContent   `json:"sms_content,omitempty"`
	PushContent  *db.PushContent  `json:"push_content,omitempty"`
	InAppContent *db.InAppContent `json:"in_app_content,omitempty"`

	ScheduledAt   *time.Time `json:"scheduled_at,omitempty"`
	ReferenceType string     `json:"reference_type,omitempty"`
	ReferenceID   string     `json:"reference_id,omitempty"`

	// SkipPreferences sends without consulting the recipient's saved
	// preferences. Meant for internal transactional callers.
	SkipPreferences bool `json:"skip_preferences,omitempty"`
}

func (r *SendRequest) toNotification() *db.Notification {
	return &db.Notification{
		Recipient:     r.Recipient,
		Channels:      r.Channels,
		Category:      r.Category,
		Priority:      r.Priority,
		EmailContent:  r.EmailContent,
		SMSContent:    r.SMSContent,
		PushContent:   r.PushContent,
		InAppContent:  r.InAppContent,
		ScheduledAt:   r.ScheduledAt,
		ReferenceType: r.ReferenceType,
		ReferenceID:   r.ReferenceID,
	}
}

// BatchRequest is the body of POST /api/v1/notifications/batch.
type BatchRequest struct {
	Notifications   []SendRequest `json:"notifications"`
	SkipPreferences bool          `json:"skip_preferences,omitempty"`
}

// maxBatchSize bounds one batch submission.
const maxBatchSize = 1000

// ErrorResponse represents an error in problem+json format.
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for API handlers.
type Handler struct {
	logger       *zap.Logger
	orchestrator Orchestrator
	inbox        InboxService
	store        NotificationStore
	prefs        PreferenceRepository
	templates    TemplateStore
	breakers     BreakerAdmin
	idempotency  *redis.IdempotencyService // nil if Redis not configured
}

// NewHandler creates the API handler. idempotency may be nil; the
// Idempotency-Key header is then ignored.
func NewHandler(logger *zap.Logger, orchestrator Orchestrator, inbox InboxService, store NotificationStore, prefs PreferenceRepository, templates TemplateStore, breakers BreakerAdmin, idempotency *redis.IdempotencyService) *Handler {
	return &Handler{
		logger:       logger,
		orchestrator: orchestrator,
		inbox:        inbox,
		store:        store,
		prefs:        prefs,
		templates:    templates,
		breakers:     breakers,
		idempotency:  idempotency,
	}
}

// SendNotification handles POST /api/v1/notifications.
// Supports idempotency via the Idempotency-Key header.
func (h *Handler) SendNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")
	if replayed := h.checkIdempotency(ctx, w, idempotencyKey); replayed {
		return
	}

	outcome, err := h.orchestrator.Send(ctx, req.toNotification(), notify.Options{
		CheckPreferences: !req.SkipPreferences,
	})
	if err != nil {
		h.writeSendError(w, err)
		return
	}

	status := http.StatusCreated
	if outcome.Scheduled {
		status = http.StatusAccepted
	}

	h.storeIdempotency(ctx, idempotencyKey, outcome.Notification.ID, status)

	h.logger.Info("notification submitted",
		zap.String("id", outcome.Notification.ID.String()),
		zap.String("status", string(outcome.Notification.Status)),
		zap.Bool("success", outcome.Success),
	)

	h.writeJSON(w, status, outcome)
}

// SendFromTemplate handles POST /api/v1/notifications/template.
func (h *Handler) SendFromTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		notify.TemplateRequest
		SkipPreferences bool `json:"skip_preferences,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}
	if req.TemplateName == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing template_name", "template_name is required")
		return
	}

	idempotencyKey := r.Header.Get("Idempotency-Key")
	if replayed := h.checkIdempotency(ctx, w, idempotencyKey); replayed {
		return
	}

	outcome, err := h.orchestrator.SendFromTemplate(ctx, req.TemplateRequest, notify.Options{
		CheckPreferences: !req.SkipPreferences,
	})
	if err != nil {
		h.writeSendError(w, err)
		return
	}

	status := http.StatusCreated
	if outcome.Scheduled {
		status = http.StatusAccepted
	}
	h.storeIdempotency(ctx, idempotencyKey, outcome.Notification.ID, status)
	h.writeJSON(w, status, outcome)
}

// SendBatch handles POST /api/v1/notifications/batch.
func (h *Handler) SendBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}
	if len(req.Notifications) == 0 {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Empty batch", "notifications must not be empty")
		return
	}
	if len(req.Notifications) > maxBatchSize {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Batch too large",
			"a batch may contain at most "+strconv.Itoa(maxBatchSize)+" notifications")
		return
	}

	notifications := make([]*db.Notification, len(req.Notifications))
	for i := range req.Notifications {
		notifications[i] = req.Notifications[i].toNotification()
	}

	outcome := h.orchestrator.SendBatch(ctx, notifications, notify.Options{
		CheckPreferences: !req.SkipPreferences,
	})

	h.writeJSON(w, http.StatusOK, outcome)
}

// GetNotification handles GET /api/v1/notifications/{id}.
func (h *Handler) GetNotification(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	n, err := h.store.GetNotification(r.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "not_found", "Notification not found", "")
			return
		}
		h.logger.Error("failed to get notification", zap.Error(err), zap.String("id", id.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to get notification", "")
		return
	}

	h.writeJSON(w, http.StatusOK, n)
}

// CancelNotification handles POST /api/v1/notifications/{id}/cancel.
// Only scheduled notifications that have not started dispatching can
// be cancelled.
func (h *Handler) CancelNotification(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	cancelled, err := h.store.CancelScheduled(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to cancel notification", zap.Error(err), zap.String("id", id.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to cancel notification", "")
		return
	}
	if !cancelled {
		h.writeError(w, http.StatusConflict, "not_cancellable",
			"Notification cannot be cancelled",
			"only scheduled notifications that have not been dispatched can be cancelled")
		return
	}

	h.logger.Info("scheduled notification cancelled", zap.String("id", id.String()))
	h.writeJSON(w, http.StatusOK, map[string]string{
		"id":     id.String(),
		"status": string(db.StatusCancelled),
	})
}

// MarkDelivered handles POST /api/v1/notifications/{id}/delivered.
// Provider delivery callbacks land here.
func (h *Handler) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	updated, err := h.store.MarkDelivered(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to mark delivered", zap.Error(err), zap.String("id", id.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to record delivery", "")
		return
	}
	if !updated {
		h.writeError(w, http.StatusConflict, "invalid_transition",
			"Notification is not in the sent state", "")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"id":     id.String(),
		"status": string(db.StatusDelivered),
	})
}

// TrackOpen handles POST /api/v1/notifications/{id}/open.
func (h *Handler) TrackOpen(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.store.RecordOpen(r.Context(), id); err != nil {
		h.logger.Error("failed to record open", zap.Error(err), zap.String("id", id.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to record open", "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TrackClick handles POST /api/v1/notifications/{id}/click.
func (h *Handler) TrackClick(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.store.RecordClick(r.Context(), id); err != nil {
		h.logger.Error("failed to record click", zap.Error(err), zap.String("id", id.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to record click", "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListInbox handles GET /api/v1/inbox?user_id=xxx&unread_only=true&limit=20&skip=0.
func (h *Handler) ListInbox(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing user_id", "user_id query parameter is required")
		return
	}

	q := db.InboxQuery{
		UserID:     userID,
		UserType:   db.UserType(r.URL.Query().Get("user_type")),
		UnreadOnly: r.URL.Query().Get("unread_only") == "true",
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil {
			q.Limit = l
		}
	}
	if skipStr := r.URL.Query().Get("skip"); skipStr != "" {
		if s, err := strconv.Atoi(skipStr); err == nil {
			q.Skip = s
		}
	}

	notifications, err := h.inbox.List(r.Context(), q)
	if err != nil {
		h.logger.Error("failed to list inbox", zap.Error(err), zap.String("user_id", userID))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list inbox", "")
		return
	}
	if notifications == nil {
		notifications = []*db.Notification{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":  notifications,
		"count": len(notifications),
	})
}

// UnreadCount handles GET /api/v1/inbox/unread-count?user_id=xxx.
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing user_id", "user_id query parameter is required")
		return
	}

	count, err := h.inbox.UnreadCount(r.Context(), userID, db.UserType(r.URL.Query().Get("user_type")))
	if err != nil {
		h.logger.Error("failed to count unread", zap.Error(err), zap.String("user_id", userID))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to count unread notifications", "")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]int{"unread": count})
}

// MarkRead handles POST /api/v1/inbox/{id}/read.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing user_id", "user_id query parameter is required")
		return
	}

	marked, err := h.inbox.MarkRead(r.Context(), id, userID)
	if err != nil {
		h.logger.Error("failed to mark read", zap.Error(err), zap.String("id", id.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to mark notification read", "")
		return
	}
	if !marked {
		h.writeError(w, http.StatusNotFound, "not_found", "Notification not found", "")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"id":     id.String(),
		"status": string(db.StatusRead),
	})
}

// MarkAllRead handles POST /api/v1/inbox/read-all?user_id=xxx.
func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing user_id", "user_id query parameter is required")
		return
	}

	count, err := h.inbox.MarkAllRead(r.Context(), userID, db.UserType(r.URL.Query().Get("user_type")))
	if err != nil {
		h.logger.Error("failed to mark all read", zap.Error(err), zap.String("user_id", userID))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to mark notifications read", "")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]int64{"marked": count})
}

// DeleteInboxItem handles DELETE /api/v1/inbox/{id}?user_id=xxx.
func (h *Handler) DeleteInboxItem(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing user_id", "user_id query parameter is required")
		return
	}

	deleted, err := h.inbox.Delete(r.Context(), id, userID)
	if err != nil {
		h.logger.Error("failed to delete notification", zap.Error(err), zap.String("id", id.String()))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to delete notification", "")
		return
	}
	if !deleted {
		h.writeError(w, http.StatusNotFound, "not_found", "Notification not found", "")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetPreferences handles GET /api/v1/preferences/{user_id}.
// A user who never saved preferences gets the defaults back.
func (h *Handler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing user_id", "")
		return
	}

	prefs, err := h.prefs.GetPreferences(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to get preferences", zap.Error(err), zap.String("user_id", userID))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to get preferences", "")
		return
	}
	if prefs == nil {
		prefs = db.DefaultPreferences(userID)
	}

	h.writeJSON(w, http.StatusOK, prefs)
}

// UpdatePreferences handles PUT /api/v1/preferences/{user_id}.
func (h *Handler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	if userID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing user_id", "")
		return
	}

	var prefs db.Preferences
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}
	prefs.UserID = userID

	if err := h.prefs.UpsertPreferences(r.Context(), &prefs); err != nil {
		h.logger.Error("failed to save preferences", zap.Error(err), zap.String("user_id", userID))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to save preferences", "")
		return
	}

	h.logger.Info("preferences updated", zap.String("user_id", userID))
	h.writeJSON(w, http.StatusOK, &prefs)
}

// ListTemplates handles GET /api/v1/templates. Pass active_only=true
// to hide retired templates.
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active_only") == "true"

	templates, err := h.templates.List(r.Context(), activeOnly)
	if err != nil {
		h.logger.Error("failed to list templates", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to list templates", "")
		return
	}
	if templates == nil {
		templates = []*db.Template{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"templates": templates,
		"count":     len(templates),
	})
}

// UpsertTemplate handles PUT /api/v1/templates/{name}. The path name
// is authoritative; a differing name in the body is overwritten.
func (h *Handler) UpsertTemplate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing template name", "")
		return
	}

	var tmpl db.Template
	if err := json.NewDecoder(r.Body).Decode(&tmpl); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}
	tmpl.Name = name
	if tmpl.ID == uuid.Nil {
		tmpl.ID = uuid.New()
	}

	if err := h.templates.Upsert(r.Context(), &tmpl); err != nil {
		h.logger.Error("failed to save template", zap.Error(err), zap.String("template_name", name))
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to save template", "")
		return
	}

	h.writeJSON(w, http.StatusOK, &tmpl)
}

// ListCircuitBreakers handles GET /api/v1/admin/circuit-breakers.
func (h *Handler) ListCircuitBreakers(w http.ResponseWriter, r *http.Request) {
	stats := h.breakers.AllStats()
	if stats == nil {
		stats = []circuitbreaker.Stats{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"breakers": stats,
		"count":    len(stats),
	})
}

// ResetCircuitBreaker handles POST /api/v1/admin/circuit-breakers/{provider}/reset.
// Operator override to put a provider back in rotation after an incident.
func (h *Handler) ResetCircuitBreaker(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	cb, ok := h.breakers.Lookup(provider)
	if !ok {
		h.writeError(w, http.StatusNotFound, "not_found", "Unknown provider", "No circuit breaker registered for this provider")
		return
	}

	cb.Reset()
	h.logger.Info("circuit breaker reset via admin API", zap.String("provider", provider))
	h.writeJSON(w, http.StatusOK, cb.Stats())
}

// checkIdempotency replays a cached response when the key was seen
// before. Returns true when the response has been written.
func (h *Handler) checkIdempotency(ctx context.Context, w http.ResponseWriter, key string) bool {
	if key == "" || h.idempotency == nil {
		return false
	}

	cached, err := h.idempotency.CheckOrReserve(ctx, key)
	if err != nil {
		if errors.Is(err, redis.ErrDuplicateRequest) {
			h.writeError(w, http.StatusConflict, "duplicate_request",
				"Request is already being processed",
				"Another request with this idempotency key is in progress")
			return true
		}
		h.logger.Warn("idempotency check failed, proceeding",
			zap.Error(err),
			zap.String("idempotency_key", key),
		)
		return false
	}
	if cached != nil {
		metrics.RecordIdempotencyHit()
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Idempotency-Replayed", "true")
		w.WriteHeader(cached.StatusCode)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": cached.NotificationID})
		return true
	}
	return false
}

func (h *Handler) storeIdempotency(ctx context.Context, key string, id uuid.UUID, status int) {
	if key == "" || h.idempotency == nil {
		return
	}
	result := &redis.IdempotencyResult{
		NotificationID: id.String(),
		StatusCode:     status,
	}
	if err := h.idempotency.Store(ctx, key, result); err != nil {
		h.logger.Warn("failed to store idempotency result",
			zap.Error(err),
			zap.String("idempotency_key", key),
		)
	}
}

func (h *Handler) writeSendError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, notify.ErrNoChannels),
		errors.Is(err, notify.ErrInvalidChannel),
		errors.Is(err, notify.ErrMissingContent):
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid notification", err.Error())
	case errors.Is(err, notify.ErrTemplateNotFound):
		h.writeError(w, http.StatusNotFound, "template_not_found", "Template not found", err.Error())
	default:
		h.logger.Error("send failed", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "send_error", "Failed to send notification", "")
	}
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid notification ID", "ID must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	writeProblem(w, status, errType, title, detail)
}

func writeProblem(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
