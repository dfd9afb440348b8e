package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thegoodtimes/pulse/internal/db"
	"github.com/thegoodtimes/pulse/internal/names"
	"github.com/thegoodtimes/pulse/internal/notify"
	"github.com/thegoodtimes/pulse/internal/redis"
)

// Notifier computes the notification list, the badge count and the
// checked/cleared stamps.
type Notifier interface {
	Notifications(ctx context.Context, userID uuid.UUID) ([]notify.Event, error)
	Badge(ctx context.Context, userID uuid.UUID) (int, error)
	MarkChecked(ctx context.Context, userID uuid.UUID) error
	ClearAll(ctx context.Context, userID uuid.UUID) error
}

// RefreshEnqueuer hands a badge refresh request to the worker (SQS or
// in-process).
type RefreshEnqueuer interface {
	EnqueueRefresh(ctx context.Context, userID uuid.UUID, reason string) (string, error)
}

// VisitRecorder stamps visit timestamps.
type VisitRecorder interface {
	MarkVisited(ctx context.Context, userID uuid.UUID, kind redis.VisitKind, key string, at time.Time) error
}

// PromptStore is the query slice behind the personalized prompt endpoint
// and the birthday card publish flow.
type PromptStore interface {
	DailyPromptForDate(ctx context.Context, groupID uuid.UUID, date string) (*db.DailyPrompt, error)
	GroupByID(ctx context.Context, groupID uuid.UUID) (*db.Group, error)
	UserByID(ctx context.Context, userID uuid.UUID) (*db.User, error)
	BirthdayCardByID(ctx context.Context, cardID uuid.UUID) (*db.BirthdayCard, error)
	PublishBirthdayCard(ctx context.Context, cardID uuid.UUID) (bool, error)
}

// NameResolver resolves a prompt variable to a concrete name.
type NameResolver interface {
	Resolve(ctx context.Context, promptID uuid.UUID, date time.Time, groupID uuid.UUID, variableType string) (string, bool, error)
}

// Emailer sends the birthday-card-ready email.
type Emailer interface {
	SendBirthdayCardReady(ctx context.Context, to, birthdayUserName, groupName string) error
}

// ErrorResponse represents an error in problem+json format
type ErrorResponse struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Handler holds dependencies for API handlers
type Handler struct {
	logger   *zap.Logger
	notifier Notifier
	visits   VisitRecorder
	enqueuer RefreshEnqueuer // nil disables async refresh
	store    PromptStore
	resolver NameResolver
	emailer  Emailer // nil disables email
	clock    notify.Clock
}

// NewHandler creates a new API handler
func NewHandler(logger *zap.Logger, notifier Notifier, visits VisitRecorder, enqueuer RefreshEnqueuer, store PromptStore, resolver NameResolver, emailer Emailer, clock notify.Clock) *Handler {
	if clock == nil {
		clock = notify.SystemClock
	}
	return &Handler{
		logger:   logger,
		notifier: notifier,
		visits:   visits,
		enqueuer: enqueuer,
		store:    store,
		resolver: resolver,
		emailer:  emailer,
		clock:    clock,
	}
}

// userIDParam parses the required user_id query parameter.
func (h *Handler) userIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	idStr := r.URL.Query().Get("user_id")
	if idStr == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing user_id", "user_id query parameter is required")
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(idStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid user_id", "user_id must be a valid UUID")
		return uuid.Nil, false
	}
	return userID, true
}

// ListNotifications handles GET /v1/notifications?user_id=xxx
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := h.userIDParam(w, r)
	if !ok {
		return
	}

	events, err := h.notifier.Notifications(ctx, userID)
	if err != nil {
		h.logger.Error("failed to compute notifications",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "aggregation_error", "Failed to compute notifications", "")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"data":  events,
		"count": len(events),
	})
}

// GetBadge handles GET /v1/badge?user_id=xxx
func (h *Handler) GetBadge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := h.userIDParam(w, r)
	if !ok {
		return
	}

	count, err := h.notifier.Badge(ctx, userID)
	if err != nil {
		h.logger.Error("failed to compute badge",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		h.writeError(w, http.StatusInternalServerError, "aggregation_error", "Failed to compute badge", "")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]int{"badge": count})
}

// RefreshBadge handles POST /v1/badge/refresh
func (h *Handler) RefreshBadge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		UserID string `json:"user_id"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid user_id", "user_id must be a valid UUID")
		return
	}

	if h.enqueuer == nil {
		h.writeError(w, http.StatusServiceUnavailable, "refresh_unavailable", "Badge refresh is not configured", "")
		return
	}

	msgID, err := h.enqueuer.EnqueueRefresh(ctx, userID, req.Reason)
	if err != nil {
		h.logger.Error("failed to enqueue badge refresh",
			zap.Error(err),
			zap.String("user_id", req.UserID),
		)
		h.writeError(w, http.StatusInternalServerError, "enqueue_error", "Failed to enqueue badge refresh", "")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":     "queued",
		"message_id": msgID,
	})
}

// RecordVisit handles POST /v1/visits
func (h *Handler) RecordVisit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		UserID    string `json:"user_id"`
		Kind      string `json:"kind"`
		Key       string `json:"key"`
		VisitedAt string `json:"visited_at,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid user_id", "user_id must be a valid UUID")
		return
	}

	kind, err := redis.ParseVisitKind(req.Kind)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid kind",
			"kind must be one of: entry, group, question, deck, birthdayCard, customQuestion")
		return
	}

	if req.Key == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing key", "key is required")
		return
	}

	// Last write wins; a stale client timestamp is accepted as-is.
	at := h.clock.Now()
	if req.VisitedAt != "" {
		parsed, err := time.Parse(time.RFC3339Nano, req.VisitedAt)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid visited_at", "visited_at must be RFC 3339")
			return
		}
		at = parsed
	}

	if err := h.visits.MarkVisited(ctx, userID, kind, req.Key, at); err != nil {
		h.logger.Error("failed to record visit",
			zap.Error(err),
			zap.String("user_id", req.UserID),
			zap.String("kind", req.Kind),
		)
		h.writeError(w, http.StatusInternalServerError, "ledger_error", "Failed to record visit", "")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// MarkNotificationsChecked handles POST /v1/notifications/checked
// Clients call it when the notification list opens; it advances the
// global fallback timestamp without touching per-entity visit stamps.
func (h *Handler) MarkNotificationsChecked(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid user_id", "user_id must be a valid UUID")
		return
	}

	if err := h.notifier.MarkChecked(ctx, userID); err != nil {
		h.logger.Error("failed to mark notifications checked",
			zap.Error(err),
			zap.String("user_id", req.UserID),
		)
		h.writeError(w, http.StatusInternalServerError, "ledger_error", "Failed to mark notifications checked", "")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ClearNotifications handles POST /v1/notifications/clear
func (h *Handler) ClearNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid user_id", "user_id must be a valid UUID")
		return
	}

	if err := h.notifier.ClearAll(ctx, userID); err != nil {
		h.logger.Error("failed to clear notifications",
			zap.Error(err),
			zap.String("user_id", req.UserID),
		)
		h.writeError(w, http.StatusInternalServerError, "ledger_error", "Failed to clear notifications", "")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetGroupPrompt handles GET /v1/groups/{groupID}/prompt?user_id=xxx&date=YYYY-MM-DD
// It returns the group's prompt for the date with any name variable
// expanded. A prompt whose variable cannot be resolved is unavailable.
func (h *Handler) GetGroupPrompt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	groupID, err := uuid.Parse(chi.URLParam(r, "groupID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid group ID", "ID must be a valid UUID")
		return
	}

	userID, ok := h.userIDParam(w, r)
	if !ok {
		return
	}

	date := r.URL.Query().Get("date")
	if date == "" {
		date = h.clock.Now().Format(names.DateFormat)
	}
	day, err := time.Parse(names.DateFormat, date)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid date", "date must be YYYY-MM-DD")
		return
	}

	dp, err := h.store.DailyPromptForDate(ctx, groupID, date)
	if err != nil {
		h.logger.Error("failed to load daily prompt",
			zap.Error(err),
			zap.String("group_id", groupID.String()),
			zap.String("date", date),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to load prompt", "")
		return
	}
	if dp == nil || dp.Prompt == nil {
		h.writeError(w, http.StatusNotFound, "not_found", "No prompt for this date", "")
		return
	}
	if dp.UserID != nil && *dp.UserID != userID {
		// User-specific prompt (birthday) aimed at someone else.
		h.writeError(w, http.StatusNotFound, "not_found", "No prompt for this date", "")
		return
	}

	question := dp.Prompt.Question
	for _, variableType := range dp.Prompt.DynamicVariables {
		if !names.HasVariable(question, variableType) {
			continue
		}

		name, found, err := h.resolver.Resolve(ctx, dp.PromptID, day, groupID, variableType)
		if err != nil {
			h.logger.Error("failed to resolve prompt variable",
				zap.Error(err),
				zap.String("prompt_id", dp.PromptID.String()),
				zap.String("variable_type", variableType),
			)
			h.writeError(w, http.StatusInternalServerError, "resolver_error", "Failed to personalize prompt", "")
			return
		}
		if !found {
			// No candidate pool; never render the raw variable token.
			h.writeError(w, http.StatusNotFound, "prompt_unavailable", "Prompt cannot be personalized", "")
			return
		}

		question = names.ExpandPrompt(question, variableType, name)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"prompt_id": dp.PromptID,
		"group_id":  dp.GroupID,
		"date":      dp.Date,
		"question":  question,
		"category":  dp.Prompt.Category,
	})
}

// PublishBirthdayCard handles POST /v1/birthday-cards/{id}/publish
// Publishing closes the card for signing and emails the birthday person.
func (h *Handler) PublishBirthdayCard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	idStr := chi.URLParam(r, "id")
	cardID, err := uuid.Parse(idStr)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid card ID", "ID must be a valid UUID")
		return
	}

	card, err := h.store.BirthdayCardByID(ctx, cardID)
	if err != nil {
		h.logger.Error("failed to load birthday card",
			zap.Error(err),
			zap.String("id", idStr),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to load birthday card", "")
		return
	}
	if card == nil {
		h.writeError(w, http.StatusNotFound, "not_found", "Birthday card not found", "")
		return
	}

	published, err := h.store.PublishBirthdayCard(ctx, cardID)
	if err != nil {
		h.logger.Error("failed to publish birthday card",
			zap.Error(err),
			zap.String("id", idStr),
		)
		h.writeError(w, http.StatusInternalServerError, "database_error", "Failed to publish birthday card", "")
		return
	}
	if !published {
		h.writeError(w, http.StatusConflict, "already_published", "Birthday card is already published", "")
		return
	}

	h.logger.Info("birthday card published",
		zap.String("id", idStr),
		zap.String("birthday_user_id", card.BirthdayUserID.String()),
	)

	// Best effort: a failed email never unwinds the publish.
	h.sendCardReadyEmail(ctx, card)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"id":     idStr,
		"status": "published",
	})
}

func (h *Handler) sendCardReadyEmail(ctx context.Context, card *db.BirthdayCard) {
	if h.emailer == nil {
		return
	}

	user, err := h.store.UserByID(ctx, card.BirthdayUserID)
	if err != nil || user == nil || user.Email == nil {
		h.logger.Warn("skipping card ready email, no recipient",
			zap.Error(err),
			zap.String("birthday_user_id", card.BirthdayUserID.String()),
		)
		return
	}

	groupName := "your group"
	if group, err := h.store.GroupByID(ctx, card.GroupID); err == nil && group != nil {
		groupName = group.Name
	}

	if err := h.emailer.SendBirthdayCardReady(ctx, *user.Email, user.Name, groupName); err != nil {
		h.logger.Error("failed to send card ready email",
			zap.Error(err),
			zap.String("birthday_user_id", card.BirthdayUserID.String()),
		)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
