package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/pitchside/internal/job"
	"github.com/lalithlochan/pitchside/internal/scheduler"
	"github.com/lalithlochan/pitchside/internal/watchdog"
)

// SchedulerService is the slice of the scheduler the API needs.
type SchedulerService interface {
	ScheduleNotification(ctx context.Context, n *job.Notification) error
	GetPendingNotifications(ctx context.Context) ([]*job.Notification, error)
	ClearOldNotifications(ctx context.Context, retentionDays int) (int, error)
	GetStatus(ctx context.Context) scheduler.Status
}

// WatchdogService exposes supervision state to the API.
type WatchdogService interface {
	Health() watchdog.Health
}

// ScheduleRequest is the incoming request body for POST /v1/notifications.
type ScheduleRequest struct {
	UserID       string            `json:"user_id"`
	Type         string            `json:"type"`
	Channel      string            `json:"channel"`
	Title        string            `json:"title"`
	Body         string            `json:"body"`
	Data         map[string]string `json:"data,omitempty"`
	ScheduledFor time.Time         `json:"scheduled_for"`
	Timezone     string            `json:"timezone"`
}

// ScheduleResponse is returned after scheduling a notification.
type ScheduleResponse struct {
	ID           string    `json:"id"`
	Status       string    `json:"status"`
	ScheduledFor time.Time `json:"scheduled_for"`
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
	logger    *zap.Logger
	scheduler SchedulerService
	watchdog  WatchdogService // nil if supervision not configured
}

// NewHandler creates a new API handler. watchdog may be nil when the
// prediction service is not supervised.
func NewHandler(logger *zap.Logger, sched SchedulerService, wd WatchdogService) *Handler {
	return &Handler{
		logger:    logger,
		scheduler: sched,
		watchdog:  wd,
	}
}

var validTypes = map[string]job.Type{
	string(job.TypeDailyDigest):      job.TypeDailyDigest,
	string(job.TypeMatchAlert):       job.TypeMatchAlert,
	string(job.TypePredictionResult): job.TypePredictionResult,
	string(job.TypeValueAlert):       job.TypeValueAlert,
	string(job.TypeGeneric):          job.TypeGeneric,
}

var validChannels = map[string]bool{
	job.ChannelPush:    true,
	job.ChannelEmail:   true,
	job.ChannelWebhook: true,
	job.ChannelQueue:   true,
}

// ScheduleNotification handles POST /v1/notifications
func (h *Handler) ScheduleNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body", err.Error())
		return
	}

	if req.UserID == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing required fields", "user_id is required")
		return
	}
	if req.ScheduledFor.IsZero() {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Missing required fields", "scheduled_for is required")
		return
	}

	if req.Type == "" {
		req.Type = string(job.TypeGeneric)
	}
	jobType, ok := validTypes[req.Type]
	if !ok {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid type",
			"type must be daily_digest, match_alert, prediction_result, value_alert, or generic")
		return
	}

	if req.Channel == "" {
		req.Channel = job.ChannelPush
	}
	if !validChannels[req.Channel] {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid channel",
			"channel must be push, email, webhook, or queue")
		return
	}

	if req.Timezone == "" {
		req.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(req.Timezone); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid timezone",
			"timezone must be a valid IANA name")
		return
	}

	n := job.New(req.UserID, jobType, req.ScheduledFor, req.Timezone, job.Payload{
		Channel: req.Channel,
		Title:   req.Title,
		Body:    req.Body,
		Data:    req.Data,
	})

	if err := h.scheduler.ScheduleNotification(ctx, n); err != nil {
		h.logger.Error("failed to schedule notification", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "schedule_error", "Failed to schedule notification", "")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(ScheduleResponse{
		ID:           n.ID.String(),
		Status:       string(n.Status),
		ScheduledFor: n.ScheduledFor,
	})
}

// ListPendingNotifications handles GET /v1/notifications/pending
func (h *Handler) ListPendingNotifications(w http.ResponseWriter, r *http.Request) {
	pending, err := h.scheduler.GetPendingNotifications(r.Context())
	if err != nil {
		h.logger.Error("failed to list pending notifications", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "store_error", "Failed to list pending notifications", "")
		return
	}

	if pending == nil {
		pending = []*job.Notification{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"notifications": pending,
		"count":         len(pending),
	})
}

// SchedulerStatus handles GET /v1/scheduler/status
func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	status := h.scheduler.GetStatus(r.Context())

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(status)
}

// WatchdogHealth handles GET /v1/watchdog/health
func (h *Handler) WatchdogHealth(w http.ResponseWriter, r *http.Request) {
	if h.watchdog == nil {
		h.writeError(w, http.StatusNotFound, "not_configured", "Watchdog not configured", "")
		return
	}

	health := h.watchdog.Health()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(health)
}

// PruneNotifications handles POST /v1/maintenance/prune
// The retention horizon comes from the optional retention_days query
// parameter; the server default applies otherwise.
func (h *Handler) PruneNotifications(w http.ResponseWriter, r *http.Request) {
	retentionDays := 7
	if raw := r.URL.Query().Get("retention_days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.writeError(w, http.StatusBadRequest, "invalid_request", "Invalid retention_days",
				"retention_days must be a positive integer")
			return
		}
		retentionDays = parsed
	}

	removed, err := h.scheduler.ClearOldNotifications(r.Context(), retentionDays)
	if err != nil {
		h.logger.Error("failed to prune notifications", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "store_error", "Failed to prune notifications", "")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]int{
		"removed": removed,
	})
}

func (h *Handler) writeError(w http.ResponseWriter, status int, errType, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(ErrorResponse{
		Type:   errType,
		Title:  title,
		Status: status,
		Detail: detail,
	})
}
