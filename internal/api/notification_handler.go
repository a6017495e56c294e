package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prudhvinik1/trackerlive/internal/models"
	"github.com/prudhvinik1/trackerlive/internal/services"
)

type NotificationHandler struct {
	service *services.NotificationService
	logger  *slog.Logger
}

func NewNotificationHandler(service *services.NotificationService, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{service: service, logger: logger}
}

func (h *NotificationHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/unread-count", h.unreadCount)
	r.Post("/read-all", h.markAllRead)
	r.Post("/{id}/read", h.markRead)
	r.Post("/{id}/snooze", h.snooze)
	r.Delete("/{id}", h.delete)
	return r
}

type createNotificationRequest struct {
	UserID    string                  `json:"user_id"`
	Type      models.NotificationType `json:"type"`
	Title     string                  `json:"title"`
	Message   string                  `json:"message"`
	IssueID   *string                 `json:"issue_id"`
	IssueKey  *string                 `json:"issue_key"`
	ProjectID *string                 `json:"project_id"`
	ActionURL *string                 `json:"action_url"`
	ActorName *string                 `json:"actor_name"`

	// UserIDs fans the notification out to several recipients.
	UserIDs []string `json:"user_ids"`
}

type snoozeRequest struct {
	Minutes int `json:"minutes"`
}

func (h *NotificationHandler) list(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFrom(r.Context())
	query := r.URL.Query()

	notifications, err := h.service.List(r.Context(), models.NotificationFilter{
		UserID:         userID,
		UnreadOnly:     parseBool(query.Get("unread")),
		IncludeSnoozed: parseBool(query.Get("include_snoozed")),
		Limit:          parseBoundedInt(query.Get("limit"), 50, 1, 100),
		Offset:         parseBoundedInt(query.Get("offset"), 0, 0, 1<<20),
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": notifications})
}

func (h *NotificationHandler) create(w http.ResponseWriter, r *http.Request) {
	actorID, _ := UserIDFrom(r.Context())

	var req createNotificationRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	data := models.NotificationData{
		UserID:    req.UserID,
		Type:      req.Type,
		Title:     req.Title,
		Message:   req.Message,
		IssueID:   req.IssueID,
		IssueKey:  req.IssueKey,
		ProjectID: req.ProjectID,
		ActionURL: req.ActionURL,
		ActorID:   &actorID,
		ActorName: req.ActorName,
	}

	if len(req.UserIDs) > 0 {
		created, err := h.service.CreateMany(r.Context(), req.UserIDs, data)
		if err != nil && len(created) == 0 {
			writeServiceError(w, h.logger, err)
			return
		}
		if err != nil {
			h.logger.Warn("broadcast_partially_failed", "created", len(created), "requested", len(req.UserIDs), "error", err)
		}
		writeJSON(w, http.StatusCreated, map[string]any{"notifications": created})
		return
	}

	notification, err := h.service.Create(r.Context(), data)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, notification)
}

func (h *NotificationHandler) unreadCount(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFrom(r.Context())

	count, err := h.service.UnreadCount(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, models.UnreadCount{Count: count})
}

func (h *NotificationHandler) markRead(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFrom(r.Context())
	id, ok := notificationID(w, r)
	if !ok {
		return
	}

	if err := h.service.MarkRead(r.Context(), userID, id); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) markAllRead(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFrom(r.Context())

	updated, err := h.service.MarkAllRead(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": updated})
}

func (h *NotificationHandler) snooze(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFrom(r.Context())
	id, ok := notificationID(w, r)
	if !ok {
		return
	}
	var req snoozeRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	until, err := h.service.Snooze(r.Context(), userID, id, req.Minutes)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]time.Time{"snoozed_until": until})
}

func (h *NotificationHandler) delete(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFrom(r.Context())
	id, ok := notificationID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, id); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func notificationID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid notification id")
		return uuid.Nil, false
	}
	return id, true
}
