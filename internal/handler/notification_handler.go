package handler

import (
	"net/http"
	"time"

	"auth-notify-service/internal/models"
	"auth-notify-service/internal/service"
	"auth-notify-service/internal/util"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type notificationView struct {
	ID             uint      `json:"id"`
	UserID         uint      `json:"userId"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	Status         string    `json:"status"`
	NotificationID *string   `json:"notificationId"`
	CreatedAt      time.Time `json:"createdAt"`
}

func newNotificationView(n *models.Notification) notificationView {
	return notificationView{
		ID:             n.ID,
		UserID:         n.UserID,
		Title:          n.Title,
		Message:        n.Message,
		Status:         n.Status,
		NotificationID: n.NotificationID,
		CreatedAt:      n.CreatedAt,
	}
}

// NotificationHandler handles push notification requests
type NotificationHandler struct {
	responder
	notifications *service.NotificationService
}

func NewNotificationHandler(notifications *service.NotificationService, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		responder:     responder{logger: logger},
		notifications: notifications,
	}
}

func (h *NotificationHandler) RegisterRoutes(router chi.Router, requireAuth func(http.Handler) http.Handler) {
	router.Route("/notifications", func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/register-device", h.RegisterDevice)
		r.Post("/send", h.Send)
		r.Post("/events", h.SendEvent)
		r.Get("/status/{notificationID}", h.Status)
		r.Get("/user/{userID}", h.ListForUser)
	})
}

// RegisterDevice stores a push token for the caller or the given user
// @Router /notifications/register-device [post]
func (h *NotificationHandler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterDeviceRequest
	if !h.decode(w, r, &req) {
		return
	}

	callerID, _ := UserIDFromContext(r.Context())
	device, err := h.notifications.RegisterDevice(r.Context(), callerID, &req)
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to register device")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(map[string]interface{}{
		"deviceId": device.ID,
	}, "Device registered"))
}

// Send records a pending notification and queues its delivery
// @Router /notifications/send [post]
func (h *NotificationHandler) Send(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	var req service.SendNotificationRequest
	if !h.decode(w, r, &req) {
		return
	}

	resp, err := h.notifications.Send(r.Context(), &req)
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to send notification")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(resp, "Notification accepted"))
	h.logger.Debug("Notification accepted via HTTP",
		util.Uint("notification_id", resp.NotificationID),
		util.String("task_id", resp.TaskID),
		util.Duration("duration", time.Since(startTime)),
	)
}

// SendEvent maps a business event to a notification and sends it
// @Router /notifications/events [post]
func (h *NotificationHandler) SendEvent(w http.ResponseWriter, r *http.Request) {
	var req service.NotificationEventRequest
	if !h.decode(w, r, &req) {
		return
	}

	resp, err := h.notifications.SendEvent(r.Context(), &req)
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to send event notification")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(resp, "Notification accepted"))
}

// Status returns one notification row
// @Router /notifications/status/{notificationID} [get]
func (h *NotificationHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "notificationID"))
	if err != nil {
		h.respondWithServiceError(w, err, "Invalid notification ID")
		return
	}

	n, err := h.notifications.Status(r.Context(), id)
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to get notification")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(newNotificationView(n), ""))
}

// ListForUser returns a user's notification log, newest first
// @Router /notifications/user/{userID} [get]
func (h *NotificationHandler) ListForUser(w http.ResponseWriter, r *http.Request) {
	userID, err := parseID(chi.URLParam(r, "userID"))
	if err != nil {
		h.respondWithServiceError(w, err, "Invalid user ID")
		return
	}
	skip, limit, err := parsePage(r)
	if err != nil {
		h.respondWithServiceError(w, err, "Invalid pagination")
		return
	}

	rows, err := h.notifications.ListForUser(r.Context(), userID, skip, limit)
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to list notifications")
		return
	}

	views := make([]notificationView, len(rows))
	for i := range rows {
		views[i] = newNotificationView(&rows[i])
	}
	response := successResponse(views, "")
	response.Meta = &Meta{Skip: skip, Limit: limit, Count: len(views)}
	h.respondWithJSON(w, http.StatusOK, response)
}
