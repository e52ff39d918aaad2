package handler

import (
	"net/http"
	"time"

	"auth-notify-service/internal/messaging"
	"auth-notify-service/internal/models"
	"auth-notify-service/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type whatsAppSendView struct {
	MessageID string         `json:"messageId"`
	Status    string         `json:"status,omitempty"`
	Raw       map[string]any `json:"raw,omitempty"`
}

type whatsAppMessageView struct {
	MessageID *string   `json:"messageId"`
	Status    string    `json:"status"`
	To        string    `json:"to"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func newWhatsAppMessageView(m *models.WhatsAppMessage) whatsAppMessageView {
	return whatsAppMessageView{
		MessageID: m.MessageID,
		Status:    m.Status,
		To:        m.ToNumber,
		Message:   m.Message,
		CreatedAt: m.CreatedAt,
	}
}

// WhatsAppHandler handles WhatsApp messaging requests
type WhatsAppHandler struct {
	responder
	whatsapp *service.WhatsAppService
}

func NewWhatsAppHandler(whatsapp *service.WhatsAppService, logger *zap.Logger) *WhatsAppHandler {
	return &WhatsAppHandler{
		responder: responder{logger: logger},
		whatsapp:  whatsapp,
	}
}

func (h *WhatsAppHandler) RegisterRoutes(router chi.Router, requireAuth func(http.Handler) http.Handler) {
	router.Route("/whatsapp", func(r chi.Router) {
		r.Use(requireAuth)
		r.Post("/send", h.Send)
		r.Post("/send-template", h.SendTemplate)
		r.Post("/events", h.SendEvent)
		r.Get("/status/{messageID}", h.Status)
		r.Get("/messages", h.List)
	})
}

// Send delivers a message and waits for the provider
// @Router /whatsapp/send [post]
func (h *WhatsAppHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req service.SendWhatsAppRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.whatsapp.Send(r.Context(), &req)
	h.respondWithResult(w, result, err)
}

// SendTemplate sends a template message with a text fallback
// @Router /whatsapp/send-template [post]
func (h *WhatsAppHandler) SendTemplate(w http.ResponseWriter, r *http.Request) {
	var req service.SendTemplateRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.whatsapp.SendTemplate(r.Context(), &req)
	h.respondWithResult(w, result, err)
}

func (h *WhatsAppHandler) respondWithResult(w http.ResponseWriter, result *messaging.Result, err error) {
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to send WhatsApp message")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(whatsAppSendView{
		MessageID: result.MessageID,
		Status:    result.ProviderStatus,
		Raw:       result.Raw,
	}, "Message sent"))
}

// SendEvent renders a client event and queues it
// @Router /whatsapp/events [post]
func (h *WhatsAppHandler) SendEvent(w http.ResponseWriter, r *http.Request) {
	var req service.WhatsAppEventRequest
	if !h.decode(w, r, &req) {
		return
	}

	resp, err := h.whatsapp.SendEvent(r.Context(), &req)
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to send WhatsApp event")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(resp, "Message accepted"))
}

// Status looks a message up by its provider id
// @Router /whatsapp/status/{messageID} [get]
func (h *WhatsAppHandler) Status(w http.ResponseWriter, r *http.Request) {
	m, err := h.whatsapp.Status(r.Context(), chi.URLParam(r, "messageID"))
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to get message")
		return
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(newWhatsAppMessageView(m), ""))
}

// List returns the message log, newest first
// @Router /whatsapp/messages [get]
func (h *WhatsAppHandler) List(w http.ResponseWriter, r *http.Request) {
	skip, limit, err := parsePage(r)
	if err != nil {
		h.respondWithServiceError(w, err, "Invalid pagination")
		return
	}

	rows, err := h.whatsapp.List(r.Context(), skip, limit)
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to list messages")
		return
	}

	views := make([]whatsAppMessageView, len(rows))
	for i := range rows {
		views[i] = newWhatsAppMessageView(&rows[i])
	}
	response := successResponse(views, "")
	response.Meta = &Meta{Skip: skip, Limit: limit, Count: len(views)}
	h.respondWithJSON(w, http.StatusOK, response)
}
