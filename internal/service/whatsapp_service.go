package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auth-notify-service/internal/messaging"
	"auth-notify-service/internal/models"
	"auth-notify-service/internal/queue"
	"auth-notify-service/internal/repository/relational"
	"auth-notify-service/internal/util"

	"go.uber.org/zap"
)

var (
	ErrMessageNotFound = errors.New("message not found")
	ErrDeliveryFailed  = errors.New("send failed")
)

type SendWhatsAppRequest struct {
	To         string `json:"to" validate:"required,max=32"`
	Message    string `json:"message"`
	TemplateID string `json:"templateId" validate:"omitempty,max=255"`
	MediaURL   string `json:"mediaUrl" validate:"omitempty,url"`
}

type SendTemplateRequest struct {
	To         string `json:"to" validate:"required,max=32"`
	TemplateID string `json:"templateId" validate:"required,max=255"`
	Parameters []any  `json:"parameters"`
}

type WhatsAppEventRequest struct {
	MessageType string         `json:"messageType" validate:"required,max=64"`
	Data        map[string]any `json:"data"`
}

type WhatsAppEventResponse struct {
	Queued bool   `json:"queued"`
	TaskID string `json:"taskId,omitempty"`
}

// WhatsAppService sends WhatsApp messages synchronously for direct API calls
// and through the task queue for events.
type WhatsAppService struct {
	store      *relational.Store
	dispatcher *messaging.Dispatcher
	queue      queue.Enqueuer
	rateWindow time.Duration
	logger     *zap.Logger
}

func NewWhatsAppService(store *relational.Store, dispatcher *messaging.Dispatcher, enqueuer queue.Enqueuer, rateWindow time.Duration, logger *zap.Logger) *WhatsAppService {
	if enqueuer == nil {
		enqueuer = queue.Unavailable{}
	}
	if rateWindow <= 0 {
		rateWindow = time.Second
	}
	return &WhatsAppService{
		store:      store,
		dispatcher: dispatcher,
		queue:      enqueuer,
		rateWindow: rateWindow,
		logger:     logger.Named("whatsapp"),
	}
}

// Send delivers one message and waits for the outcome. A failed delivery is
// returned together with ErrDeliveryFailed.
func (s *WhatsAppService) Send(ctx context.Context, req *SendWhatsAppRequest) (*messaging.Result, error) {
	return s.send(ctx, messaging.Message{
		To:         req.To,
		Text:       req.Message,
		TemplateID: req.TemplateID,
		MediaURL:   req.MediaURL,
	})
}

// SendTemplate sends a template message with its parameters joined as the
// fallback text.
func (s *WhatsAppService) SendTemplate(ctx context.Context, req *SendTemplateRequest) (*messaging.Result, error) {
	if req.TemplateID == "" {
		return nil, fmt.Errorf("%w: 'to' and 'templateId' are required", ErrInvalidInput)
	}
	return s.send(ctx, messaging.Message{
		To:         req.To,
		Text:       messaging.TemplateFallback(req.Parameters),
		TemplateID: req.TemplateID,
	})
}

func (s *WhatsAppService) send(ctx context.Context, msg messaging.Message) (*messaging.Result, error) {
	result, err := s.dispatcher.Send(ctx, msg)
	if err != nil {
		if errors.Is(err, messaging.ErrInvalidMessage) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return nil, err
	}
	if !result.Success {
		return result, fmt.Errorf("%w: %s", ErrDeliveryFailed, result.Error)
	}
	return result, nil
}

// SendEvent renders a client event and queues it, sending in-process when
// the queue is unavailable.
func (s *WhatsAppService) SendEvent(ctx context.Context, req *WhatsAppEventRequest) (*WhatsAppEventResponse, error) {
	msg, err := messaging.EventMessage(req.MessageType, req.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	handle, err := s.queue.Enqueue(ctx, queue.TaskSendWhatsAppMessage, msg.To, msg)
	if err == nil {
		return &WhatsAppEventResponse{Queued: true, TaskID: handle.TaskID}, nil
	}

	s.logger.Warn("enqueue failed, sending in-process",
		zap.String("message_type", req.MessageType),
		zap.Error(err))
	s.fallback(ctx, msg)
	return &WhatsAppEventResponse{Queued: false}, nil
}

func (s *WhatsAppService) fallback(ctx context.Context, msg messaging.Message) {
	logger := s.logger.With(zap.String("to", util.MaskPhone(msg.To)))
	result, err := s.dispatcher.Send(ctx, msg)
	switch {
	case err != nil:
		logger.Warn("in-process whatsapp send rejected", zap.Error(err))
	case result.Success:
		logger.Info("in-process whatsapp send finished",
			zap.String("message_id", result.MessageID),
			zap.Int("attempts", result.Attempts))
	default:
		logger.Warn("in-process whatsapp send failed",
			zap.String("reason", result.Error),
			zap.Int("attempts", result.Attempts))
	}
}

func (s *WhatsAppService) Status(ctx context.Context, messageID string) (*models.WhatsAppMessage, error) {
	m, err := s.store.Messages.GetByMessageID(ctx, messageID)
	if err != nil {
		if errors.Is(err, relational.ErrNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, fmt.Errorf("failed to load message: %w", err)
	}
	return m, nil
}

func (s *WhatsAppService) List(ctx context.Context, skip, limit int) ([]models.WhatsAppMessage, error) {
	return s.store.Messages.List(ctx, skip, limit)
}

// HandleWhatsAppTask is the worker handler for send_whatsapp_message. A
// rate-limited task waits one window and tries once more.
func (s *WhatsAppService) HandleWhatsAppTask(ctx context.Context, task *queue.Task) (any, error) {
	var msg messaging.Message
	if err := task.Decode(&msg); err != nil {
		return nil, err
	}

	var result *messaging.Result
	err := s.store.WithConnection(ctx, func(conn *relational.Store) error {
		dispatcher := s.dispatcher.WithLog(conn.Messages)

		var err error
		result, err = dispatcher.Send(ctx, msg)
		if !errors.Is(err, messaging.ErrRateLimited) {
			return err
		}

		timer := time.NewTimer(s.rateWindow)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return err
		case <-timer.C:
		}
		result, err = dispatcher.Send(ctx, msg)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
