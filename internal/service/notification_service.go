package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"auth-notify-service/internal/models"
	"auth-notify-service/internal/notification"
	"auth-notify-service/internal/queue"
	"auth-notify-service/internal/repository/relational"

	"go.uber.org/zap"
)

var ErrNotificationNotFound = errors.New("notification not found")

type RegisterDeviceRequest struct {
	UserID      uint   `json:"userId"`
	DeviceToken string `json:"deviceToken" validate:"required,max=512"`
	Platform    string `json:"platform" validate:"omitempty,max=32"`
}

type SendNotificationRequest struct {
	UserID uint           `json:"userId" validate:"required"`
	Title  string         `json:"title" validate:"required,max=255"`
	Body   string         `json:"body" validate:"required"`
	Data   map[string]any `json:"data"`
}

type NotificationEventRequest struct {
	UserID    uint           `json:"userId" validate:"required"`
	EventType string         `json:"eventType" validate:"required,max=64"`
	Data      map[string]any `json:"data"`
}

type SendNotificationResponse struct {
	NotificationID uint   `json:"notificationId"`
	TaskID         string `json:"taskId,omitempty"`
}

// MobileNotificationArgs are the arguments of the send_mobile_notification
// task.
type MobileNotificationArgs struct {
	UserID         uint           `json:"user_id"`
	Title          string         `json:"title"`
	Body           string         `json:"body"`
	Data           map[string]any `json:"data"`
	NotificationID uint           `json:"notification_id,omitempty"`
}

// NotificationService records push requests and hands them to the task
// queue, dispatching in-process when the queue cannot take them.
type NotificationService struct {
	store      *relational.Store
	dispatcher *notification.Dispatcher
	queue      queue.Enqueuer
	logger     *zap.Logger
}

func NewNotificationService(store *relational.Store, dispatcher *notification.Dispatcher, enqueuer queue.Enqueuer, logger *zap.Logger) *NotificationService {
	if enqueuer == nil {
		enqueuer = queue.Unavailable{}
	}
	return &NotificationService{
		store:      store,
		dispatcher: dispatcher,
		queue:      enqueuer,
		logger:     logger.Named("notifications"),
	}
}

// RegisterDevice stores a push token. The owner defaults to callerID.
func (s *NotificationService) RegisterDevice(ctx context.Context, callerID uint, req *RegisterDeviceRequest) (*models.DeviceToken, error) {
	userID := req.UserID
	if userID == 0 {
		userID = callerID
	}
	deviceToken := strings.TrimSpace(req.DeviceToken)
	if userID == 0 || deviceToken == "" {
		return nil, fmt.Errorf("%w: userId and deviceToken required", ErrInvalidInput)
	}

	device := &models.DeviceToken{
		UserID:      userID,
		DeviceToken: deviceToken,
		Platform:    strings.ToLower(strings.TrimSpace(req.Platform)),
	}
	if err := s.store.Devices.Create(ctx, device); err != nil {
		return nil, fmt.Errorf("failed to register device: %w", err)
	}

	s.logger.Info("device registered",
		zap.Uint("user_id", userID),
		zap.Uint("device_id", device.ID),
		zap.String("platform", device.Platform))
	return device, nil
}

// Send creates a pending notification row and queues its delivery.
func (s *NotificationService) Send(ctx context.Context, req *SendNotificationRequest) (*SendNotificationResponse, error) {
	if req.UserID == 0 {
		return nil, fmt.Errorf("%w: userId required", ErrInvalidInput)
	}

	pending := &models.Notification{
		UserID:  req.UserID,
		Title:   req.Title,
		Message: req.Body,
		Status:  models.StatusPending,
	}
	if err := s.store.Notifications.Create(ctx, pending); err != nil {
		return nil, fmt.Errorf("failed to record notification: %w", err)
	}

	data := req.Data
	if data == nil {
		data = map[string]any{}
	}
	args := MobileNotificationArgs{
		UserID:         req.UserID,
		Title:          req.Title,
		Body:           req.Body,
		Data:           data,
		NotificationID: pending.ID,
	}

	resp := &SendNotificationResponse{NotificationID: pending.ID}
	handle, err := s.queue.Enqueue(ctx, queue.TaskSendMobileNotification, strconv.FormatUint(uint64(req.UserID), 10), args)
	if err != nil {
		s.logger.Warn("enqueue failed, dispatching in-process",
			zap.Uint("notification_id", pending.ID),
			zap.Error(err))
		s.fallback(ctx, args)
		return resp, nil
	}

	resp.TaskID = handle.TaskID
	return resp, nil
}

// SendEvent maps a business event to a title and body and sends it.
func (s *NotificationService) SendEvent(ctx context.Context, req *NotificationEventRequest) (*SendNotificationResponse, error) {
	title, body := notification.EventMessage(req.EventType, req.Data)
	return s.Send(ctx, &SendNotificationRequest{
		UserID: req.UserID,
		Title:  title,
		Body:   body,
		Data:   req.Data,
	})
}

func (s *NotificationService) Status(ctx context.Context, id uint) (*models.Notification, error) {
	n, err := s.store.Notifications.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, relational.ErrNotFound) {
			return nil, ErrNotificationNotFound
		}
		return nil, fmt.Errorf("failed to load notification: %w", err)
	}
	return n, nil
}

func (s *NotificationService) ListForUser(ctx context.Context, userID uint, skip, limit int) ([]models.Notification, error) {
	return s.store.Notifications.ListByUser(ctx, userID, skip, limit)
}

// HandleMobileNotificationTask is the worker handler for
// send_mobile_notification. It runs on a dedicated connection.
func (s *NotificationService) HandleMobileNotificationTask(ctx context.Context, task *queue.Task) (any, error) {
	var args MobileNotificationArgs
	if err := task.Decode(&args); err != nil {
		return nil, err
	}
	if args.UserID == 0 {
		return nil, fmt.Errorf("%w: user_id required", queue.ErrInvalidTask)
	}

	var result notification.Result
	err := s.store.WithConnection(ctx, func(conn *relational.Store) error {
		dispatcher := s.dispatcher.WithStore(conn.Devices, conn.Notifications)
		result = s.deliver(ctx, dispatcher, conn.Notifications, args)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return result, nil
}

// fallback runs the delivery synchronously. Its outcome is logged and never
// returned to the caller.
func (s *NotificationService) fallback(ctx context.Context, args MobileNotificationArgs) {
	result := s.deliver(ctx, s.dispatcher, s.store.Notifications, args)

	fields := []zap.Field{
		zap.Uint("user_id", args.UserID),
		zap.Uint("notification_id", args.NotificationID),
		zap.Bool("success", result.Success),
		zap.Int("tokens", len(result.Results)),
	}
	if result.Success {
		s.logger.Info("in-process notification dispatch finished", fields...)
		return
	}
	if result.Error != "" {
		fields = append(fields, zap.String("reason", result.Error))
	}
	s.logger.Warn("in-process notification dispatch failed", fields...)
}

func (s *NotificationService) deliver(ctx context.Context, dispatcher *notification.Dispatcher, log relational.NotificationRepository, args MobileNotificationArgs) notification.Result {
	result := dispatcher.Dispatch(ctx, notification.Request{
		UserID: args.UserID,
		Title:  args.Title,
		Body:   args.Body,
		Data:   args.Data,
	})
	if args.NotificationID == 0 {
		return result
	}

	status := models.StatusFailed
	if result.Success {
		status = models.StatusSent
	}
	var providerID *string
	if id := result.FirstMessageID(); id != "" {
		providerID = &id
	}
	if err := log.UpdateOutcome(context.WithoutCancel(ctx), args.NotificationID, status, providerID); err != nil {
		s.logger.Error("failed to finalize notification",
			zap.Uint("notification_id", args.NotificationID),
			zap.String("status", status),
			zap.Error(err))
	}
	return result
}
