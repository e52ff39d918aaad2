package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"auth-notify-service/internal/models"
	"auth-notify-service/internal/notification"
	"auth-notify-service/internal/queue"

	"go.uber.org/zap"
)

func TestRegisterDeviceDefaultsToCaller(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	notifications := env.factory().NotificationService()

	device, err := notifications.RegisterDevice(ctx, 7, &RegisterDeviceRequest{DeviceToken: " tok-1 ", Platform: "Android"})
	if err != nil {
		t.Fatalf("RegisterDevice() error: %v", err)
	}
	if device.UserID != 7 || device.DeviceToken != "tok-1" || device.Platform != "android" {
		t.Errorf("device = %+v, want user 7, tok-1, android", device)
	}

	if _, err := notifications.RegisterDevice(ctx, 7, &RegisterDeviceRequest{}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("RegisterDevice(empty) error = %v, want ErrInvalidInput", err)
	}
}

func TestSendQueuesPendingNotification(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	notifications := env.factory().NotificationService()

	resp, err := notifications.Send(ctx, &SendNotificationRequest{UserID: 3, Title: "hi", Body: "there"})
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if resp.TaskID != "task-1" {
		t.Errorf("TaskID = %q, want %q", resp.TaskID, "task-1")
	}

	row, err := notifications.Status(ctx, resp.NotificationID)
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if row.Status != models.StatusPending {
		t.Errorf("Status = %q, want %q", row.Status, models.StatusPending)
	}

	if len(env.queue.tasks) != 1 {
		t.Fatalf("enqueued %d tasks, want 1", len(env.queue.tasks))
	}
	task := env.queue.tasks[0]
	if task.name != queue.TaskSendMobileNotification || task.key != "3" {
		t.Errorf("task = %s/%s, want %s/3", task.name, task.key, queue.TaskSendMobileNotification)
	}
	args, ok := task.args.(MobileNotificationArgs)
	if !ok || args.NotificationID != resp.NotificationID || args.Data == nil {
		t.Errorf("args = %+v, want notification id %d and non-nil data", task.args, resp.NotificationID)
	}
}

func TestSendFallsBackWhenQueueUnavailable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	env.queue.err = queue.ErrQueueUnavailable
	notifications := env.factory().NotificationService()

	for _, tok := range []string{"tok-a", "tok-b"} {
		if _, err := notifications.RegisterDevice(ctx, 5, &RegisterDeviceRequest{DeviceToken: tok}); err != nil {
			t.Fatalf("RegisterDevice() error: %v", err)
		}
	}

	resp, err := notifications.Send(ctx, &SendNotificationRequest{UserID: 5, Title: "hello", Body: "world"})
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if resp.TaskID != "" {
		t.Errorf("TaskID = %q, want empty after fallback", resp.TaskID)
	}

	row, err := notifications.Status(ctx, resp.NotificationID)
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if row.Status != models.StatusSent || row.NotificationID == nil {
		t.Errorf("finalized row = %+v, want sent with provider id", row)
	}

	rows, err := notifications.ListForUser(ctx, 5, 0, 0)
	if err != nil {
		t.Fatalf("ListForUser() error: %v", err)
	}
	if len(rows) != 3 {
		t.Errorf("ListForUser() returned %d rows, want 3 (pending row plus one per token)", len(rows))
	}
}

func TestSendWithoutDevicesFinalizesFailed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	env.queue.err = errors.New("broker down")
	notifications := env.factory().NotificationService()

	resp, err := notifications.Send(ctx, &SendNotificationRequest{UserID: 9, Title: "t", Body: "b"})
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	row, err := notifications.Status(ctx, resp.NotificationID)
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if row.Status != models.StatusFailed || row.NotificationID != nil {
		t.Errorf("finalized row = %+v, want failed without provider id", row)
	}
}

func TestSendEventMapsTitleAndBody(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	notifications := env.factory().NotificationService()

	resp, err := notifications.SendEvent(ctx, &NotificationEventRequest{
		UserID:    4,
		EventType: "payment_received",
		Data:      map[string]any{"amount": "$10"},
	})
	if err != nil {
		t.Fatalf("SendEvent() error: %v", err)
	}
	row, err := notifications.Status(ctx, resp.NotificationID)
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if row.Title != "Payment Received" {
		t.Errorf("Title = %q, want %q", row.Title, "Payment Received")
	}
	if row.Message != "Payment of $10 received. Thank you!" {
		t.Errorf("Message = %q, want %q", row.Message, "Payment of $10 received. Thank you!")
	}
}

func TestStatusNotFound(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	if _, err := env.factory().NotificationService().Status(context.Background(), 404); !errors.Is(err, ErrNotificationNotFound) {
		t.Errorf("Status() error = %v, want ErrNotificationNotFound", err)
	}
}

func TestHandleMobileNotificationTask(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	notifications := env.factory().NotificationService()

	if _, err := notifications.RegisterDevice(ctx, 11, &RegisterDeviceRequest{DeviceToken: "tok"}); err != nil {
		t.Fatalf("RegisterDevice() error: %v", err)
	}
	resp, err := notifications.Send(ctx, &SendNotificationRequest{UserID: 11, Title: "t", Body: "b"})
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	args, err := json.Marshal(env.queue.tasks[0].args)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	out, err := notifications.HandleMobileNotificationTask(ctx, &queue.Task{ID: "task-1", Name: queue.TaskSendMobileNotification, Args: args})
	if err != nil {
		t.Fatalf("HandleMobileNotificationTask() error: %v", err)
	}
	result, ok := out.(notification.Result)
	if !ok || !result.Success || len(result.Results) != 1 {
		t.Errorf("result = %+v, want one successful token", out)
	}

	row, err := notifications.Status(ctx, resp.NotificationID)
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if row.Status != models.StatusSent {
		t.Errorf("Status = %q, want %q", row.Status, models.StatusSent)
	}

	_, err = notifications.HandleMobileNotificationTask(ctx, &queue.Task{ID: "task-2", Name: queue.TaskSendMobileNotification, Args: json.RawMessage(`{}`)})
	if !errors.Is(err, queue.ErrInvalidTask) {
		t.Errorf("HandleMobileNotificationTask(no user) error = %v, want ErrInvalidTask", err)
	}
}

func TestHandleMobileNotificationTaskConcurrentTokens(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	env.deps.Notifications = notification.NewDispatcher(
		notification.NewMockProvider(zap.NewNop()),
		env.store.Devices, env.store.Notifications,
		notification.Options{Retries: 1, Concurrency: 8},
		nil, zap.NewNop())
	notifications := env.factory().NotificationService()

	const tokens = 16
	for i := 0; i < tokens; i++ {
		req := &RegisterDeviceRequest{DeviceToken: fmt.Sprintf("tok-%d", i)}
		if _, err := notifications.RegisterDevice(ctx, 21, req); err != nil {
			t.Fatalf("RegisterDevice() error: %v", err)
		}
	}

	args, err := json.Marshal(MobileNotificationArgs{UserID: 21, Title: "t", Body: "b"})
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	out, err := notifications.HandleMobileNotificationTask(ctx, &queue.Task{ID: "task-1", Name: queue.TaskSendMobileNotification, Args: args})
	if err != nil {
		t.Fatalf("HandleMobileNotificationTask() error: %v", err)
	}
	if result, ok := out.(notification.Result); !ok || !result.Success || len(result.Results) != tokens {
		t.Errorf("result = %+v, want %d successful tokens", out, tokens)
	}

	rows, err := notifications.ListForUser(ctx, 21, 0, 100)
	if err != nil {
		t.Fatalf("ListForUser() error: %v", err)
	}
	if len(rows) != tokens {
		t.Fatalf("ListForUser() returned %d rows, want %d", len(rows), tokens)
	}
	for _, row := range rows {
		if row.Status != models.StatusSent {
			t.Errorf("row %d status = %q, want %q", row.ID, row.Status, models.StatusSent)
		}
	}
}
