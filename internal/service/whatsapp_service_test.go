package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"auth-notify-service/internal/messaging"
	"auth-notify-service/internal/models"
	"auth-notify-service/internal/queue"

	"go.uber.org/zap"
)

func TestWhatsAppSend(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	whatsapp := env.factory().WhatsAppService()

	result, err := whatsapp.Send(ctx, &SendWhatsAppRequest{To: "+15551234567", Message: "hi"})
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if !result.Success || !strings.HasPrefix(result.MessageID, "mock-") {
		t.Errorf("result = %+v, want mock success", result)
	}

	row, err := whatsapp.Status(ctx, result.MessageID)
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if row.Status != models.StatusSent || row.ToNumber != "+15551234567" {
		t.Errorf("row = %+v, want sent to +15551234567", row)
	}

	if _, err := whatsapp.Status(ctx, "missing"); !errors.Is(err, ErrMessageNotFound) {
		t.Errorf("Status(missing) error = %v, want ErrMessageNotFound", err)
	}
	if _, err := whatsapp.Send(ctx, &SendWhatsAppRequest{To: "  "}); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Send(no recipient) error = %v, want ErrInvalidInput", err)
	}
}

func TestWhatsAppSendTemplateFallbackText(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	whatsapp := env.factory().WhatsAppService()

	if _, err := whatsapp.SendTemplate(ctx, &SendTemplateRequest{To: "+1555", TemplateID: "welcome", Parameters: []any{"Ada", 3}}); err != nil {
		t.Fatalf("SendTemplate() error: %v", err)
	}
	if _, err := whatsapp.SendTemplate(ctx, &SendTemplateRequest{To: "+1555", TemplateID: "bare"}); err != nil {
		t.Fatalf("SendTemplate() error: %v", err)
	}

	rows, err := whatsapp.List(ctx, 0, 0)
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("List() returned %d rows, want 2", len(rows))
	}
	if rows[0].Message != " " {
		t.Errorf("bare template text = %q, want %q", rows[0].Message, " ")
	}
	if rows[1].Message != "Ada 3" {
		t.Errorf("template text = %q, want %q", rows[1].Message, "Ada 3")
	}
}

func TestWhatsAppSendFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)

	t.Run("rate limited", func(t *testing.T) {
		env.deps.WhatsApp = messaging.NewDispatcher(
			messaging.NewMockProvider(zap.NewNop()),
			messaging.NewFixedWindowLimiter(1, time.Minute),
			env.store.Messages, messaging.Options{Retries: 1}, nil, zap.NewNop())
		whatsapp := env.factory().WhatsAppService()

		if _, err := whatsapp.Send(ctx, &SendWhatsAppRequest{To: "+1", Message: "a"}); err != nil {
			t.Fatalf("first Send() error: %v", err)
		}
		if _, err := whatsapp.Send(ctx, &SendWhatsAppRequest{To: "+1", Message: "b"}); !errors.Is(err, messaging.ErrRateLimited) {
			t.Errorf("second Send() error = %v, want ErrRateLimited", err)
		}
	})

	t.Run("exhausted retries", func(t *testing.T) {
		env.deps.WhatsApp = messaging.NewDispatcher(
			failingWhatsApp{}, nil,
			env.store.Messages, messaging.Options{Retries: 2}, nil, zap.NewNop())
		whatsapp := env.factory().WhatsAppService()

		result, err := whatsapp.Send(ctx, &SendWhatsAppRequest{To: "+2", Message: "c"})
		if !errors.Is(err, ErrDeliveryFailed) {
			t.Fatalf("Send() error = %v, want ErrDeliveryFailed", err)
		}
		if result == nil || result.Attempts != 2 {
			t.Errorf("result = %+v, want 2 attempts", result)
		}
	})
}

func TestWhatsAppSendEvent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("queued", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		resp, err := env.factory().WhatsAppService().SendEvent(ctx, &WhatsAppEventRequest{
			MessageType: "payment_reminder",
			Data:        map[string]any{"to": "+15550000000", "amount": "$5"},
		})
		if err != nil {
			t.Fatalf("SendEvent() error: %v", err)
		}
		if !resp.Queued || resp.TaskID != "task-1" {
			t.Errorf("resp = %+v, want queued task-1", resp)
		}
		msg, ok := env.queue.tasks[0].args.(messaging.Message)
		if !ok || msg.Text != "Reminder: please pay $5." || env.queue.tasks[0].key != "+15550000000" {
			t.Errorf("task = %+v, want reminder keyed by recipient", env.queue.tasks[0])
		}
	})

	t.Run("fallback sends in-process", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		env.queue.err = queue.ErrQueueUnavailable
		whatsapp := env.factory().WhatsAppService()

		resp, err := whatsapp.SendEvent(ctx, &WhatsAppEventRequest{MessageType: "other", Data: map[string]any{"to": "+1"}})
		if err != nil {
			t.Fatalf("SendEvent() error: %v", err)
		}
		if resp.Queued {
			t.Error("Queued = true, want false")
		}
		rows, err := whatsapp.List(ctx, 0, 0)
		if err != nil {
			t.Fatalf("List() error: %v", err)
		}
		if len(rows) != 1 || rows[0].Message != "Notification" {
			t.Errorf("rows = %+v, want one default message", rows)
		}
	})

	t.Run("missing recipient", func(t *testing.T) {
		t.Parallel()
		env := newTestEnv(t)
		_, err := env.factory().WhatsAppService().SendEvent(ctx, &WhatsAppEventRequest{MessageType: "invoice_created"})
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("SendEvent() error = %v, want ErrInvalidInput", err)
		}
	})
}

func TestHandleWhatsAppTaskWaitsOutRateLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	env := newTestEnv(t)
	env.deps.WhatsApp = messaging.NewDispatcher(
		messaging.NewMockProvider(zap.NewNop()),
		messaging.NewFixedWindowLimiter(1, 50*time.Millisecond),
		env.store.Messages, messaging.Options{Retries: 1}, nil, zap.NewNop())
	env.deps.WhatsAppWindow = 60 * time.Millisecond
	whatsapp := env.factory().WhatsAppService()

	if _, err := whatsapp.Send(ctx, &SendWhatsAppRequest{To: "+1", Message: "first"}); err != nil {
		t.Fatalf("Send() error: %v", err)
	}

	args, err := json.Marshal(messaging.Message{To: "+1", Text: "second"})
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	out, err := whatsapp.HandleWhatsAppTask(ctx, &queue.Task{ID: "t", Name: queue.TaskSendWhatsAppMessage, Args: args})
	if err != nil {
		t.Fatalf("HandleWhatsAppTask() error: %v", err)
	}
	if result, ok := out.(*messaging.Result); !ok || !result.Success {
		t.Errorf("result = %+v, want success", out)
	}
}
