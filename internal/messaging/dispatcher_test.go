package messaging

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"auth-notify-service/internal/audit"
	"auth-notify-service/internal/models"

	"go.uber.org/zap"
)

type memLog struct {
	mu   sync.Mutex
	rows []models.WhatsAppMessage
}

func (l *memLog) Create(_ context.Context, m *models.WhatsAppMessage) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows = append(l.rows, *m)
	return nil
}

type failingProvider struct {
	calls int
	err   error
}

func (p *failingProvider) Name() string { return "failing" }

func (p *failingProvider) Send(context.Context, Message) (*Receipt, error) {
	p.calls++
	return nil, p.err
}

type stubCounter struct {
	counts map[int64]int64
	index  int64
	err    error
}

func (c *stubCounter) IncrementWindow(_ context.Context, _ string, _ time.Duration) (int64, error) {
	if c.err != nil {
		return 0, c.err
	}
	c.counts[c.index]++
	return c.counts[c.index], nil
}

func TestDispatcherMockSend(t *testing.T) {
	t.Parallel()

	log := &memLog{}
	d := NewDispatcher(NewMockProvider(zap.NewNop()), NewFixedWindowLimiter(1, time.Second), log, Options{Retries: 3}, nil, zap.NewNop())

	res, err := d.Send(context.Background(), Message{To: "+15551234567", Text: "hello"})
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if !res.Success || !strings.HasPrefix(res.MessageID, "mock-") {
		t.Errorf("Send() = %+v, want success with mock- id", res)
	}
	if res.ProviderStatus != "sent" {
		t.Errorf("ProviderStatus = %q, want %q", res.ProviderStatus, "sent")
	}
	if len(log.rows) != 1 || log.rows[0].Status != models.StatusSent || *log.rows[0].MessageID != res.MessageID {
		t.Errorf("rows = %+v, want one sent row with the message id", log.rows)
	}
}

func TestDispatcherRateLimit(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	limiter := NewFixedWindowLimiter(2, time.Second)
	limiter.now = func() time.Time { return now }

	log := &memLog{}
	d := NewDispatcher(NewMockProvider(zap.NewNop()), limiter, log, Options{Retries: 1}, nil, zap.NewNop())
	ctx := context.Background()
	msg := Message{To: "+1", Text: "x"}

	for i := 0; i < 2; i++ {
		if _, err := d.Send(ctx, msg); err != nil {
			t.Fatalf("send %d error: %v", i+1, err)
		}
	}
	if _, err := d.Send(ctx, msg); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("third send error = %v, want ErrRateLimited", err)
	}
	if len(log.rows) != 2 {
		t.Errorf("rows = %d, want 2 (rejected sends are not persisted)", len(log.rows))
	}

	now = now.Add(time.Second)
	if _, err := d.Send(ctx, msg); err != nil {
		t.Errorf("send in next window error: %v", err)
	}
}

func TestDispatcherExhaustedRetries(t *testing.T) {
	t.Parallel()

	provider := &failingProvider{err: errors.New("upstream 503")}
	log := &memLog{}
	d := NewDispatcher(provider, nil, log, Options{Retries: 3}, nil, zap.NewNop())

	res, err := d.Send(context.Background(), Message{To: "+1", Text: "x"})
	if err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if res.Success || res.Error != "upstream 503" || res.Attempts != 3 {
		t.Errorf("Send() = %+v, want failure after 3 attempts", res)
	}
	if provider.calls != 3 {
		t.Errorf("provider calls = %d, want 3", provider.calls)
	}
	if len(log.rows) != 1 || log.rows[0].Status != models.StatusFailed || log.rows[0].MessageID != nil {
		t.Errorf("rows = %+v, want one failed row without id", log.rows)
	}
}

func TestDispatcherRejectsEmptyRecipient(t *testing.T) {
	t.Parallel()

	d := NewDispatcher(NewMockProvider(zap.NewNop()), nil, &memLog{}, Options{Retries: 1}, nil, zap.NewNop())
	if _, err := d.Send(context.Background(), Message{To: "  "}); !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("Send() error = %v, want ErrInvalidMessage", err)
	}
}

func TestSharedLimiter(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	counter := &stubCounter{counts: map[int64]int64{}}
	l := NewSharedLimiter(counter, "whatsapp", 1, time.Second)

	if err := l.Allow(ctx); err != nil {
		t.Fatalf("first Allow() error: %v", err)
	}
	if err := l.Allow(ctx); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("second Allow() error = %v, want ErrRateLimited", err)
	}
	counter.index++
	if err := l.Allow(ctx); err != nil {
		t.Fatalf("Allow() in next window error: %v", err)
	}

	counter.err = errors.New("redis down")
	err := l.Allow(ctx)
	if err == nil || errors.Is(err, ErrRateLimited) {
		t.Errorf("Allow() error = %v, want infrastructure error", err)
	}
}

func TestDispatcherFailsOpenOnLimiterOutage(t *testing.T) {
	t.Parallel()

	limiter := NewSharedLimiter(&stubCounter{err: errors.New("redis down")}, "k", 1, time.Second)
	d := NewDispatcher(NewMockProvider(zap.NewNop()), limiter, &memLog{}, Options{Retries: 1}, nil, zap.NewNop())

	res, err := d.Send(context.Background(), Message{To: "+1", Text: "x"})
	if err != nil || !res.Success {
		t.Errorf("Send() = (%+v, %v), want success", res, err)
	}
}

func TestEventMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		kind    string
		data    map[string]any
		want    string
		wantErr bool
	}{
		{
			name: "invoice created",
			kind: "invoice_created",
			data: map[string]any{"to": "+1", "invoice_no": "A1", "amount": 50, "due_date": "2026-11-01"},
			want: "Invoice A1 created for 50. Due 2026-11-01.",
		},
		{
			name: "payment reminder",
			kind: "payment_reminder",
			data: map[string]any{"to": "+1", "amount": "$5"},
			want: "Reminder: please pay $5.",
		},
		{
			name: "custom message",
			kind: "other",
			data: map[string]any{"to": "+1", "message": "hi"},
			want: "hi",
		},
		{
			name: "default message",
			kind: "other",
			data: map[string]any{"to": "+1"},
			want: "Notification",
		},
		{
			name:    "missing recipient",
			kind:    "other",
			data:    map[string]any{},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			msg, err := EventMessage(tt.kind, tt.data)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidMessage) {
					t.Fatalf("EventMessage() error = %v, want ErrInvalidMessage", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("EventMessage() error: %v", err)
			}
			if msg.Text != tt.want {
				t.Errorf("Text = %q, want %q", msg.Text, tt.want)
			}
			if msg.To != "+1" {
				t.Errorf("To = %q, want %q", msg.To, "+1")
			}
		})
	}
}

func TestTemplateFallback(t *testing.T) {
	t.Parallel()

	if got := TemplateFallback(nil); got != " " {
		t.Errorf("TemplateFallback(nil) = %q, want %q", got, " ")
	}
	if got := TemplateFallback([]any{"Ada", 42}); got != "Ada 42" {
		t.Errorf("TemplateFallback() = %q, want %q", got, "Ada 42")
	}
}

type memSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *memSink) Record(_ context.Context, e audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func TestDispatcherAuditMasksRecipient(t *testing.T) {
	t.Parallel()

	sink := &memSink{}
	recorder := audit.NewRecorder(sink, zap.NewNop())
	d := NewDispatcher(NewMockProvider(zap.NewNop()), NewFixedWindowLimiter(1, time.Second), &memLog{}, Options{Retries: 1}, recorder, zap.NewNop())

	if _, err := d.Send(context.Background(), Message{To: "+15551234567", Text: "hello"}); err != nil {
		t.Fatalf("Send() error: %v", err)
	}
	if len(sink.events) != 1 {
		t.Fatalf("recorded %d events, want 1", len(sink.events))
	}
	if got := sink.events[0].Recipient; got != "********4567" {
		t.Errorf("Recipient = %q, want %q", got, "********4567")
	}
}
