package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	ChannelPush     = "push"
	ChannelWhatsApp = "whatsapp"
)

// Event is one delivery attempt outcome.
type Event struct {
	ID         string    `json:"id"`
	Channel    string    `json:"channel"`
	Provider   string    `json:"provider"`
	Recipient  string    `json:"recipient"`
	UserID     uint      `json:"user_id,omitempty"`
	Success    bool      `json:"success"`
	MessageID  string    `json:"message_id,omitempty"`
	Error      string    `json:"error,omitempty"`
	Attempts   int       `json:"attempts"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Sink records delivery events. Implementations must be safe for
// concurrent use.
type Sink interface {
	Record(ctx context.Context, event Event) error
}

// Nop discards events.
type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }

// Fanout writes each event to every sink and joins their errors.
type Fanout []Sink

func (f Fanout) Record(ctx context.Context, event Event) error {
	var errs []error
	for _, sink := range f {
		if err := sink.Record(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder stamps events and logs sink failures instead of returning them.
// Delivery never fails because auditing did.
type Recorder struct {
	sink   Sink
	logger *zap.Logger
}

func NewRecorder(sink Sink, logger *zap.Logger) *Recorder {
	if sink == nil {
		sink = Nop{}
	}
	return &Recorder{sink: sink, logger: logger}
}

func (r *Recorder) Record(ctx context.Context, event Event) {
	if r == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := r.sink.Record(ctx, event); err != nil {
		r.logger.Warn("delivery audit failed",
			zap.String("channel", event.Channel),
			zap.String("event_id", event.ID),
			zap.Error(err))
	}
}

func wrap(sink string, err error) error {
	return fmt.Errorf("%s audit sink: %w", sink, err)
}
