package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"auth-notify-service/internal/audit"
	"auth-notify-service/internal/models"
	"auth-notify-service/internal/retry"
	"auth-notify-service/internal/util"

	"go.uber.org/zap"
)

var ErrInvalidMessage = errors.New("invalid whatsapp message")

// Log persists one row per send outcome.
type Log interface {
	Create(ctx context.Context, m *models.WhatsAppMessage) error
}

type Result struct {
	Success        bool           `json:"success"`
	MessageID      string         `json:"message_id,omitempty"`
	ProviderStatus string         `json:"status,omitempty"`
	Raw            map[string]any `json:"raw,omitempty"`
	Error          string         `json:"error,omitempty"`
	Attempts       int            `json:"attempts"`
}

type Options struct {
	Retries int
	Backoff time.Duration
}

// Dispatcher owns the rate limiter that guards its provider.
type Dispatcher struct {
	provider Provider
	limiter  RateLimiter
	log      Log
	policy   retry.Policy
	audit    *audit.Recorder
	logger   *zap.Logger
}

func NewDispatcher(provider Provider, limiter RateLimiter, log Log, opts Options, recorder *audit.Recorder, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		provider: provider,
		limiter:  limiter,
		log:      log,
		policy:   retry.Policy{Attempts: opts.Retries, Backoff: opts.Backoff},
		audit:    recorder,
		logger:   logger.Named("whatsapp"),
	}
}

// WithLog returns a copy that persists to log and shares the limiter.
func (d *Dispatcher) WithLog(log Log) *Dispatcher {
	c := *d
	c.log = log
	return &c
}

// Send rate-limits, then delivers msg with retries. The returned error is
// ErrInvalidMessage or ErrRateLimited; delivery failures are reported in
// the Result and persisted as a failed row.
func (d *Dispatcher) Send(ctx context.Context, msg Message) (*Result, error) {
	msg.To = strings.TrimSpace(msg.To)
	if msg.To == "" {
		return nil, fmt.Errorf("%w: recipient is required", ErrInvalidMessage)
	}

	if d.limiter != nil {
		if err := d.limiter.Allow(ctx); err != nil {
			if errors.Is(err, ErrRateLimited) {
				return nil, err
			}
			d.logger.Warn("rate limiter failed, allowing send", zap.Error(err))
		}
	}

	var receipt *Receipt
	attempts, err := d.policy.Do(ctx, func(attempt int) error {
		r, err := d.provider.Send(ctx, msg)
		if err != nil {
			d.logger.Warn("whatsapp attempt failed",
				zap.Int("attempt", attempt),
				zap.Error(err))
			return err
		}
		receipt = r
		return nil
	})

	row := &models.WhatsAppMessage{ToNumber: msg.To, Message: msg.Text}
	result := &Result{Attempts: attempts}
	if err != nil {
		row.Status = models.StatusFailed
		result.Error = err.Error()
	} else {
		row.Status = models.StatusSent
		if receipt.MessageID != "" {
			id := receipt.MessageID
			row.MessageID = &id
		}
		result.Success = true
		result.MessageID = receipt.MessageID
		result.ProviderStatus = receipt.Status
		result.Raw = receipt.Raw
	}

	if logErr := d.log.Create(context.WithoutCancel(ctx), row); logErr != nil {
		d.logger.Error("failed to log whatsapp outcome",
			zap.String("status", row.Status),
			zap.Error(logErr))
	}

	d.audit.Record(ctx, audit.Event{
		Channel:   audit.ChannelWhatsApp,
		Provider:  d.provider.Name(),
		Recipient: util.MaskPhone(msg.To),
		Success:   result.Success,
		MessageID: result.MessageID,
		Error:     result.Error,
		Attempts:  attempts,
	})
	return result, nil
}
