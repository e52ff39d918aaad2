package notification

import (
	"context"
	"sync"
	"time"

	"auth-notify-service/internal/audit"
	"auth-notify-service/internal/models"
	"auth-notify-service/internal/retry"
	"auth-notify-service/internal/util"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrorNoDeviceTokens is the Result.Error value when the user has no
// registered devices.
const ErrorNoDeviceTokens = "no_device_tokens"

// TokenSource lists a user's registered device tokens in registration order.
type TokenSource interface {
	ListByUser(ctx context.Context, userID uint) ([]models.DeviceToken, error)
}

// Log persists one notification row per delivery outcome.
type Log interface {
	Create(ctx context.Context, n *models.Notification) error
}

type Request struct {
	UserID uint           `json:"user_id"`
	Title  string         `json:"title"`
	Body   string         `json:"body"`
	Data   map[string]any `json:"data,omitempty"`
}

type TokenResult struct {
	Token     string `json:"token"`
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
	Attempts  int    `json:"attempts"`
}

type Result struct {
	Success bool          `json:"success"`
	Error   string        `json:"error,omitempty"`
	Results []TokenResult `json:"results,omitempty"`
}

// FirstMessageID returns the first provider id among successful tokens.
func (r Result) FirstMessageID() string {
	for _, tr := range r.Results {
		if tr.Success && tr.MessageID != "" {
			return tr.MessageID
		}
	}
	return ""
}

type Options struct {
	Retries     int
	Backoff     time.Duration
	Concurrency int
}

type Dispatcher struct {
	provider    Provider
	tokens      TokenSource
	log         Log
	policy      retry.Policy
	concurrency int
	audit       *audit.Recorder
	logger      *zap.Logger
}

func NewDispatcher(provider Provider, tokens TokenSource, log Log, opts Options, recorder *audit.Recorder, logger *zap.Logger) *Dispatcher {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Dispatcher{
		provider:    provider,
		tokens:      tokens,
		log:         log,
		policy:      retry.Policy{Attempts: opts.Retries, Backoff: opts.Backoff},
		concurrency: opts.Concurrency,
		audit:       recorder,
		logger:      logger.Named("notification"),
	}
}

// WithStore returns a copy that reads tokens from and logs to the given
// stores. Workers use it to bind a dispatcher to a dedicated connection.
func (d *Dispatcher) WithStore(tokens TokenSource, log Log) *Dispatcher {
	c := *d
	c.tokens = tokens
	c.log = log
	return &c
}

// Dispatch sends req to every device token of req.UserID. Each token is
// retried on its own; one token failing never stops the others.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Result {
	devices, err := d.tokens.ListByUser(ctx, req.UserID)
	if err != nil {
		d.logger.Error("failed to load device tokens", zap.Uint("user_id", req.UserID), zap.Error(err))
		return Result{Success: false, Error: err.Error()}
	}
	if len(devices) == 0 {
		d.logger.Info("no device tokens", zap.Uint("user_id", req.UserID))
		return Result{Success: false, Error: ErrorNoDeviceTokens}
	}

	results := make([]TokenResult, len(devices))
	// Outcome rows are written one at a time. A worker's log is a single
	// pinned connection.
	var logMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i, device := range devices {
		g.Go(func() error {
			results[i] = d.sendToken(gctx, req, device.DeviceToken, &logMu)
			return nil
		})
	}
	_ = g.Wait()

	overall := true
	for _, r := range results {
		overall = overall && r.Success
	}
	return Result{Success: overall, Results: results}
}

func (d *Dispatcher) sendToken(ctx context.Context, req Request, token string, logMu *sync.Mutex) TokenResult {
	var messageID string
	attempts, err := d.policy.Do(ctx, func(attempt int) error {
		id, err := d.provider.Send(ctx, token, req.Title, req.Body, req.Data)
		if err != nil {
			d.logger.Warn("push attempt failed",
				zap.Uint("user_id", req.UserID),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return err
		}
		messageID = id
		return nil
	})

	row := &models.Notification{
		UserID:  req.UserID,
		Title:   req.Title,
		Message: req.Body,
		Status:  models.StatusSent,
	}
	result := TokenResult{Token: token, Attempts: attempts}
	if err != nil {
		row.Status = models.StatusFailed
		result.Error = err.Error()
	} else {
		if messageID != "" {
			row.NotificationID = &messageID
		}
		result.Success = true
		result.MessageID = messageID
	}

	// The outcome row is written even if the request context is gone.
	logMu.Lock()
	logErr := d.log.Create(context.WithoutCancel(ctx), row)
	logMu.Unlock()
	if logErr != nil {
		d.logger.Error("failed to log notification outcome",
			zap.Uint("user_id", req.UserID),
			zap.String("status", row.Status),
			zap.Error(logErr))
	}

	d.audit.Record(ctx, audit.Event{
		Channel:   audit.ChannelPush,
		Provider:  d.provider.Name(),
		Recipient: util.MaskToken(token),
		UserID:    req.UserID,
		Success:   result.Success,
		MessageID: result.MessageID,
		Error:     result.Error,
		Attempts:  attempts,
	})
	return result
}
