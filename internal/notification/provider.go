package notification

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"auth-notify-service/internal/config"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awssns "github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"
)

var (
	// ErrNotConfigured means the provider lacks credentials. It is never
	// retried.
	ErrNotConfigured   = errors.New("notification provider not configured")
	ErrProviderFailed  = errors.New("notification provider rejected the message")
	ErrUnknownProvider = errors.New("unknown notification provider")
)

// Provider delivers one push notification to one device token and returns
// the provider's message id.
type Provider interface {
	Name() string
	Send(ctx context.Context, token, title, body string, data map[string]any) (string, error)
}

// NewProvider builds the provider selected by NOTIFICATION_PROVIDER.
func NewProvider(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Provider, error) {
	nc := cfg.Notification
	switch nc.Provider {
	case "", "mock":
		return NewMockProvider(logger), nil
	case "fcm":
		return NewFCMProvider(nc.FCMEndpoint, nc.FCMServerKey, &http.Client{Timeout: nc.Timeout}), nil
	case "sns":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(nc.AWSRegion))
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		return NewSNSProvider(awssns.NewFromConfig(awsCfg), nc.SNSPlatformARN), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, nc.Provider)
	}
}
