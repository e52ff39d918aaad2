package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"auth-notify-service/internal/config"

	"go.uber.org/zap"
)

var (
	// ErrNotConfigured means the provider lacks credentials. It is never
	// retried.
	ErrNotConfigured   = errors.New("whatsapp provider not configured")
	ErrProviderFailed  = errors.New("whatsapp provider rejected the message")
	ErrUnknownProvider = errors.New("unknown whatsapp provider")
)

// Message is one outbound WhatsApp message. TemplateID and MediaURL are
// optional.
type Message struct {
	To         string `json:"to"`
	Text       string `json:"message"`
	TemplateID string `json:"template_id,omitempty"`
	MediaURL   string `json:"media_url,omitempty"`
}

// Receipt is what a provider reports for an accepted message.
type Receipt struct {
	MessageID string
	Status    string
	Raw       map[string]any
}

type Provider interface {
	Name() string
	Send(ctx context.Context, msg Message) (*Receipt, error)
}

// NewProvider builds the provider selected by WHATSAPP_PROVIDER.
func NewProvider(cfg *config.Config, logger *zap.Logger) (Provider, error) {
	wc := cfg.WhatsApp
	httpClient := &http.Client{Timeout: wc.Timeout}

	switch wc.Provider {
	case "", "mock":
		return NewMockProvider(logger), nil
	case "twilio":
		return newTwilio(wc, httpClient), nil
	case "meta":
		return newMeta(wc), nil
	case "auto":
		return NewAutoProvider(newTwilio(wc, httpClient), newMeta(wc)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, wc.Provider)
	}
}

func newTwilio(wc config.WhatsAppConfig, client *http.Client) *TwilioProvider {
	return NewTwilioProvider(wc.TwilioBaseURL, wc.TwilioSID, wc.TwilioToken, wc.TwilioFrom, client)
}

func newMeta(wc config.WhatsAppConfig) *MetaProvider {
	return NewMetaProvider(wc.MetaBaseURL, wc.MetaPhoneID, wc.MetaToken, wc.Timeout)
}

// decodeResponse reads a provider JSON reply. Non-2xx statuses are
// retryable provider failures.
func decodeResponse(provider string, resp *http.Response) (map[string]any, error) {
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", provider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s returned %d: %s", ErrProviderFailed, provider, resp.StatusCode, raw)
	}

	out := map[string]any{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", provider, err)
	}
	return out, nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
