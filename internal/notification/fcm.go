package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"auth-notify-service/internal/retry"
)

// FCMProvider talks to the FCM legacy HTTP endpoint.
type FCMProvider struct {
	endpoint  string
	serverKey string
	client    *http.Client
}

func NewFCMProvider(endpoint, serverKey string, client *http.Client) *FCMProvider {
	return &FCMProvider{endpoint: endpoint, serverKey: serverKey, client: client}
}

func (p *FCMProvider) Name() string { return "fcm" }

type fcmRequest struct {
	To           string          `json:"to"`
	Notification fcmNotification `json:"notification"`
	Data         map[string]any  `json:"data"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmResponse struct {
	MessageID any `json:"message_id"`
	Success   int `json:"success"`
	Failure   int `json:"failure"`
	Results   []struct {
		MessageID string `json:"message_id"`
		Error     string `json:"error"`
	} `json:"results"`
}

func (p *FCMProvider) Send(ctx context.Context, token, title, body string, data map[string]any) (string, error) {
	if p.serverKey == "" {
		return "", retry.Permanent(fmt.Errorf("%w: FCM_SERVER_KEY is empty", ErrNotConfigured))
	}
	if data == nil {
		data = map[string]any{}
	}

	payload, err := json.Marshal(fcmRequest{
		To:           token,
		Notification: fcmNotification{Title: title, Body: body},
		Data:         data,
	})
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("failed to encode fcm payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("failed to build fcm request: %w", err))
	}
	req.Header.Set("Authorization", "key="+p.serverKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fcm request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read fcm response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: fcm returned %d: %s", ErrProviderFailed, resp.StatusCode, bytes.TrimSpace(raw))
	}

	var out fcmResponse
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode fcm response: %w", err)
	}
	if out.Failure > 0 {
		reason := "unknown"
		if len(out.Results) > 0 && out.Results[0].Error != "" {
			reason = out.Results[0].Error
		}
		return "", fmt.Errorf("%w: %s", ErrProviderFailed, reason)
	}

	if id := stringify(out.MessageID); id != "" {
		return id, nil
	}
	if len(out.Results) > 0 {
		return out.Results[0].MessageID, nil
	}
	return "", nil
}

// stringify renders FCM ids, which topic sends return as numbers.
func stringify(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case json.Number:
		return id.String()
	default:
		return fmt.Sprint(id)
	}
}
