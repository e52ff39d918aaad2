package messaging

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"auth-notify-service/internal/retry"
)

// TwilioProvider sends through the Twilio Messages API using the whatsapp:
// address scheme.
type TwilioProvider struct {
	baseURL string
	sid     string
	token   string
	from    string
	client  *http.Client
}

func NewTwilioProvider(baseURL, sid, token, from string, client *http.Client) *TwilioProvider {
	return &TwilioProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		sid:     sid,
		token:   token,
		from:    from,
		client:  client,
	}
}

func (p *TwilioProvider) Name() string { return "twilio" }

func (p *TwilioProvider) Send(ctx context.Context, msg Message) (*Receipt, error) {
	if p.sid == "" || p.token == "" || p.from == "" {
		return nil, retry.Permanent(fmt.Errorf("%w: Twilio credentials are incomplete", ErrNotConfigured))
	}

	form := url.Values{}
	form.Set("To", "whatsapp:"+msg.To)
	form.Set("From", "whatsapp:"+p.from)
	form.Set("Body", msg.Text)
	if msg.MediaURL != "" {
		form.Set("MediaUrl", msg.MediaURL)
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", p.baseURL, url.PathEscape(p.sid))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to build twilio request: %w", err))
	}
	req.SetBasicAuth(p.sid, p.token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("twilio request failed: %w", err)
	}
	raw, err := decodeResponse("twilio", resp)
	if err != nil {
		return nil, err
	}

	status := firstString(raw, "status")
	if status == "" {
		status = "sent"
	}
	return &Receipt{
		MessageID: firstString(raw, "sid", "message_sid", "id"),
		Status:    status,
		Raw:       raw,
	}, nil
}
