package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"auth-notify-service/internal/retry"

	"golang.org/x/oauth2"
)

// MetaProvider sends through the WhatsApp Cloud API. The bearer token is
// attached by an oauth2 static token source.
type MetaProvider struct {
	baseURL string
	phoneID string
	client  *http.Client
}

func NewMetaProvider(baseURL, phoneID, token string, timeout time.Duration) *MetaProvider {
	p := &MetaProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		phoneID: phoneID,
	}
	if token != "" {
		p.client = oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: token,
			TokenType:   "Bearer",
		}))
		p.client.Timeout = timeout
	}
	return p
}

func (p *MetaProvider) Name() string { return "meta" }

type metaPayload struct {
	MessagingProduct string        `json:"messaging_product"`
	To               string        `json:"to"`
	Type             string        `json:"type"`
	Template         *metaTemplate `json:"template,omitempty"`
	Text             *metaText     `json:"text,omitempty"`
	Document         *metaDocument `json:"document,omitempty"`
}

type metaTemplate struct {
	Name     string       `json:"name"`
	Language metaLanguage `json:"language"`
}

type metaLanguage struct {
	Code string `json:"code"`
}

type metaText struct {
	Body string `json:"body"`
}

type metaDocument struct {
	Link    string `json:"link"`
	Caption string `json:"caption"`
}

func buildMetaPayload(msg Message) metaPayload {
	payload := metaPayload{MessagingProduct: "whatsapp", To: msg.To}
	switch {
	case msg.TemplateID != "":
		payload.Type = "template"
		payload.Template = &metaTemplate{Name: msg.TemplateID, Language: metaLanguage{Code: "en_US"}}
	case msg.MediaURL != "":
		payload.Type = "document"
		payload.Document = &metaDocument{Link: msg.MediaURL, Caption: msg.Text}
	default:
		payload.Type = "text"
		payload.Text = &metaText{Body: msg.Text}
	}
	return payload
}

func (p *MetaProvider) Send(ctx context.Context, msg Message) (*Receipt, error) {
	if p.client == nil || p.phoneID == "" {
		return nil, retry.Permanent(fmt.Errorf("%w: Meta credentials are incomplete", ErrNotConfigured))
	}

	body, err := json.Marshal(buildMetaPayload(msg))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to encode meta payload: %w", err))
	}

	endpoint := fmt.Sprintf("%s/%s/messages", p.baseURL, url.PathEscape(p.phoneID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("failed to build meta request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("meta request failed: %w", err)
	}
	raw, err := decodeResponse("meta", resp)
	if err != nil {
		return nil, err
	}

	var messageID string
	if msgs, ok := raw["messages"].([]any); ok && len(msgs) > 0 {
		if first, ok := msgs[0].(map[string]any); ok {
			messageID = firstString(first, "id")
		}
	}
	return &Receipt{MessageID: messageID, Status: "sent", Raw: raw}, nil
}
