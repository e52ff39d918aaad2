package social

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

var (
	ErrInvalidToken  = errors.New("invalid social token")
	ErrTokenMismatch = errors.New("token user id mismatch")
)

// GoogleProfile is the subset of Google's tokeninfo response the service
// uses. Raw keeps the full payload.
type GoogleProfile struct {
	Subject  string         `json:"sub"`
	Email    string         `json:"email"`
	Name     string         `json:"name"`
	Picture  string         `json:"picture"`
	Audience string         `json:"aud"`
	Raw      map[string]any `json:"-"`
}

type GoogleVerifier struct {
	tokenInfoURL string
	clientID     string
	client       *http.Client
}

// NewGoogleVerifier checks ID tokens with the tokeninfo endpoint. When
// clientID is set the token audience must match it.
func NewGoogleVerifier(tokenInfoURL, clientID string, timeout time.Duration) *GoogleVerifier {
	return &GoogleVerifier{
		tokenInfoURL: tokenInfoURL,
		clientID:     clientID,
		client:       &http.Client{Timeout: timeout},
	}
}

func (v *GoogleVerifier) Verify(ctx context.Context, idToken string) (*GoogleProfile, error) {
	if strings.TrimSpace(idToken) == "" {
		return nil, fmt.Errorf("%w: empty id token", ErrInvalidToken)
	}

	u, err := url.Parse(v.tokenInfoURL)
	if err != nil {
		return nil, fmt.Errorf("invalid tokeninfo url: %w", err)
	}
	q := u.Query()
	q.Set("id_token", idToken)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build tokeninfo request: %w", err)
	}

	raw, err := getJSON(v.client, req)
	if err != nil {
		return nil, err
	}

	profile := &GoogleProfile{Raw: raw}
	encoded, _ := json.Marshal(raw)
	if err := json.Unmarshal(encoded, profile); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if profile.Email == "" {
		return nil, fmt.Errorf("%w: token carries no email", ErrInvalidToken)
	}
	if v.clientID != "" && profile.Audience != v.clientID {
		return nil, fmt.Errorf("%w: audience mismatch", ErrInvalidToken)
	}
	return profile, nil
}

type FacebookVerifier struct {
	graphURL string
	timeout  time.Duration
}

func NewFacebookVerifier(graphURL string, timeout time.Duration) *FacebookVerifier {
	return &FacebookVerifier{graphURL: strings.TrimRight(graphURL, "/"), timeout: timeout}
}

// Verify asks the Graph API who owns accessToken and checks that it is
// userID.
func (v *FacebookVerifier) Verify(ctx context.Context, accessToken, userID string) error {
	if strings.TrimSpace(accessToken) == "" {
		return fmt.Errorf("%w: empty access token", ErrInvalidToken)
	}

	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	client.Timeout = v.timeout

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.graphURL+"/me?fields=id", nil)
	if err != nil {
		return fmt.Errorf("failed to build graph request: %w", err)
	}

	raw, err := getJSON(client, req)
	if err != nil {
		return err
	}
	if id, _ := raw["id"].(string); id == "" || id != userID {
		return ErrTokenMismatch
	}
	return nil
}

// getJSON performs req and decodes a JSON object. Any non-200 reply means
// the token was rejected.
func getJSON(client *http.Client, req *http.Request) (map[string]any, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: provider returned %d", ErrInvalidToken, resp.StatusCode)
	}

	out := map[string]any{}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return out, nil
}
