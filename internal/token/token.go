package token

import (
	"errors"
	"fmt"
	"time"

	"auth-notify-service/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

var ErrMissingSecret = errors.New("jwt signing secret is not configured")

// Claims is the payload carried by access and refresh tokens.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Type  string `json:"type"`
}

// Service issues and verifies HS256 bearer tokens. It holds no state beyond
// its configuration.
type Service struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewService(cfg config.JWTConfig) *Service {
	return &Service{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}
}

// IssueAccessToken signs a token identifying subject with its profile claims.
func (s *Service) IssueAccessToken(subject, email, name string) (string, error) {
	return s.sign(Claims{
		RegisteredClaims: s.registered(subject, s.accessTTL),
		Email:            email,
		Name:             name,
		Type:             TypeAccess,
	})
}

// IssueRefreshToken signs a long-lived token that can only be exchanged for
// new tokens.
func (s *Service) IssueRefreshToken(subject string) (string, error) {
	return s.sign(Claims{
		RegisteredClaims: s.registered(subject, s.refreshTTL),
		Type:             TypeRefresh,
	})
}

// Verify returns the claims of a valid token, or nil when the token is
// malformed, expired, or signed with another key.
func (s *Service) Verify(tokenString string) *Claims {
	if len(s.secret) == 0 || tokenString == "" {
		return nil
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil
	}
	if claims.Subject == "" || (claims.Type != TypeAccess && claims.Type != TypeRefresh) {
		return nil
	}
	return claims
}

// VerifyType is Verify restricted to one token type.
func (s *Service) VerifyType(tokenString, tokenType string) *Claims {
	claims := s.Verify(tokenString)
	if claims == nil || claims.Type != tokenType {
		return nil
	}
	return claims
}

func (s *Service) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := s.now()
	return jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (s *Service) sign(claims Claims) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrMissingSecret
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", claims.Type, err)
	}
	return signed, nil
}
