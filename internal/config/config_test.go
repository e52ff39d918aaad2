package config

import (
	"errors"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("NOTIFICATION_RETRIES", "")
	t.Setenv("NOTIFICATION_BACKOFF", "")
	t.Setenv("WHATSAPP_RATE_LIMIT", "")
	t.Setenv("JWT_ACCESS_TTL", "")

	cfg := LoadConfig()

	if cfg.Notification.Retries != 3 {
		t.Errorf("Notification.Retries = %d, want 3", cfg.Notification.Retries)
	}
	if cfg.Notification.Backoff != 500*time.Millisecond {
		t.Errorf("Notification.Backoff = %v, want 500ms", cfg.Notification.Backoff)
	}
	if cfg.WhatsApp.RateLimit != 1 {
		t.Errorf("WhatsApp.RateLimit = %d, want 1", cfg.WhatsApp.RateLimit)
	}
	if cfg.WhatsApp.RateWindow != time.Second {
		t.Errorf("WhatsApp.RateWindow = %v, want 1s", cfg.WhatsApp.RateWindow)
	}
	if cfg.JWT.AccessTTL != 30*24*time.Hour {
		t.Errorf("JWT.AccessTTL = %v, want 720h", cfg.JWT.AccessTTL)
	}
	if cfg.JWT.RefreshTTL != 90*24*time.Hour {
		t.Errorf("JWT.RefreshTTL = %v, want 2160h", cfg.JWT.RefreshTTL)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("WHATSAPP_BACKOFF", "1.5")
	t.Setenv("NOTIFICATION_BACKOFF", "250ms")
	t.Setenv("NOTIFICATION_PROVIDER", "FCM")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")

	cfg := LoadConfig()

	if cfg.WhatsApp.Backoff != 1500*time.Millisecond {
		t.Errorf("WhatsApp.Backoff = %v, want 1.5s", cfg.WhatsApp.Backoff)
	}
	if cfg.Notification.Backoff != 250*time.Millisecond {
		t.Errorf("Notification.Backoff = %v, want 250ms", cfg.Notification.Backoff)
	}
	if cfg.Notification.Provider != "fcm" {
		t.Errorf("Notification.Provider = %q, want %q", cfg.Notification.Provider, "fcm")
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "kafka-2:9092" {
		t.Errorf("Kafka.Brokers = %v, want [kafka-1:9092 kafka-2:9092]", cfg.Kafka.Brokers)
	}
}

func TestLoadConfigJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	t.Setenv("ENVIRONMENT", EnvDevelopment)
	dev := LoadConfig()
	if dev.JWT.Secret == "" || !dev.JWT.Ephemeral {
		t.Errorf("development JWT = %+v, want a generated ephemeral secret", dev.JWT)
	}
	if again := LoadConfig(); again.JWT.Secret == dev.JWT.Secret {
		t.Error("generated secrets repeat across loads")
	}

	t.Setenv("ENVIRONMENT", EnvProduction)
	if prod := LoadConfig(); prod.JWT.Secret != "" || prod.JWT.Ephemeral {
		t.Errorf("production JWT = %+v, want no generated secret", prod.JWT)
	}

	t.Setenv("JWT_SECRET", "configured")
	t.Setenv("ENVIRONMENT", EnvDevelopment)
	if cfg := LoadConfig(); cfg.JWT.Secret != "configured" || cfg.JWT.Ephemeral {
		t.Errorf("configured JWT = %+v, want the configured secret", cfg.JWT)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Environment:  EnvDevelopment,
			JWT:          JWTConfig{Secret: "secret"},
			Database:     DatabaseConfig{Driver: "sqlite"},
			Notification: NotificationConfig{Provider: "mock", Retries: 3},
			WhatsApp: WhatsAppConfig{
				Provider:    "mock",
				Retries:     3,
				RateLimit:   1,
				RateWindow:  time.Second,
				RateLimiter: "memory",
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid development config", mutate: func(c *Config) {}},
		{name: "production without secret", mutate: func(c *Config) { c.Environment = EnvProduction; c.JWT.Secret = "" }, wantErr: true},
		{name: "development without secret", mutate: func(c *Config) { c.JWT.Secret = "" }, wantErr: true},
		{name: "unknown notification provider", mutate: func(c *Config) { c.Notification.Provider = "apns" }, wantErr: true},
		{name: "unknown whatsapp provider", mutate: func(c *Config) { c.WhatsApp.Provider = "telegram" }, wantErr: true},
		{name: "redis limiter without redis", mutate: func(c *Config) { c.WhatsApp.RateLimiter = "redis" }, wantErr: true},
		{name: "zero retries", mutate: func(c *Config) { c.WhatsApp.Retries = 0 }, wantErr: true},
		{name: "kms without key", mutate: func(c *Config) { c.KMS.Enabled = true }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidConfig) {
					t.Fatalf("Validate() error = %v, want ErrInvalidConfig", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() unexpected error: %v", err)
			}
		})
	}
}
