package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Environment   string
	Server        ServerConfig
	Logging       LoggingConfig
	Database      DatabaseConfig
	JWT           JWTConfig
	Hashing       HashingConfig
	KMS           KMSConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Clickhouse    ClickhouseConfig
	Elasticsearch ElasticsearchConfig
	Bucketing     BucketingConfig
	Social        SocialConfig
	Notification  NotificationConfig
	WhatsApp      WhatsAppConfig
	Tasks         TaskConfig
}

type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	EnableTLS    bool
	TLSPort      int
	AutoCert     bool
	Domain       string
	CertFile     string
	KeyFile      string
	AutoCertDir  string
	Email        string
	CORSOrigins  []string
}

type LoggingConfig struct {
	Level  string
	Format string
}

type DatabaseConfig struct {
	Driver          string // postgres | sqlite
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

type JWTConfig struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// Ephemeral is set when Secret was generated for this process only.
	Ephemeral bool
}

type HashingConfig struct {
	Argon2MemoryCost  int
	Argon2TimeCost    int
	Argon2Parallelism int
	Pepper            string
	PepperVersion     int
	PreviousPepper    string
}

type KMSConfig struct {
	Enabled bool
	KeyID   string
	Region  string
}

type RedisConfig struct {
	Enabled  bool
	URL      string
	Password string
	DB       int
	PoolSize int
}

type KafkaConfig struct {
	Enabled   bool
	Brokers   []string
	TaskTopic string
	GroupID   string
}

type ClickhouseConfig struct {
	Enabled  bool
	URL      string
	Username string
	Password string
	Database string
	Table    string
}

type ElasticsearchConfig struct {
	Enabled  bool
	URL      string
	Username string
	Password string
	Index    string
}

type BucketingConfig struct {
	TaskLanes int
}

type SocialConfig struct {
	GoogleClientID     string
	GoogleTokenInfoURL string
	FacebookGraphURL   string
	Timeout            time.Duration
}

type NotificationConfig struct {
	Provider       string // mock | fcm | sns
	FCMServerKey   string
	FCMEndpoint    string
	SNSPlatformARN string
	AWSRegion      string
	Retries        int
	Backoff        time.Duration
	Concurrency    int
	Timeout        time.Duration
}

type WhatsAppConfig struct {
	Provider      string // mock | twilio | meta | auto
	Retries       int
	Backoff       time.Duration
	Timeout       time.Duration
	RateLimit     int
	RateWindow    time.Duration
	RateLimiter   string // memory | redis
	TwilioSID     string
	TwilioToken   string
	TwilioFrom    string
	TwilioBaseURL string
	MetaToken     string
	MetaPhoneID   string
	MetaBaseURL   string
}

type TaskConfig struct {
	ResultTTL time.Duration
}

// LoadConfig reads .env (when present) and the process environment.
func LoadConfig() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", EnvDevelopment),
		Server: ServerConfig{
			Port:         getEnvInt("PORT", 8080),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 75*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			EnableTLS:    getEnvBool("ENABLE_TLS", false),
			TLSPort:      getEnvInt("TLS_PORT", 8443),
			AutoCert:     getEnvBool("AUTO_CERT", false),
			Domain:       getEnv("DOMAIN", "localhost"),
			CertFile:     getEnv("TLS_CERT_FILE", ""),
			KeyFile:      getEnv("TLS_KEY_FILE", ""),
			AutoCertDir:  getEnv("AUTO_CERT_DIR", "./certs"),
			Email:        getEnv("ACME_EMAIL", ""),
			CORSOrigins:  getEnvList("CORS_ALLOWED_ORIGINS", []string{"https://*", "http://*"}),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Database: DatabaseConfig{
			Driver:          strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
			DSN:             getEnv("DATABASE_URL", "file:app.db?_foreign_keys=on"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			AutoMigrate:     getEnvBool("DB_AUTO_MIGRATE", true),
		},
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", ""),
			Issuer:     getEnv("JWT_ISSUER", ""),
			AccessTTL:  getEnvDuration("JWT_ACCESS_TTL", 30*24*time.Hour),
			RefreshTTL: getEnvDuration("JWT_REFRESH_TTL", 90*24*time.Hour),
		},
		Hashing: HashingConfig{
			Argon2MemoryCost:  getEnvInt("ARGON2_MEMORY_COST", 64*1024),
			Argon2TimeCost:    getEnvInt("ARGON2_TIME_COST", 3),
			Argon2Parallelism: getEnvInt("ARGON2_PARALLELISM", 2),
			Pepper:            getEnv("PASSWORD_PEPPER", ""),
			PepperVersion:     getEnvInt("PASSWORD_PEPPER_VERSION", 1),
			PreviousPepper:    getEnv("PASSWORD_PEPPER_PREVIOUS", ""),
		},
		KMS: KMSConfig{
			Enabled: getEnvBool("KMS_ENABLED", false),
			KeyID:   getEnv("KMS_KEY_ID", ""),
			Region:  getEnv("AWS_REGION", "us-east-1"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			URL:      getEnv("REDIS_URL", "redis://localhost:6379/0"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			PoolSize: getEnvInt("REDIS_POOL_SIZE", 20),
		},
		Kafka: KafkaConfig{
			Enabled:   getEnvBool("KAFKA_ENABLED", false),
			Brokers:   getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			TaskTopic: getEnv("KAFKA_TASK_TOPIC", "dispatch-tasks"),
			GroupID:   getEnv("KAFKA_GROUP_ID", "dispatch-workers"),
		},
		Clickhouse: ClickhouseConfig{
			Enabled:  getEnvBool("CLICKHOUSE_ENABLED", false),
			URL:      getEnv("CLICKHOUSE_URL", "localhost:9000"),
			Username: getEnv("CLICKHOUSE_USERNAME", "default"),
			Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			Database: getEnv("CLICKHOUSE_DATABASE", "default"),
			Table:    getEnv("CLICKHOUSE_DELIVERY_TABLE", "delivery_events"),
		},
		Elasticsearch: ElasticsearchConfig{
			Enabled:  getEnvBool("ELASTICSEARCH_ENABLED", false),
			URL:      getEnv("ELASTICSEARCH_URL", "http://localhost:9200"),
			Username: getEnv("ELASTICSEARCH_USERNAME", ""),
			Password: getEnv("ELASTICSEARCH_PASSWORD", ""),
			Index:    getEnv("ELASTICSEARCH_DELIVERY_INDEX", "delivery-events"),
		},
		Bucketing: BucketingConfig{
			TaskLanes: getEnvInt("TASK_LANES", 8),
		},
		Social: SocialConfig{
			GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			GoogleTokenInfoURL: getEnv("GOOGLE_TOKENINFO_URL", "https://oauth2.googleapis.com/tokeninfo"),
			FacebookGraphURL:   getEnv("FACEBOOK_GRAPH_URL", "https://graph.facebook.com"),
			Timeout:            getEnvDuration("SOCIAL_HTTP_TIMEOUT", 10*time.Second),
		},
		Notification: NotificationConfig{
			Provider:       strings.ToLower(getEnv("NOTIFICATION_PROVIDER", "mock")),
			FCMServerKey:   getEnv("FCM_SERVER_KEY", ""),
			FCMEndpoint:    getEnv("FCM_ENDPOINT", "https://fcm.googleapis.com/fcm/send"),
			SNSPlatformARN: getEnv("SNS_PLATFORM_APPLICATION_ARN", ""),
			AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
			Retries:        getEnvInt("NOTIFICATION_RETRIES", 3),
			Backoff:        getEnvSeconds("NOTIFICATION_BACKOFF", 500*time.Millisecond),
			Concurrency:    getEnvInt("NOTIFICATION_CONCURRENCY", 1),
			Timeout:        getEnvDuration("NOTIFICATION_HTTP_TIMEOUT", 10*time.Second),
		},
		WhatsApp: WhatsAppConfig{
			Provider:      strings.ToLower(getEnv("WHATSAPP_PROVIDER", "mock")),
			Retries:       getEnvInt("WHATSAPP_RETRIES", 3),
			Backoff:       getEnvSeconds("WHATSAPP_BACKOFF", 500*time.Millisecond),
			Timeout:       getEnvDuration("WHATSAPP_HTTP_TIMEOUT", 10*time.Second),
			RateLimit:     getEnvInt("WHATSAPP_RATE_LIMIT", 1),
			RateWindow:    getEnvDuration("WHATSAPP_RATE_WINDOW", time.Second),
			RateLimiter:   strings.ToLower(getEnv("WHATSAPP_RATE_LIMITER", "memory")),
			TwilioSID:     getEnv("TWILIO_ACCOUNT_SID", ""),
			TwilioToken:   getEnv("TWILIO_AUTH_TOKEN", ""),
			TwilioFrom:    getEnv("TWILIO_WHATSAPP_FROM", ""),
			TwilioBaseURL: getEnv("TWILIO_BASE_URL", "https://api.twilio.com"),
			MetaToken:     getEnv("META_WHATSAPP_TOKEN", ""),
			MetaPhoneID:   getEnv("META_PHONE_NUMBER_ID", ""),
			MetaBaseURL:   getEnv("META_GRAPH_URL", "https://graph.facebook.com/v17.0"),
		},
		Tasks: TaskConfig{
			ResultTTL: getEnvDuration("TASK_RESULT_TTL", 24*time.Hour),
		},
	}
	cfg.ensureJWTSecret()
	return cfg
}

// ensureJWTSecret generates a random signing secret outside production so
// tokens work without JWT_SECRET. Tokens do not survive a restart.
func (c *Config) ensureJWTSecret() {
	if c.JWT.Secret != "" || c.IsProduction() {
		return
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return
	}
	c.JWT.Secret = base64.RawURLEncoding.EncodeToString(buf)
	c.JWT.Ephemeral = true
}

// Validate reports the first configuration problem that would make the
// service misbehave at runtime.
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("%w: JWT_SECRET is required", ErrInvalidConfig)
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("%w: unsupported DB_DRIVER %q", ErrInvalidConfig, c.Database.Driver)
	}
	switch c.Notification.Provider {
	case "mock", "fcm", "sns":
	default:
		return fmt.Errorf("%w: unsupported NOTIFICATION_PROVIDER %q", ErrInvalidConfig, c.Notification.Provider)
	}
	switch c.WhatsApp.Provider {
	case "mock", "twilio", "meta", "auto":
	default:
		return fmt.Errorf("%w: unsupported WHATSAPP_PROVIDER %q", ErrInvalidConfig, c.WhatsApp.Provider)
	}
	switch c.WhatsApp.RateLimiter {
	case "memory":
	case "redis":
		if !c.Redis.Enabled {
			return fmt.Errorf("%w: WHATSAPP_RATE_LIMITER=redis requires REDIS_ENABLED", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unsupported WHATSAPP_RATE_LIMITER %q", ErrInvalidConfig, c.WhatsApp.RateLimiter)
	}
	if c.Notification.Retries < 1 || c.WhatsApp.Retries < 1 {
		return fmt.Errorf("%w: retries must be at least 1", ErrInvalidConfig)
	}
	if c.WhatsApp.RateLimit < 1 || c.WhatsApp.RateWindow <= 0 {
		return fmt.Errorf("%w: rate limit and window must be positive", ErrInvalidConfig)
	}
	if c.KMS.Enabled && c.KMS.KeyID == "" {
		return fmt.Errorf("%w: KMS_KEY_ID is required when KMS is enabled", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvSeconds accepts fractional seconds ("0.5") as well as Go durations.
func getEnvSeconds(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(seconds * float64(time.Second))
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
