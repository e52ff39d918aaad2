package factory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"auth-notify-service/internal/audit"
	"auth-notify-service/internal/bucketing"
	"auth-notify-service/internal/client"
	"auth-notify-service/internal/config"
	"auth-notify-service/internal/encryption"
	"auth-notify-service/internal/hashing"
	"auth-notify-service/internal/messaging"
	"auth-notify-service/internal/notification"
	"auth-notify-service/internal/queue"
	redisrepo "auth-notify-service/internal/repository/redis"
	"auth-notify-service/internal/repository/relational"
	"auth-notify-service/internal/service"
	"auth-notify-service/internal/social"
	"auth-notify-service/internal/tls"
	"auth-notify-service/internal/token"
	"auth-notify-service/internal/util"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const whatsAppLimiterKey = "whatsapp:send"

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config     *config.Config
	tlsManager *tls.TLSManager

	db    *gorm.DB
	store *relational.Store

	// Clients, nil when disabled
	redisClient      *client.RedisClient
	kafkaProducer    *client.KafkaProducer
	kafkaConsumer    *client.KafkaConsumer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	hasher            *hashing.Hasher
	encryptionManager *encryption.EncryptionManager
	bucketingManager  *bucketing.BucketingManager
	tokenService      *token.Service

	recorder       *audit.Recorder
	notifications  *notification.Dispatcher
	whatsApp       *messaging.Dispatcher
	taskQueue      queue.Enqueuer
	taskResults    queue.ResultStore // nil interface when Redis is off
	serviceFactory *service.ServiceFactory

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.JWT.Ephemeral {
		util.Warn("JWT_SECRET not set, using a per-process secret; tokens are invalidated on restart")
	}

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		factory.tlsManager = tls.NewTLSManager(cfg.Server, cfg.Environment, util.Named("tls"))
	}

	db, err := relational.Open(cfg.Database, util.Named("database"))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	factory.db = db
	factory.store = relational.NewStore(db)

	if err := factory.initializeClients(); err != nil {
		factory.Close()
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	if err := factory.initializeManagers(); err != nil {
		factory.Close()
		return nil, fmt.Errorf("failed to initialize managers: %w", err)
	}

	if err := factory.initializeDispatchers(); err != nil {
		factory.Close()
		return nil, fmt.Errorf("failed to initialize dispatchers: %w", err)
	}

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.String("database_driver", cfg.Database.Driver),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
		util.Bool("queue_enabled", factory.kafkaProducer != nil),
	)

	return factory, nil
}

// initializeClients connects the optional backends. Failures are fatal in
// production and downgrade the feature elsewhere.
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	if f.config.Redis.Enabled {
		if c, err := client.NewRedisClient(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
		} else {
			f.redisClient = c
			if err := f.redisClient.HealthCheck(ctx); err != nil {
				initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
			} else {
				util.Info("Redis client initialized and healthy")
			}
		}
	}

	if f.config.Kafka.Enabled {
		if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("kafka: %w", err))
		} else {
			f.kafkaProducer = producer
			util.Info("Kafka producer initialized", util.String("topic", f.config.Kafka.TaskTopic))
		}
	}

	if f.config.Elasticsearch.Enabled {
		if c, err := client.NewElasticsearchClient(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("elasticsearch: %w", err))
		} else {
			f.esClient = c
			if err := f.esClient.HealthCheck(ctx); err != nil {
				initErrors = append(initErrors, fmt.Errorf("elasticsearch health check: %w", err))
			} else {
				util.Info("Elasticsearch client initialized and healthy")
			}
		}
	}

	if f.config.Clickhouse.Enabled {
		if c, err := client.NewClickHouseClient(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
		} else {
			f.clickhouseClient = c
			if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
				initErrors = append(initErrors, fmt.Errorf("clickhouse health check: %w", err))
			} else {
				util.Info("ClickHouse client initialized and healthy")
			}
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %w", errors.Join(initErrors...))
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

// initializeManagers initializes hashing, encryption, bucketing and tokens
func (f *Factory) initializeManagers() error {
	f.hasher = hashing.NewHasher(f.config)

	var kmsClient encryption.KMSAPI
	if f.config.KMS.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(f.config.KMS.Region))
		if err != nil {
			return fmt.Errorf("failed to load AWS config: %w", err)
		}
		kmsClient = kms.NewFromConfig(awsCfg)
	}

	f.encryptionManager = encryption.NewEncryptionManager(f.config, kmsClient, util.Named("encryption"))
	f.bucketingManager = bucketing.NewBucketingManager(f.config)
	f.tokenService = token.NewService(f.config.JWT)

	util.Info("Managers initialized successfully",
		util.Bool("kms_enabled", kmsClient != nil),
		util.Int("task_lanes", f.bucketingManager.Lanes()),
	)
	return nil
}

// initializeDispatchers builds the delivery side: audit sinks, providers,
// the WhatsApp limiter and the task queue.
func (f *Factory) initializeDispatchers() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var sinks audit.Fanout
	if f.clickhouseClient != nil {
		sink, err := audit.NewClickHouseSink(f.clickhouseClient, f.config.Clickhouse.Table)
		if err != nil {
			return err
		}
		if err := sink.EnsureTable(ctx); err != nil {
			util.Warn("ClickHouse delivery table unavailable", util.ErrorField(err))
		} else {
			sinks = append(sinks, sink)
		}
	}
	if f.esClient != nil {
		sinks = append(sinks, audit.NewElasticsearchSink(f.esClient, f.config.Elasticsearch.Index))
	}
	if len(sinks) > 0 {
		f.recorder = audit.NewRecorder(sinks, util.Named("audit"))
	}

	pushProvider, err := notification.NewProvider(ctx, f.config, util.Named("push"))
	if err != nil {
		return err
	}
	f.notifications = notification.NewDispatcher(
		pushProvider,
		f.store.Devices,
		f.store.Notifications,
		notification.Options{
			Retries:     f.config.Notification.Retries,
			Backoff:     f.config.Notification.Backoff,
			Concurrency: f.config.Notification.Concurrency,
		},
		f.recorder,
		util.Get(),
	)

	whatsAppProvider, err := messaging.NewProvider(f.config, util.Named("whatsapp"))
	if err != nil {
		return err
	}
	f.whatsApp = messaging.NewDispatcher(
		whatsAppProvider,
		f.whatsAppLimiter(),
		f.store.Messages,
		messaging.Options{
			Retries: f.config.WhatsApp.Retries,
			Backoff: f.config.WhatsApp.Backoff,
		},
		f.recorder,
		util.Get(),
	)

	if f.redisClient != nil {
		f.taskResults = redisrepo.NewTaskResultCache(f.redisClient, f.config.Tasks.ResultTTL)
	}
	if f.kafkaProducer != nil {
		f.taskQueue = queue.NewKafkaQueue(f.kafkaProducer, f.config.Kafka.TaskTopic, f.bucketingManager, f.taskResults, util.Named("queue"))
	} else {
		f.taskQueue = queue.Unavailable{}
	}

	util.Info("Dispatchers initialized",
		util.String("push_provider", pushProvider.Name()),
		util.String("whatsapp_provider", whatsAppProvider.Name()),
		util.String("rate_limiter", f.config.WhatsApp.RateLimiter),
		util.Int("audit_sinks", len(sinks)),
	)
	return nil
}

func (f *Factory) whatsAppLimiter() messaging.RateLimiter {
	wc := f.config.WhatsApp
	if wc.RateLimiter == "redis" && f.redisClient != nil {
		return messaging.NewSharedLimiter(redisrepo.NewRateLimitCache(f.redisClient), whatsAppLimiterKey, wc.RateLimit, wc.RateWindow)
	}
	if wc.RateLimiter == "redis" {
		util.Warn("Redis unavailable, WhatsApp rate limit is per process")
	}
	return messaging.NewFixedWindowLimiter(wc.RateLimit, wc.RateWindow)
}

// ==============================
// Service Factory
// ==============================
func (f *Factory) ServiceFactory() *service.ServiceFactory {
	if f.serviceFactory == nil {
		deps := service.Dependencies{
			Store:          f.store,
			Hasher:         f.hasher,
			Tokens:         f.tokenService,
			Encryption:     f.encryptionManager,
			Google:         social.NewGoogleVerifier(f.config.Social.GoogleTokenInfoURL, f.config.Social.GoogleClientID, f.config.Social.Timeout),
			Facebook:       social.NewFacebookVerifier(f.config.Social.FacebookGraphURL, f.config.Social.Timeout),
			Notifications:  f.notifications,
			WhatsApp:       f.whatsApp,
			Queue:          f.taskQueue,
			Results:        f.taskResults,
			WhatsAppWindow: f.config.WhatsApp.RateWindow,
		}
		f.serviceFactory = service.NewServiceFactory(deps, util.Get())
	}
	return f.serviceFactory
}

// NewWorker builds a task worker consuming the configured topic with every
// task handler registered.
func (f *Factory) NewWorker() (*queue.Worker, error) {
	if !f.config.Kafka.Enabled {
		return nil, errors.New("kafka is disabled, set KAFKA_ENABLED=true to run workers")
	}
	consumer, err := client.NewKafkaConsumer(f.config, f.config.Kafka.TaskTopic, f.config.Kafka.GroupID, util.Get())
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	f.kafkaConsumer = consumer

	w := queue.NewWorker(consumer, f.bucketingManager, f.taskResults, util.Named("worker"))
	f.ServiceFactory().RegisterTasks(w)
	return w, nil
}

// ==============================
// Health Checks
// ==============================

func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	checks := map[string]func(context.Context) error{
		"database": func(ctx context.Context) error { return relational.HealthCheck(ctx, f.db) },
	}
	if f.config.Redis.Enabled {
		checks["redis"] = func(ctx context.Context) error {
			if f.redisClient == nil {
				return fmt.Errorf("redis client not initialized")
			}
			return f.redisClient.HealthCheck(ctx)
		}
	}
	if f.config.Elasticsearch.Enabled {
		checks["elasticsearch"] = func(ctx context.Context) error {
			if f.esClient == nil {
				return fmt.Errorf("elasticsearch client not initialized")
			}
			return f.esClient.HealthCheck(ctx)
		}
	}
	if f.config.Clickhouse.Enabled {
		checks["clickhouse"] = func(ctx context.Context) error {
			if f.clickhouseClient == nil {
				return fmt.Errorf("clickhouse client not initialized")
			}
			return f.clickhouseClient.HealthCheck(ctx)
		}
	}
	if f.config.Kafka.Enabled {
		checks["kafka"] = func(ctx context.Context) error {
			if f.kafkaProducer == nil {
				return fmt.Errorf("kafka producer not initialized")
			}
			return f.kafkaProducer.HealthCheck(ctx)
		}
	}

	var (
		mu           sync.Mutex
		g            errgroup.Group
		healthErrors = make(map[string]error)
	)
	for name, check := range checks {
		g.Go(func() error {
			if err := check(ctx); err != nil {
				mu.Lock()
				healthErrors[name] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return healthErrors
}

// IsHealthy ignores analytics backends, which never block delivery.
func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "clickhouse")
	delete(healthErrors, "elasticsearch")
	return len(healthErrors) == 0
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.kafkaConsumer != nil {
			if err := f.kafkaConsumer.Close(); err != nil {
				util.Error("Failed to close Kafka consumer", util.ErrorField(err))
			} else {
				util.Info("Kafka consumer closed")
			}
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			} else {
				util.Info("Kafka producer closed")
			}
		}

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			} else {
				util.Info("ClickHouse client closed")
			}
		}

		if f.esClient != nil {
			f.esClient.Close()
			util.Info("Elasticsearch client closed")
		}

		if f.serviceFactory != nil {
			f.serviceFactory.Cleanup()
			util.Info("Service factory cleaned up")
		} else if f.encryptionManager != nil {
			f.encryptionManager.ClearCache()
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			} else {
				util.Info("Redis client closed")
			}
		}

		if f.db != nil {
			if err := relational.Close(f.db); err != nil {
				util.Error("Failed to close database", util.ErrorField(err))
			} else {
				util.Info("Database closed")
			}
		}

		util.Info("Factory shutdown completed")
		util.Sync()
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.TLSManager {
	return f.tlsManager
}

func (f *Factory) Store() *relational.Store {
	return f.store
}

func (f *Factory) TokenService() *token.Service {
	return f.tokenService
}
