package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"auth-notify-service/internal/config"
	"auth-notify-service/internal/encryption"
	"auth-notify-service/internal/hashing"
	"auth-notify-service/internal/messaging"
	"auth-notify-service/internal/models"
	"auth-notify-service/internal/notification"
	"auth-notify-service/internal/queue"
	"auth-notify-service/internal/repository/relational"
	"auth-notify-service/internal/social"
	"auth-notify-service/internal/token"

	"go.uber.org/zap"
)

type fakeGoogle struct {
	profile *social.GoogleProfile
	err     error
}

func (g *fakeGoogle) Verify(context.Context, string) (*social.GoogleProfile, error) {
	return g.profile, g.err
}

// fakeFacebook accepts any access token that belongs to userID.
type fakeFacebook struct {
	userID string
}

func (f *fakeFacebook) Verify(_ context.Context, _, userID string) error {
	if userID != f.userID {
		return social.ErrTokenMismatch
	}
	return nil
}

type enqueued struct {
	name string
	key  string
	args any
}

type recordingQueue struct {
	mu    sync.Mutex
	err   error
	tasks []enqueued
}

func (q *recordingQueue) Enqueue(_ context.Context, name, key string, args any) (*queue.Handle, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, enqueued{name: name, key: key, args: args})
	return &queue.Handle{TaskID: "task-1"}, nil
}

type failingWhatsApp struct{}

func (failingWhatsApp) Name() string { return "failing" }

func (failingWhatsApp) Send(context.Context, messaging.Message) (*messaging.Receipt, error) {
	return nil, errors.New("provider down")
}

type testEnv struct {
	store    *relational.Store
	deps     Dependencies
	google   *fakeGoogle
	facebook *fakeFacebook
	queue    *recordingQueue
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := relational.Open(config.DatabaseConfig{
		Driver:      "sqlite",
		DSN:         filepath.Join(t.TempDir(), "test.db"),
		AutoMigrate: true,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { _ = relational.Close(db) })

	cfg := &config.Config{
		Hashing: config.HashingConfig{
			Argon2MemoryCost:  8 * 1024,
			Argon2TimeCost:    1,
			Argon2Parallelism: 1,
			Pepper:            "pepper",
			PepperVersion:     1,
		},
		JWT: config.JWTConfig{
			Secret:     "test-secret",
			AccessTTL:  time.Hour,
			RefreshTTL: 2 * time.Hour,
		},
	}

	store := relational.NewStore(db)
	env := &testEnv{
		store:    store,
		google:   &fakeGoogle{},
		facebook: &fakeFacebook{userID: "fb-1"},
		queue:    &recordingQueue{},
	}
	env.deps = Dependencies{
		Store:      store,
		Hasher:     hashing.NewHasher(cfg),
		Tokens:     token.NewService(cfg.JWT),
		Encryption: encryption.NewEncryptionManager(cfg, nil, zap.NewNop()),
		Google:     env.google,
		Facebook:   env.facebook,
		Notifications: notification.NewDispatcher(
			notification.NewMockProvider(zap.NewNop()),
			store.Devices, store.Notifications,
			notification.Options{Retries: 2},
			nil, zap.NewNop()),
		WhatsApp: messaging.NewDispatcher(
			messaging.NewMockProvider(zap.NewNop()),
			messaging.NewFixedWindowLimiter(100, time.Second),
			store.Messages,
			messaging.Options{Retries: 2},
			nil, zap.NewNop()),
		Queue:          env.queue,
		WhatsAppWindow: time.Second,
	}
	return env
}

func (e *testEnv) factory() *ServiceFactory {
	return NewServiceFactory(e.deps, zap.NewNop())
}

func (e *testEnv) createUser(t *testing.T, user *models.User) *models.User {
	t.Helper()
	if err := e.store.Users.Create(context.Background(), user); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	return user
}

func strPtr(s string) *string { return &s }
