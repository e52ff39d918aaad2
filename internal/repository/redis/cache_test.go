package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"auth-notify-service/internal/client"
	"auth-notify-service/internal/models"
)

func newTestClient(t *testing.T) (*client.RedisClient, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return &client.RedisClient{Client: rdb}, mr
}

func TestRateLimitCacheIncrementWindow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	rc, _ := newTestClient(t)
	cache := NewRateLimitCache(rc)
	now := time.Unix(1_700_000_000, 0)
	cache.now = func() time.Time { return now }

	for want := int64(1); want <= 3; want++ {
		got, err := cache.IncrementWindow(ctx, "whatsapp", time.Second)
		if err != nil {
			t.Fatalf("IncrementWindow() error: %v", err)
		}
		if got != want {
			t.Errorf("IncrementWindow() = %d, want %d", got, want)
		}
	}

	now = now.Add(time.Second)
	got, err := cache.IncrementWindow(ctx, "whatsapp", time.Second)
	if err != nil {
		t.Fatalf("IncrementWindow() error: %v", err)
	}
	if got != 1 {
		t.Errorf("IncrementWindow() in next window = %d, want 1", got)
	}

	other, err := cache.IncrementWindow(ctx, "other", time.Second)
	if err != nil {
		t.Fatalf("IncrementWindow() error: %v", err)
	}
	if other != 1 {
		t.Errorf("IncrementWindow(other) = %d, want 1", other)
	}
}

func TestRateLimitCacheRejectsZeroWindow(t *testing.T) {
	t.Parallel()

	rc, _ := newTestClient(t)
	if _, err := NewRateLimitCache(rc).IncrementWindow(context.Background(), "k", 0); err == nil {
		t.Error("IncrementWindow(0) error = nil, want error")
	}
}

func TestTaskResultCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	rc, mr := newTestClient(t)
	cache := NewTaskResultCache(rc, time.Hour)

	if _, err := cache.Get(ctx, "missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrTaskNotFound", err)
	}

	saved := &models.TaskResult{
		TaskID:    "t-1",
		Name:      "send_whatsapp_message",
		State:     models.TaskSuccess,
		Result:    json.RawMessage(`{"success":true}`),
		UpdatedAt: time.Now().UTC(),
	}
	if err := cache.Save(ctx, saved); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	got, err := cache.Get(ctx, "t-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.State != models.TaskSuccess {
		t.Errorf("State = %q, want %q", got.State, models.TaskSuccess)
	}
	if string(got.Result) != `{"success":true}` {
		t.Errorf("Result = %s, want {\"success\":true}", got.Result)
	}

	if ttl := mr.TTL(taskResultPrefix + "t-1"); ttl != time.Hour {
		t.Errorf("TTL = %v, want 1h", ttl)
	}

	mr.FastForward(2 * time.Hour)
	if _, err := cache.Get(ctx, "t-1"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Get() after expiry error = %v, want ErrTaskNotFound", err)
	}
}
