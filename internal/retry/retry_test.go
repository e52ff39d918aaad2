package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errFlaky = errors.New("flaky")

func TestPolicyDo(t *testing.T) {
	t.Parallel()

	t.Run("succeeds after transient failures", func(t *testing.T) {
		t.Parallel()

		calls := 0
		attempts, err := Policy{Attempts: 3}.Do(context.Background(), func(attempt int) error {
			calls++
			if attempt < 3 {
				return errFlaky
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Do() error: %v", err)
		}
		if attempts != 3 || calls != 3 {
			t.Errorf("attempts = %d, calls = %d, want 3 and 3", attempts, calls)
		}
	})

	t.Run("returns last error when exhausted", func(t *testing.T) {
		t.Parallel()

		attempts, err := Policy{Attempts: 2}.Do(context.Background(), func(int) error { return errFlaky })
		if !errors.Is(err, errFlaky) {
			t.Fatalf("Do() error = %v, want errFlaky", err)
		}
		if attempts != 2 {
			t.Errorf("attempts = %d, want 2", attempts)
		}
	})

	t.Run("permanent errors stop immediately", func(t *testing.T) {
		t.Parallel()

		calls := 0
		attempts, err := Policy{Attempts: 5, Backoff: time.Hour}.Do(context.Background(), func(int) error {
			calls++
			return Permanent(errFlaky)
		})
		if calls != 1 || attempts != 1 {
			t.Errorf("calls = %d, attempts = %d, want 1 and 1", calls, attempts)
		}
		if !errors.Is(err, errFlaky) || IsPermanent(err) {
			t.Errorf("Do() error = %v, want unwrapped errFlaky", err)
		}
	})

	t.Run("backoff grows linearly", func(t *testing.T) {
		t.Parallel()

		var stamps []time.Time
		_, _ = Policy{Attempts: 3, Backoff: 20 * time.Millisecond}.Do(context.Background(), func(int) error {
			stamps = append(stamps, time.Now())
			return errFlaky
		})
		if len(stamps) != 3 {
			t.Fatalf("got %d attempts, want 3", len(stamps))
		}
		if gap := stamps[1].Sub(stamps[0]); gap < 20*time.Millisecond {
			t.Errorf("first pause = %v, want >= 20ms", gap)
		}
		if gap := stamps[2].Sub(stamps[1]); gap < 40*time.Millisecond {
			t.Errorf("second pause = %v, want >= 40ms", gap)
		}
	})

	t.Run("cancellation aborts the wait", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		start := time.Now()
		_, err := Policy{Attempts: 3, Backoff: time.Hour}.Do(ctx, func(int) error {
			calls++
			cancel()
			return errFlaky
		})
		if calls != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
		if !errors.Is(err, errFlaky) {
			t.Errorf("Do() error = %v, want errFlaky", err)
		}
		if time.Since(start) > time.Second {
			t.Error("Do() waited despite cancellation")
		}
	})
}

func TestPermanentNil(t *testing.T) {
	t.Parallel()

	if Permanent(nil) != nil {
		t.Error("Permanent(nil) != nil")
	}
}
