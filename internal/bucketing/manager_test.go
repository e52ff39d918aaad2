package bucketing

import (
	"fmt"
	"testing"

	"auth-notify-service/internal/config"
)

func newManager(lanes int) *BucketingManager {
	return NewBucketingManager(&config.Config{Bucketing: config.BucketingConfig{TaskLanes: lanes}})
}

func TestLaneIsStable(t *testing.T) {
	t.Parallel()

	bm := newManager(8)
	for i := 0; i < 50; i++ {
		key := fmt.Sprintf("+1555000%04d", i)
		first := bm.Lane(key)
		if first < 0 || first >= bm.Lanes() {
			t.Fatalf("Lane(%q) = %d, out of range", key, first)
		}
		if again := bm.Lane(key); again != first {
			t.Errorf("Lane(%q) = %d then %d", key, first, again)
		}
	}
}

func TestLaneSpreadsKeys(t *testing.T) {
	t.Parallel()

	bm := newManager(4)
	seen := map[int]bool{}
	for i := 0; i < 200; i++ {
		seen[bm.Lane(fmt.Sprintf("user-%d", i))] = true
	}
	if len(seen) != 4 {
		t.Errorf("200 keys landed on %d lanes, want 4", len(seen))
	}
}

func TestLanesDefaultsToOne(t *testing.T) {
	t.Parallel()

	bm := newManager(0)
	if bm.Lanes() != 1 {
		t.Fatalf("Lanes() = %d, want 1", bm.Lanes())
	}
	if lane := bm.Lane("anything"); lane != 0 {
		t.Errorf("Lane() = %d, want 0", lane)
	}
}
