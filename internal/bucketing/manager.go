package bucketing

import (
	"hash"
	"sync"

	"auth-notify-service/internal/config"

	"github.com/spaolacci/murmur3"
)

// BucketingManager assigns routing keys to a fixed number of worker lanes.
// The same key always lands on the same lane, so tasks for one recipient
// are handled in submission order while different recipients run in
// parallel.
type BucketingManager struct {
	lanes      int
	hasherPool sync.Pool
}

func NewBucketingManager(cfg *config.Config) *BucketingManager {
	lanes := cfg.Bucketing.TaskLanes
	if lanes < 1 {
		lanes = 1
	}

	bm := &BucketingManager{lanes: lanes}

	// Create pool of hash functions to avoid allocation overhead
	bm.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}

	return bm
}

// Lane returns the lane (0 to Lanes()-1) for key.
func (bm *BucketingManager) Lane(key string) int {
	return int(bm.getHash(key) % uint64(bm.lanes))
}

// Lanes returns the number of lanes
func (bm *BucketingManager) Lanes() int {
	return bm.lanes
}

func (bm *BucketingManager) getHash(key string) uint64 {
	hasher := bm.hasherPool.Get().(hash.Hash64)
	defer bm.hasherPool.Put(hasher)

	hasher.Reset()
	_, _ = hasher.Write([]byte(key))
	return hasher.Sum64()
}
