package bucketing

import (
	"hash"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"
)

// Assigner maps identifiers onto a fixed number of event buckets so audit
// rows spread evenly across ClickHouse partitions.
type Assigner struct {
	eventBuckets int
	pool         sync.Pool
}

func NewAssigner(eventBuckets int) *Assigner {
	return &Assigner{
		eventBuckets: eventBuckets,
		pool: sync.Pool{
			New: func() interface{} { return murmur3.New64() },
		},
	}
}

// EventBucket returns a stable bucket in [0, eventBuckets) for an identifier.
func (a *Assigner) EventBucket(identifier string) int {
	hasher := a.pool.Get().(hash.Hash64)
	defer a.pool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(identifier))
	return int(hasher.Sum64() % uint64(a.eventBuckets))
}

// DateBucket returns the UTC day a timestamp partitions into.
func (a *Assigner) DateBucket(t time.Time) time.Time {
	year, month, day := t.UTC().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}
