package memstore

import (
	"context"
	"sync"

	"github.com/dhruv-2604/social-echelon-sub002/internal/ratelimit"
)

// BucketStore keeps bucket state in process memory. Used by tests and
// single-node deployments; state does not survive a restart. The mutex plus
// value comparison gives the same compare-and-swap contract as the Redis
// store's conditional write.
type BucketStore struct {
	mu      sync.Mutex
	buckets map[ratelimit.BucketKey]ratelimit.State
}

var _ ratelimit.StateStore = (*BucketStore)(nil)

func NewBucketStore() *BucketStore {
	return &BucketStore{buckets: make(map[ratelimit.BucketKey]ratelimit.State)}
}

func (s *BucketStore) Load(_ context.Context, key ratelimit.BucketKey) (ratelimit.State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.buckets[key]
	return state, ok, nil
}

func (s *BucketStore) Save(_ context.Context, key ratelimit.BucketKey, prev *ratelimit.State, next ratelimit.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, exists := s.buckets[key]
	if prev == nil {
		if exists {
			return ratelimit.ErrConflict
		}
	} else {
		if !exists || stored.Tokens != prev.Tokens || !stored.LastRefill.Equal(prev.LastRefill) {
			return ratelimit.ErrConflict
		}
	}

	s.buckets[key] = next
	return nil
}

func (s *BucketStore) Delete(_ context.Context, key ratelimit.BucketKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, key)
	return nil
}

func (s *BucketStore) DeleteSubject(_ context.Context, subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.buckets {
		if key.Subject == subject {
			delete(s.buckets, key)
		}
	}
	return nil
}

// Len reports the number of stored buckets. Test helper.
func (s *BucketStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}
