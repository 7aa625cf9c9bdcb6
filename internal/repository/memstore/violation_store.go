package memstore

import (
	"context"
	"sync"

	"github.com/dhruv-2604/social-echelon-sub002/internal/ratelimit"
)

// ViolationStore keeps violations in memory, newest appended last.
type ViolationStore struct {
	mu         sync.Mutex
	violations []ratelimit.Violation
}

var _ ratelimit.ViolationStore = (*ViolationStore)(nil)

func NewViolationStore() *ViolationStore {
	return &ViolationStore{}
}

func (s *ViolationStore) Record(_ context.Context, v ratelimit.Violation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.violations = append(s.violations, v)
	return nil
}

func (s *ViolationStore) List(_ context.Context, subject string, limit int) ([]ratelimit.Violation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []ratelimit.Violation
	for i := len(s.violations) - 1; i >= 0 && len(out) < limit; i-- {
		if s.violations[i].Subject == subject {
			out = append(out, s.violations[i])
		}
	}
	return out, nil
}
