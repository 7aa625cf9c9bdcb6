package ratelimit

import (
	"context"
	"errors"
	"time"
)

// BucketKey identifies one bucket: the caller the limit is scoped to and the
// resource being limited.
type BucketKey struct {
	Subject  string
	Resource string
}

// ErrConflict is returned by StateStore.Save when the stored state no longer
// matches the expected previous state. The caller re-reads and retries.
var ErrConflict = errors.New("bucket state changed concurrently")

// StateStore persists bucket state. Save is an optimistic compare-and-swap:
// it succeeds only if the stored state still equals prev (nil prev means the
// key must not exist yet). This is the property that keeps concurrent checks
// for the same key from over-admitting.
type StateStore interface {
	Load(ctx context.Context, key BucketKey) (State, bool, error)
	Save(ctx context.Context, key BucketKey, prev *State, next State) error
	Delete(ctx context.Context, key BucketKey) error
	DeleteSubject(ctx context.Context, subject string) error
}

// Violation is one recorded denial, kept append-only for audit.
type Violation struct {
	ID              string    `json:"id"`
	Subject         string    `json:"subject"`
	Resource        string    `json:"resource"`
	OccurredAt      time.Time `json:"occurred_at"`
	CostRequested   float64   `json:"cost_requested"`
	TokensAvailable float64   `json:"tokens_available"`
	IPAddress       string    `json:"ip_address,omitempty"`
	UserAgent       string    `json:"user_agent,omitempty"`
}

// ViolationStore appends and queries violation records.
type ViolationStore interface {
	Record(ctx context.Context, v Violation) error
	List(ctx context.Context, subject string, limit int) ([]Violation, error)
}

// ViolationPublisher pushes violation events onto a stream for downstream
// monitoring. Publishing is best effort and never affects the decision.
type ViolationPublisher interface {
	Publish(ctx context.Context, v Violation) error
}
