package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FailMode decides what a check returns when the state store is unreachable.
// FailOpen admits (availability over strictness), FailClosed denies. Either
// way the outcome is logged distinctly from ordinary token exhaustion so
// operators can tell infrastructure failure from capacity pressure.
type FailMode string

const (
	FailOpen   FailMode = "open"
	FailClosed FailMode = "closed"
)

// ErrCostOverCapacity is returned when a per-call cost override exceeds the
// bucket capacity. Such a request could never be admitted, so it is treated
// as caller misconfiguration rather than a retryable denial.
var ErrCostOverCapacity = errors.New("requested cost exceeds bucket capacity")

const defaultSaveAttempts = 4

// Options carries per-check overrides and caller metadata for the audit trail.
type Options struct {
	CostOverride float64 // 0 means use the policy-resolved cost
	Metadata     Metadata
}

// Metadata is optional caller network info attached to violation records.
type Metadata struct {
	IPAddress string
	UserAgent string
}

// Result is the complete backoff contract returned to the gate: everything a
// client needs to self-throttle correctly.
type Result struct {
	Allowed    bool
	Tokens     float64
	RetryAfter time.Duration // zero when allowed
	ResetAt    time.Time
	Capacity   float64
	RefillRate float64
	Degraded   bool // true when the decision came from the fail mode, not the bucket
}

// Status is the non-consuming projection of one bucket.
type Status struct {
	Tokens   float64
	Capacity float64
	ResetAt  time.Time
}

// Service bridges the pure bucket arithmetic to persisted state: it owns the
// read-modify-write cycle and the violation trail. It holds no mutable
// in-process state, so any number of request goroutines may share one Service.
type Service struct {
	policies     *PolicyTable
	states       StateStore
	violations   ViolationStore
	publisher    ViolationPublisher // optional
	failMode     FailMode
	saveAttempts int
	logger       *zap.Logger
	now          func() time.Time
}

// ServiceOption customizes Service construction.
type ServiceOption func(*Service)

// WithFailMode sets the storage-failure policy. The default is FailOpen.
func WithFailMode(mode FailMode) ServiceOption {
	return func(s *Service) { s.failMode = mode }
}

// WithPublisher attaches a violation event publisher.
func WithPublisher(p ViolationPublisher) ServiceOption {
	return func(s *Service) { s.publisher = p }
}

// WithSaveAttempts bounds the compare-and-swap retry loop.
func WithSaveAttempts(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.saveAttempts = n
		}
	}
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func NewService(policies *PolicyTable, states StateStore, violations ViolationStore, logger *zap.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		policies:     policies,
		states:       states,
		violations:   violations,
		failMode:     FailOpen,
		saveAttempts: defaultSaveAttempts,
		logger:       logger,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Check is the primary gate: it resolves the policy for the resource, runs
// one consume cycle against persisted state, records a violation on denial,
// and returns the decision. Denial is a normal outcome, not an error.
func (s *Service) Check(ctx context.Context, subject, resource string, opts Options) (Result, error) {
	cfg := s.policies.ResolveConfig(resource)

	cost := opts.CostOverride
	if cost <= 0 {
		cost = s.policies.ResolveCost(resource, cfg.Cost)
	}
	if cost > cfg.Capacity {
		return Result{}, fmt.Errorf("%w: cost %g, capacity %g for %q", ErrCostOverCapacity, cost, cfg.Capacity, resource)
	}

	key := BucketKey{Subject: subject, Resource: resource}

	for attempt := 0; attempt < s.saveAttempts; attempt++ {
		now := s.now()

		stored, found, err := s.states.Load(ctx, key)
		if err != nil {
			return s.failPolicy(cfg, cost, "load", err), nil
		}

		var prev *State
		state := NewState(cfg, now)
		if found {
			prev = &stored
			state = stored
		}

		outcome, next := Consume(cfg, state, now, cost)

		if err := s.states.Save(ctx, key, prev, next); err != nil {
			if errors.Is(err, ErrConflict) {
				continue
			}
			return s.failPolicy(cfg, cost, "save", err), nil
		}

		if !outcome.Allowed {
			s.recordViolation(ctx, key, now, cost, outcome.Tokens, opts.Metadata)
		}

		return Result{
			Allowed:    outcome.Allowed,
			Tokens:     outcome.Tokens,
			RetryAfter: outcome.RetryAfter,
			ResetAt:    outcome.ResetAt,
			Capacity:   cfg.Capacity,
			RefillRate: cfg.RefillRate,
		}, nil
	}

	// Contention exhausted every attempt; treat like a storage failure.
	return s.failPolicy(cfg, cost, "save", fmt.Errorf("gave up after %d conflicts", s.saveAttempts)), nil
}

// Status computes the current token level without consuming or persisting
// anything. Callers may poll it freely without affecting their quota.
func (s *Service) Status(ctx context.Context, subject, resource string) (Status, error) {
	cfg := s.policies.ResolveConfig(resource)
	now := s.now()

	stored, found, err := s.states.Load(ctx, BucketKey{Subject: subject, Resource: resource})
	if err != nil {
		return Status{}, fmt.Errorf("failed to load bucket state: %w", err)
	}
	if !found {
		return Status{Tokens: cfg.Capacity, Capacity: cfg.Capacity, ResetAt: now}, nil
	}

	tokens := CurrentTokens(cfg, stored, now)
	return Status{Tokens: tokens, Capacity: cfg.Capacity, ResetAt: resetTime(cfg, tokens, now)}, nil
}

// Reset deletes persisted state for one (subject, resource) pair, or for all
// of a subject's resources when resource is empty. The next check
// reinitializes a full bucket. Administrative escape hatch only.
func (s *Service) Reset(ctx context.Context, subject, resource string) error {
	var err error
	if resource == "" {
		err = s.states.DeleteSubject(ctx, subject)
	} else {
		err = s.states.Delete(ctx, BucketKey{Subject: subject, Resource: resource})
	}
	if err != nil {
		return fmt.Errorf("failed to reset bucket state: %w", err)
	}
	s.logger.Info("rate limit bucket reset",
		zap.String("subject", subject),
		zap.String("resource", resource))
	return nil
}

// Violations returns the subject's most recent denials, newest first.
func (s *Service) Violations(ctx context.Context, subject string, limit int) ([]Violation, error) {
	if limit <= 0 {
		limit = 50
	}
	records, err := s.violations.List(ctx, subject, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query violations: %w", err)
	}
	return records, nil
}

func (s *Service) recordViolation(ctx context.Context, key BucketKey, now time.Time, cost, tokens float64, md Metadata) {
	v := Violation{
		ID:              uuid.NewString(),
		Subject:         key.Subject,
		Resource:        key.Resource,
		OccurredAt:      now,
		CostRequested:   cost,
		TokensAvailable: tokens,
		IPAddress:       md.IPAddress,
		UserAgent:       md.UserAgent,
	}

	if err := s.violations.Record(ctx, v); err != nil {
		s.logger.Error("failed to record rate limit violation",
			zap.String("subject", key.Subject),
			zap.String("resource", key.Resource),
			zap.Error(err))
	}

	if s.publisher != nil {
		go func() {
			pubCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.publisher.Publish(pubCtx, v); err != nil {
				s.logger.Warn("failed to publish rate limit violation",
					zap.String("subject", v.Subject),
					zap.String("resource", v.Resource),
					zap.Error(err))
			}
		}()
	}
}

// failPolicy converts a storage failure into the configured fail-open or
// fail-closed decision. Logged as infrastructure failure, never as token
// exhaustion.
func (s *Service) failPolicy(cfg Config, cost float64, op string, err error) Result {
	s.logger.Error("rate limit storage unavailable, applying fail mode",
		zap.String("op", op),
		zap.String("fail_mode", string(s.failMode)),
		zap.Error(err))

	now := s.now()
	if s.failMode == FailClosed {
		retry := time.Duration(math.Ceil(cost/cfg.RefillRate)) * time.Second
		return Result{
			Allowed:    false,
			Tokens:     0,
			RetryAfter: retry,
			ResetAt:    now.Add(retry),
			Capacity:   cfg.Capacity,
			RefillRate: cfg.RefillRate,
			Degraded:   true,
		}
	}
	return Result{
		Allowed:    true,
		Tokens:     cfg.Capacity,
		ResetAt:    now,
		Capacity:   cfg.Capacity,
		RefillRate: cfg.RefillRate,
		Degraded:   true,
	}
}
