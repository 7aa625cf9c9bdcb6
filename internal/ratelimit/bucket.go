package ratelimit

import (
	"fmt"
	"math"
	"time"
)

// Config defines one token bucket policy: how many tokens it can hold, how
// fast it refills, and how many tokens a single request consumes by default.
type Config struct {
	Capacity   float64
	RefillRate float64 // tokens per second
	Cost       float64 // tokens per request, overridable per call
}

// NewConfig validates the bucket parameters. Invalid values are a
// configuration error and fail construction; they are never clamped.
func NewConfig(capacity, refillRate, cost float64) (Config, error) {
	if capacity <= 0 {
		return Config{}, fmt.Errorf("bucket capacity must be positive, got %g", capacity)
	}
	if refillRate <= 0 {
		return Config{}, fmt.Errorf("bucket refill rate must be positive, got %g", refillRate)
	}
	if cost <= 0 {
		return Config{}, fmt.Errorf("bucket cost must be positive, got %g", cost)
	}
	if cost > capacity {
		return Config{}, fmt.Errorf("bucket cost %g exceeds capacity %g: no request could ever be admitted", cost, capacity)
	}
	return Config{Capacity: capacity, RefillRate: refillRate, Cost: cost}, nil
}

// State is the persisted observation of one bucket, keyed by
// (subject, resource) in the store.
type State struct {
	Tokens     float64   `json:"tokens"`
	LastRefill time.Time `json:"last_refill"`
}

// NewState returns the state of a freshly created bucket: full.
func NewState(cfg Config, now time.Time) State {
	return State{Tokens: cfg.Capacity, LastRefill: now}
}

// Outcome is the result of a single Consume evaluation.
type Outcome struct {
	Allowed    bool
	Tokens     float64       // tokens remaining after the decision
	RetryAfter time.Duration // only set on denial
	ResetAt    time.Time     // instant the bucket is full again
}

// CurrentTokens computes the token level at now, applying lazy refill.
// A backward clock jump clamps elapsed time to zero so the level never
// drops below the stored value.
func CurrentTokens(cfg Config, state State, now time.Time) float64 {
	elapsed := now.Sub(state.LastRefill).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	return math.Min(cfg.Capacity, state.Tokens+elapsed*cfg.RefillRate)
}

// Consume evaluates a request of the given cost against the bucket at now.
// It returns the outcome and the new state to persist. Denial does not
// consume tokens, but the new state still carries LastRefill=now so the
// next observation does not double-count refill.
func Consume(cfg Config, state State, now time.Time, cost float64) (Outcome, State) {
	tokens := CurrentTokens(cfg, state, now)

	if tokens >= cost {
		remaining := tokens - cost
		return Outcome{
			Allowed: true,
			Tokens:  remaining,
			ResetAt: resetTime(cfg, remaining, now),
		}, State{Tokens: remaining, LastRefill: now}
	}

	deficit := cost - tokens
	retryAfter := time.Duration(math.Ceil(deficit/cfg.RefillRate)) * time.Second
	return Outcome{
		Allowed:    false,
		Tokens:     tokens,
		RetryAfter: retryAfter,
		ResetAt:    resetTime(cfg, tokens, now),
	}, State{Tokens: tokens, LastRefill: now}
}

// resetTime is the instant the bucket will next be completely full: an
// upper bound on "unrestricted again", not the next admissible request.
func resetTime(cfg Config, tokens float64, now time.Time) time.Time {
	missing := cfg.Capacity - tokens
	if missing <= 0 {
		return now
	}
	return now.Add(time.Duration(missing / cfg.RefillRate * float64(time.Second)))
}
