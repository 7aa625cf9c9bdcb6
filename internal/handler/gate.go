package handler

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/dhruv-2604/social-echelon-sub002/internal/ratelimit"
	"github.com/dhruv-2604/social-echelon-sub002/internal/util"
)

// subjectHeader carries the caller identity resolved by the upstream auth
// layer. The gate itself never authenticates.
const subjectHeader = "X-User-ID"

// Gate intercepts inbound calls, runs them through the limiter, and
// translates the decision into HTTP. A request without a resolved subject is
// an authorization failure, not an unlimited pass; it is rejected here by
// deliberate choice.
type Gate struct {
	limiter *ratelimit.Service
	logger  *zap.Logger
}

func NewGate(limiter *ratelimit.Service, logger *zap.Logger) *Gate {
	return &Gate{limiter: limiter, logger: logger}
}

// Middleware wraps a handler with the rate limit check, keyed by
// (subject, request path).
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject := r.Header.Get(subjectHeader)
		if subject == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "missing caller identity",
			})
			return
		}
		if !util.ValidIdentifier(subject) {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid caller identity",
			})
			return
		}

		resource := r.URL.Path
		result, err := g.limiter.Check(r.Context(), subject, resource, ratelimit.Options{
			Metadata: ratelimit.Metadata{
				IPAddress: r.RemoteAddr,
				UserAgent: r.UserAgent(),
			},
		})
		if err != nil {
			g.logger.Error("rate limit check failed",
				zap.String("subject", subject),
				zap.String("resource", resource),
				zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "rate limit check failed",
			})
			return
		}

		setLimitHeaders(w, result)

		if !result.Allowed {
			retrySeconds := int64(math.Ceil(result.RetryAfter.Seconds()))
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retrySeconds))
			writeJSON(w, http.StatusTooManyRequests, deniedResponse{
				Error:           "rate_limit_exceeded",
				RetryAfterSecs:  retrySeconds,
				Capacity:        result.Capacity,
				TokensRemaining: result.Tokens,
				ResetAt:         result.ResetAt.UTC().Format(time.RFC3339),
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// deniedResponse is the complete backoff contract: retry delay, nominal
// capacity, remaining tokens, and the instant the bucket refills completely.
type deniedResponse struct {
	Error           string  `json:"error"`
	RetryAfterSecs  int64   `json:"retry_after_seconds"`
	Capacity        float64 `json:"capacity"`
	TokensRemaining float64 `json:"tokens_remaining"`
	ResetAt         string  `json:"reset_at"`
}

func setLimitHeaders(w http.ResponseWriter, result ratelimit.Result) {
	w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%.0f", result.Capacity))
	w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", int64(result.Tokens)))
	w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", result.ResetAt.Unix()))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
