package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/dhruv-2604/social-echelon-sub002/internal/ratelimit"
	"github.com/dhruv-2604/social-echelon-sub002/internal/util"
)

// RateLimitHandler exposes the administrative and introspection surface of
// the limiter: status, reset, and the violation audit trail.
type RateLimitHandler struct {
	limiter *ratelimit.Service
	logger  *zap.Logger
}

func NewRateLimitHandler(limiter *ratelimit.Service, logger *zap.Logger) *RateLimitHandler {
	return &RateLimitHandler{limiter: limiter, logger: logger}
}

// RegisterRoutes mounts the handler under the given router.
func (h *RateLimitHandler) RegisterRoutes(r chi.Router) {
	r.Get("/status", h.GetStatus)
	r.Delete("/buckets/{subject}", h.ResetBuckets)
	r.Get("/violations/{subject}", h.GetViolations)
}

// GetStatus returns the current token level without consuming quota.
func (h *RateLimitHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	subject := r.URL.Query().Get("subject")
	resource := r.URL.Query().Get("resource")
	if !util.ValidIdentifier(subject) || !util.ValidIdentifier(resource) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "subject and resource query parameters are required",
		})
		return
	}

	status, err := h.limiter.Status(r.Context(), subject, resource)
	if err != nil {
		h.logger.Error("failed to read bucket status",
			zap.String("subject", subject),
			zap.String("resource", resource),
			zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "bucket storage unavailable",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"subject":          subject,
		"resource":         resource,
		"tokens_available": status.Tokens,
		"capacity":         status.Capacity,
		"reset_at":         status.ResetAt.UTC().Format(time.RFC3339),
	})
}

// ResetBuckets deletes persisted state for one resource (when the resource
// query parameter is present) or for every resource of the subject.
func (h *RateLimitHandler) ResetBuckets(w http.ResponseWriter, r *http.Request) {
	subject := chi.URLParam(r, "subject")
	resource := r.URL.Query().Get("resource")
	if !util.ValidIdentifier(subject) || (resource != "" && !util.ValidIdentifier(resource)) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid subject or resource"})
		return
	}

	if err := h.limiter.Reset(r.Context(), subject, resource); err != nil {
		h.logger.Error("failed to reset buckets",
			zap.String("subject", subject),
			zap.String("resource", resource),
			zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "bucket storage unavailable",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// GetViolations returns the subject's most recent denials, newest first.
func (h *RateLimitHandler) GetViolations(w http.ResponseWriter, r *http.Request) {
	subject := chi.URLParam(r, "subject")
	if !util.ValidIdentifier(subject) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid subject"})
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be in 1..500"})
			return
		}
		limit = n
	}

	violations, err := h.limiter.Violations(r.Context(), subject, limit)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			writeJSON(w, http.StatusGatewayTimeout, map[string]string{"error": "audit query timed out"})
			return
		}
		h.logger.Error("failed to query violations",
			zap.String("subject", subject),
			zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "audit storage unavailable",
		})
		return
	}

	if violations == nil {
		violations = []ratelimit.Violation{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"subject":    subject,
		"violations": violations,
	})
}
