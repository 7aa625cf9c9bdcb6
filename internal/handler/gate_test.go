package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dhruv-2604/social-echelon-sub002/internal/handler"
	"github.com/dhruv-2604/social-echelon-sub002/internal/ratelimit"
	"github.com/dhruv-2604/social-echelon-sub002/internal/repository/memstore"
)

func newTestLimiter(t *testing.T) *ratelimit.Service {
	t.Helper()
	table, err := ratelimit.NewPolicyTable([]ratelimit.Policy{
		{Pattern: "/api/test", Config: ratelimit.Config{Capacity: 3, RefillRate: 1, Cost: 1}},
	}, ratelimit.Config{Capacity: 100, RefillRate: 2, Cost: 1})
	if err != nil {
		t.Fatal(err)
	}
	return ratelimit.NewService(table, memstore.NewBucketStore(), memstore.NewViolationStore(), zap.NewNop())
}

func newGatedServer(t *testing.T) http.Handler {
	t.Helper()
	gate := handler.NewGate(newTestLimiter(t), zap.NewNop())
	return gate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func doRequest(h http.Handler, subject string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	if subject != "" {
		req.Header.Set("X-User-ID", subject)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGate_MissingSubjectIsUnauthorized(t *testing.T) {
	srv := newGatedServer(t)
	rec := doRequest(srv, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestGate_RejectsMalformedSubject(t *testing.T) {
	srv := newGatedServer(t)
	// Colon-bearing subjects are rejected so they can never alias another
	// subject's storage keys or be caught by that subject's bucket reset.
	for _, subject := range []string{"<script>alert(1)</script>", "team:42"} {
		if rec := doRequest(srv, subject); rec.Code != http.StatusBadRequest {
			t.Errorf("subject %q: status = %d, want 400", subject, rec.Code)
		}
	}
}

func TestGate_AllowedRequestCarriesHeaders(t *testing.T) {
	srv := newGatedServer(t)
	rec := doRequest(srv, "user-1")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "3" {
		t.Errorf("X-RateLimit-Limit = %q, want \"3\"", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "2" {
		t.Errorf("X-RateLimit-Remaining = %q, want \"2\"", got)
	}
	if rec.Header().Get("X-RateLimit-Reset") == "" {
		t.Error("X-RateLimit-Reset missing")
	}
}

func TestGate_DeniedRequestCarriesBackoffContract(t *testing.T) {
	srv := newGatedServer(t)
	for i := 0; i < 3; i++ {
		if rec := doRequest(srv, "user-1"); rec.Code != http.StatusOK {
			t.Fatalf("draining call %d: status %d", i+1, rec.Code)
		}
	}

	rec := doRequest(srv, "user-1")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}

	var body struct {
		Error           string  `json:"error"`
		RetryAfterSecs  int64   `json:"retry_after_seconds"`
		Capacity        float64 `json:"capacity"`
		TokensRemaining float64 `json:"tokens_remaining"`
		ResetAt         string  `json:"reset_at"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error != "rate_limit_exceeded" {
		t.Errorf("error = %q", body.Error)
	}
	if body.RetryAfterSecs <= 0 {
		t.Error("retry_after_seconds must be positive")
	}
	if body.Capacity != 3 {
		t.Errorf("capacity = %g, want 3", body.Capacity)
	}
	if body.TokensRemaining >= 1 {
		t.Errorf("tokens_remaining = %g, want < 1", body.TokensRemaining)
	}
	if _, err := time.Parse(time.RFC3339, body.ResetAt); err != nil {
		t.Errorf("reset_at %q not RFC3339: %v", body.ResetAt, err)
	}

	// A different subject still gets through.
	if rec := doRequest(srv, "user-2"); rec.Code != http.StatusOK {
		t.Errorf("other subject status = %d, want 200", rec.Code)
	}
}
