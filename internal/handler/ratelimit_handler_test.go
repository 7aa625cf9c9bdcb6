package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"go.uber.org/zap"

	"github.com/dhruv-2604/social-echelon-sub002/internal/handler"
	"github.com/dhruv-2604/social-echelon-sub002/internal/ratelimit"
)

type stubHealth struct{ failures map[string]error }

func (s stubHealth) HealthCheck(context.Context) map[string]error { return s.failures }

func newAdminServer(t *testing.T) (*httptest.Server, *ratelimit.Service) {
	t.Helper()
	limiter := newTestLimiter(t)
	gate := handler.NewGate(limiter, zap.NewNop())
	limitHandler := handler.NewRateLimitHandler(limiter, zap.NewNop())
	router := handler.NewRouter(gate, limitHandler, stubHealth{}, zap.NewNop())
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, limiter
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatal(err)
		}
	}
	return resp.StatusCode
}

func TestStatusEndpoint_NonConsuming(t *testing.T) {
	srv, limiter := newAdminServer(t)

	if _, err := limiter.Check(context.Background(), "user-1", "/api/test", ratelimit.Options{}); err != nil {
		t.Fatal(err)
	}

	statusURL := srv.URL + "/api/v1/ratelimit/status?subject=user-1&resource=" + url.QueryEscape("/api/test")

	var first, second struct {
		TokensAvailable float64 `json:"tokens_available"`
		Capacity        float64 `json:"capacity"`
		ResetAt         string  `json:"reset_at"`
	}
	if code := getJSON(t, statusURL, &first); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if code := getJSON(t, statusURL, &second); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}

	if first.Capacity != 3 {
		t.Errorf("capacity = %g, want 3", first.Capacity)
	}
	// Two reads with no intervening check must agree (modulo the refill
	// that accrued between the two HTTP round trips).
	if second.TokensAvailable < first.TokensAvailable {
		t.Errorf("tokens decreased across reads: %g then %g", first.TokensAvailable, second.TokensAvailable)
	}
	if second.TokensAvailable-first.TokensAvailable > 0.5 {
		t.Errorf("tokens jumped across reads: %g then %g", first.TokensAvailable, second.TokensAvailable)
	}
}

func TestStatusEndpoint_RequiresParams(t *testing.T) {
	srv, _ := newAdminServer(t)
	if code := getJSON(t, srv.URL+"/api/v1/ratelimit/status", nil); code != http.StatusBadRequest {
		t.Errorf("status code = %d, want 400", code)
	}
}

func TestResetEndpoint(t *testing.T) {
	srv, limiter := newAdminServer(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		limiter.Check(ctx, "user-1", "/api/test", ratelimit.Options{})
	}
	if res, _ := limiter.Check(ctx, "user-1", "/api/test", ratelimit.Options{}); res.Allowed {
		t.Fatal("bucket should be exhausted before reset")
	}

	req, err := http.NewRequest(http.MethodDelete,
		srv.URL+"/api/v1/ratelimit/buckets/user-1?resource="+url.QueryEscape("/api/test"), nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("reset status = %d", resp.StatusCode)
	}

	res, err := limiter.Check(ctx, "user-1", "/api/test", ratelimit.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Allowed {
		t.Error("check after reset should admit as a fresh bucket")
	}
}

func TestViolationsEndpoint(t *testing.T) {
	srv, limiter := newAdminServer(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		limiter.Check(ctx, "user-1", "/api/test", ratelimit.Options{})
	}

	var body struct {
		Subject    string                `json:"subject"`
		Violations []ratelimit.Violation `json:"violations"`
	}
	if code := getJSON(t, srv.URL+"/api/v1/ratelimit/violations/user-1?limit=10", &body); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if len(body.Violations) != 2 {
		t.Fatalf("got %d violations, want 2", len(body.Violations))
	}
	if body.Violations[0].Resource != "/api/test" {
		t.Errorf("resource = %q", body.Violations[0].Resource)
	}

	if code := getJSON(t, srv.URL+"/api/v1/ratelimit/violations/user-1?limit=9999", nil); code != http.StatusBadRequest {
		t.Errorf("oversized limit status = %d, want 400", code)
	}

	// No violations yet for an unseen subject: empty list, not an error.
	body.Violations = nil
	if code := getJSON(t, srv.URL+"/api/v1/ratelimit/violations/user-9", &body); code != http.StatusOK {
		t.Errorf("status code = %d", code)
	}
	if len(body.Violations) != 0 {
		t.Errorf("got %d violations, want 0", len(body.Violations))
	}
}

func TestHealthEndpoint(t *testing.T) {
	limiter := newTestLimiter(t)
	gate := handler.NewGate(limiter, zap.NewNop())
	limitHandler := handler.NewRateLimitHandler(limiter, zap.NewNop())

	healthy := httptest.NewServer(handler.NewRouter(gate, limitHandler, stubHealth{}, zap.NewNop()))
	defer healthy.Close()
	if code := getJSON(t, healthy.URL+"/health", nil); code != http.StatusOK {
		t.Errorf("healthy status = %d, want 200", code)
	}

	degraded := httptest.NewServer(handler.NewRouter(gate, limitHandler,
		stubHealth{failures: map[string]error{"redis": errors.New("down")}}, zap.NewNop()))
	defer degraded.Close()
	if code := getJSON(t, degraded.URL+"/health", nil); code != http.StatusServiceUnavailable {
		t.Errorf("degraded status = %d, want 503", code)
	}
}
