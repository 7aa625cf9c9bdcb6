package ratelimit

import "testing"

func testPolicies() []Policy {
	return []Policy{
		{Pattern: "/api/foo/exact", Config: Config{Capacity: 5, RefillRate: 1, Cost: 1}, Description: "exact"},
		{Pattern: "/api/foo/*", Config: Config{Capacity: 10, RefillRate: 1, Cost: 1}, Description: "foo wildcard"},
		{Pattern: "/api/*", Config: Config{Capacity: 20, RefillRate: 2, Cost: 1}, Description: "api wildcard"},
	}
}

func newTestTable(t *testing.T) *PolicyTable {
	t.Helper()
	table, err := NewPolicyTable(testPolicies(), Config{Capacity: 100, RefillRate: 2, Cost: 1})
	if err != nil {
		t.Fatalf("NewPolicyTable: %v", err)
	}
	return table
}

func TestResolveConfig_ExactBeatsWildcard(t *testing.T) {
	table := newTestTable(t)
	cfg := table.ResolveConfig("/api/foo/exact")
	if cfg.Capacity != 5 {
		t.Errorf("capacity = %g, want exact-match 5", cfg.Capacity)
	}
}

func TestResolveConfig_WildcardMatch(t *testing.T) {
	table := newTestTable(t)
	// An unknown resource under a configured pattern resolves to that
	// pattern's config, not the global default.
	cfg := table.ResolveConfig("/api/foo/bar")
	if cfg.Capacity != 10 {
		t.Errorf("capacity = %g, want /api/foo/* entry's 10", cfg.Capacity)
	}
}

func TestResolveConfig_DeclarationOrderWins(t *testing.T) {
	table := newTestTable(t)
	// "/api/foo/baz" matches both "/api/foo/*" and "/api/*"; the first
	// declared entry must win regardless of specificity.
	cfg := table.ResolveConfig("/api/foo/baz")
	if cfg.Capacity != 10 {
		t.Errorf("capacity = %g, want first-declared 10", cfg.Capacity)
	}

	reversed := []Policy{
		{Pattern: "/api/*", Config: Config{Capacity: 20, RefillRate: 2, Cost: 1}},
		{Pattern: "/api/foo/*", Config: Config{Capacity: 10, RefillRate: 1, Cost: 1}},
	}
	table2, err := NewPolicyTable(reversed, Config{Capacity: 100, RefillRate: 2, Cost: 1})
	if err != nil {
		t.Fatalf("NewPolicyTable: %v", err)
	}
	if cfg := table2.ResolveConfig("/api/foo/baz"); cfg.Capacity != 20 {
		t.Errorf("capacity = %g, want first-declared 20 after reordering", cfg.Capacity)
	}
}

func TestResolveConfig_FallsBackToDefault(t *testing.T) {
	table := newTestTable(t)
	cfg := table.ResolveConfig("/metrics")
	if cfg.Capacity != 100 {
		t.Errorf("capacity = %g, want default 100", cfg.Capacity)
	}
}

func TestMatchPattern_AnchoredBothEnds(t *testing.T) {
	cases := []struct {
		pattern, resource string
		want              bool
	}{
		{"/api/foo/*", "/api/foo/bar", true},
		{"/api/foo/*", "/api/foo/", true},
		{"/api/foo/*", "/api/foobar", false},
		{"/api/*/export", "/api/posts/export", true},
		{"/api/*/export", "/api/posts/export/all", false},
		{"/api/feed", "/api/feed", true},
		{"/api/feed", "/api/feeds", false},
	}
	for _, tc := range cases {
		if got := matchPattern(tc.pattern, tc.resource); got != tc.want {
			t.Errorf("matchPattern(%q, %q) = %v, want %v", tc.pattern, tc.resource, got, tc.want)
		}
	}
}

func TestResolveCost_Classifier(t *testing.T) {
	table := newTestTable(t)
	cases := []struct {
		resource string
		want     float64
	}{
		{"/api/content/generate", 2.0},
		{"/api/trends/collect", 2.0},
		{"/api/posts/bulk-delete", 2.0},
		{"/api/hashtags/analyze", 1.5},
		{"/api/spam/detect", 1.5},
		{"/api/feed", 1.0},
		{"/api/posts/123", 1.0},
	}
	for _, tc := range cases {
		if got := table.ResolveCost(tc.resource, 1); got != tc.want {
			t.Errorf("ResolveCost(%q) = %g, want %g", tc.resource, got, tc.want)
		}
	}

	// Multiplier applies to the base cost.
	if got := table.ResolveCost("/api/content/generate", 2); got != 4 {
		t.Errorf("ResolveCost with base 2 = %g, want 4", got)
	}
}

func TestNewPolicyTable_ValidatesEntries(t *testing.T) {
	defaults := Config{Capacity: 100, RefillRate: 2, Cost: 1}

	cases := []struct {
		name     string
		policies []Policy
	}{
		{"empty pattern", []Policy{{Pattern: "", Config: defaults}}},
		{"two wildcards", []Policy{{Pattern: "/api/*/x/*", Config: defaults}}},
		{"zero capacity", []Policy{{Pattern: "/a", Config: Config{Capacity: 0, RefillRate: 1, Cost: 1}}}},
		{"cost over capacity", []Policy{{Pattern: "/a", Config: Config{Capacity: 2, RefillRate: 1, Cost: 3}}}},
		// Worst-case classified cost (2x multiplier) would exceed capacity:
		// this must fail at startup, not become a permanent silent denial.
		{"classified cost over capacity", []Policy{{Pattern: "/a/generate", Config: Config{Capacity: 3, RefillRate: 1, Cost: 2}}}},
		{"duplicate exact", []Policy{
			{Pattern: "/a", Config: defaults},
			{Pattern: "/a", Config: defaults},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewPolicyTable(tc.policies, defaults); err == nil {
				t.Error("NewPolicyTable should fail")
			}
		})
	}

	if _, err := NewPolicyTable(testPolicies(), Config{Capacity: 0, RefillRate: 1, Cost: 1}); err == nil {
		t.Error("invalid default config should fail construction")
	}
}

func TestResolvePolicy_Description(t *testing.T) {
	table := newTestTable(t)
	if _, desc := table.ResolvePolicy("/api/foo/bar"); desc != "foo wildcard" {
		t.Errorf("description = %q, want \"foo wildcard\"", desc)
	}
	if _, desc := table.ResolvePolicy("/metrics"); desc != "" {
		t.Errorf("default description = %q, want empty", desc)
	}
}
