package util

import (
	"strings"
	"testing"
)

func TestValidIdentifier(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want bool
	}{
		{"plain subject", "user-42", true},
		{"resource path", "/api/content/generate", true},
		{"email-style subject", "bot@internal", true},
		{"dotted subject", "svc.trends.worker_1", true},
		{"empty", "", false},
		{"whitespace only", "   ", false},
		{"html injection", "<script>alert(1)</script>", false},
		{"embedded space", "user 42", false},
		// Colon would let a subject alias the delimiter inside the bucket
		// storage key, so deleting subject "team" could wipe "team:42".
		{"colon in subject", "team:42", false},
		{"leading colon", ":user", false},
		{"wildcard", "user-*", false},
		{"over length limit", strings.Repeat("a", 257), false},
		{"at length limit", strings.Repeat("a", 256), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ValidIdentifier(tc.in); got != tc.want {
				t.Errorf("ValidIdentifier(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}
