package config

import "github.com/dhruv-2604/social-echelon-sub002/internal/ratelimit"

// DefaultPolicies is the static rate limit table for the API surface.
// Declaration order matters: wildcard resolution takes the first match.
func DefaultPolicies() []ratelimit.Policy {
	return []ratelimit.Policy{
		{
			Pattern:     "/api/content/generate",
			Config:      ratelimit.Config{Capacity: 10, RefillRate: 0.2, Cost: 1},
			Description: "AI content generation",
		},
		{
			Pattern:     "/api/trends/collect",
			Config:      ratelimit.Config{Capacity: 5, RefillRate: 0.1, Cost: 1},
			Description: "trend collection runs",
		},
		{
			Pattern:     "/api/hashtags/analyze",
			Config:      ratelimit.Config{Capacity: 20, RefillRate: 0.5, Cost: 1},
			Description: "hashtag analysis",
		},
		{
			Pattern:     "/api/content/*",
			Config:      ratelimit.Config{Capacity: 60, RefillRate: 1, Cost: 1},
			Description: "content reads and edits",
		},
		{
			Pattern:     "/api/trends/*",
			Config:      ratelimit.Config{Capacity: 120, RefillRate: 2, Cost: 1},
			Description: "trend reads",
		},
		{
			Pattern:     "/api/feed",
			Config:      ratelimit.Config{Capacity: 240, RefillRate: 4, Cost: 1},
			Description: "feed fetches",
		},
		{
			Pattern:     "/api/posts/*",
			Config:      ratelimit.Config{Capacity: 120, RefillRate: 2, Cost: 1},
			Description: "post CRUD",
		},
		{
			Pattern:     "/api/profiles/*",
			Config:      ratelimit.Config{Capacity: 60, RefillRate: 1, Cost: 1},
			Description: "profile reads and updates",
		},
	}
}

// DefaultBucket is the global fallback for resources without a policy entry.
func DefaultBucket() ratelimit.Config {
	return ratelimit.Config{Capacity: 100, RefillRate: 2, Cost: 1}
}
