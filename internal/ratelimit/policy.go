package ratelimit

import (
	"fmt"
	"strings"
)

// Policy binds a resource pattern to a bucket config. Patterns are either
// exact resource names or contain a single "*" wildcard segment.
type Policy struct {
	Pattern     string
	Config      Config
	Description string
}

// costClass maps resource-name keywords to a cost multiplier. Classes are
// checked in order; the first class with a matching keyword wins.
type costClass struct {
	keywords   []string
	multiplier float64
}

// defaultCostClasses reflects how expensive each class of operation is for
// the platform: content generation and trend collection hit external AI and
// crawl services, analysis endpoints run models, everything else is a plain
// data-path request.
var defaultCostClasses = []costClass{
	{keywords: []string{"generate", "collect", "bulk"}, multiplier: 2.0},
	{keywords: []string{"analyze", "analysis", "detect"}, multiplier: 1.5},
}

// PolicyTable is the static, read-only mapping from resource to bucket
// config, established once at startup.
type PolicyTable struct {
	policies    []Policy
	exact       map[string]Config
	defaults    Config
	costClasses []costClass
}

// NewPolicyTable validates every entry and builds the lookup table.
// Validation covers the worst-case classified cost so a policy that could
// never admit a request fails here, not at first traffic.
func NewPolicyTable(policies []Policy, defaults Config) (*PolicyTable, error) {
	t := &PolicyTable{
		policies:    policies,
		exact:       make(map[string]Config, len(policies)),
		defaults:    defaults,
		costClasses: defaultCostClasses,
	}

	for _, p := range policies {
		if p.Pattern == "" {
			return nil, fmt.Errorf("rate limit policy with empty pattern (%q)", p.Description)
		}
		if strings.Count(p.Pattern, "*") > 1 {
			return nil, fmt.Errorf("rate limit policy %q: at most one wildcard segment is supported", p.Pattern)
		}
		if err := t.validatePolicyConfig(p); err != nil {
			return nil, err
		}
		if !strings.Contains(p.Pattern, "*") {
			if _, dup := t.exact[p.Pattern]; dup {
				return nil, fmt.Errorf("duplicate rate limit policy for %q", p.Pattern)
			}
			t.exact[p.Pattern] = p.Config
		}
	}

	if err := t.validatePolicyConfig(Policy{Pattern: "*", Config: defaults}); err != nil {
		return nil, err
	}
	return t, nil
}

// validatePolicyConfig checks the entry and its worst-case classified cost.
// An exact pattern's multiplier is known from its own name; a wildcard can
// match any resource name, so it must assume the largest multiplier.
func (t *PolicyTable) validatePolicyConfig(p Policy) error {
	cfg, err := NewConfig(p.Config.Capacity, p.Config.RefillRate, p.Config.Cost)
	if err != nil {
		return fmt.Errorf("rate limit policy %q: %w", p.Pattern, err)
	}

	multiplier := 1.0
	if strings.Contains(p.Pattern, "*") {
		for _, c := range t.costClasses {
			if c.multiplier > multiplier {
				multiplier = c.multiplier
			}
		}
	} else {
		multiplier = t.ResolveCost(p.Pattern, 1)
	}

	if worst := cfg.Cost * multiplier; worst > cfg.Capacity {
		return fmt.Errorf("rate limit policy %q: classified cost %g exceeds capacity %g", p.Pattern, worst, cfg.Capacity)
	}
	return nil
}

// ResolveConfig returns the bucket config for a resource: exact match first,
// then wildcard entries in declaration order (first match wins), then the
// global default.
func (t *PolicyTable) ResolveConfig(resource string) Config {
	if cfg, ok := t.exact[resource]; ok {
		return cfg
	}
	for _, p := range t.policies {
		if matchPattern(p.Pattern, resource) {
			return p.Config
		}
	}
	return t.defaults
}

// ResolvePolicy is ResolveConfig plus the matched entry's description, for
// introspection surfaces. The default entry reports an empty description.
func (t *PolicyTable) ResolvePolicy(resource string) (Config, string) {
	for _, p := range t.policies {
		if p.Pattern == resource {
			return p.Config, p.Description
		}
	}
	for _, p := range t.policies {
		if matchPattern(p.Pattern, resource) {
			return p.Config, p.Description
		}
	}
	return t.defaults, ""
}

// ResolveCost applies the cost classifier to a resource name.
func (t *PolicyTable) ResolveCost(resource string, base float64) float64 {
	lower := strings.ToLower(resource)
	for _, class := range t.costClasses {
		for _, kw := range class.keywords {
			if strings.Contains(lower, kw) {
				return base * class.multiplier
			}
		}
	}
	return base
}

// Default returns the global default config.
func (t *PolicyTable) Default() Config {
	return t.defaults
}

// matchPattern matches a single-wildcard pattern against a resource,
// anchored at both ends.
func matchPattern(pattern, resource string) bool {
	i := strings.IndexByte(pattern, '*')
	if i < 0 {
		return pattern == resource
	}
	prefix, suffix := pattern[:i], pattern[i+1:]
	return len(resource) >= len(prefix)+len(suffix) &&
		strings.HasPrefix(resource, prefix) &&
		strings.HasSuffix(resource, suffix)
}
