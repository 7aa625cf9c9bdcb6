package util

import "strings"

// identifier characters allowed in subjects and resources; anything else is
// rejected before it reaches the store or the audit trail. Colon is excluded:
// it delimits the components of the Redis bucket key, and a subject carrying
// one could alias another subject's keys.
const identifierChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-_./@"

// ValidIdentifier reports whether s is safe to use as a bucket subject or
// resource name.
func ValidIdentifier(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 256 {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune(identifierChars, r) {
			return false
		}
	}
	return true
}
