package processor

import (
	"regexp"
	"strings"
	"sync"
)

// matchEndpoint reports whether endpoint falls inside a processor's
// declared endpoint family. Supports the same wildcard shapes as
// invalidation/patterns.go's matchWildcard (prefix*, *suffix, *contains*),
// narrowed here to a single pattern against a single string rather than a
// whole key set, since a processor only ever tests its own pattern. A
// pattern with a wildcard anywhere else, including a middle wildcard like
// "serp/*/organic/task_get", falls through to the same regex conversion
// invalidation/patterns.go's matchWildcard uses for its "complex wildcard"
// case.
func matchEndpoint(pattern, endpoint string) bool {
	if pattern == "" {
		return false
	}
	if pattern == "*" {
		return true
	}
	switch {
	case strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*") && len(pattern) > 1:
		return strings.Contains(endpoint, strings.Trim(pattern, "*"))
	case strings.HasPrefix(pattern, "*") && strings.Count(pattern, "*") == 1:
		return strings.HasSuffix(endpoint, strings.TrimPrefix(pattern, "*"))
	case strings.HasSuffix(pattern, "*") && strings.Count(pattern, "*") == 1:
		return strings.HasPrefix(endpoint, strings.TrimSuffix(pattern, "*"))
	case !strings.Contains(pattern, "*"):
		return endpoint == pattern
	default:
		return endpointRegex(pattern).MatchString(endpoint)
	}
}

var regexCache sync.Map // pattern string -> *regexp.Regexp

// endpointRegex compiles (and caches) the regex form of a wildcard pattern
// containing a wildcard that isn't purely prefix*/*suffix/*contains*.
// Grounded on invalidation/patterns.go's wildcardToRegex + regexCache.
func endpointRegex(pattern string) *regexp.Regexp {
	if cached, ok := regexCache.Load(pattern); ok {
		return cached.(*regexp.Regexp)
	}
	escaped := regexp.QuoteMeta(pattern)
	escaped = strings.ReplaceAll(escaped, "\\*", ".*")
	re := regexp.MustCompile("^" + escaped + "$")
	regexCache.Store(pattern, re)
	return re
}

// likePattern converts the same wildcard syntax to a SQL LIKE pattern for
// ResetProcessed, which operates server-side over a whole table instead of
// a batch already pulled into memory.
func likePattern(pattern string) string {
	return strings.ReplaceAll(pattern, "*", "%")
}
