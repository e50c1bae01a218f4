// Package cachekey implements the cache gateway's deterministic cache key
// generator (C3): a fixed-length digest of a canonicalized request
// fingerprint.
//
// Grounded on the teacher's pkg/utils/encoding.go CompactJSON idiom, but
// using goccy/go-json (a drop-in encoding/json replacement, see
// tomtom215-cartographus go.mod) as the serializer and adding the
// recursive key-sort canonicalization the spec requires for nested params.
package cachekey

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	json "github.com/goccy/go-json"
)

// Generate produces a 64-hex-character digest identifying the request
// fingerprint (client, endpoint, normalized params, method, version).
//
// Semantically equivalent params (same keys/values, any map ordering)
// always yield the same key: params is recursively canonicalized before
// serialization, and both encoding/json and goccy/go-json already sort
// map[string]any keys lexicographically when marshaling, so canonicalizing
// nested maps is what makes the guarantee hold at every depth.
func Generate(client, endpoint string, params map[string]any, method, version string) (string, error) {
	canonical := canonicalize(params)

	serialized, err := json.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("cachekey: marshal params: %w", err)
	}

	raw := fmt.Sprintf("%s|%s|%s|%s|%s", client, method, version, endpoint, serialized)

	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:]), nil
}

// canonicalize recursively walks maps and slices so that nested map key
// order never affects the serialized form. Arrays are left in given order
// per spec §4.3 step 1 — array element order is part of the fingerprint.
func canonicalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		out := make(map[string]any, len(val))
		for _, k := range keys {
			out[k] = canonicalize(val[k])
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = canonicalize(item)
		}
		return out
	default:
		return v
	}
}
