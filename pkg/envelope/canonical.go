package envelope

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// CanonicalHash computes a deterministic "sha256:<hex>" digest of an arbitrary
// JSON-able value. Map keys are sorted recursively before marshaling so that
// two semantically equal configs (built from maps with different insertion
// order) hash identically — the property the schema cache's configHash
// depends on (SPEC_FULL.md §4.5, §9 "Cache-key determinism").
func CanonicalHash(value interface{}) (string, error) {
	canonical := canonicalize(value)
	data, err := json.Marshal(canonical)
	if err != nil {
		return "", err
	}
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:]), nil
}

// canonicalize recursively walks map[string]interface{} and []interface{}
// values and, through normalizeScalar, converts []string and
// map[string]string into their interface{} forms. Other typed values
// (e.g. map[string]int) pass through unchanged; encoding/json sorts the keys
// of every string-keyed map when marshaling, so the output stays ordered.
func canonicalize(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[k] = canonicalize(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, val := range v {
			out[i] = canonicalize(val)
		}
		return out
	default:
		return normalizeScalar(v)
	}
}

// normalizeScalar handles the common non-generic map/slice shapes that show
// up when callers build configs with typed Go structures instead of raw
// map[string]interface{} (e.g. []string), keeping the hash stable either way.
func normalizeScalar(value interface{}) interface{} {
	switch v := value.(type) {
	case []string:
		out := make([]interface{}, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	case map[string]string:
		out := make(map[string]interface{}, len(v))
		for k, s := range v {
			out[k] = s
		}
		return out
	default:
		return v
	}
}

// sortedKeys is an unexported helper for tests asserting canonicalization is
// key-order independent.
func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
