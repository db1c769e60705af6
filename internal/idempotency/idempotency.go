// Package idempotency computes the deterministic fingerprint used to detect
// whether a (trip, notification kind, payload) triple has already been sent.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Hash returns the first 16 hex characters of the SHA-256 digest of the
// trip id, the kind, and canonicalJSON(payload) joined with "|", so two
// trips or kinds with an identical payload never collide.
func Hash(tripID string, kind string, payload map[string]string) (string, error) {
	canon, err := CanonicalJSON(payload)
	if err != nil {
		return "", fmt.Errorf("canonicalizing idempotency payload: %w", err)
	}

	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", tripID, kind, canon)))
	return hex.EncodeToString(sum[:])[:16], nil
}

// CanonicalJSON serializes v with map keys sorted, so the same logical
// payload always produces the same bytes regardless of field insertion
// order.
func CanonicalJSON(v map[string]string) ([]byte, error) {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}, len(keys))
	for i, k := range keys {
		ordered[i].Key = k
		ordered[i].Value = v[k]
	}

	return json.Marshal(ordered)
}
