package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// InputHash computes the deduplication digest for a run submission.
// Brands and prompts are lowercased (matching their case-insensitive
// identity) and all three sets are sorted, so any permutation or
// casing of the same sets yields the same hash.
func InputHash(brands, prompts, models []string) string {
	payload := struct {
		Brands  []string `json:"brands"`
		Prompts []string `json:"prompts"`
		Models  []string `json:"models"`
	}{
		Brands:  normalizeSet(brands, true),
		Prompts: normalizeSet(prompts, true),
		Models:  normalizeSet(models, false),
	}

	// Struct field order is fixed, so the JSON form is deterministic.
	raw, _ := json.Marshal(payload)

	sum := sha256.Sum256(raw)

	return hex.EncodeToString(sum[:])
}

// normalizeSet returns a sorted copy of values, optionally lowercased.
func normalizeSet(values []string, fold bool) []string {
	out := make([]string, 0, len(values))

	for _, v := range values {
		if fold {
			v = strings.ToLower(v)
		}

		out = append(out, v)
	}

	sort.Strings(out)

	return out
}
