package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// ComputeQueryKey computes a deterministic cache key using SHA256.
// Formula: prefix + ":" + SHA256(part1|part2|...|partN)
// Parts are formatted with %v, so callers must pass values whose printed form
// is canonical (sorted slices, normalized strings).
func ComputeQueryKey(prefix string, parts ...any) string {
	strs := make([]string, len(parts))
	for i, p := range parts {
		strs[i] = fmt.Sprintf("%v", p)
	}

	hash := sha256.Sum256([]byte(strings.Join(strs, "|")))
	return prefix + ":" + hex.EncodeToString(hash[:])
}
