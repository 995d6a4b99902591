// Package hash provides shared hashing utilities for content and row IDs.
package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// IDLength is the number of hex characters used for truncated hash IDs.
// 16 hex chars = 8 bytes = 64 bits of entropy.
const IDLength = 16

// TruncatedSHA256 returns a truncated SHA256 hash of the input string.
func TruncatedSHA256(data string) string {
	h := sha256.Sum256([]byte(data))
	return hex.EncodeToString(h[:])[:IDLength]
}

// SHA256Text returns the full hex SHA256 of a string. Used for per-file
// content hashes in artifact manifests.
func SHA256Text(data string) string {
	h := sha256.Sum256([]byte(data))
	return hex.EncodeToString(h[:])
}

// ManifestEntry is one (path, content hash) pair contributing to an
// artifact hash.
type ManifestEntry struct {
	Path string
	Hash string
}

// ArtifactHash computes the deterministic hash of an artifact: the SHA256
// of the sorted "path\x00hash" lines of every fetched file. Path order and
// fetch order do not affect the result.
func ArtifactHash(entries []ManifestEntry) string {
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%s\x00%s", e.Path, e.Hash))
	}
	sort.Strings(lines)
	return SHA256Text(strings.Join(lines, "\n"))
}
