// Package sha256 derives fixed-width row keys for stored search results.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/JakeFAU/serp-crawler/internal/crawler"
)

// ResultKey returns the hex SHA-256 digest of the result's identity tuple.
// Equal results map to equal keys, so stores can use it as a uniqueness column.
func ResultKey(r crawler.SearchResult) string {
	sum := sha256.Sum256([]byte(r.Key()))
	return hex.EncodeToString(sum[:])
}
