// Package sink appends newly discovered results to durable storage exactly once.
package sink

import "github.com/JakeFAU/serp-crawler/internal/crawler"

// Merge returns the results in newResults that are not in existing, in their original
// order and without duplicates among themselves. Merge(Merge(n, e), e) == Merge(n, e).
func Merge(newResults, existing []crawler.SearchResult) []crawler.SearchResult {
	seen := make(map[string]struct{}, len(existing)+len(newResults))
	for _, r := range existing {
		seen[r.Key()] = struct{}{}
	}
	var out []crawler.SearchResult
	for _, r := range newResults {
		key := r.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}
