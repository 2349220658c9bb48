// Package checkpoint persists crawl progress and decides what a run still has to fetch.
package checkpoint

import (
	"encoding/json"
	"fmt"

	"github.com/JakeFAU/serp-crawler/internal/crawler"
)

// Encode renders a checkpoint as indented JSON.
func Encode(cp crawler.Checkpoint) ([]byte, error) {
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode checkpoint: %w", err)
	}
	return data, nil
}

// Decode parses a checkpoint. Empty input or a document without a query is rejected.
func Decode(data []byte) (*crawler.Checkpoint, error) {
	var cp crawler.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	if cp.Query == "" {
		return nil, fmt.Errorf("decode checkpoint: missing query")
	}
	if cp.CurrentPage < cp.StartPage {
		cp.CurrentPage = cp.StartPage
	}
	return &cp, nil
}
