package sink

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JakeFAU/serp-crawler/internal/crawler"
)

func TestMergeDropsExistingAndDuplicates(t *testing.T) {
	t.Parallel()

	a := crawler.SearchResult{Title: "A", Link: "https://a"}
	b := crawler.SearchResult{Title: "B", Link: "https://b"}
	c := crawler.SearchResult{Title: "C", Link: "https://c", Fields: map[string]string{"snippet": "x"}}
	cOther := crawler.SearchResult{Title: "C", Link: "https://c", Fields: map[string]string{"snippet": "y"}}

	got := Merge([]crawler.SearchResult{c, a, b, c, cOther}, []crawler.SearchResult{a})
	assert.Equal(t, []crawler.SearchResult{c, b, cOther}, got)
}

func TestMergeIsIdempotent(t *testing.T) {
	t.Parallel()

	existing := []crawler.SearchResult{{Title: "A", Link: "https://a"}}
	fresh := []crawler.SearchResult{{Title: "B", Link: "https://b"}, {Title: "A", Link: "https://a"}}

	once := Merge(fresh, existing)
	twice := Merge(once, existing)
	assert.Equal(t, once, twice)
	assert.Empty(t, Merge(once, append(existing, once...)))
}

func TestMergeEmptyInputs(t *testing.T) {
	t.Parallel()

	assert.Empty(t, Merge(nil, nil))
	assert.Empty(t, Merge(nil, []crawler.SearchResult{{Title: "A"}}))
}
