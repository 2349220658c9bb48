// Package extract turns search result pages into SearchResults using CSS selectors.
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/serp-crawler/internal/crawler"
)

// Extractor implements crawler.Extractor with goquery.
type Extractor struct{}

// New returns an Extractor.
func New() Extractor {
	return Extractor{}
}

// Extract returns one result per container matched by cfg.ResultSelector.
// Missing fields become sentinel values; a bad item never drops the rest of the page.
func (Extractor) Extract(body []byte, cfg crawler.ExtractionConfig) ([]crawler.SearchResult, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	if strings.TrimSpace(cfg.ResultSelector) == "" {
		return nil, nil
	}
	var results []crawler.SearchResult
	doc.Find(cfg.ResultSelector).Each(func(_ int, item *goquery.Selection) {
		results = append(results, extractItem(item, cfg))
	})
	return results, nil
}

func extractItem(item *goquery.Selection, cfg crawler.ExtractionConfig) crawler.SearchResult {
	result := crawler.SearchResult{
		Title: textOr(item, cfg.TitleSelector, crawler.TitleNotFound),
		Link:  linkOr(item, cfg.LinkSelector, cfg.LinkPrefix),
	}
	if len(cfg.Fields) > 0 {
		result.Fields = make(map[string]string, len(cfg.Fields))
		for _, rule := range cfg.Fields {
			missing := crawler.FieldNotFound(rule.Name)
			if rule.Attr != "" {
				result.Fields[rule.Name] = attrOr(item, rule.Selector, rule.Attr, missing)
				continue
			}
			result.Fields[rule.Name] = textOr(item, rule.Selector, missing)
		}
	}
	return result
}

func find(item *goquery.Selection, selector string) *goquery.Selection {
	if strings.TrimSpace(selector) == "" {
		return nil
	}
	sel := item.Find(selector).First()
	if sel.Length() == 0 {
		return nil
	}
	return sel
}

func textOr(item *goquery.Selection, selector, missing string) string {
	sel := find(item, selector)
	if sel == nil {
		return missing
	}
	text := strings.Join(strings.Fields(sel.Text()), " ")
	if text == "" {
		return missing
	}
	return text
}

func attrOr(item *goquery.Selection, selector, attr, missing string) string {
	sel := find(item, selector)
	if sel == nil {
		return missing
	}
	val, ok := sel.Attr(attr)
	val = strings.TrimSpace(val)
	if !ok || val == "" {
		return missing
	}
	return val
}

func linkOr(item *goquery.Selection, selector, prefix string) string {
	href := attrOr(item, selector, "href", "")
	if href == "" {
		return crawler.LinkNotFound
	}
	if prefix != "" && !isAbsolute(href) {
		return strings.TrimRight(prefix, "/") + "/" + strings.TrimLeft(href, "/")
	}
	return href
}

func isAbsolute(href string) bool {
	lower := strings.ToLower(href)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "//")
}
