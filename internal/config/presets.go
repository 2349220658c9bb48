package config

import "github.com/JakeFAU/serp-crawler/internal/crawler"

// DefaultPreset is used when source.preset is empty.
const DefaultPreset = "pubmed"

// Presets returns the built-in search engine configurations keyed by name.
func Presets() map[string]crawler.SourceConfig {
	return map[string]crawler.SourceConfig{
		"pubmed": {
			Name:          "pubmed",
			BaseURL:       "https://pubmed.ncbi.nlm.nih.gov/",
			QueryParam:    "term",
			PageParam:     "page",
			ValidationURL: "https://pubmed.ncbi.nlm.nih.gov/",
			Extraction: crawler.ExtractionConfig{
				ResultSelector: "article.full-docsum",
				TitleSelector:  "a.docsum-title",
				LinkSelector:   "a.docsum-title",
				LinkPrefix:     "https://pubmed.ncbi.nlm.nih.gov",
			},
		},
		"scholar": {
			Name:          "scholar",
			BaseURL:       "https://scholar.google.com/scholar",
			QueryParam:    "q",
			PageParam:     "start",
			PageSize:      10,
			ValidationURL: "http://scholar.google.com",
			Extraction: crawler.ExtractionConfig{
				ResultSelector: "div.gs_r.gs_or.gs_scl",
				TitleSelector:  "h3.gs_rt",
				LinkSelector:   "h3.gs_rt > a",
				Fields: []crawler.FieldRule{
					{Name: "citation", Selector: "div.gs_a"},
					{Name: "snippet", Selector: "div.gs_rs"},
				},
			},
		},
		"google": {
			Name:              "google",
			BaseURL:           "https://www.google.com/search",
			QueryParam:        "q",
			PageParam:         "start",
			PageSize:          10,
			ValidationURL:     "https://www.google.com",
			SearchBoxSelector: "textarea[name=q]",
			Extraction: crawler.ExtractionConfig{
				ResultSelector: "div.g",
				TitleSelector:  "h3",
				LinkSelector:   "a",
				Fields: []crawler.FieldRule{
					{Name: "snippet", Selector: "div.IsZvec"},
				},
			},
		},
	}
}
