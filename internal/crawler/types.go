package crawler

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Sentinel values substituted when a result item lacks a field.
const (
	TitleNotFound = "Title not found"
	LinkNotFound  = "Link not found"
)

// FieldNotFound returns the sentinel for a missing extra field.
func FieldNotFound(name string) string {
	if name == "" {
		return "Field not found"
	}
	return strings.ToUpper(name[:1]) + name[1:] + " not found"
}

// FieldRule maps one extra result field to a selector relative to the result container.
// An empty Attr means the element text is used.
type FieldRule struct {
	Name     string `json:"name" mapstructure:"name"`
	Selector string `json:"selector" mapstructure:"selector"`
	Attr     string `json:"attr,omitempty" mapstructure:"attr"`
}

// ExtractionConfig describes how raw markup becomes SearchResults.
type ExtractionConfig struct {
	ResultSelector string      `json:"resultSelector" mapstructure:"result_selector"`
	TitleSelector  string      `json:"titleSelector" mapstructure:"title_selector"`
	LinkSelector   string      `json:"linkSelector" mapstructure:"link_selector"`
	LinkPrefix     string      `json:"linkPrefix,omitempty" mapstructure:"link_prefix"`
	Fields         []FieldRule `json:"fields,omitempty" mapstructure:"fields"`
}

// FieldNames lists the extra field names in configuration order.
func (c ExtractionConfig) FieldNames() []string {
	names := make([]string, 0, len(c.Fields))
	for _, f := range c.Fields {
		names = append(names, f.Name)
	}
	return names
}

// SourceConfig is a search engine preset: where to send queries and how to read the answer.
type SourceConfig struct {
	Name              string           `json:"name" mapstructure:"name"`
	BaseURL           string           `json:"baseUrl" mapstructure:"base_url"`
	QueryParam        string           `json:"queryParam" mapstructure:"query_param"`
	PageParam         string           `json:"pageParam" mapstructure:"page_param"`
	PageSize          int              `json:"pageSize,omitempty" mapstructure:"page_size"`
	ValidationURL     string           `json:"validationUrl,omitempty" mapstructure:"validation_url"`
	SearchBoxSelector string           `json:"searchBoxSelector,omitempty" mapstructure:"search_box_selector"`
	Extraction        ExtractionConfig `json:"extraction" mapstructure:"extraction"`
}

// PageValue converts a 0-based page index into the value sent in PageParam.
func (s SourceConfig) PageValue(pageIndex int) int {
	if s.PageSize > 0 {
		return pageIndex * s.PageSize
	}
	return pageIndex
}

// ProbeURL returns the URL used to validate proxies for this source.
func (s SourceConfig) ProbeURL() string {
	if s.ValidationURL != "" {
		return s.ValidationURL
	}
	return s.BaseURL
}

// ProxyRecord is the pool's view of one proxy. Proxies are evicted on their first
// attributed failure, so no failure count is kept.
type ProxyRecord struct {
	Address string
	Healthy bool
}

// PageTask is one page of a query waiting to be fetched. The worker decrements
// RetriesRemaining per failed attempt and records the pause before the next one in Backoff.
type PageTask struct {
	PageIndex        int
	Query            string
	RetriesRemaining int
	Backoff          time.Duration
}

// SearchResult is one extracted item. Two results are equal iff every field matches.
type SearchResult struct {
	Title  string            `json:"title"`
	Link   string            `json:"link"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Key returns the identity tuple of the result, suitable as a map key. Every part is
// length-prefixed so separators inside values cannot collide. Empty extra fields are
// left out, so a missing field and an empty one compare equal.
func (r SearchResult) Key() string {
	var b strings.Builder
	writeKeyPart(&b, r.Title)
	writeKeyPart(&b, r.Link)
	keys := make([]string, 0, len(r.Fields))
	for k, v := range r.Fields {
		if v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeKeyPart(&b, k)
		writeKeyPart(&b, r.Fields[k])
	}
	return b.String()
}

func writeKeyPart(b *strings.Builder, part string) {
	b.WriteString(strconv.Itoa(len(part)))
	b.WriteByte(':')
	b.WriteString(part)
}

// Field returns an extra field value or "" when absent.
func (r SearchResult) Field(name string) string {
	if r.Fields == nil {
		return ""
	}
	return r.Fields[name]
}

// PageOutcome reports how one PageTask ended.
type PageOutcome struct {
	PageIndex int
	Results   []SearchResult
	Attempts  int
	Proxy     string
	Err       error
	// Interrupted pages were never fetched to completion and must be scheduled again.
	Interrupted bool
}

// Succeeded reports whether the page was fetched and extracted.
func (o PageOutcome) Succeeded() bool {
	return o.Err == nil && !o.Interrupted
}

// Abandoned reports whether the page exhausted its retries.
func (o PageOutcome) Abandoned() bool {
	return o.Err != nil && !o.Interrupted
}

// Flatten concatenates outcome results in completion order.
func Flatten(outcomes []PageOutcome) []SearchResult {
	var out []SearchResult
	for _, o := range outcomes {
		out = append(out, o.Results...)
	}
	return out
}

// Checkpoint is the durable snapshot of one run.
type Checkpoint struct {
	RunID              string         `json:"runId,omitempty"`
	Query              string         `json:"query"`
	Config             SourceConfig   `json:"config"`
	StartPage          int            `json:"startPage"`
	TotalPages         int            `json:"totalPages"`
	CurrentPage        int            `json:"currentPage"`
	FailedPages        []int          `json:"failedPages,omitempty"`
	AccumulatedResults []SearchResult `json:"accumulatedResults"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}

// Advance moves CurrentPage forward; it never moves backwards within a run.
// A fresh run replaces the checkpoint under a new RunID instead of rewinding it.
func (c *Checkpoint) Advance(page int) {
	if page > c.CurrentPage {
		c.CurrentPage = page
	}
}

// Done reports whether every page has been scheduled.
func (c *Checkpoint) Done() bool {
	return c.CurrentPage >= c.TotalPages
}

// FetchRequest describes a single transport call.
type FetchRequest struct {
	URL     string
	Params  map[string]string
	Headers http.Header
	// Proxy is a host:port address; empty means a direct connection.
	Proxy   string
	Timeout time.Duration
	// Query and SearchBoxSelector let browser transports type the query instead of using Params.
	Query             string
	SearchBoxSelector string
	// PageParam names the Params entry that selects the result page.
	PageParam string
}

// FetchResponse captures transport output.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}
