package sources

import (
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

// Table scrapes an HTML table listing, one proxy per row.
type Table struct {
	SourceName  string
	URL         string
	RowSelector string
	HostColumn  int
	PortColumn  int
	UserAgent   string
	Timeout     time.Duration
}

// Table presets for common free proxy listings.
var (
	SSLProxies = Table{
		SourceName: "sslproxies", URL: "https://www.sslproxies.org/",
		RowSelector: "table.table tbody tr", HostColumn: 0, PortColumn: 1,
	}
	FreeProxyList = Table{
		SourceName: "free-proxy-list", URL: "https://free-proxy-list.net/",
		RowSelector: "table.table tbody tr", HostColumn: 0, PortColumn: 1,
	}
	USProxy = Table{
		SourceName: "us-proxy", URL: "https://www.us-proxy.org/",
		RowSelector: "table.table tbody tr", HostColumn: 0, PortColumn: 1,
	}
)

// Name identifies the source in logs.
func (t Table) Name() string {
	if t.SourceName != "" {
		return t.SourceName
	}
	return t.URL
}

// Candidates visits the listing and reads host and port cells from every row.
func (t Table) Candidates(ctx context.Context) ([]string, error) {
	selector := t.RowSelector
	if selector == "" {
		selector = "table tbody tr"
	}
	c := newCollector(t.UserAgent, t.Timeout)
	var out []string
	c.OnHTML("html", func(e *colly.HTMLElement) {
		out = append(out, t.parseRows(e.DOM, selector)...)
	})
	if err := visit(ctx, c, t.URL); err != nil {
		return nil, err
	}
	return out, nil
}

func (t Table) parseRows(doc *goquery.Selection, selector string) []string {
	var out []string
	doc.Find(selector).Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		addr, ok := normalize(cells.Eq(t.HostColumn).Text(), cells.Eq(t.PortColumn).Text())
		if ok {
			out = append(out, addr)
		}
	})
	return out
}
