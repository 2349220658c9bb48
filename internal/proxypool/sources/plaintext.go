package sources

import (
	"bufio"
	"bytes"
	"context"
	"time"

	"github.com/gocolly/colly/v2"
)

// PlainText reads a newline separated host:port list served over HTTP.
type PlainText struct {
	SourceName string
	URL        string
	UserAgent  string
	Timeout    time.Duration
}

// ProxyListDownload is the proxy-list.download HTTP API.
var ProxyListDownload = PlainText{
	SourceName: "proxy-list-download",
	URL:        "https://www.proxy-list.download/api/v1/get?type=http",
}

// Name identifies the source in logs.
func (p PlainText) Name() string {
	if p.SourceName != "" {
		return p.SourceName
	}
	return p.URL
}

// Candidates fetches the list and keeps every well-formed line.
func (p PlainText) Candidates(ctx context.Context) ([]string, error) {
	c := newCollector(p.UserAgent, p.Timeout)
	var out []string
	c.OnResponse(func(r *colly.Response) {
		scanner := bufio.NewScanner(bytes.NewReader(r.Body))
		for scanner.Scan() {
			if addr, ok := parseLine(scanner.Text()); ok {
				out = append(out, addr)
			}
		}
	})
	if err := visit(ctx, c, p.URL); err != nil {
		return nil, err
	}
	return out, nil
}
