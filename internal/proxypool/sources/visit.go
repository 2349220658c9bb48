// Package sources scrapes raw proxy candidates from listing pages and files.
package sources

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

const defaultTimeout = 15 * time.Second

func newCollector(userAgent string, timeout time.Duration) *colly.Collector {
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	if userAgent != "" {
		c.UserAgent = userAgent
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c.SetRequestTimeout(timeout)
	c.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
	})
	return c
}

// visit runs one blocking collector visit and gives up when ctx ends.
func visit(ctx context.Context, c *colly.Collector, url string) error {
	var respErr error
	c.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			respErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
			return
		}
		respErr = err
	})
	done := make(chan error, 1)
	go func() {
		done <- c.Visit(url)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("visit %s canceled: %w", url, ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("visit %s: %w", url, err)
		}
		if respErr != nil {
			return fmt.Errorf("fetch %s: %w", url, respErr)
		}
		return nil
	}
}

// normalize validates a host and port pair and joins them.
func normalize(host, port string) (string, bool) {
	host = strings.TrimSpace(host)
	port = strings.TrimSpace(port)
	if host == "" || port == "" {
		return "", false
	}
	n, err := strconv.Atoi(port)
	if err != nil || n <= 0 || n > 65535 {
		return "", false
	}
	if strings.ContainsAny(host, " /\t") {
		return "", false
	}
	return net.JoinHostPort(host, port), true
}

// parseLine accepts "host:port" with optional surrounding whitespace or a scheme prefix.
func parseLine(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", false
	}
	if i := strings.Index(line, "://"); i >= 0 {
		scheme := line[:i]
		host, port, err := net.SplitHostPort(line[i+3:])
		if err != nil {
			return "", false
		}
		addr, ok := normalize(host, port)
		if !ok {
			return "", false
		}
		return scheme + "://" + addr, true
	}
	host, port, err := net.SplitHostPort(line)
	if err != nil {
		return "", false
	}
	return normalize(host, port)
}
