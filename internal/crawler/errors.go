package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNoProxies reports that proxies are required but none are left.
	ErrNoProxies = errors.New("no proxies available")
	// ErrTransport wraps transport-level failures that carry no status code.
	ErrTransport = errors.New("transport failure")
	// ErrBlocked marks a 200 response that turned out to be a captcha or challenge page.
	ErrBlocked = errors.New("blocked by challenge page")
)

// StatusError is returned by transports when the target answered with a non-2xx status.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d (%s) from %s", e.Code, http.StatusText(e.Code), e.URL)
}

// IsProxyFault decides whether a failed attempt should evict the proxy that carried it.
// Network errors and blocking statuses (403, 407, 429, 5xx) point at the exit address;
// other 4xx answers come from the target itself.
func IsProxyFault(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.Code == http.StatusForbidden,
			statusErr.Code == http.StatusProxyAuthRequired,
			statusErr.Code == http.StatusTooManyRequests,
			statusErr.Code >= 500:
			return true
		default:
			return false
		}
	}
	return true
}
