package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// ProxyURL turns a pool address into a proxy URL. Bare host:port addresses are treated as HTTP proxies.
func ProxyURL(address string) (*url.URL, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, fmt.Errorf("empty proxy address")
	}
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}
	u, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("parse proxy %q: %w", address, err)
	}
	if u.Host == "" || u.Port() == "" {
		return nil, fmt.Errorf("proxy %q must be host:port", address)
	}
	return u, nil
}
