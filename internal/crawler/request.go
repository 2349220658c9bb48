package crawler

import (
	"fmt"
	"net/url"
)

// FullURL merges Params into URL's query string.
func (r FetchRequest) FullURL() (string, error) {
	u, err := url.Parse(r.URL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", r.URL, err)
	}
	if len(r.Params) == 0 {
		return u.String(), nil
	}
	q := u.Query()
	for k, v := range r.Params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
