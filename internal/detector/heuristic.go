// Package detector recognizes anti-bot interstitials that arrive with a 200 status.
package detector

import (
	"bytes"
	"net/http"
	"slices"
	"strings"

	"github.com/JakeFAU/serp-crawler/internal/crawler"
)

// Heuristic flags captcha and interstitial pages by marker text and script share.
type Heuristic struct {
	// BodyLengthThreshold is the size below which a script-heavy page counts as a challenge.
	BodyLengthThreshold int
	// ScriptPercent is the minimum script share for such a page.
	ScriptPercent int
}

// NewHeuristic returns a Heuristic; a zero threshold means 2 KiB.
func NewHeuristic(threshold int) *Heuristic {
	if threshold <= 0 {
		threshold = 2048
	}
	return &Heuristic{BodyLengthThreshold: threshold, ScriptPercent: 25}
}

var challengeMarkers = [][]byte{
	[]byte("unusual traffic from your computer"),
	[]byte("/sorry/index"),
	[]byte("g-recaptcha"),
	[]byte("cf-challenge"),
	[]byte("please verify you are a human"),
	[]byte("are you a robot"),
}

// Blocked reports whether a successful response is really a captcha or challenge page.
func (h *Heuristic) Blocked(resp crawler.FetchResponse) bool {
	if resp.StatusCode != http.StatusOK {
		return false
	}
	if len(resp.Body) == 0 {
		return true
	}
	lower := bytes.ToLower(resp.Body)
	if slices.ContainsFunc(challengeMarkers, func(m []byte) bool { return bytes.Contains(lower, m) }) {
		return true
	}
	return len(resp.Body) < h.BodyLengthThreshold && scriptShare(resp.Body) >= h.ScriptPercent
}

// scriptShare returns the percentage of body bytes inside script elements.
// An unterminated script runs to the end of the body.
func scriptShare(body []byte) int {
	rest := strings.ToLower(string(body))
	total := len(rest)
	if total == 0 {
		return 0
	}
	covered := 0
	for {
		open := strings.Index(rest, "<script")
		if open < 0 {
			break
		}
		rest = rest[open:]
		_, after, closed := strings.Cut(rest, "</script>")
		if !closed {
			covered += len(rest)
			break
		}
		covered += len(rest) - len(after)
		rest = after
	}
	return covered * 100 / total
}
