// Package identity supplies randomized client identities for outgoing requests.
package identity

import (
	"math/rand/v2"
	"sync"
)

// DefaultUserAgents is a small set of current desktop browser identities.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14.4; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:124.0) Gecko/20100101 Firefox/124.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_4_1) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4.1 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.2478.51",
}

// Rotator picks a random user agent per call. A Rotator is owned by one run and safe for concurrent use.
type Rotator struct {
	mu     sync.Mutex
	agents []string
	rng    *rand.Rand
}

// NewRotator builds a rotator over agents, falling back to DefaultUserAgents.
func NewRotator(agents []string, seed uint64) *Rotator {
	if len(agents) == 0 {
		agents = DefaultUserAgents
	}
	var src rand.Source
	if seed == 0 {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	} else {
		src = rand.NewPCG(seed, seed)
	}
	return &Rotator{
		agents: append([]string(nil), agents...),
		rng:    rand.New(src),
	}
}

// UserAgent returns one of the configured agents.
func (r *Rotator) UserAgent() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.agents[r.rng.IntN(len(r.agents))]
}

// Fixed always returns the same identity.
type Fixed string

// UserAgent returns the fixed value.
func (f Fixed) UserAgent() string { return string(f) }
