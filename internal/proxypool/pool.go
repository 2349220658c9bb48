// Package proxypool collects, validates and leases proxy addresses for a single run.
package proxypool

import (
	"math/rand/v2"
	"sync"

	"github.com/JakeFAU/serp-crawler/internal/crawler"
	"github.com/JakeFAU/serp-crawler/internal/metrics"
)

// Pool is the live set of healthy proxies. It is safe for concurrent use.
// An address removed with MarkDead stays out of the pool for the rest of the run.
type Pool struct {
	mu      sync.RWMutex
	order   []string
	index   map[string]int
	evicted map[string]struct{}
	intn    func(n int) int
}

// NewPool returns a pool seeded with healthy addresses.
func NewPool(addresses ...string) *Pool {
	p := &Pool{
		index:   make(map[string]int),
		evicted: make(map[string]struct{}),
		intn:    rand.IntN,
	}
	p.Add(addresses...)
	return p
}

// Add inserts addresses that are neither present nor evicted. It returns how many were added.
func (p *Pool) Add(addresses ...string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	added := 0
	for _, addr := range addresses {
		if addr == "" {
			continue
		}
		if _, dead := p.evicted[addr]; dead {
			continue
		}
		if _, ok := p.index[addr]; ok {
			continue
		}
		p.index[addr] = len(p.order)
		p.order = append(p.order, addr)
		added++
	}
	metrics.SetProxyPoolSize(len(p.order))
	return added
}

// LeaseRandom returns a uniformly random live address. ok is false when the pool is empty,
// which callers treat as "fetch without a proxy".
func (p *Pool) LeaseRandom() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.order) == 0 {
		return "", false
	}
	return p.order[p.intn(len(p.order))], true
}

// MarkDead evicts address from the pool. Repeated calls are no-ops.
func (p *Pool) MarkDead(address string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, dead := p.evicted[address]; dead {
		return
	}
	p.evicted[address] = struct{}{}
	i, ok := p.index[address]
	if !ok {
		return
	}
	last := len(p.order) - 1
	p.order[i] = p.order[last]
	p.index[p.order[i]] = i
	p.order = p.order[:last]
	delete(p.index, address)
	metrics.ObserveProxyEviction()
	metrics.SetProxyPoolSize(len(p.order))
}

// Size returns the number of live addresses.
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.order)
}

// Contains reports whether address is currently live.
func (p *Pool) Contains(address string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.index[address]
	return ok
}

// Snapshot returns the live set as records.
func (p *Pool) Snapshot() []crawler.ProxyRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]crawler.ProxyRecord, 0, len(p.order))
	for _, addr := range p.order {
		out = append(out, crawler.ProxyRecord{Address: addr, Healthy: true})
	}
	return out
}

// Evicted returns the number of addresses removed during the run.
func (p *Pool) Evicted() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.evicted)
}
