package authgate

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/smartly/bridge/internal/metrics"
)

const (
	nonceTTL          = 300 * time.Second
	nonceSweepInterval = 60 * time.Second
	nonceCacheCapacity = 100_000
)

// NonceCache is the process-local, single-use nonce store backing replay
// rejection. Backed by hashicorp/golang-lru/v2's expirable LRU, which
// already does the TTL eviction and bounded-capacity bookkeeping a
// hand-rolled map would otherwise need.
type NonceCache struct {
	mu    sync.Mutex
	cache *lru.LRU[string, int64]

	Metrics *metrics.Collector
}

func NewNonceCache() *NonceCache {
	return &NonceCache{
		cache: lru.NewLRU[string, int64](nonceCacheCapacity, nil, nonceTTL),
	}
}

// CheckAndAdd is an atomic test-and-insert: if nonce is already present
// (and therefore still within TTL — the LRU evicts expired entries itself),
// it reports a duplicate; otherwise it inserts and reports fresh.
func (n *NonceCache) CheckAndAdd(nonce string) (fresh bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.cache.Get(nonce); ok {
		return false
	}
	n.cache.Add(nonce, time.Now().Unix())
	return true
}

// Len reports the current cache size, for metrics.
func (n *NonceCache) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.cache.Len()
}

// StartSweeper runs a periodic sweep so entries are reclaimed even for
// nonces that are never looked up again between evictions. Returns a stop
// function.
func (n *NonceCache) StartSweeper() (stop func()) {
	ticker := time.NewTicker(nonceSweepInterval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				// Touching Keys() forces the expirable LRU to prune expired
				// entries that were never re-accessed between sweeps.
				n.mu.Lock()
				before := n.cache.Len()
				n.cache.Keys()
				after := n.cache.Len()
				n.mu.Unlock()
				if n.Metrics != nil {
					n.Metrics.NonceCacheSize.Set(float64(after))
					if evicted := before - after; evicted > 0 {
						n.Metrics.NonceEvictions.Add(float64(evicted))
					}
				}
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}
