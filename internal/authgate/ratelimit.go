package authgate

import (
	"sync"
	"time"

	"github.com/smartly/bridge/internal/metrics"
)

const (
	rateLimitWindow = 60 * time.Second
	rateLimitMax    = 60
)

// RateLimiter is a per-client_id sliding-window limiter, holding its
// windows in an in-process map guarded by a mutex rather than a shared
// store, since each bridge instance limits only its own traffic.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string][]time.Time

	Metrics *metrics.Collector
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{windows: map[string][]time.Time{}}
}

// Result reports the outcome of an Allow call, including what a caller needs
// to populate Retry-After and X-RateLimit-* headers.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Allow drops timestamps older than now-60s, and if fewer than 60 remain,
// admits the request by appending now. Returns Remaining as of after this
// call's decision.
func (r *RateLimiter) Allow(clientID string, now time.Time) Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := now.Add(-rateLimitWindow)
	w := r.windows[clientID]
	w = dropOlderThan(w, cutoff)

	if len(w) >= rateLimitMax {
		retryAfter := w[0].Add(rateLimitWindow).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		r.windows[clientID] = w
		return Result{Allowed: false, Remaining: 0, RetryAfter: retryAfter}
	}

	w = append(w, now)
	r.windows[clientID] = w
	if r.Metrics != nil {
		r.Metrics.RateLimitClients.Set(float64(len(r.windows)))
	}
	return Result{Allowed: true, Remaining: rateLimitMax - len(w)}
}

func dropOlderThan(w []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(w) && w[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return w
	}
	return append(w[:0:0], w[i:]...)
}

// ClientCount reports how many distinct clients currently have state, for
// metrics and for bounding memory in a hostile-client scenario.
func (r *RateLimiter) ClientCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.windows)
}

// Sweep drops windows that have gone fully idle, so long-disconnected
// clients don't pin memory forever. Intended to run alongside the nonce
// cache's periodic sweep.
func (r *RateLimiter) Sweep(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := now.Add(-rateLimitWindow)
	var evicted int
	for id, w := range r.windows {
		w = dropOlderThan(w, cutoff)
		if len(w) == 0 {
			delete(r.windows, id)
			evicted++
		} else {
			r.windows[id] = w
		}
	}
	if r.Metrics != nil {
		r.Metrics.RateLimitClients.Set(float64(len(r.windows)))
		if evicted > 0 {
			r.Metrics.RateLimitEvictions.Add(float64(evicted))
		}
	}
}

// StartSweeper runs Sweep on the same cadence as the nonce cache sweeper,
// so idle client windows don't pin memory forever. Returns a stop function.
func (r *RateLimiter) StartSweeper() (stop func()) {
	ticker := time.NewTicker(rateLimitWindow)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				r.Sweep(time.Now())
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}
