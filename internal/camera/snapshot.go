package camera

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/smartly/bridge/internal/hub"
	"github.com/smartly/bridge/internal/metrics"
)

const (
	defaultSnapshotTTL = 30 * time.Second
	snapshotSweep      = 60 * time.Second
	snapshotCacheSize  = 2048
	snapshotFetchTimeout = 5 * time.Second
)

// Snapshot is one cached camera image plus its content type.
type Snapshot struct {
	EntityID    string
	ImageBytes  []byte
	ContentType string
	CapturedAt  time.Time
	ETag        string
}

// SnapshotCache is a bounded, ETag/TTL-keyed cache of recent snapshots. It
// uses hashicorp/golang-lru/v2 for bounded eviction by recency, a Sweep
// method that removes entries aged out by TTL (the cache starts no timer of
// its own, so Sweep runs only when a caller invokes it), and
// golang.org/x/sync/singleflight to collapse concurrent refreshes of the
// same entity into one upstream fetch.
type SnapshotCache struct {
	ttl     time.Duration
	cache   *lru.Cache[string, Snapshot]
	sfg     singleflight.Group
	mu      sync.Mutex
	registry *Registry
	cameras hub.CameraAPI
	client  *http.Client

	Metrics *metrics.Collector
}

func NewSnapshotCache(ttl time.Duration, registry *Registry, cameras hub.CameraAPI) *SnapshotCache {
	if ttl <= 0 {
		ttl = defaultSnapshotTTL
	}
	c, _ := lru.New[string, Snapshot](snapshotCacheSize)
	return &SnapshotCache{
		ttl: ttl, cache: c, registry: registry, cameras: cameras,
		client: &http.Client{Timeout: snapshotFetchTimeout},
	}
}

// Get returns a cached snapshot if fresh, without triggering a fetch.
func (s *SnapshotCache) Get(entityID string) (Snapshot, bool) {
	s.mu.Lock()
	snap, ok := s.cache.Get(entityID)
	s.mu.Unlock()
	if !ok || time.Since(snap.CapturedAt) > s.ttl {
		if s.Metrics != nil {
			s.Metrics.SnapshotCacheMisses.Inc()
		}
		return Snapshot{}, false
	}
	if s.Metrics != nil {
		s.Metrics.SnapshotCacheHits.Inc()
	}
	return snap, true
}

// Refresh fetches a fresh snapshot for entityID, deduplicating concurrent
// callers via singleflight, and stores it in the cache.
func (s *SnapshotCache) Refresh(ctx context.Context, entityID string) (Snapshot, error) {
	v, err, _ := s.sfg.Do(entityID, func() (any, error) {
		return s.fetch(ctx, entityID)
	})
	if err != nil {
		return Snapshot{}, err
	}
	snap := v.(Snapshot)
	s.mu.Lock()
	s.cache.Add(entityID, snap)
	size := s.cache.Len()
	s.mu.Unlock()
	if s.Metrics != nil {
		s.Metrics.SnapshotCacheSize.Set(float64(size))
	}
	return snap, nil
}

func (s *SnapshotCache) fetch(ctx context.Context, entityID string) (Snapshot, error) {
	cfg, hasConfig := s.registry.Get(entityID)

	var imgBytes []byte
	var contentType string
	var err error

	if hasConfig && cfg.SnapshotURL != "" {
		imgBytes, contentType, err = s.fetchHTTP(ctx, cfg)
	} else if s.cameras != nil {
		imgBytes, contentType, err = s.cameras.FetchSnapshot(ctx, entityID)
	} else {
		err = fmt.Errorf("no snapshot source configured for %s", entityID)
	}
	if err != nil {
		return Snapshot{}, err
	}

	sum := sha256.Sum256(imgBytes)
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return Snapshot{
		EntityID:    entityID,
		ImageBytes:  imgBytes,
		ContentType: contentType,
		CapturedAt:  time.Now(),
		ETag:        hex.EncodeToString(sum[:]),
	}, nil
}

func (s *SnapshotCache) fetchHTTP(ctx context.Context, cfg Config) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.SnapshotURL, nil)
	if err != nil {
		return nil, "", err
	}
	if cfg.Username != "" {
		req.SetBasicAuth(cfg.Username, cfg.Password)
	}
	for k, v := range cfg.ExtraHeaders {
		req.Header.Set(k, v)
	}

	client := s.client
	if !cfg.VerifySSL {
		client = insecureClient()
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("snapshot source returned %d", resp.StatusCode)
	}

	body := make([]byte, 0, 64*1024)
	buf := make([]byte, 32*1024)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			body = append(body, buf[:n]...)
		}
		if rerr != nil {
			break
		}
	}
	ct := resp.Header.Get("Content-Type")
	return body, ct, nil
}

// Sweep removes entries older than the TTL from the cache. The LRU backing
// store already bounds total size; this reclaims stale entries promptly
// rather than waiting for capacity pressure.
func (s *SnapshotCache) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, key := range s.cache.Keys() {
		if snap, ok := s.cache.Peek(key); ok && now.Sub(snap.CapturedAt) > s.ttl {
			s.cache.Remove(key)
		}
	}
}

func (s *SnapshotCache) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Len()
}

// Clear drops every cached entry regardless of age, for an explicit
// clear_cache request rather than the TTL-driven Sweep.
func (s *SnapshotCache) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Purge()
}
