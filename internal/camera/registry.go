// Package camera implements the camera registry, snapshot cache, MJPEG
// proxy, and HLS session bookkeeping.
package camera

import (
	"sync"
)

// Config is the per-camera configuration record: process-memory only, keyed by
// entity_id, mutations serialized.
type Config struct {
	EntityID      string            `json:"entity_id"`
	Name          string            `json:"name,omitempty"`
	SnapshotURL   string            `json:"snapshot_url,omitempty"`
	StreamURL     string            `json:"stream_url,omitempty"`
	Username      string            `json:"username,omitempty"`
	Password      string            `json:"password,omitempty"`
	VerifySSL     bool              `json:"verify_ssl"`
	ExtraHeaders  map[string]string `json:"extra_headers,omitempty"`
}

// Registry holds CameraConfig entries. Mutations are serialized by a single
// mutex, so registrations and lookups never race each other.
type Registry struct {
	mu      sync.Mutex
	entries map[string]Config
}

func NewRegistry() *Registry {
	return &Registry{entries: map[string]Config{}}
}

// Register upserts cfg. Callers resolve the VerifySSL-default-true rule of
// applying defaults before calling this (see handlers.go's registerRequest).
func (r *Registry) Register(cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[cfg.EntityID] = cfg
}

func (r *Registry) Unregister(entityID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, entityID)
}

func (r *Registry) Get(entityID string) (Config, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.entries[entityID]
	return c, ok
}

func (r *Registry) List() []Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Config, 0, len(r.entries))
	for _, c := range r.entries {
		out = append(out, c)
	}
	return out
}
