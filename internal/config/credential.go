// Package config loads and hot-reloads the bridge's credential record: the
// instance identity, client secret, network policy, and push/TURN settings
// generated at install time and mutated afterward through the options flow.
package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// TrustProxyMode controls how the bridge resolves a request's source IP.
type TrustProxyMode string

const (
	TrustProxyNever  TrustProxyMode = "never"
	TrustProxyAlways TrustProxyMode = "always"
	TrustProxyAuto   TrustProxyMode = "auto"
)

// TURNConfig is the optional TURN relay the bridge hands to WebRTC callers.
type TURNConfig struct {
	URL        string `yaml:"url"`
	Username   string `yaml:"username"`
	Credential string `yaml:"credential"`
}

// Record is the bridge's credential record: created once at install,
// mutable afterward via options flow, destroyed on uninstall.
type Record struct {
	InstanceID               string         `yaml:"instance_id"`
	ClientID                 string         `yaml:"client_id"`
	ClientSecret             string         `yaml:"client_secret"`
	AllowedCIDRs             []string       `yaml:"allowed_cidrs"`
	WebhookURL               string         `yaml:"webhook_url"`
	PushBatchIntervalSeconds float64        `yaml:"push_batch_interval_seconds"`
	TrustProxyMode           TrustProxyMode `yaml:"trust_proxy_mode"`
	TURN                     *TURNConfig    `yaml:"turn,omitempty"`
}

// parsedCIDRs is not part of the persisted record; callers needing parsed
// networks should call ParsedAllowedCIDRs.

func defaultRecord() Record {
	return Record{
		PushBatchIntervalSeconds: 0.5,
		TrustProxyMode:           TrustProxyAuto,
	}
}

// Generate produces a fresh credential record: a prefixed client_id and a
// >=32-byte URL-safe client_secret, both from a CSPRNG. There is no
// ecosystem library that improves on crypto/rand for this — see DESIGN.md.
func Generate(instanceID, webhookURL string) (Record, error) {
	rec := defaultRecord()
	rec.InstanceID = instanceID
	rec.WebhookURL = webhookURL

	clientIDSuffix, err := randomToken(16)
	if err != nil {
		return Record{}, fmt.Errorf("generate client_id: %w", err)
	}
	rec.ClientID = "smartly_" + clientIDSuffix

	secret, err := randomToken(32)
	if err != nil {
		return Record{}, fmt.Errorf("generate client_secret: %w", err)
	}
	rec.ClientSecret = secret

	return rec, nil
}

func randomToken(nBytes int) (string, error) {
	buf := make([]byte, nBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Load reads the credential record YAML at path and applies environment
// variable overrides for secret-bearing fields.
func Load(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, fmt.Errorf("read credential record: %w", err)
	}

	rec := defaultRecord()
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("parse credential record: %w", err)
	}
	applyEnvOverrides(&rec)

	if err := Validate(rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func applyEnvOverrides(rec *Record) {
	if v := os.Getenv("SMARTLY_CLIENT_SECRET"); v != "" {
		rec.ClientSecret = v
	}
	if v := os.Getenv("SMARTLY_WEBHOOK_URL"); v != "" {
		rec.WebhookURL = v
	}
	if v := os.Getenv("SMARTLY_TRUST_PROXY_MODE"); v != "" {
		rec.TrustProxyMode = TrustProxyMode(v)
	}
}

// Validate checks the record's invariants without touching the filesystem.
func Validate(rec Record) error {
	if rec.ClientID == "" || rec.ClientSecret == "" {
		return fmt.Errorf("credential record missing client_id/client_secret")
	}
	if len(rec.ClientSecret) < 32 {
		return fmt.Errorf("client_secret shorter than 32 bytes")
	}
	switch rec.TrustProxyMode {
	case TrustProxyNever, TrustProxyAlways, TrustProxyAuto:
	default:
		return fmt.Errorf("invalid trust_proxy_mode %q", rec.TrustProxyMode)
	}
	for _, c := range rec.AllowedCIDRs {
		if _, _, err := net.ParseCIDR(c); err != nil {
			return fmt.Errorf("invalid allowed_cidrs entry %q: %w", c, err)
		}
	}
	if rec.PushBatchIntervalSeconds <= 0 {
		rec.PushBatchIntervalSeconds = 0.5
	}
	return nil
}

// Save writes the record back to path as YAML, 0600 (it carries the secret).
func Save(path string, rec Record) error {
	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal credential record: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write credential record: %w", err)
	}
	return nil
}

// ParsedAllowedCIDRs parses the record's AllowedCIDRs into net.IPNet values,
// skipping (rather than failing on) any that no longer parse after a hot
// reload raced a partial write.
func ParsedAllowedCIDRs(rec Record) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(rec.AllowedCIDRs))
	for _, c := range rec.AllowedCIDRs {
		if _, n, err := net.ParseCIDR(c); err == nil {
			nets = append(nets, n)
		}
	}
	return nets
}

// Store holds the live, hot-reloadable credential record behind a RWMutex so
// readers (AuthGate, push pipeline) never block on a reload in progress.
type Store struct {
	mu  sync.RWMutex
	rec Record
}

func NewStore(rec Record) *Store {
	return &Store{rec: rec}
}

func (s *Store) Get() Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec
}

func (s *Store) Set(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = rec
}
