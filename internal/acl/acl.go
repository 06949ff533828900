// Package acl implements the label-based entity allow-list, the static
// per-domain service allow-list, topology assembly, and the numeric
// formatting helper shared by sync, history, and push.
package acl

import (
	"context"
	"strings"

	"github.com/smartly/bridge/internal/hub"
)

// SmartlyLabel is the exact, case-sensitive label that makes an entity
// controllable.
const SmartlyLabel = "smartly"

// serviceAllowList is the static per-domain action allow-list.
var serviceAllowList = map[string]map[string]bool{
	"switch":     set("turn_on", "turn_off", "toggle"),
	"light":      set("turn_on", "turn_off", "toggle"),
	"cover":      set("open_cover", "close_cover", "stop_cover", "set_cover_position"),
	"climate":    set("set_temperature", "set_hvac_mode", "set_fan_mode"),
	"fan":        set("turn_on", "turn_off", "set_percentage", "set_preset_mode"),
	"lock":       set("lock", "unlock"),
	"scene":      set("turn_on"),
	"script":     set("turn_on", "turn_off"),
	"automation": set("trigger", "turn_on", "turn_off"),
	"camera":     set("enable_motion_detection", "disable_motion_detection", "record", "snapshot"),
}

func set(vals ...string) map[string]bool {
	m := make(map[string]bool, len(vals))
	for _, v := range vals {
		m[v] = true
	}
	return m
}

// ACL decides which entities/services are reachable. It holds no state of
// its own beyond the registry it consults — every check is computed fresh
// the bridge never caches entity descriptors, so every check is live.
type ACL struct {
	registry hub.Registry
}

func New(registry hub.Registry) *ACL {
	return &ACL{registry: registry}
}

// IsEntityAllowed reports whether entityID carries the smartly label.
func (a *ACL) IsEntityAllowed(ctx context.Context, entityID string) (bool, error) {
	e, ok, err := a.registry.GetEntity(ctx, entityID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	for _, l := range e.Labels {
		if l == SmartlyLabel {
			return true, nil
		}
	}
	return false, nil
}

// IsServiceAllowed reports whether action is in domain's static allow-list.
func IsServiceAllowed(domain, action string) bool {
	actions, ok := serviceAllowList[domain]
	if !ok {
		return false
	}
	return actions[action]
}

// DomainOf extracts the domain segment of "domain.object".
func DomainOf(entityID string) string {
	i := strings.IndexByte(entityID, '.')
	if i < 0 {
		return ""
	}
	return entityID[:i]
}

// AllowedEntities returns every entity descriptor currently carrying the
// smartly label.
func (a *ACL) AllowedEntities(ctx context.Context) ([]hub.EntityDescriptor, error) {
	return a.registry.ListAllowed(ctx, SmartlyLabel)
}
