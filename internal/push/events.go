// Package push implements a single-owner batcher that coalesces hub
// state-change events, debounces them, signs the batch, delivers it to the
// platform webhook with bounded retries, and emits a periodic heartbeat.
package push

import (
	"time"

	"github.com/smartly/bridge/internal/acl"
	"github.com/smartly/bridge/internal/hub"
)

const (
	defaultBatchInterval = 500 * time.Millisecond
	heartbeatInterval    = 60 * time.Second
	maxAttempts          = 3
	retryBaseDelay       = 1 * time.Second
	maxRetryAfter        = 4 * time.Second
)

// EventType is the wire event_type discriminator.
type EventType string

const (
	EventStateChanged EventType = "state_changed"
	EventHeartbeat    EventType = "heartbeat"
)

// QueuedEvent is one buffered state-change or heartbeat event.
type QueuedEvent struct {
	EventType EventType   `json:"event_type"`
	EntityID  string      `json:"entity_id,omitempty"`
	OldState  *stateWire  `json:"old_state,omitempty"`
	NewState  *stateWire  `json:"new_state,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

type stateWire struct {
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

func wireState(s hub.State) *stateWire {
	deviceClass, _ := s.Attributes["device_class"].(string)
	unit, _ := s.Attributes["unit_of_measurement"].(string)
	return &stateWire{State: acl.FormatNumeric(s.State, deviceClass, unit), Attributes: s.Attributes}
}
