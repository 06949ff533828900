// Package audit is a small facade over the host logger that emits one
// structured line per control outcome and per deny. It owns no storage of
// its own; every record is a log line, not a row.
package audit

import (
	"context"

	"github.com/rs/zerolog"
)

// Event is the audit record shape, used uniformly by the control handler
// and the push task, plus AuthGate denies.
type Event struct {
	ClientID    string
	EntityID    string
	Service     string
	Result      string
	ActorUserID string
	ActorRole   string
	SourceIP    string
	Reason      string
}

// Log is the audit facade. It is safe for concurrent use: zerolog loggers
// are themselves safe for concurrent writes.
type Log struct {
	logger zerolog.Logger
}

func New(logger zerolog.Logger) *Log {
	return &Log{logger: logger.With().Str("component", "audit").Logger()}
}

// Write emits one control/push outcome record.
func (l *Log) Write(ctx context.Context, evt Event) {
	ev := l.logger.Info()
	if evt.Result != "success" {
		ev = l.logger.Warn()
	}
	ev.
		Str("client_id", evt.ClientID).
		Str("entity_id", evt.EntityID).
		Str("service", evt.Service).
		Str("result", evt.Result).
		Str("source_ip", evt.SourceIP)
	if evt.ActorUserID != "" {
		ev = ev.Str("actor_user_id", evt.ActorUserID)
	}
	if evt.ActorRole != "" {
		ev = ev.Str("actor_role", evt.ActorRole)
	}
	if evt.Reason != "" {
		ev = ev.Str("reason", evt.Reason)
	}
	ev.Msg("audit")
}

// LogDeny satisfies authgate.DenyLogger: it emits a deny record for an
// AuthGate verification failure, before any client/entity identity beyond
// what the gate resolved is known.
func (l *Log) LogDeny(ctx context.Context, reason, sourceIP, clientID string) {
	l.Write(ctx, Event{
		ClientID: clientID,
		Result:   "denied",
		SourceIP: sourceIP,
		Reason:   reason,
	})
}
