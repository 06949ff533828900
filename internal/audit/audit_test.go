package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLog() (*Log, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	return New(logger), &buf
}

func TestWriteEmitsSuccessAtInfoLevel(t *testing.T) {
	l, buf := newTestLog()
	l.Write(context.Background(), Event{ClientID: "c1", EntityID: "light.a", Service: "light.turn_on", Result: "success"})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "c1", line["client_id"])
	assert.Equal(t, "light.a", line["entity_id"])
	assert.Equal(t, "success", line["result"])
}

func TestWriteEmitsFailureAtWarnLevel(t *testing.T) {
	l, buf := newTestLog()
	l.Write(context.Background(), Event{ClientID: "c1", Result: "denied", Reason: "entity_not_allowed"})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "entity_not_allowed", line["reason"])
}

func TestWriteOmitsEmptyOptionalFields(t *testing.T) {
	l, buf := newTestLog()
	l.Write(context.Background(), Event{ClientID: "c1", Result: "success"})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	_, hasActor := line["actor_user_id"]
	_, hasRole := line["actor_role"]
	_, hasReason := line["reason"]
	assert.False(t, hasActor)
	assert.False(t, hasRole)
	assert.False(t, hasReason)
}

func TestLogDenyWritesDeniedRecord(t *testing.T) {
	l, buf := newTestLog()
	l.LogDeny(context.Background(), "invalid_signature", "10.0.0.5", "client-1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "denied", line["result"])
	assert.Equal(t, "invalid_signature", line["reason"])
	assert.Equal(t, "10.0.0.5", line["source_ip"])
	assert.Equal(t, "client-1", line["client_id"])
}
