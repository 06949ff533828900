package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherReloadUpdatesStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credential.yaml")

	rec, err := Generate("instance-1", "https://platform.example.com/webhook")
	require.NoError(t, err)
	require.NoError(t, Save(path, rec))

	store := NewStore(Record{})
	var loaded Record
	w := NewWatcher(path, store, zerolog.Nop(), func(r Record) { loaded = r })

	w.reload()

	assert.Equal(t, rec.ClientID, store.Get().ClientID)
	assert.Equal(t, rec.ClientID, loaded.ClientID)
}

func TestWatcherReloadKeepsPreviousOnLoadFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credential.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: valid: yaml: ["), 0600))

	store := NewStore(Record{ClientID: "untouched"})
	w := NewWatcher(path, store, zerolog.Nop(), nil)

	w.reload()

	assert.Equal(t, "untouched", store.Get().ClientID)
}

func TestWatcherRunPicksUpFileChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credential.yaml")

	initial, err := Generate("instance-1", "https://platform.example.com/webhook")
	require.NoError(t, err)
	require.NoError(t, Save(path, initial))

	store := NewStore(initial)
	w := NewWatcher(path, store, zerolog.Nop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	updated := initial
	updated.WebhookURL = "https://platform.example.com/webhook2"
	require.Eventually(t, func() bool {
		return Save(path, updated) == nil
	}, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return store.Get().WebhookURL == "https://platform.example.com/webhook2"
	}, 3*time.Second, 20*time.Millisecond)
}
