package config

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher hot-reloads a Store from its backing YAML file whenever the host
// rewrites it through the options flow. Falls back to a slow poll if the
// fsnotify watch itself cannot be established (file not created yet, or the
// platform's inotify/kqueue budget is exhausted).
type Watcher struct {
	path    string
	store   *Store
	log     zerolog.Logger
	onLoad  func(Record)
}

func NewWatcher(path string, store *Store, log zerolog.Logger, onLoad func(Record)) *Watcher {
	return &Watcher{path: path, store: store, log: log.With().Str("component", "config.watcher").Logger(), onLoad: onLoad}
}

// Run blocks until ctx is cancelled. Intended to be started with `go`.
func (w *Watcher) Run(ctx context.Context) {
	fw, err := fsnotify.NewWatcher()
	usePolling := false
	if err != nil {
		w.log.Warn().Err(err).Msg("fsnotify unavailable, falling back to polling")
		usePolling = true
	} else if err := fw.Add(w.path); err != nil {
		w.log.Warn().Err(err).Str("path", w.path).Msg("could not watch config file, falling back to polling")
		usePolling = true
		fw.Close()
	}

	if !usePolling {
		go w.watchLoop(ctx, fw)
	}

	// Slow poll runs regardless, as a safety net for editors that replace
	// the file via rename (which some fsnotify backends miss on some
	// filesystems).
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if !usePolling {
				fw.Close()
			}
			return
		case <-ticker.C:
			w.reload()
		}
	}
}

func (w *Watcher) watchLoop(ctx context.Context, fw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				// debounce: editors issue several events per save
				time.Sleep(100 * time.Millisecond)
				w.reload()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("watcher error")
		}
	}
}

func (w *Watcher) reload() {
	rec, err := Load(w.path)
	if err != nil {
		w.log.Error().Err(err).Msg("reload failed, keeping previous credential record")
		return
	}
	w.store.Set(rec)
	if w.onLoad != nil {
		w.onLoad(rec)
	}
	w.log.Info().Msg("credential record reloaded")
}
