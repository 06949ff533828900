// Package bridge owns configuration, wires every component
// together, and starts/stops the tasks the bridge process owns (push
// pipeline, config watcher, nonce/webrtc sweepers, HTTP server).
package bridge

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/smartly/bridge/internal/acl"
	"github.com/smartly/bridge/internal/audit"
	"github.com/smartly/bridge/internal/authgate"
	"github.com/smartly/bridge/internal/camera"
	"github.com/smartly/bridge/internal/config"
	"github.com/smartly/bridge/internal/control"
	"github.com/smartly/bridge/internal/history"
	"github.com/smartly/bridge/internal/httpapi"
	"github.com/smartly/bridge/internal/hub"
	"github.com/smartly/bridge/internal/metrics"
	"github.com/smartly/bridge/internal/push"
	"github.com/smartly/bridge/internal/sync"
	"github.com/smartly/bridge/internal/webrtc"
	"github.com/smartly/bridge/internal/workerpool"
)

const (
	snapshotTTL       = 30 * time.Second
	historyPoolSize   = 16
	metricsListenAddr = "127.0.0.1:9090"
	shutdownTimeout   = 5 * time.Second
)

// Options configures a Bridge at construction time. Everything that can
// change at runtime lives in the credential record behind Store instead.
type Options struct {
	ConfigPath        string
	ListenAddr        string
	Go2RTCBaseURL     string
	MediaServerBase   string // HLS playlist base, usually same as Go2RTCBaseURL
	MetricsEnabled    bool
}

// Bridge bundles every component and owns the tasks the process runs for
// its lifetime: the HTTP server, the config watcher, the push pipeline, and
// the housekeeping sweepers (nonce cache, webrtc tokens/sessions).
type Bridge struct {
	opts Options
	log  zerolog.Logger

	store      *config.Store
	watcher    *config.Watcher
	acl        *acl.ACL
	audit      *audit.Log
	gate       *authgate.Gate
	nonces     *authgate.NonceCache
	limiter    *authgate.RateLimiter
	collector  *metrics.Collector
	pool       *workerpool.Pool
	webrtcTbl  *webrtc.Tables
	pushTask   *push.Task
	snapshots  *camera.SnapshotCache

	server        *http.Server
	metricsServer *http.Server

	stopNonceSweeper    func()
	stopRateLimitSweep  func()
	stopWebRTCSweep     func()
}

// New constructs a Bridge wired to hub h, loading its initial credential
// record from opts.ConfigPath.
func New(opts Options, h hub.Hub, log zerolog.Logger) (*Bridge, error) {
	rec, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load credential record: %w", err)
	}

	store := config.NewStore(rec)
	registry := h.Registry
	a := acl.New(registry)
	auditLog := audit.New(log)
	nonces := authgate.NewNonceCache()
	limiter := authgate.NewRateLimiter()
	gate := authgate.NewGate(store, nonces, limiter, auditLog, log)
	collector := metrics.NewCollector()
	gate.Metrics = collector
	nonces.Metrics = collector
	limiter.Metrics = collector
	pool := workerpool.New(historyPoolSize)

	watcher := config.NewWatcher(opts.ConfigPath, store, log, func(r config.Record) {
		log.Info().Msg("credential record reloaded")
	})

	controlHandler := control.NewHandler(a, registry, h.Services, auditLog, log)
	syncHandler := sync.NewHandler(a, registry, log)
	historyHandler := history.NewHandler(a, registry, h.Recorder, pool, log)

	camRegistry := camera.NewRegistry()
	snapshots := camera.NewSnapshotCache(snapshotTTL, camRegistry, h.Cameras)
	snapshots.Metrics = collector
	streamProxy := camera.NewStreamProxy()
	streamProxy.Metrics = collector
	hlsMgr := camera.NewHLSManager(opts.MediaServerBase)
	cameraHandler := camera.NewHandler(a, camRegistry, snapshots, streamProxy, hlsMgr, h.Cameras, auditLog, log)

	webrtcTables := webrtc.NewTables()
	webrtcTables.Metrics = collector
	go2rtc := webrtc.NewGo2RTCClient(opts.Go2RTCBaseURL, log)
	webrtcHandler := webrtc.NewHandler(a, webrtcTables, go2rtc, h.Cameras, store, log)

	deliverer := push.NewDeliverer(rec.WebhookURL, rec.InstanceID, []byte(rec.ClientSecret))
	deliverer.Metrics = collector
	pushTask := push.NewTask(a, h.Events, deliverer, auditLog,
		time.Duration(rec.PushBatchIntervalSeconds*float64(time.Second)), log)

	router := httpapi.NewRouter(httpapi.Deps{
		Gate: gate.Middleware,

		Control: controlHandler.ServeHTTP,

		SyncStructure: syncHandler.Structure,
		SyncStates:    syncHandler.States,

		HistorySingle:     historyHandler.Single,
		HistoryBatch:      historyHandler.Batch,
		HistoryStatistics: historyHandler.Statistics,

		CameraList:     cameraHandler.List,
		CameraSnapshot: cameraHandler.Snapshot,
		CameraStream:   cameraHandler.Stream,
		CameraHLS:      cameraHandler.HLS,
		CameraConfig:   cameraHandler.ConfigAction,

		WebRTCToken:  webrtcHandler.Token,
		WebRTCOffer:  webrtcHandler.Offer,
		WebRTCICE:    webrtcHandler.ICE,
		WebRTCHangup: webrtcHandler.Hangup,
	})

	b := &Bridge{
		opts: opts, log: log.With().Str("component", "bridge").Logger(),
		store: store, watcher: watcher, acl: a, audit: auditLog, gate: gate,
		nonces: nonces, limiter: limiter, collector: collector, pool: pool, webrtcTbl: webrtcTables,
		pushTask: pushTask, snapshots: snapshots,
		server: &http.Server{Addr: opts.ListenAddr, Handler: router},
	}
	if opts.MetricsEnabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", collector.Handler())
		b.metricsServer = &http.Server{Addr: metricsListenAddr, Handler: mux}
	}
	return b, nil
}

// Start runs the bridge's owned tasks and begins serving HTTP. It returns as
// soon as the server goroutines are launched, without waiting for the
// listener to bind; errors from ListenAndServe are logged, not returned.
func (b *Bridge) Start(ctx context.Context) error {
	go b.watcher.Run(ctx)

	b.stopNonceSweeper = b.nonces.StartSweeper()
	b.stopRateLimitSweep = b.limiter.StartSweeper()
	b.stopWebRTCSweep = b.webrtcTbl.StartSweeper()
	b.pushTask.Start()

	if b.metricsServer != nil {
		go func() {
			if err := b.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				b.log.Error().Err(err).Msg("metrics server error")
			}
		}()
	}

	go func() {
		if err := b.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			b.log.Error().Err(err).Msg("http server error")
		}
	}()
	b.log.Info().Str("addr", b.opts.ListenAddr).Msg("bridge started")
	return nil
}

// Stop performs graceful shutdown: cancel timers, flush
// the pending push buffer best-effort, close listeners.
func (b *Bridge) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if b.stopNonceSweeper != nil {
		b.stopNonceSweeper()
	}
	if b.stopRateLimitSweep != nil {
		b.stopRateLimitSweep()
	}
	if b.stopWebRTCSweep != nil {
		b.stopWebRTCSweep()
	}
	b.pushTask.Stop()

	if b.metricsServer != nil {
		_ = b.metricsServer.Shutdown(shutdownCtx)
	}
	if err := b.server.Shutdown(shutdownCtx); err != nil {
		b.log.Error().Err(err).Msg("graceful shutdown error")
		return err
	}
	b.log.Info().Msg("bridge stopped")
	return nil
}
