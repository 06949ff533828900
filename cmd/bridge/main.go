package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/smartly/bridge/internal/bridge"
	"github.com/smartly/bridge/internal/hub"
	"github.com/smartly/bridge/internal/platform/paths"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()

	if err := paths.EnsureDirs(); err != nil {
		log.Fatal().Err(err).Msg("platform init error")
	}

	opts := bridge.Options{
		ConfigPath:      paths.ResolveConfigPath(os.Getenv("SMARTLY_CONFIG_PATH")),
		ListenAddr:      envOr("SMARTLY_LISTEN_ADDR", ":8443"),
		Go2RTCBaseURL:   envOr("SMARTLY_GO2RTC_URL", "http://localhost:1984"),
		MediaServerBase: envOr("SMARTLY_MEDIA_SERVER_URL", "http://localhost:1984"),
		MetricsEnabled:  os.Getenv("SMARTLY_METRICS_DISABLED") == "",
	}

	// The hub runtime itself (entity/device/label registries, services.call,
	// recorder, event bus, go2rtc-adjacent camera integration) is an external
	// collaborator the bridge attaches to — out of scope here per the
	// component design. A real deployment supplies its own hub.Registry,
	// hub.ServiceCaller, hub.Recorder, hub.EventBus, and hub.CameraAPI
	// implementations talking to the host hub process; this wiring point is
	// where they get plugged in.
	h := hub.Hub{
		Registry: hub.NewFakeRegistry(),
		Services: &hub.FakeServiceCaller{},
		Recorder: &hub.FakeRecorder{},
		Events:   &hub.FakeEventBus{},
		Cameras:  &hub.FakeCameraAPI{},
	}

	b, err := bridge.New(opts, h, log)
	if err != nil {
		log.Fatal().Err(err).Msg("bridge init error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := b.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("bridge start error")
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("shutdown signal received")
	if err := b.Stop(context.Background()); err != nil {
		log.Error().Err(err).Msg("shutdown error")
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
