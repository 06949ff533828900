package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Deps bundles every handler the router mounts. It is the seam between
// internal/bridge's wiring and the chi route table.
type Deps struct {
	Gate func(http.Handler) http.Handler

	Control http.HandlerFunc

	SyncStructure http.HandlerFunc
	SyncStates    http.HandlerFunc

	HistorySingle     http.HandlerFunc
	HistoryBatch      http.HandlerFunc
	HistoryStatistics http.HandlerFunc

	CameraList    http.HandlerFunc
	CameraSnapshot http.HandlerFunc
	CameraStream   http.HandlerFunc
	CameraHLS      http.HandlerFunc
	CameraConfig   http.HandlerFunc

	WebRTCToken  http.HandlerFunc
	WebRTCOffer  http.HandlerFunc
	WebRTCICE    http.HandlerFunc
	WebRTCHangup http.HandlerFunc
}

// NewRouter assembles the chi router for the bridge's full HTTP surface.
// Every route sits behind Deps.Gate — AuthGate runs first on every request.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api/smartly", func(r chi.Router) {
		r.Use(d.Gate)

		r.Post("/control", d.Control)

		r.Get("/sync/structure", d.SyncStructure)
		r.Get("/sync/states", d.SyncStates)

		r.Get("/history/{entity_id}", d.HistorySingle)
		r.Post("/history/batch", d.HistoryBatch)
		r.Post("/history/statistics", d.HistoryStatistics)

		r.Get("/camera/list", d.CameraList)
		r.Post("/camera/config", d.CameraConfig)
		r.Get("/camera/{entity_id}/snapshot", d.CameraSnapshot)
		r.Get("/camera/{entity_id}/stream", d.CameraStream)
		r.Get("/camera/{entity_id}/stream/hls", d.CameraHLS)
		r.Post("/camera/{entity_id}/webrtc", d.WebRTCToken)
		r.Post("/camera/{entity_id}/webrtc/offer", d.WebRTCOffer)
		r.Post("/camera/{entity_id}/webrtc/ice", d.WebRTCICE)
		r.Post("/camera/{entity_id}/webrtc/hangup", d.WebRTCHangup)
	})

	return r
}
