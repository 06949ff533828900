package camera

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/smartly/bridge/internal/acl"
	"github.com/smartly/bridge/internal/audit"
	"github.com/smartly/bridge/internal/hub"
	"github.com/smartly/bridge/internal/httpapi"
)

// Handler wires C7's HTTP surface: list, snapshot, stream, HLS, config.
type Handler struct {
	acl      *acl.ACL
	registry *Registry
	snapshot *SnapshotCache
	stream   *StreamProxy
	hls      *HLSManager
	hub      hub.CameraAPI
	audit    *audit.Log
	log      zerolog.Logger
}

func NewHandler(a *acl.ACL, registry *Registry, snapshot *SnapshotCache, stream *StreamProxy, hlsMgr *HLSManager, cameraAPI hub.CameraAPI, auditLog *audit.Log, log zerolog.Logger) *Handler {
	return &Handler{
		acl: a, registry: registry, snapshot: snapshot, stream: stream, hls: hlsMgr,
		hub: cameraAPI, audit: auditLog, log: log.With().Str("component", "camera").Logger(),
	}
}

type cameraListEntry struct {
	EntityID string `json:"entity_id"`
	Name     string `json:"name,omitempty"`
}

// List handles GET /api/smartly/camera/list.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entities, err := h.acl.AllowedEntities(ctx)
	if err != nil {
		httpapi.WriteError(w, h.log, httpapi.Wrap(httpapi.KindInternalServerError, err))
		return
	}
	out := make([]cameraListEntry, 0)
	for _, e := range entities {
		if e.Domain != "camera" {
			continue
		}
		out = append(out, cameraListEntry{EntityID: e.EntityID, Name: e.Name})
	}
	httpapi.WriteJSON(w, http.StatusOK, out)
}

// Snapshot handles GET /api/smartly/camera/{entity_id}/snapshot.
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entityID := chi.URLParam(r, "entity_id")
	if !h.checkAllowed(w, ctx, entityID) {
		return
	}

	refresh := r.URL.Query().Get("refresh") == "true"

	var snap Snapshot
	var ok bool
	if !refresh {
		snap, ok = h.snapshot.Get(entityID)
	}
	if !ok {
		fresh, err := h.snapshot.Refresh(ctx, entityID)
		if err != nil {
			httpapi.WriteError(w, h.log, httpapi.Wrap(httpapi.KindSnapshotUnavailable, err))
			return
		}
		snap = fresh
	}

	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == snap.ETag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", snap.ContentType)
	w.Header().Set("ETag", snap.ETag)
	w.Header().Set("Cache-Control", "private, max-age="+cacheMaxAge(h.snapshot.ttl))
	w.Header().Set("X-Snapshot-Timestamp", snap.CapturedAt.UTC().Format("2006-01-02T15:04:05.000000Z"))
	w.WriteHeader(http.StatusOK)
	w.Write(snap.ImageBytes)
}

// Stream handles GET /api/smartly/camera/{entity_id}/stream (MJPEG).
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entityID := chi.URLParam(r, "entity_id")
	if !h.checkAllowed(w, ctx, entityID) {
		return
	}

	cfg, hasConfig := h.registry.Get(entityID)
	streamURL := ""
	headers := map[string]string{}
	if hasConfig && cfg.StreamURL != "" {
		streamURL = cfg.StreamURL
		if cfg.Username != "" {
			headers["Authorization"] = basicAuthHeader(cfg.Username, cfg.Password)
		}
		for k, v := range cfg.ExtraHeaders {
			headers[k] = v
		}
	} else if h.hub != nil {
		src, ok, err := h.hub.ResolveSource(ctx, entityID)
		if err != nil || !ok || src.StreamURL == "" {
			httpapi.WriteError(w, h.log, httpapi.New(httpapi.KindStreamSourceNotFound))
			return
		}
		streamURL = src.StreamURL
	}
	if streamURL == "" {
		httpapi.WriteError(w, h.log, httpapi.New(httpapi.KindStreamSourceNotFound))
		return
	}

	if err := h.stream.Proxy(ctx, w, streamURL, headers); err != nil {
		h.log.Debug().Err(err).Str("entity_id", entityID).Msg("mjpeg stream ended")
	}
}

// HLS handles GET /api/smartly/camera/{entity_id}/stream/hls?action=.
func (h *Handler) HLS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entityID := chi.URLParam(r, "entity_id")
	if !h.checkAllowed(w, ctx, entityID) {
		return
	}

	action := r.URL.Query().Get("action")
	switch action {
	case "start":
		session, playlists := h.hls.Start(entityID)
		httpapi.WriteJSON(w, http.StatusOK, map[string]any{
			"stream_id":  session.StreamID,
			"playlists":  playlists,
			"started_at": session.StartedAt.UTC().Format("2006-01-02T15:04:05.000000Z"),
		})
	case "stop":
		if !h.hls.Stop(entityID) {
			httpapi.WriteError(w, h.log, httpapi.New(httpapi.KindSessionNotFound))
			return
		}
		httpapi.WriteJSON(w, http.StatusOK, map[string]any{"status": "stopped"})
	case "info":
		session, active := h.hls.Info(entityID)
		httpapi.WriteJSON(w, http.StatusOK, map[string]any{
			"active":            active,
			"clients_connected": session.ClientsConnected,
		})
	case "stats":
		httpapi.WriteJSON(w, http.StatusOK, h.hls.Stats())
	default:
		httpapi.WriteError(w, h.log, httpapi.New(httpapi.KindInvalidAction))
	}
}

type registerRequest struct {
	Action       string            `json:"action"`
	EntityID     string            `json:"entity_id"`
	Name         string            `json:"name,omitempty"`
	SnapshotURL  string            `json:"snapshot_url,omitempty"`
	StreamURL    string            `json:"stream_url,omitempty"`
	Username     string            `json:"username,omitempty"`
	Password     string            `json:"password,omitempty"`
	VerifySSL    *bool             `json:"verify_ssl,omitempty"`
	ExtraHeaders map[string]string `json:"extra_headers,omitempty"`
}

// ConfigAction handles POST /api/smartly/camera/config.
func (h *Handler) ConfigAction(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, h.log, httpapi.Wrap(httpapi.KindInvalidJSON, err))
		return
	}

	switch req.Action {
	case "register":
		if req.EntityID == "" {
			httpapi.WriteError(w, h.log, httpapi.New(httpapi.KindMissingRequiredFields))
			return
		}
		verify := true
		if req.VerifySSL != nil {
			verify = *req.VerifySSL
		}
		h.registry.Register(Config{
			EntityID: req.EntityID, Name: req.Name, SnapshotURL: req.SnapshotURL,
			StreamURL: req.StreamURL, Username: req.Username, Password: req.Password,
			VerifySSL: verify, ExtraHeaders: req.ExtraHeaders,
		})
		httpapi.WriteJSON(w, http.StatusOK, map[string]any{"status": "registered"})
	case "unregister":
		h.registry.Unregister(req.EntityID)
		httpapi.WriteJSON(w, http.StatusOK, map[string]any{"status": "unregistered"})
	case "clear_cache":
		h.snapshot.Clear()
		httpapi.WriteJSON(w, http.StatusOK, map[string]any{"status": "cleared"})
	case "list":
		httpapi.WriteJSON(w, http.StatusOK, h.registry.List())
	default:
		httpapi.WriteError(w, h.log, httpapi.New(httpapi.KindInvalidAction))
	}
}

func (h *Handler) checkAllowed(w http.ResponseWriter, ctx context.Context, entityID string) bool {
	allowed, err := h.acl.IsEntityAllowed(ctx, entityID)
	if err != nil {
		httpapi.WriteError(w, h.log, httpapi.Wrap(httpapi.KindInternalServerError, err))
		return false
	}
	if !allowed {
		httpapi.WriteError(w, h.log, httpapi.New(httpapi.KindCameraNotFound))
		return false
	}
	return true
}


func basicAuthHeader(user, pass string) string {
	req := &http.Request{}
	req.SetBasicAuth(user, pass)
	return req.Header.Get("Authorization")
}

func cacheMaxAge(ttl time.Duration) string {
	return strconv.Itoa(int(ttl.Seconds()))
}
