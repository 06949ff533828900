package webrtc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/smartly/bridge/internal/acl"
	"github.com/smartly/bridge/internal/authgate"
	"github.com/smartly/bridge/internal/config"
	"github.com/smartly/bridge/internal/httpapi"
	"github.com/smartly/bridge/internal/hub"
)

// Handler wires C8's HTTP surface: token issuance, SDP offer/answer
// exchange, ICE trickle, and hangup.
type Handler struct {
	acl     *acl.ACL
	tables  *Tables
	client  *Go2RTCClient
	cameras hub.CameraAPI
	store   *config.Store
	log     zerolog.Logger
}

func NewHandler(a *acl.ACL, tables *Tables, client *Go2RTCClient, cameras hub.CameraAPI, store *config.Store, log zerolog.Logger) *Handler {
	return &Handler{
		acl: a, tables: tables, client: client, cameras: cameras, store: store,
		log: log.With().Str("component", "webrtc").Logger(),
	}
}

type tokenResponse struct {
	Token          string      `json:"token"`
	ExpiresAt      time.Time   `json:"expires_at"`
	ExpiresIn      int         `json:"expires_in"`
	OfferEndpoint  string      `json:"offer_endpoint"`
	ICEEndpoint    string      `json:"ice_endpoint"`
	HangupEndpoint string      `json:"hangup_endpoint"`
	ICEServers     []IceServer `json:"ice_servers"`
}

// Token handles POST /api/smartly/camera/{entity_id}/webrtc (step
// 1). A client authenticated by the Gate middleware gets a single-use
// token scoped to entity_id + its own client_id.
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entityID := chi.URLParam(r, "entity_id")

	allowed, err := h.acl.IsEntityAllowed(ctx, entityID)
	if err != nil {
		httpapi.WriteError(w, h.log, httpapi.Wrap(httpapi.KindInternalServerError, err))
		return
	}
	if !allowed {
		httpapi.WriteError(w, h.log, httpapi.New(httpapi.KindEntityNotAllowed))
		return
	}

	info, ok := authgate.FromContext(ctx)
	if !ok {
		httpapi.WriteError(w, h.log, httpapi.New(httpapi.KindInternalServerError))
		return
	}

	tok, err := h.tables.IssueToken(entityID, info.ClientID)
	if err != nil {
		httpapi.WriteError(w, h.log, httpapi.Wrap(httpapi.KindWebRTCFailed, err))
		return
	}

	base := fmt.Sprintf("/api/smartly/camera/%s/webrtc", entityID)
	httpapi.WriteJSON(w, http.StatusOK, tokenResponse{
		Token:          tok.Value,
		ExpiresAt:      tok.ExpiresAt,
		ExpiresIn:      int(tokenTTL.Seconds()),
		OfferEndpoint:  base + "/offer",
		ICEEndpoint:    base + "/ice",
		HangupEndpoint: base + "/hangup",
		ICEServers:     buildICEServers(h.store.Get()),
	})
}

type offerRequest struct {
	Token string `json:"token"`
	SDP   string `json:"sdp"`
}

type offerResponse struct {
	SessionID string `json:"session_id"`
	SDP       string `json:"sdp"`
}

// Offer handles POST /api/smartly/camera/{entity_id}/webrtc/offer (step
// 2): consumes the token, validates the SDP offer, forwards it to go2rtc,
// and opens a session.
func (h *Handler) Offer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entityID := chi.URLParam(r, "entity_id")

	info, ok := authgate.FromContext(ctx)
	if !ok {
		httpapi.WriteError(w, h.log, httpapi.New(httpapi.KindInternalServerError))
		return
	}

	var req offerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, h.log, httpapi.Wrap(httpapi.KindInvalidJSON, err))
		return
	}
	if req.Token == "" || req.SDP == "" {
		httpapi.WriteError(w, h.log, httpapi.New(httpapi.KindMissingRequiredFields))
		return
	}

	if _, ok := h.tables.ConsumeToken(req.Token, entityID, info.ClientID); !ok {
		httpapi.WriteError(w, h.log, httpapi.New(httpapi.KindInvalidOrExpiredToken))
		return
	}

	if _, err := ValidateOffer(req.SDP); err != nil {
		httpapi.WriteError(w, h.log, httpapi.Wrap(httpapi.KindWebRTCFailed, err))
		return
	}

	var streamSource string
	if h.cameras != nil {
		src, ok, err := h.cameras.ResolveSource(ctx, entityID)
		if err != nil || !ok || src.StreamURL == "" {
			httpapi.WriteError(w, h.log, httpapi.New(httpapi.KindStreamSourceNotFound))
			return
		}
		streamSource = src.StreamURL
	} else {
		httpapi.WriteError(w, h.log, httpapi.New(httpapi.KindStreamSourceNotFound))
		return
	}

	answerSDP, err := h.client.Offer(ctx, entityID, streamSource, req.SDP)
	if err != nil {
		httpapi.WriteError(w, h.log, httpapi.Wrap(httpapi.KindGo2RTCNotAvailable, err))
		return
	}

	session, err := h.tables.CreateSession(entityID)
	if err != nil {
		httpapi.WriteError(w, h.log, httpapi.Wrap(httpapi.KindWebRTCFailed, err))
		return
	}

	httpapi.WriteJSON(w, http.StatusOK, offerResponse{SessionID: session.SessionID, SDP: answerSDP})
}

type iceRequest struct {
	SessionID string `json:"session_id"`
	Candidate string `json:"candidate"`
}

// ICE handles POST /api/smartly/camera/{entity_id}/webrtc/ice (step 3):
// forwards a trickled ICE candidate to go2rtc for an active session.
func (h *Handler) ICE(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entityID := chi.URLParam(r, "entity_id")

	var req iceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, h.log, httpapi.Wrap(httpapi.KindInvalidJSON, err))
		return
	}
	if req.SessionID == "" || req.Candidate == "" {
		httpapi.WriteError(w, h.log, httpapi.New(httpapi.KindMissingRequiredFields))
		return
	}

	session, ok := h.tables.TouchSession(req.SessionID)
	if !ok || session.EntityID != entityID {
		httpapi.WriteError(w, h.log, httpapi.New(httpapi.KindSessionNotFound))
		return
	}

	if err := h.client.ICECandidate(ctx, entityID, req.Candidate); err != nil {
		httpapi.WriteError(w, h.log, httpapi.Wrap(httpapi.KindGo2RTCNotAvailable, err))
		return
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"status": "accepted"})
}

type hangupRequest struct {
	SessionID string `json:"session_id"`
}

// Hangup handles POST /api/smartly/camera/{entity_id}/webrtc/hangup
// (step 4): tears down the go2rtc side and drops the session record.
func (h *Handler) Hangup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entityID := chi.URLParam(r, "entity_id")

	var req hangupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, h.log, httpapi.Wrap(httpapi.KindInvalidJSON, err))
		return
	}

	if req.SessionID != "" {
		h.tables.RemoveSession(req.SessionID)
	}
	if err := h.client.Hangup(ctx, entityID); err != nil {
		h.log.Debug().Err(err).Str("entity_id", entityID).Msg("go2rtc hangup failed")
	}
	httpapi.WriteJSON(w, http.StatusOK, map[string]any{"status": "closed"})
}
