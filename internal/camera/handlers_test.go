package camera

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/smartly/bridge/internal/acl"
	"github.com/smartly/bridge/internal/audit"
	"github.com/smartly/bridge/internal/hub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler() (*Handler, *hub.FakeRegistry, *Registry) {
	hubReg := hub.NewFakeRegistry()
	a := acl.New(hubReg)
	camReg := NewRegistry()
	snapCache := NewSnapshotCache(30*time.Second, camReg, nil)
	stream := NewStreamProxy()
	hlsMgr := NewHLSManager("http://media.local:1984")
	auditLog := audit.New(zerolog.Nop())
	h := NewHandler(a, camReg, snapCache, stream, hlsMgr, nil, auditLog, zerolog.Nop())
	return h, hubReg, camReg
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestListReturnsOnlyCameraDomainEntities(t *testing.T) {
	h, hubReg, _ := newTestHandler()
	hubReg.Entities["camera.front"] = hub.EntityDescriptor{EntityID: "camera.front", Domain: "camera", Name: "Front", Labels: []string{"smartly"}}
	hubReg.Entities["light.kitchen"] = hub.EntityDescriptor{EntityID: "light.kitchen", Domain: "light", Labels: []string{"smartly"}}

	req := httptest.NewRequest(http.MethodGet, "/api/smartly/camera/list", nil)
	w := httptest.NewRecorder()
	h.List(w, req)

	var out []cameraListEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "camera.front", out[0].EntityID)
}

func TestSnapshotRejectsDisallowedEntity(t *testing.T) {
	h, _, _ := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/api/smartly/camera/camera.ghost/snapshot", nil)
	req = withURLParam(req, "entity_id", "camera.ghost")
	w := httptest.NewRecorder()
	h.Snapshot(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSnapshotServesFreshCapture(t *testing.T) {
	h, hubReg, camReg := newTestHandler()
	hubReg.Entities["camera.front"] = hub.EntityDescriptor{EntityID: "camera.front", Domain: "camera", Labels: []string{"smartly"}}

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("jpeg-bytes"))
	}))
	defer upstream.Close()
	camReg.Register(Config{EntityID: "camera.front", SnapshotURL: upstream.URL, VerifySSL: true})

	req := httptest.NewRequest(http.MethodGet, "/api/smartly/camera/camera.front/snapshot", nil)
	req = withURLParam(req, "entity_id", "camera.front")
	w := httptest.NewRecorder()
	h.Snapshot(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("ETag"))
}

func TestHLSStartStopInfo(t *testing.T) {
	h, hubReg, _ := newTestHandler()
	hubReg.Entities["camera.front"] = hub.EntityDescriptor{EntityID: "camera.front", Domain: "camera", Labels: []string{"smartly"}}

	req := httptest.NewRequest(http.MethodGet, "/api/smartly/camera/camera.front/stream/hls?action=start", nil)
	req = withURLParam(req, "entity_id", "camera.front")
	w := httptest.NewRecorder()
	h.HLS(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/api/smartly/camera/camera.front/stream/hls?action=stop", nil)
	req2 = withURLParam(req2, "entity_id", "camera.front")
	w2 := httptest.NewRecorder()
	h.HLS(w2, req2)
	assert.Equal(t, http.StatusOK, w2.Code)

	req3 := httptest.NewRequest(http.MethodGet, "/api/smartly/camera/camera.front/stream/hls?action=stop", nil)
	req3 = withURLParam(req3, "entity_id", "camera.front")
	w3 := httptest.NewRecorder()
	h.HLS(w3, req3)
	assert.Equal(t, http.StatusNotFound, w3.Code)
}

func TestConfigActionRegisterDefaultsVerifySSLTrue(t *testing.T) {
	h, _, camReg := newTestHandler()

	body, _ := json.Marshal(registerRequest{Action: "register", EntityID: "camera.new"})
	req := httptest.NewRequest(http.MethodPost, "/api/smartly/camera/config", bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.ConfigAction(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	cfg, ok := camReg.Get("camera.new")
	require.True(t, ok)
	assert.True(t, cfg.VerifySSL)
}

func TestConfigActionRegisterRespectsExplicitVerifySSLFalse(t *testing.T) {
	h, _, camReg := newTestHandler()
	falseVal := false
	body, _ := json.Marshal(registerRequest{Action: "register", EntityID: "camera.insecure", VerifySSL: &falseVal})
	req := httptest.NewRequest(http.MethodPost, "/api/smartly/camera/config", bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.ConfigAction(w, req)

	cfg, ok := camReg.Get("camera.insecure")
	require.True(t, ok)
	assert.False(t, cfg.VerifySSL)
}

func TestConfigActionClearCacheDropsAllEntries(t *testing.T) {
	h, _, _ := newTestHandler()
	h.snapshot.mu.Lock()
	h.snapshot.cache.Add("camera.fresh", Snapshot{EntityID: "camera.fresh", CapturedAt: time.Now()})
	h.snapshot.mu.Unlock()

	body, _ := json.Marshal(registerRequest{Action: "clear_cache"})
	req := httptest.NewRequest(http.MethodPost, "/api/smartly/camera/config", bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.ConfigAction(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, h.snapshot.Len())
}

func TestConfigActionUnknownActionRejected(t *testing.T) {
	h, _, _ := newTestHandler()
	body, _ := json.Marshal(registerRequest{Action: "bogus"})
	req := httptest.NewRequest(http.MethodPost, "/api/smartly/camera/config", bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.ConfigAction(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
