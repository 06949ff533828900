package sync

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/smartly/bridge/internal/acl"
	"github.com/smartly/bridge/internal/hub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler() (*Handler, *hub.FakeRegistry) {
	reg := hub.NewFakeRegistry()
	a := acl.New(reg)
	return NewHandler(a, reg, zerolog.Nop()), reg
}

func TestStructureReturnsOnlyAllowedEntities(t *testing.T) {
	h, reg := newTestHandler()
	reg.Entities["light.kitchen"] = hub.EntityDescriptor{EntityID: "light.kitchen", Domain: "light", Labels: []string{"smartly"}}
	reg.Entities["light.attic"] = hub.EntityDescriptor{EntityID: "light.attic", Domain: "light", Labels: []string{"other"}}

	req := httptest.NewRequest(http.MethodGet, "/api/smartly/sync/structure", nil)
	w := httptest.NewRecorder()
	h.Structure(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var topo acl.Topology
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &topo))
	require.Len(t, topo.Entities, 1)
	assert.Equal(t, "light.kitchen", topo.Entities[0].EntityID)
}

func TestStatesFormatsNumericValues(t *testing.T) {
	h, reg := newTestHandler()
	reg.Entities["sensor.power"] = hub.EntityDescriptor{EntityID: "sensor.power", Domain: "sensor", Labels: []string{"smartly"}}
	reg.States["sensor.power"] = hub.State{
		EntityID:    "sensor.power",
		State:       "42.1234",
		Attributes:  map[string]any{"device_class": "power", "unit_of_measurement": "W"},
		LastChanged: time.Unix(0, 0),
		LastUpdated: time.Unix(0, 0),
	}

	req := httptest.NewRequest(http.MethodGet, "/api/smartly/sync/states", nil)
	w := httptest.NewRecorder()
	h.States(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp statesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, "42.12", resp.States[0].State)
}

func TestStatesSkipsEntitiesWithNoRegisteredState(t *testing.T) {
	h, reg := newTestHandler()
	reg.Entities["light.ghost"] = hub.EntityDescriptor{EntityID: "light.ghost", Domain: "light", Labels: []string{"smartly"}}

	req := httptest.NewRequest(http.MethodGet, "/api/smartly/sync/states", nil)
	w := httptest.NewRecorder()
	h.States(w, req)

	var resp statesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Count)
}
