package history

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/smartly/bridge/internal/acl"
	"github.com/smartly/bridge/internal/hub"
	"github.com/smartly/bridge/internal/workerpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler() (*Handler, *hub.FakeRegistry, *hub.FakeRecorder) {
	reg := hub.NewFakeRegistry()
	rec := &hub.FakeRecorder{}
	a := acl.New(reg)
	pool := workerpool.New(4)
	return NewHandler(a, reg, rec, pool, zerolog.Nop()), reg, rec
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestSingleReturnsHistoryForAllowedEntity(t *testing.T) {
	h, reg, rec := newTestHandler()
	reg.Entities["sensor.power"] = hub.EntityDescriptor{EntityID: "sensor.power", Domain: "sensor", Labels: []string{"smartly"}}
	now := time.Now().UTC()
	rec.QueryFunc = func(ctx context.Context, q hub.HistoryQuery) ([]hub.HistoryEntry, error) {
		return []hub.HistoryEntry{
			{EntityID: "sensor.power", State: "10.5", Attributes: map[string]any{"device_class": "power", "unit_of_measurement": "W"}, LastChanged: now, LastUpdated: now},
		}, nil
	}

	req := httptest.NewRequest(http.MethodGet, "/api/smartly/history/sensor.power", nil)
	req = withURLParam(req, "entity_id", "sensor.power")
	w := httptest.NewRecorder()
	h.Single(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp singleEntityResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.History, 1)
	assert.Equal(t, "10.50", resp.History[0].State)
}

func TestSingleRejectsUnknownEntity(t *testing.T) {
	h, _, _ := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/api/smartly/history/sensor.ghost", nil)
	req = withURLParam(req, "entity_id", "sensor.ghost")
	w := httptest.NewRecorder()
	h.Single(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSingleRejectsInvalidTimeRange(t *testing.T) {
	h, reg, _ := newTestHandler()
	reg.Entities["sensor.power"] = hub.EntityDescriptor{EntityID: "sensor.power", Domain: "sensor", Labels: []string{"smartly"}}

	req := httptest.NewRequest(http.MethodGet, "/api/smartly/history/sensor.power?start_time=2024-01-02T00:00:00Z&end_time=2024-01-01T00:00:00Z", nil)
	req = withURLParam(req, "entity_id", "sensor.power")
	w := httptest.NewRecorder()
	h.Single(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSingleCursorPagination(t *testing.T) {
	h, reg, rec := newTestHandler()
	reg.Entities["sensor.power"] = hub.EntityDescriptor{EntityID: "sensor.power", Domain: "sensor", Labels: []string{"smartly"}}
	base := time.Now().UTC()
	rec.QueryFunc = func(ctx context.Context, q hub.HistoryQuery) ([]hub.HistoryEntry, error) {
		rows := make([]hub.HistoryEntry, 0, 3)
		for i := 0; i < 3; i++ {
			ts := base.Add(time.Duration(-i) * time.Minute)
			rows = append(rows, hub.HistoryEntry{EntityID: "sensor.power", State: "1", LastChanged: ts, LastUpdated: ts})
		}
		return rows, nil
	}

	encoded := encodeCursor(cursor{LastTimestamp: base.Add(time.Hour), LastLastChanged: base.Add(time.Hour)})
	req := httptest.NewRequest(http.MethodGet, "/api/smartly/history/sensor.power?cursor="+encoded+"&page_size=1", nil)
	req = withURLParam(req, "entity_id", "sensor.power")

	w := httptest.NewRecorder()
	h.Single(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp singleEntityResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.HasMore)
	assert.True(t, *resp.HasMore)
	assert.Len(t, resp.History, 1)
	assert.NotEmpty(t, resp.NextCursor)
}

func TestRowsAfterSkipsPastCursor(t *testing.T) {
	base := time.Now().UTC()
	rows := []hub.HistoryEntry{
		{LastUpdated: base, LastChanged: base},
		{LastUpdated: base.Add(-time.Minute), LastChanged: base.Add(-time.Minute)},
	}
	after := &cursor{LastTimestamp: base, LastLastChanged: base}
	out := rowsAfter(rows, after)
	require.Len(t, out, 1)
	assert.True(t, out[0].LastUpdated.Equal(base.Add(-time.Minute)))
}

func TestRenderEntriesCarriesAttributesOnTypeChange(t *testing.T) {
	now := time.Now().UTC()
	rows := []hub.HistoryEntry{
		{State: "on", Attributes: map[string]any{"a": 1}, LastChanged: now, LastUpdated: now},
		{State: "5", Attributes: map[string]any{"b": 2}, LastChanged: now, LastUpdated: now},
		{State: "7", Attributes: map[string]any{"c": 3}, LastChanged: now, LastUpdated: now},
	}
	views := renderEntries(rows, metadata{})
	require.Len(t, views, 3)
	assert.NotNil(t, views[0].Attributes)
	assert.NotNil(t, views[1].Attributes) // type changed from non-numeric to numeric
	assert.Nil(t, views[2].Attributes)    // same numeric type as previous, omitted
}
