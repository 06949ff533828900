package history

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smartly/bridge/internal/hub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchReturnsResultsForAllowedEntitiesOnly(t *testing.T) {
	h, reg, rec := newTestHandler()
	reg.Entities["light.a"] = hub.EntityDescriptor{EntityID: "light.a", Domain: "light", Labels: []string{"smartly"}}
	reg.Entities["light.b"] = hub.EntityDescriptor{EntityID: "light.b", Domain: "light", Labels: []string{"other"}}
	now := time.Now().UTC()
	rec.QueryFunc = func(ctx context.Context, q hub.HistoryQuery) ([]hub.HistoryEntry, error) {
		return []hub.HistoryEntry{{EntityID: q.EntityID, State: "on", LastChanged: now, LastUpdated: now}}, nil
	}

	body, _ := json.Marshal(batchRequest{EntityIDs: []string{"light.a", "light.b"}})
	req := httptest.NewRequest(http.MethodPost, "/api/smartly/history/batch", bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.Batch(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp batchResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "light.a", resp.Results[0].EntityID)
}

func TestBatchRejectsTooManyEntities(t *testing.T) {
	h, _, _ := newTestHandler()
	ids := make([]string, maxBatchEntities+1)
	for i := range ids {
		ids[i] = "light.x"
	}
	body, _ := json.Marshal(batchRequest{EntityIDs: ids})
	req := httptest.NewRequest(http.MethodPost, "/api/smartly/history/batch", bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.Batch(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBatchRejectsEmptyEntityList(t *testing.T) {
	h, _, _ := newTestHandler()
	body, _ := json.Marshal(batchRequest{EntityIDs: nil})
	req := httptest.NewRequest(http.MethodPost, "/api/smartly/history/batch", bytes.NewReader(body))
	w := httptest.NewRecorder()
	h.Batch(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
