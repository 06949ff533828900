package history

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/smartly/bridge/internal/acl"
	"github.com/smartly/bridge/internal/hub"
	"github.com/smartly/bridge/internal/httpapi"
)

type batchRequest struct {
	EntityIDs              []string `json:"entity_ids"`
	StartTime              string   `json:"start_time"`
	EndTime                string   `json:"end_time"`
	Limit                  int      `json:"limit"`
	SignificantChangesOnly *bool    `json:"significant_changes_only"`
}

type batchEntityResult struct {
	EntityID string             `json:"entity_id"`
	History  []historyEntryView `json:"history"`
	Metadata metadata           `json:"metadata"`
}

type batchResponse struct {
	Results []batchEntityResult `json:"results"`
}

// Batch handles POST /api/smartly/history/batch: up to 50 entity ids, same
// time/limit semantics as Single, no cursor support.
func (h *Handler) Batch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, h.log, httpapi.Wrap(httpapi.KindInvalidJSON, err))
		return
	}
	if len(req.EntityIDs) == 0 {
		httpapi.WriteError(w, h.log, httpapi.New(httpapi.KindMissingRequiredFields))
		return
	}
	if len(req.EntityIDs) > maxBatchEntities {
		httpapi.WriteError(w, h.log, httpapi.New(httpapi.KindTooManyEntities))
		return
	}

	q := url.Values{}
	if req.StartTime != "" {
		q.Set("start_time", req.StartTime)
	}
	if req.EndTime != "" {
		q.Set("end_time", req.EndTime)
	}
	start, end, apiErr := parseTimeRange(q)
	if apiErr != nil {
		httpapi.WriteError(w, h.log, apiErr)
		return
	}

	sigOnly := true
	if req.SignificantChangesOnly != nil {
		sigOnly = *req.SignificantChangesOnly
	}
	limit := req.Limit
	if limit == 0 && end.Sub(start) > unlimitedWindow {
		limit = unlimitedCapRows
	}

	results := make([]batchEntityResult, 0, len(req.EntityIDs))
	for _, entityID := range req.EntityIDs {
		allowed, err := h.acl.IsEntityAllowed(ctx, entityID)
		if err != nil || !allowed {
			continue
		}
		rows, err := h.queryRecorder(ctx, hub.HistoryQuery{
			EntityID: entityID, Start: start, End: end, Limit: limit, SignificantChangesOnly: sigOnly,
		})
		if err != nil {
			continue
		}
		rows = sortNewestFirst(rows)
		entity, _, _ := h.registry.GetEntity(ctx, entityID)
		meta := h.resolveMetadata(ctx, entityID, entity, rows)
		results = append(results, batchEntityResult{
			EntityID: entityID,
			History:  renderEntries(rows, meta),
			Metadata: meta,
		})
	}

	httpapi.WriteJSON(w, http.StatusOK, batchResponse{Results: results})
}
