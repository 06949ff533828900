package history

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/smartly/bridge/internal/acl"
	"github.com/smartly/bridge/internal/hub"
	"github.com/smartly/bridge/internal/httpapi"
)

var validPeriods = map[string]bool{
	"5minute": true, "hour": true, "day": true, "week": true, "month": true,
}

type statisticsRequest struct {
	EntityIDs []string `json:"entity_ids"`
	StartTime string   `json:"start_time"`
	EndTime   string   `json:"end_time"`
	Period    string   `json:"period"`
}

type statisticPointView struct {
	Start string  `json:"start"`
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Sum   float64 `json:"sum"`
}

type statisticsEntityResult struct {
	EntityID   string                `json:"entity_id"`
	Statistics []statisticPointView  `json:"statistics"`
}

type statisticsResponse struct {
	Period  string                   `json:"period"`
	Results []statisticsEntityResult `json:"results"`
}

// Statistics handles POST /api/smartly/history/statistics: period-aggregated
// stats for numeric sensors only, delegated to the hub's recorder.
func (h *Handler) Statistics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req statisticsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpapi.WriteError(w, h.log, httpapi.Wrap(httpapi.KindInvalidJSON, err))
		return
	}
	if len(req.EntityIDs) == 0 || req.Period == "" {
		httpapi.WriteError(w, h.log, httpapi.New(httpapi.KindMissingRequiredFields))
		return
	}
	if len(req.EntityIDs) > maxBatchEntities {
		httpapi.WriteError(w, h.log, httpapi.New(httpapi.KindTooManyEntities))
		return
	}
	if !validPeriods[req.Period] {
		httpapi.WriteError(w, h.log, httpapi.New(httpapi.KindInvalidPeriod))
		return
	}

	now := time.Now().UTC()
	start := now.Add(-24 * time.Hour)
	end := now
	if req.StartTime != "" {
		t, err := time.Parse(time.RFC3339, req.StartTime)
		if err != nil {
			httpapi.WriteError(w, h.log, httpapi.New(httpapi.KindInvalidTimeRange))
			return
		}
		start = t
	}
	if req.EndTime != "" {
		t, err := time.Parse(time.RFC3339, req.EndTime)
		if err != nil {
			httpapi.WriteError(w, h.log, httpapi.New(httpapi.KindInvalidTimeRange))
			return
		}
		end = t
	}
	if !end.After(start) || end.Sub(start) > maxWindow {
		httpapi.WriteError(w, h.log, httpapi.New(httpapi.KindInvalidTimeRange))
		return
	}

	results := make([]statisticsEntityResult, 0, len(req.EntityIDs))
	for _, entityID := range req.EntityIDs {
		allowed, err := h.acl.IsEntityAllowed(ctx, entityID)
		if err != nil || !allowed {
			continue
		}
		if !h.isNumericSensor(ctx, entityID) {
			continue
		}

		var points []hub.StatisticPoint
		runErr := h.pool.Run(ctx, func(ctx context.Context) error {
			var callErr error
			points, callErr = h.recorder.Statistics(ctx, hub.StatisticsQuery{
				EntityID: entityID, Start: start, End: end, Period: req.Period,
			})
			return callErr
		})
		if runErr != nil {
			httpapi.WriteError(w, h.log, httpapi.Wrap(httpapi.KindStatisticsQueryFailed, runErr))
			return
		}

		views := make([]statisticPointView, 0, len(points))
		for _, p := range points {
			views = append(views, statisticPointView{
				Start: p.Start.UTC().Format(time.RFC3339),
				Mean:  p.Mean, Min: p.Min, Max: p.Max, Sum: p.Sum,
			})
		}
		results = append(results, statisticsEntityResult{EntityID: entityID, Statistics: views})
	}

	httpapi.WriteJSON(w, http.StatusOK, statisticsResponse{Period: req.Period, Results: results})
}

func (h *Handler) isNumericSensor(ctx context.Context, entityID string) bool {
	if acl.DomainOf(entityID) != "sensor" {
		return false
	}
	st, ok, err := h.registry.GetState(ctx, entityID)
	if err != nil || !ok {
		return false
	}
	return acl.IsNumeric(st.State)
}
