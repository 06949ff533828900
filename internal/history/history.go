// Package history implements bounded time-range/statistics queries with
// cursor pagination and visualization metadata. All recorder I/O is
// dispatched to a worker pool, never run on the request-handling path
// directly — it always goes through the worker pool.
package history

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/smartly/bridge/internal/acl"
	"github.com/smartly/bridge/internal/hub"
	"github.com/smartly/bridge/internal/httpapi"
	"github.com/smartly/bridge/internal/workerpool"
)

const (
	maxWindow        = 30 * 24 * time.Hour
	defaultPageSize  = 100
	maxPageSize      = 1000
	maxBatchEntities = 50
	unlimitedWindow  = 24 * time.Hour
	unlimitedCapRows = 1000
)

type Handler struct {
	acl      *acl.ACL
	registry hub.Registry
	recorder hub.Recorder
	pool     *workerpool.Pool
	log      zerolog.Logger
}

func NewHandler(a *acl.ACL, registry hub.Registry, recorder hub.Recorder, pool *workerpool.Pool, log zerolog.Logger) *Handler {
	return &Handler{acl: a, registry: registry, recorder: recorder, pool: pool, log: log.With().Str("component", "history").Logger()}
}

type historyEntryView struct {
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	LastChanged string         `json:"last_changed"`
	LastUpdated string         `json:"last_updated"`
}

type metadata struct {
	Domain            string        `json:"domain"`
	DeviceClass       string        `json:"device_class,omitempty"`
	UnitOfMeasurement string        `json:"unit_of_measurement,omitempty"`
	FriendlyName      string        `json:"friendly_name"`
	IsNumeric         bool          `json:"is_numeric"`
	DecimalPlaces     int           `json:"decimal_places,omitempty"`
	Visualization     Visualization `json:"visualization"`
}

type singleEntityResponse struct {
	EntityID   string             `json:"entity_id"`
	History    []historyEntryView `json:"history"`
	Metadata   metadata           `json:"metadata"`
	PageSize   int                `json:"page_size,omitempty"`
	HasMore    *bool              `json:"has_more,omitempty"`
	NextCursor string             `json:"next_cursor,omitempty"`
}

// Single handles GET /api/smartly/history/{entity_id}.
func (h *Handler) Single(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entityID := chi.URLParam(r, "entity_id")

	if !h.checkEntityAccess(w, ctx, entityID) {
		return
	}

	q := r.URL.Query()
	usingCursor := q.Get("cursor") != ""

	start, end, apiErr := parseTimeRange(q)
	if apiErr != nil {
		httpapi.WriteError(w, h.log, apiErr)
		return
	}

	var after *cursor
	if usingCursor {
		c, err := decodeCursor(q.Get("cursor"))
		if err != nil {
			httpapi.WriteError(w, h.log, httpapi.Wrap(httpapi.KindInvalidCursor, err))
			return
		}
		after = &c
	}

	pageSize := defaultPageSize
	if usingCursor {
		if v := q.Get("page_size"); v != "" {
			n, err := parsePositiveInt(v)
			if err != nil || n > maxPageSize {
				httpapi.WriteError(w, h.log, httpapi.New(httpapi.KindInvalidCursor))
				return
			}
			pageSize = n
		}
	}

	sigOnly := true
	if v := q.Get("significant_changes_only"); v != "" {
		sigOnly = v != "false"
	}

	limit := 0
	if !usingCursor {
		if v := q.Get("limit"); v != "" {
			n, err := parsePositiveInt(v)
			if err != nil {
				httpapi.WriteError(w, h.log, httpapi.New(httpapi.KindInvalidTimeRange))
				return
			}
			limit = n
		} else if end.Sub(start) > unlimitedWindow {
			limit = unlimitedCapRows
		}
	}

	rows, qErr := h.queryRecorder(ctx, hub.HistoryQuery{
		EntityID: entityID, Start: start, End: end, Limit: limit, SignificantChangesOnly: sigOnly,
	})
	if qErr != nil {
		httpapi.WriteError(w, h.log, httpapi.Wrap(httpapi.KindHistoryQueryFailed, qErr))
		return
	}

	rows = sortNewestFirst(rows)
	if usingCursor {
		rows = rowsAfter(rows, after)
	}

	entity, _, _ := h.registry.GetEntity(ctx, entityID)
	meta := h.resolveMetadata(ctx, entityID, entity, rows)

	var pageRows []hub.HistoryEntry
	var hasMore bool
	var nextCur string
	if usingCursor {
		if len(rows) > pageSize {
			pageRows = rows[:pageSize]
			hasMore = true
			last := pageRows[len(pageRows)-1]
			nextCur = encodeCursor(cursor{LastTimestamp: last.LastUpdated, LastLastChanged: last.LastChanged})
		} else {
			pageRows = rows
		}
	} else {
		pageRows = rows
	}

	views := renderEntries(pageRows, meta)

	resp := singleEntityResponse{
		EntityID: entityID,
		History:  views,
		Metadata: meta,
	}
	if usingCursor {
		resp.PageSize = pageSize
		resp.HasMore = &hasMore
		if hasMore {
			resp.NextCursor = nextCur
		}
	}
	httpapi.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) checkEntityAccess(w http.ResponseWriter, ctx context.Context, entityID string) bool {
	_, ok, err := h.registry.GetEntity(ctx, entityID)
	if err != nil {
		httpapi.WriteError(w, h.log, httpapi.Wrap(httpapi.KindInternalServerError, err))
		return false
	}
	if !ok {
		httpapi.WriteError(w, h.log, httpapi.New(httpapi.KindEntityNotFound))
		return false
	}
	allowed, err := h.acl.IsEntityAllowed(ctx, entityID)
	if err != nil {
		httpapi.WriteError(w, h.log, httpapi.Wrap(httpapi.KindInternalServerError, err))
		return false
	}
	if !allowed {
		httpapi.WriteError(w, h.log, httpapi.New(httpapi.KindEntityNotAllowed))
		return false
	}
	return true
}

func (h *Handler) queryRecorder(ctx context.Context, q hub.HistoryQuery) ([]hub.HistoryEntry, error) {
	var rows []hub.HistoryEntry
	err := h.pool.Run(ctx, func(ctx context.Context) error {
		var callErr error
		rows, callErr = h.recorder.Query(ctx, q)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (h *Handler) resolveMetadata(ctx context.Context, entityID string, entity hub.EntityDescriptor, rows []hub.HistoryEntry) metadata {
	var deviceClass, unit string
	friendlyName := entity.Name
	domain := acl.DomainOf(entityID)

	// three-stage fallback: first state's attributes -> any history entry's
	// attributes -> the hub's current state for that entity.
	if len(rows) > 0 {
		deviceClass = stringAttr(rows[0].Attributes, "device_class")
		unit = stringAttr(rows[0].Attributes, "unit_of_measurement")
	}
	if deviceClass == "" || unit == "" {
		for _, row := range rows {
			if deviceClass == "" {
				deviceClass = stringAttr(row.Attributes, "device_class")
			}
			if unit == "" {
				unit = stringAttr(row.Attributes, "unit_of_measurement")
			}
			if deviceClass != "" && unit != "" {
				break
			}
		}
	}
	if deviceClass == "" || unit == "" {
		if st, ok, err := h.registry.GetState(ctx, entityID); err == nil && ok {
			if deviceClass == "" {
				deviceClass = stringAttr(st.Attributes, "device_class")
			}
			if unit == "" {
				unit = stringAttr(st.Attributes, "unit_of_measurement")
			}
		}
	}

	isNumeric := len(rows) > 0 && acl.IsNumeric(rows[0].State)
	places, _ := acl.DecimalPlacesFor(deviceClass, unit)

	return metadata{
		Domain:            domain,
		DeviceClass:       deviceClass,
		UnitOfMeasurement: unit,
		FriendlyName:      friendlyName,
		IsNumeric:         isNumeric,
		DecimalPlaces:     places,
		Visualization:     ResolveVisualization(deviceClass, domain),
	}
}

// renderEntries applies an attribute-economy rule: the first
// entry carries attributes; later entries omit them unless the state value
// changed type from the previous entry.
func renderEntries(rows []hub.HistoryEntry, meta metadata) []historyEntryView {
	out := make([]historyEntryView, 0, len(rows))
	var prevWasNumeric bool
	for i, row := range rows {
		state := row.State
		if meta.IsNumeric && acl.IsNumeric(state) {
			state = acl.FormatNumeric(state, meta.DeviceClass, meta.UnitOfMeasurement)
		}
		view := historyEntryView{
			State:       state,
			LastChanged: row.LastChanged.UTC().Format("2006-01-02T15:04:05.000000Z"),
			LastUpdated: row.LastUpdated.UTC().Format("2006-01-02T15:04:05.000000Z"),
		}
		curNumeric := acl.IsNumeric(row.State)
		if i == 0 || curNumeric != prevWasNumeric {
			view.Attributes = row.Attributes
		}
		prevWasNumeric = curNumeric
		out = append(out, view)
	}
	return out
}

func sortNewestFirst(rows []hub.HistoryEntry) []hub.HistoryEntry {
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].LastUpdated.Equal(rows[j].LastUpdated) {
			return rows[i].LastUpdated.After(rows[j].LastUpdated)
		}
		return rows[i].LastChanged.After(rows[j].LastChanged)
	})
	return rows
}

func rowsAfter(rows []hub.HistoryEntry, after *cursor) []hub.HistoryEntry {
	if after == nil {
		return rows
	}
	for i, row := range rows {
		if row.LastUpdated.Equal(after.LastTimestamp) && row.LastChanged.Equal(after.LastLastChanged) {
			return rows[i+1:]
		}
		if row.LastUpdated.Before(after.LastTimestamp) ||
			(row.LastUpdated.Equal(after.LastTimestamp) && row.LastChanged.Before(after.LastLastChanged)) {
			return rows[i:]
		}
	}
	return nil
}

func parseTimeRange(q url.Values) (time.Time, time.Time, *httpapi.Error) {
	now := time.Now().UTC()
	start := now.Add(-24 * time.Hour)
	end := now

	if v := q.Get("start_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, httpapi.New(httpapi.KindInvalidTimeRange)
		}
		start = t
	}
	if v := q.Get("end_time"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, time.Time{}, httpapi.New(httpapi.KindInvalidTimeRange)
		}
		end = t
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, httpapi.New(httpapi.KindInvalidTimeRange)
	}
	if end.Sub(start) > maxWindow {
		return time.Time{}, time.Time{}, httpapi.New(httpapi.KindInvalidTimeRange)
	}
	return start, end, nil
}

func parsePositiveInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid positive int %q", s)
	}
	return n, nil
}

func stringAttr(attrs map[string]any, key string) string {
	if v, ok := attrs[key].(string); ok {
		return v
	}
	return ""
}
