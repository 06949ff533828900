// Package sync implements the read-only structure and states
// handlers.
package sync

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/smartly/bridge/internal/acl"
	"github.com/smartly/bridge/internal/hub"
	"github.com/smartly/bridge/internal/httpapi"
)

type Handler struct {
	acl      *acl.ACL
	registry hub.Registry
	log      zerolog.Logger
}

func NewHandler(a *acl.ACL, registry hub.Registry, log zerolog.Logger) *Handler {
	return &Handler{acl: a, registry: registry, log: log.With().Str("component", "sync").Logger()}
}

// Structure handles GET /api/smartly/sync/structure.
func (h *Handler) Structure(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entities, err := h.acl.AllowedEntities(ctx)
	if err != nil {
		httpapi.WriteError(w, h.log, httpapi.Wrap(httpapi.KindInternalServerError, err))
		return
	}
	topo := h.acl.BuildStructure(ctx, entities)
	httpapi.WriteJSON(w, http.StatusOK, topo)
}

type stateView struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged string         `json:"last_changed"`
	LastUpdated string         `json:"last_updated"`
	Icon        string         `json:"icon,omitempty"`
}

type statesResponse struct {
	States []stateView `json:"states"`
	Count  int         `json:"count"`
}

// States handles GET /api/smartly/sync/states.
func (h *Handler) States(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entities, err := h.acl.AllowedEntities(ctx)
	if err != nil {
		httpapi.WriteError(w, h.log, httpapi.Wrap(httpapi.KindInternalServerError, err))
		return
	}

	views := make([]stateView, 0, len(entities))
	for _, e := range entities {
		view, ok := h.buildStateView(ctx, e)
		if !ok {
			continue
		}
		views = append(views, view)
	}

	httpapi.WriteJSON(w, http.StatusOK, statesResponse{States: views, Count: len(views)})
}

func (h *Handler) buildStateView(ctx context.Context, e hub.EntityDescriptor) (stateView, bool) {
	st, ok, err := h.registry.GetState(ctx, e.EntityID)
	if err != nil || !ok {
		return stateView{}, false
	}

	rendered := st.State
	if acl.IsNumeric(rendered) {
		rendered = acl.FormatNumeric(rendered, stringAttr(st.Attributes, "device_class"), stringAttr(st.Attributes, "unit_of_measurement"))
	}

	return stateView{
		EntityID:    e.EntityID,
		State:       rendered,
		Attributes:  st.Attributes,
		LastChanged: st.LastChanged.UTC().Format("2006-01-02T15:04:05.000000Z"),
		LastUpdated: st.LastUpdated.UTC().Format("2006-01-02T15:04:05.000000Z"),
		Icon:        e.Icon,
	}, true
}

func stringAttr(attrs map[string]any, key string) string {
	if v, ok := attrs[key].(string); ok {
		return v
	}
	return ""
}
