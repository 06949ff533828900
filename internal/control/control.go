// Package control implements resolve entity+action, enforce ACL,
// invoke the hub service, and return post-call state.
package control

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/smartly/bridge/internal/acl"
	"github.com/smartly/bridge/internal/audit"
	"github.com/smartly/bridge/internal/authgate"
	"github.com/smartly/bridge/internal/hub"
	"github.com/smartly/bridge/internal/httpapi"
)

var entityIDPattern = regexp.MustCompile(`^[a-z0-9_]+\.[a-z0-9_]+$`)

// Request is an inbound control call.
type Request struct {
	EntityID    string         `json:"entity_id"`
	Action      string         `json:"action"`
	ServiceData map[string]any `json:"service_data"`
	Actor       *Actor         `json:"actor,omitempty"`
}

type Actor struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Response is the success payload returned to the caller.
type Response struct {
	Success       bool           `json:"success"`
	EntityID      string         `json:"entity_id"`
	Action        string         `json:"action"`
	NewState      string         `json:"new_state"`
	NewAttributes map[string]any `json:"new_attributes"`
	Timestamp     string         `json:"timestamp"`
}

// Handler is the control package's HTTP surface.
type Handler struct {
	acl      *acl.ACL
	registry hub.Registry
	services hub.ServiceCaller
	audit    *audit.Log
	log      zerolog.Logger
}

func NewHandler(a *acl.ACL, registry hub.Registry, services hub.ServiceCaller, auditLog *audit.Log, log zerolog.Logger) *Handler {
	return &Handler{acl: a, registry: registry, services: services, audit: auditLog, log: log.With().Str("component", "control").Logger()}
}

// ServeHTTP implements POST /api/smartly/control. Auth (C1) has already run
// by the time this is reached; the caller mounts it behind Gate.Middleware.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	info, _ := authgate.FromContext(ctx)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.deny(ctx, info, "", "", "invalid_json")
		httpapi.WriteError(w, h.log, httpapi.Wrap(httpapi.KindInvalidJSON, err))
		return
	}
	if req.EntityID == "" || req.Action == "" {
		h.deny(ctx, info, req.EntityID, "", "missing_required_fields")
		httpapi.WriteError(w, h.log, httpapi.New(httpapi.KindMissingRequiredFields))
		return
	}
	if !entityIDPattern.MatchString(req.EntityID) {
		h.deny(ctx, info, req.EntityID, "", "invalid_entity_id")
		httpapi.WriteError(w, h.log, httpapi.New(httpapi.KindInvalidEntityID))
		return
	}

	entity, ok, err := h.registry.GetEntity(ctx, req.EntityID)
	if err != nil {
		h.fail(w, ctx, info, req, "entity_not_found", httpapi.Wrap(httpapi.KindEntityNotFound, err))
		return
	}
	if !ok {
		h.fail(w, ctx, info, req, "entity_not_found", httpapi.New(httpapi.KindEntityNotFound))
		return
	}

	allowed, err := h.acl.IsEntityAllowed(ctx, req.EntityID)
	if err != nil {
		h.fail(w, ctx, info, req, "internal_server_error", httpapi.Wrap(httpapi.KindInternalServerError, err))
		return
	}
	if !allowed {
		h.fail(w, ctx, info, req, "entity_not_allowed", httpapi.New(httpapi.KindEntityNotAllowed))
		return
	}

	domain := acl.DomainOf(req.EntityID)
	if !acl.IsServiceAllowed(domain, req.Action) {
		h.fail(w, ctx, info, req, "service_not_allowed", httpapi.New(httpapi.KindServiceNotAllowed))
		return
	}

	serviceData := sanitizeServiceData(req.ServiceData)
	if err := h.services.Call(ctx, domain, req.Action, req.EntityID, serviceData); err != nil {
		h.log.Debug().Err(err).Str("entity_id", req.EntityID).Msg("service call failed")
		h.fail(w, ctx, info, req, "service_call_failed", httpapi.Wrap(httpapi.KindServiceCallFailed, err))
		return
	}

	state, ok, err := h.registry.GetState(ctx, req.EntityID)
	if err != nil || !ok {
		h.fail(w, ctx, info, req, "service_call_failed", httpapi.New(httpapi.KindServiceCallFailed))
		return
	}

	newState := state.State
	deviceClass, unit := deviceClassOf(state.Attributes), unitOf(state.Attributes)
	if acl.IsNumeric(newState) {
		newState = acl.FormatNumeric(newState, deviceClass, unit)
	}
	newAttrs := formatAttributes(state.Attributes, deviceClass, unit)

	actorUserID, actorRole := actorFields(req.Actor)
	h.audit.Write(ctx, audit.Event{
		ClientID: info.ClientID, EntityID: req.EntityID, Service: req.Action,
		Result: "success", SourceIP: info.SourceIP,
		ActorUserID: actorUserID, ActorRole: actorRole,
	})

	httpapi.WriteJSON(w, http.StatusOK, Response{
		Success:       true,
		EntityID:      req.EntityID,
		Action:        req.Action,
		NewState:      newState,
		NewAttributes: newAttrs,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) fail(w http.ResponseWriter, ctx context.Context, info authgate.Info, req Request, reason string, apiErr *httpapi.Error) {
	h.deny(ctx, info, req.EntityID, req.Action, reason)
	httpapi.WriteError(w, h.log, apiErr)
}

func (h *Handler) deny(ctx context.Context, info authgate.Info, entityID, service, reason string) {
	h.audit.Write(ctx, audit.Event{
		ClientID: info.ClientID, EntityID: entityID, Service: service,
		Result: "denied", SourceIP: info.SourceIP, Reason: reason,
	})
}

func actorFields(a *Actor) (userID, role string) {
	if a == nil {
		return "", ""
	}
	return a.UserID, a.Role
}

// sanitizeServiceData strips keys the downstream hub service schema never
// accepts. Spec §9 calls out "limit" by name as a historical bug source.
func sanitizeServiceData(data map[string]any) map[string]any {
	if data == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		if k == "limit" {
			continue
		}
		out[k] = v
	}
	return out
}

// formatAttributes runs every numeric attribute value through the same
// decimal-places table as new_state, leaving non-numeric values untouched.
func formatAttributes(attrs map[string]any, deviceClass, unit string) map[string]any {
	if attrs == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = formatAttributeValue(v, deviceClass, unit)
	}
	return out
}

func formatAttributeValue(v any, deviceClass, unit string) any {
	switch val := v.(type) {
	case float64:
		return acl.FormatNumeric(strconv.FormatFloat(val, 'f', -1, 64), deviceClass, unit)
	case string:
		if acl.IsNumeric(val) {
			return acl.FormatNumeric(val, deviceClass, unit)
		}
		return val
	default:
		return v
	}
}

func deviceClassOf(attrs map[string]any) string {
	if v, ok := attrs["device_class"].(string); ok {
		return v
	}
	return ""
}

func unitOf(attrs map[string]any) string {
	if v, ok := attrs["unit_of_measurement"].(string); ok {
		return v
	}
	return ""
}
