// Package httpapi holds the bridge's shared HTTP plumbing: the closed error
// taxonomy, the response writer that never leaks raw error text, and the chi
// router/middleware chain wiring every component hangs off of.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
)

// Kind is one of the closed set of error kinds the bridge can return. The
// string value is exactly the wire value clients see in {"error": kind}.
type Kind string

const (
	// Auth
	KindIPNotAllowed     Kind = "ip_not_allowed"
	KindMissingHeaders   Kind = "missing_headers"
	KindInvalidClientID  Kind = "invalid_client_id"
	KindInvalidTimestamp Kind = "invalid_timestamp"
	KindNonceReused      Kind = "nonce_reused"
	KindInvalidSignature Kind = "invalid_signature"
	KindRateLimited      Kind = "rate_limited"

	// Request shape
	KindInvalidJSON            Kind = "invalid_json"
	KindMissingRequiredFields  Kind = "missing_required_fields"
	KindInvalidEntityID        Kind = "invalid_entity_id"
	KindInvalidAction          Kind = "invalid_action"
	KindInvalidServiceData     Kind = "invalid_service_data"
	KindInvalidTimeRange       Kind = "invalid_time_range"
	KindInvalidPeriod          Kind = "invalid_period"
	KindInvalidCursor          Kind = "invalid_cursor"
	KindTooManyEntities        Kind = "too_many_entities"

	// Authorization
	KindEntityNotAllowed  Kind = "entity_not_allowed"
	KindServiceNotAllowed Kind = "service_not_allowed"
	KindACLDenied         Kind = "acl_denied"

	// Not found
	KindEntityNotFound       Kind = "entity_not_found"
	KindCameraNotFound       Kind = "camera_not_found"
	KindSnapshotUnavailable  Kind = "snapshot_unavailable"
	KindSessionNotFound      Kind = "session_not_found"

	// Upstream
	KindServiceCallFailed    Kind = "service_call_failed"
	KindHistoryQueryFailed   Kind = "history_query_failed"
	KindStatisticsQueryFailed Kind = "statistics_query_failed"
	KindWebRTCFailed         Kind = "webrtc_failed"
	KindGo2RTCNotAvailable   Kind = "go2rtc_not_available"
	KindStreamSourceNotFound Kind = "stream_source_not_found"
	KindInvalidOrExpiredToken Kind = "invalid_or_expired_token"

	// Infra
	KindIntegrationNotConfigured     Kind = "integration_not_configured"
	KindCameraManagerNotInitialized  Kind = "camera_manager_not_initialized"
	KindWebRTCNotAvailable           Kind = "webrtc_not_available"
	KindServiceUnavailable           Kind = "service_unavailable"
	KindInternalServerError          Kind = "internal_server_error"
)

// statusOf is the fixed kind -> HTTP status mapping. Every handler error
// flows through here so the mapping lives in exactly one place.
var statusOf = map[Kind]int{
	KindIPNotAllowed:     http.StatusUnauthorized,
	KindMissingHeaders:   http.StatusUnauthorized,
	KindInvalidClientID:  http.StatusUnauthorized,
	KindInvalidTimestamp: http.StatusUnauthorized,
	KindNonceReused:      http.StatusUnauthorized,
	KindInvalidSignature: http.StatusUnauthorized,
	KindRateLimited:      http.StatusTooManyRequests,

	KindInvalidJSON:           http.StatusBadRequest,
	KindMissingRequiredFields: http.StatusBadRequest,
	KindInvalidEntityID:       http.StatusBadRequest,
	KindInvalidAction:         http.StatusBadRequest,
	KindInvalidServiceData:    http.StatusBadRequest,
	KindInvalidTimeRange:      http.StatusBadRequest,
	KindInvalidPeriod:         http.StatusBadRequest,
	KindInvalidCursor:         http.StatusBadRequest,
	KindTooManyEntities:       http.StatusBadRequest,

	KindEntityNotAllowed:  http.StatusForbidden,
	KindServiceNotAllowed: http.StatusForbidden,
	KindACLDenied:         http.StatusForbidden,

	KindEntityNotFound:      http.StatusNotFound,
	KindCameraNotFound:      http.StatusNotFound,
	KindSnapshotUnavailable: http.StatusNotFound,
	KindSessionNotFound:     http.StatusNotFound,

	KindServiceCallFailed:     http.StatusInternalServerError,
	KindHistoryQueryFailed:    http.StatusInternalServerError,
	KindStatisticsQueryFailed: http.StatusInternalServerError,
	KindWebRTCFailed:          http.StatusInternalServerError,
	KindGo2RTCNotAvailable:    http.StatusServiceUnavailable,
	KindStreamSourceNotFound:  http.StatusInternalServerError,
	KindInvalidOrExpiredToken: http.StatusUnauthorized,

	KindIntegrationNotConfigured:    http.StatusServiceUnavailable,
	KindCameraManagerNotInitialized: http.StatusServiceUnavailable,
	KindWebRTCNotAvailable:          http.StatusServiceUnavailable,
	KindServiceUnavailable:          http.StatusServiceUnavailable,
	KindInternalServerError:         http.StatusInternalServerError,
}

// Error is the one error type every layer wraps into before it reaches an
// HTTP handler boundary. It carries the stable client-facing kind plus the
// real cause, which is logged but never serialized.
type Error struct {
	Kind  Kind
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return string(e.Kind) + ": " + e.Cause.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind) *Error             { return &Error{Kind: kind} }
func Wrap(kind Kind, cause error) *Error { return &Error{Kind: kind, Cause: cause} }

// StatusFor returns the fixed HTTP status for a kind, defaulting to 500 for
// any kind not in the table (should never happen; the table is closed).
func StatusFor(kind Kind) int {
	if s, ok := statusOf[kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

type errorBody struct {
	Error string `json:"error"`
}

// WriteError maps err to its wire kind and fixed status, logs the real
// cause, and never writes err.Error() text for an unrecognized error.
func WriteError(w http.ResponseWriter, log zerolog.Logger, err error) {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		apiErr = &Error{Kind: KindInternalServerError, Cause: err}
	}
	status := StatusFor(apiErr.Kind)
	if status >= 500 {
		log.Error().Err(apiErr.Cause).Str("kind", string(apiErr.Kind)).Msg("request failed")
	} else {
		log.Debug().Err(apiErr.Cause).Str("kind", string(apiErr.Kind)).Msg("request denied")
	}
	WriteJSON(w, status, errorBody{Error: string(apiErr.Kind)})
}

// WriteJSON writes v as the JSON response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
