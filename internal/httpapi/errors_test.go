package httpapi

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusForKnownKinds(t *testing.T) {
	assert.Equal(t, 401, StatusFor(KindInvalidOrExpiredToken))
	assert.Equal(t, 403, StatusFor(KindEntityNotAllowed))
	assert.Equal(t, 404, StatusFor(KindEntityNotFound))
	assert.Equal(t, 400, StatusFor(KindMissingRequiredFields))
	assert.Equal(t, 500, StatusFor(KindWebRTCFailed))
	assert.Equal(t, 503, StatusFor(KindGo2RTCNotAvailable))
}

func TestStatusForUnknownKindDefaultsTo500(t *testing.T) {
	assert.Equal(t, 500, StatusFor(Kind("not_a_real_kind")))
}

func TestWriteErrorMapsAPIError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, zerolog.Nop(), Wrap(KindEntityNotAllowed, errors.New("denied")))

	assert.Equal(t, 403, w.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "entity_not_allowed", body.Error)
}

func TestWriteErrorFallsBackToInternalForUnrecognizedError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, zerolog.Nop(), errors.New("boom"))

	assert.Equal(t, 500, w.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "internal_server_error", body.Error)
}

func TestWriteJSONSetsContentType(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, 201, map[string]string{"ok": "yes"})

	assert.Equal(t, 201, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}
