package push

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smartly/bridge/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliverSendsSignedHeaders(t *testing.T) {
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header
		assert.Equal(t, "/events", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDeliverer(srv.URL, "instance-1", []byte("supersecretkeysupersecretkey1234"))
	err := d.Deliver(context.Background(), []QueuedEvent{{EventType: EventStateChanged, EntityID: "light.a"}})
	require.NoError(t, err)

	assert.Equal(t, "instance-1", gotHeaders.Get("X-HA-Instance-Id"))
	assert.NotEmpty(t, gotHeaders.Get("X-Signature"))
	assert.NotEmpty(t, gotHeaders.Get("X-Nonce"))
}

func TestDeliverRetriesThenSucceeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDeliverer(srv.URL, "instance-1", []byte("supersecretkeysupersecretkey1234"))
	err := d.Deliver(context.Background(), []QueuedEvent{{EventType: EventHeartbeat}})
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&attempts))
}

func TestDeliverGivesUpAfterMaxAttempts(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewDeliverer(srv.URL, "instance-1", []byte("supersecretkeysupersecretkey1234"))
	d.Metrics = metrics.NewCollector()
	err := d.Deliver(context.Background(), []QueuedEvent{{EventType: EventHeartbeat}})
	assert.Error(t, err)
	assert.Equal(t, int32(maxAttempts), atomic.LoadInt32(&attempts))
	assert.Equal(t, float64(1), testutil.ToFloat64(d.Metrics.PushDropped))
	assert.Equal(t, float64(maxAttempts-1), testutil.ToFloat64(d.Metrics.PushRetries))
}

func TestDeliverHonorsRetryAfterCappedAtMax(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 2 {
			w.Header().Set("Retry-After", strconv.Itoa(1))
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDeliverer(srv.URL, "instance-1", []byte("supersecretkeysupersecretkey1234"))
	start := time.Now()
	err := d.Deliver(context.Background(), []QueuedEvent{{EventType: EventHeartbeat}})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), maxRetryAfter+2*time.Second)
}
