package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mail-spool/internal/spool"
)

func TestMetricsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := serve(srv, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("abc")))
	require.Equal(t, http.StatusOK, w.Code)

	w = serve(srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, `mailspool_build_info{commit="abc123",version="1.2.3"} 1`)
	assert.Contains(t, body, "mailspool_items_stored_total 1")
	assert.Contains(t, body, "mailspool_stored_bytes_total 3")
	assert.Contains(t, body, `mailspool_request_duration_seconds_count{code="200",method="POST",route="/"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestMetricsDisabled(t *testing.T) {
	srv, _, _ := newTestServer(t, func(c *Config) { c.Metrics = false })

	w := serve(srv, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsRouteLabelsAreBounded(t *testing.T) {
	srv, _, _ := newTestServer(t)

	for _, p := range []string{"/mails/a.json", "/mails/b.json", "/mails/c/d.json"} {
		serve(srv, httptest.NewRequest(http.MethodGet, p, nil))
	}

	assert.Equal(t, 1, testutil.CollectAndCount(srv.metrics.requestDuration),
		"all item requests share the /mails/* route label")
}

func TestMetricsRecorders(t *testing.T) {
	m := NewMetrics(BuildInfo{Version: "test"})

	m.RecordStored(10)
	m.RecordStored(5)
	m.RecordRead(7)
	m.RecordStoreError("create", spool.ErrCollisionExhausted)
	m.RecordStoreError("create", errors.New("boom"))
	m.RecordAuthDenied("bad_credentials")
	m.RecordIngestRejected("too_large")
	m.RecordRequest("/", http.MethodGet, http.StatusOK, 3*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.itemsStored))
	assert.Equal(t, 15.0, testutil.ToFloat64(m.bytesStored))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.bytesRead))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storeErrors.WithLabelValues("create", "collision_exhausted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.storeErrors.WithLabelValues("create", "unknown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.authDenied.WithLabelValues("bad_credentials")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ingestRejected.WithLabelValues("too_large")))
}
