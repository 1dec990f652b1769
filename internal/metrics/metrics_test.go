package metrics

import (
	"bufio"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func TestCollectorsReadyAtPackageLoad(t *testing.T) {
	// No explicit Init here: package init must have registered every
	// collector, or call sites outside the HTTP server would panic.
	require.NotNil(t, cacheOpsTotal)
	require.NotNil(t, jobStageDurationSeconds)
	require.NotNil(t, activeExecutors)
	require.NotNil(t, streamObservers)

	require.NotPanics(t, func() {
		ObserveCacheOp("local", "set", "ok")
		ObserveStage("enrichment", time.Second)
		IncStreamObservers()
		DecStreamObservers()
	})
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	require.NotNil(t, jobsTotal)
	require.NotNil(t, cacheOpsTotal)

	// Exercising the observe helpers must not panic after double Init.
	ObserveJob("completed")
	ObserveCacheOp("local", "get", "hit")
	ObserveStage("retrieval", 250*time.Millisecond)
	IncActiveExecutors()
	DecActiveExecutors()
	IncStreamObservers()
	DecStreamObservers()
}

func TestHandlerServesMetrics(t *testing.T) {
	Init()
	ObserveJob("failed")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "recipe_jobs_total")
}

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	Init()

	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/jobs/{key}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/jobs/dQw4w9WgXcQ", nil)
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddlewareForwardsHijack(t *testing.T) {
	var hijackErr error
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		h, ok := w.(http.Hijacker)
		require.True(t, ok, "wrapped writer must expose http.Hijacker")
		conn, _, err := h.Hijack()
		hijackErr = err
		if conn != nil {
			conn.Close()
		}
	}))

	rec := &hijackRecorder{ResponseRecorder: httptest.NewRecorder()}
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/dQw4w9WgXcQ/ws", nil))

	require.NoError(t, hijackErr)
	require.NoError(t, rec.closeClient())
}

// --- helpers ---

type hijackRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackRecorder) closeClient() error {
	if h.client != nil {
		return h.client.Close()
	}
	return nil
}
