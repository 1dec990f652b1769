package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/woktalk/recipe-engine/internal/config"
	"github.com/woktalk/recipe-engine/internal/recipe"
)

func TestStreamEvents_CompletedJob(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.Config{})
	_, err := env.table.Admit("dQw4w9WgXcQ")
	require.NoError(t, err)
	require.NoError(t, env.table.Complete("dQw4w9WgXcQ", recipe.Payload(`{"title":"congee"}`), ""))

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/dQw4w9WgXcQ/events", nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	require.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))

	body := rec.Body.String()
	require.Contains(t, body, "event: status")
	require.Contains(t, body, `"status":"completed"`)
	require.Contains(t, body, `"progress":100`)
}

func TestStreamEvents_UnknownKeyEndsWithNotFound(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.Config{})
	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/dQw4w9WgXcQ/events", nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"not_found"`)
}

func TestStreamEvents_RejectsMalformedID(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.Config{})
	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/short/events", nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStreamWebSocket_DeliversEventsAndCloses(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.Config{})
	_, err := env.table.Admit("dQw4w9WgXcQ")
	require.NoError(t, err)
	require.NoError(t, env.table.Complete("dQw4w9WgXcQ", recipe.Payload(`{"title":"congee"}`), ""))

	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/jobs/dQw4w9WgXcQ/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var evt recipe.StatusEvent
	require.NoError(t, conn.ReadJSON(&evt))
	require.Equal(t, recipe.StatusCompleted, evt.Status)
	require.Equal(t, 100, evt.Progress)

	// After the terminal event the server closes the stream.
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	require.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestStreamWebSocket_EmitsProgressUpdates(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.Config{})
	_, err := env.table.Admit("dQw4w9WgXcQ")
	require.NoError(t, err)

	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/jobs/dQw4w9WgXcQ/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var evt recipe.StatusEvent
	require.NoError(t, conn.ReadJSON(&evt))
	require.Equal(t, recipe.StatusProcessing, evt.Status)

	require.NoError(t, env.table.Update("dQw4w9WgXcQ", 70, "finalizing recipe"))
	require.NoError(t, conn.ReadJSON(&evt))
	require.Equal(t, 70, evt.Progress)
	require.Equal(t, "finalizing recipe", evt.Message)

	_ = env.table.Complete("dQw4w9WgXcQ", recipe.Payload(`{}`), "")
	require.NoError(t, conn.ReadJSON(&evt))
	require.Equal(t, recipe.StatusCompleted, evt.Status)
}

func TestStreamEvents_HeartbeatRepeatsLastEvent(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.Config{
		Stream: config.StreamConfig{PollIntervalMs: 10, HeartbeatIntervalS: 1},
	})
	_, err := env.table.Admit("dQw4w9WgXcQ")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/dQw4w9WgXcQ/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		env.server.Handler().ServeHTTP(rec, req)
		close(done)
	}()

	// The job never changes state; anything after the first frame comes from
	// the heartbeat.
	time.Sleep(2300 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not stop after client disconnect")
	}

	body := rec.Body.String()
	require.GreaterOrEqual(t, strings.Count(body, "event: status"), 2)
	require.GreaterOrEqual(t, strings.Count(body, `"status":"processing"`), 2)
}

func TestStreamEvents_StopsWhenClientDisconnects(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, config.Config{})
	_, err := env.table.Admit("dQw4w9WgXcQ")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/dQw4w9WgXcQ/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		env.server.Handler().ServeHTTP(rec, req)
		close(done)
	}()

	// Let the first event land, then drop the client.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not stop after client disconnect")
	}
	require.Contains(t, rec.Body.String(), `"status":"processing"`)
}
