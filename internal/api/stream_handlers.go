package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// streamEvents handles GET /v1/jobs/{job_id}/events as Server-Sent Events.
// Each state change is one "status" event; a comment line keeps idle proxies
// from dropping the connection. The stream ends after a terminal event.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	key, ok := keyParam(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	events := s.watcher.Watch(ctx, key)
	heartbeat := time.NewTicker(s.cfg.HeartbeatInterval())
	defer heartbeat.Stop()

	// Idle streams re-send the last event so intermediary proxies never see
	// a silent connection.
	var lastData []byte
	for {
		select {
		case evt, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(evt)
			if err != nil {
				s.logger.Error("marshal status event failed", zap.Error(err))
				return
			}
			lastData = data
			if _, err := fmt.Fprintf(w, "event: status\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if lastData == nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: status\ndata: %s\n\n", lastData); err != nil {
				return
			}
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}

// streamWebSocket handles GET /v1/jobs/{job_id}/ws. The same events the SSE
// endpoint emits are written as JSON text messages; heartbeats become pings.
func (s *Server) streamWebSocket(w http.ResponseWriter, r *http.Request) {
	key, ok := keyParam(w, r)
	if !ok {
		return
	}
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(s.cfg.Server.AllowedOrigins) == 0 {
				return true
			}
			return originAllowed(s.cfg.Server.AllowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The read pump only exists to notice the peer going away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	events := s.watcher.Watch(ctx, key)
	heartbeat := time.NewTicker(s.cfg.HeartbeatInterval())
	defer heartbeat.Stop()

	for {
		select {
		case evt, open := <-events:
			if !open {
				deadline := time.Now().Add(time.Second)
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream complete")
				if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
					s.logger.Debug("websocket close failed", zap.Error(err))
				}
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-heartbeat.C:
			deadline := time.Now().Add(time.Second)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
