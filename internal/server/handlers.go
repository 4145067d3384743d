// Package server exposes HTTP handlers: the WebSocket transport endpoint
// and the health check.
package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/gorelay/internal/packet"
	"github.com/Tyrowin/gorelay/internal/transport"
)

// WebSocketHandler upgrades the request and attaches a relay session that
// exchanges one frame per binary message.
func WebSocketHandler(hub *Hub) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  packet.FrameSize,
		WriteBufferSize: packet.FrameSize,
		CheckOrigin:     hub.Origins().Check,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			hub.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("WebSocket upgrade failed")
			return
		}

		if _, err := hub.Attach(transport.NewWebSocket(conn, r.RemoteAddr)); err != nil {
			hub.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("WebSocket session not started")
		}
	}
}

// HealthHandler reports liveness and the number of registered aliases.
func HealthHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = fmt.Fprintf(w, "gorelay is running (%d users online)", len(hub.Aliases()))
	}
}
