// Package server wires HTTP handlers into a ServeMux via routing helpers.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application routes.
// It sets up handlers for health check, WebSocket endpoint, and metrics.
func SetupRoutes(hub *Hub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler(hub))
	mux.HandleFunc("/ws", WebSocketHandler(hub))
	mux.Handle("/metrics", hub.Metrics().Handler())
	return mux
}
