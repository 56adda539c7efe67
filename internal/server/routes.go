// Package server wires HTTP handlers into a ServeMux for the chat relay.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application
// routes: the static client UI, the health check, and the WebSocket endpoint
// bound to the given hub and registry.
func SetupRoutes(hub *Hub, registry *Registry, publicDir string) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/", NewStaticHandler(publicDir))
	mux.HandleFunc("/health", HealthHandler)
	mux.HandleFunc("/ws", NewWebSocketHandler(hub, registry))
	return mux
}
