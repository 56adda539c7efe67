// Package server implements the core HTTP and WebSocket functionality for the
// Parley chat relay.
//
// The implementation is organized into specialized files for configuration,
// presence tracking, hub management, clients, routing, and HTTP handlers to
// keep the codebase maintainable and testable as the project grows.
package server
