// Package server implements the relay server: the Hub that owns the alias
// registry and configuration, one session per accepted connection, the
// verb dispatch engine, and the TCP and HTTP/WebSocket entry points.
//
// The implementation is organized into specialized files for the hub,
// sessions, dispatch, listeners and HTTP handlers.
package server
