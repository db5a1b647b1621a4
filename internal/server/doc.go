// Package server implements the HTTP surface of telemd: REST snapshot
// endpoints over the shared state store, the WebSocket telemetry stream with
// per-session filtering, the status endpoint, prometheus metrics, and the
// OpenAPI document with its documentation UI.
package server
