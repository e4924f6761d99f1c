// Package server implements the HTTP transport: the audio-stream WebSocket
// ingress, the session log and report REST endpoints, and the
// monitoring/management endpoints (/health, /stats, /config, /metrics).
// Handlers delegate to the coach service and stay free of analysis logic.
package server
