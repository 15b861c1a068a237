// Package api implements the local control API of a Lumy device.
//
// This package provides:
//   - REST endpoints to refresh or clear the panel and to update or trigger widgets
//   - A PNG preview of the frame currently on the panel
//   - A WebSocket hub broadcasting device events (display.rendered, widget.updated)
//   - The Prometheus /metrics endpoint
//   - A guarded factory reset of the local state store
//   - Middleware stack (request ID, logging, recovery, CORS, metrics)
//
// # Architecture
//
// The API never touches the widget scheduler directly. Every widget or
// display operation is submitted to the command bus and answered by the
// scheduler's goroutine, the same path remote MQTT commands take. Read-only
// views of the panel (status, preview) go straight to the display arbiter,
// which never blocks them behind a hardware write.
//
// # Security
//
// The API is meant for the local network only and carries no
// authentication. Bind it to a private address or disable it with
// api.enabled=false.
package api
