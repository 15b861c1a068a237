// Package command carries requests from remote surfaces (local API, MQTT)
// to the goroutine that owns widget and display state.
//
// Requests travel over a bounded channel. Each one carries a correlation id
// and its own reply channel, so callers wait for exactly their answer and
// the owner never shares memory with them.
package command
