// Package metrics holds the device's Prometheus collectors.
//
// Collectors live in a private registry served by Handler, so tests and
// multiple instances never collide on the default registerer. A nil
// *Metrics is valid and records nothing.
package metrics
