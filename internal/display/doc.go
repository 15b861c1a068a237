// Package display owns the single physical e-paper panel.
//
// Every write to the panel goes through an Arbiter, which holds an exclusive
// lock for the whole hardware transaction: wake, normalise, write, settle and
// optionally sleep. Concurrent callers block until the current operation
// completes. Driver failures, including panics, are logged and reported as a
// false return so a display fault never takes the orchestrator down.
//
// Drivers:
//   - mock: in memory, records every operation (tests and headless runs)
//   - file: writes each frame as a PNG (development preview)
//   - command: pipes a PNG to the vendor helper binary
//
// If the configured driver fails to initialise, Open falls back to the mock
// driver and logs a warning.
//
// Shutdown puts the panel to sleep but leaves the last image on screen.
package display
