// Package widget schedules widget updates and composes them onto the panel.
//
// A widget implements three operations: Initialize with its settings,
// Update producing fresh data from the last good data, and Render drawing
// that data into a rectangle. Widgets never touch the display; the
// Scheduler renders each enabled widget into an equal horizontal band of
// the panel and submits the composite to the display arbiter.
//
// Widget types are registered in a static factory table (clock, weather,
// calendar, message). Instances come from configuration, in order.
//
// Update is functional: the scheduler only commits the returned data when
// Update succeeds and the scheduler was not cancelled meanwhile. A failing
// widget keeps its last good data and is still composed, and never stops the
// other widgets from updating.
//
// The Scheduler's Run loop is the only goroutine that touches widget state.
// Out-of-band requests (refresh, update_widget, apply_config...) reach it as
// messages from the command package.
package widget
