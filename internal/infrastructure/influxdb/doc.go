// Package influxdb provides optional time-series telemetry for Lumy Core.
//
// When enabled, the device records host health with each heartbeat, the
// duration and outcome of every panel operation and each widget refresh.
// The cloud heartbeat carries the current snapshot; InfluxDB keeps the
// history for fleet dashboards.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB, deviceID)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without telemetry
//	}
//	defer client.Close()
//
//	client.WriteRender("render", true, elapsed)
//
// Writes are batched (cfg.BatchSize points or cfg.FlushInterval seconds,
// whichever comes first) and never block the caller.
package influxdb
