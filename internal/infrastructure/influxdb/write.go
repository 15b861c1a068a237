package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementSystem = "lumy_system"
	MeasurementRender = "lumy_render"
	MeasurementWidget = "lumy_widget"
)

// SystemSample is one heartbeat's worth of host health.
// Zero-valued optional readings are left out of the point.
type SystemSample struct {
	CPUTempC      float64
	MemoryUsedPct float64
	DiskUsedPct   float64
	UptimeSeconds int64
	Load1         float64
}

// WriteSystem records host health alongside each heartbeat.
func (c *Client) WriteSystem(s SystemSample) {
	fields := map[string]interface{}{
		"uptime_seconds":  s.UptimeSeconds,
		"memory_used_pct": s.MemoryUsedPct,
		"load1":           s.Load1,
	}
	if s.CPUTempC > 0 {
		fields["cpu_temp_c"] = s.CPUTempC
	}
	if s.DiskUsedPct > 0 {
		fields["disk_used_pct"] = s.DiskUsedPct
	}
	c.WritePoint(MeasurementSystem, nil, fields)
}

// WriteRender records one panel operation (render, clear, sleep, wake).
//
// Example:
//
//	client.WriteRender("render", true, 14*time.Second)
func (c *Client) WriteRender(operation string, success bool, duration time.Duration) {
	c.WritePoint(MeasurementRender,
		map[string]string{"operation": operation},
		map[string]interface{}{
			"success":     success,
			"duration_ms": duration.Milliseconds(),
		})
}

// WriteWidgetUpdate records the outcome of one widget data refresh.
func (c *Client) WriteWidgetUpdate(widgetID, widgetType string, success bool, duration time.Duration) {
	c.WritePoint(MeasurementWidget,
		map[string]string{"widget_id": widgetID, "widget_type": widgetType},
		map[string]interface{}{
			"success":     success,
			"duration_ms": duration.Milliseconds(),
		})
}

// WritePoint writes a custom point stamped with the current time.
// It is a no-op on a closed or nil client.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}
