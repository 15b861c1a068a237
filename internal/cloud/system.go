package cloud

import (
	"os"
	"strconv"
	"strings"

	"github.com/nerrad567/lumy-core/internal/infrastructure/influxdb"
)

// thermalZone is where a Raspberry Pi reports its SoC temperature.
var thermalZone = "/sys/class/thermal/thermal_zone0/temp"

// SystemInfo is the system section of a heartbeat.
type SystemInfo struct {
	// CPUTemp is in °C; nil when the sensor is unreadable.
	CPUTemp     *float64 `json:"cpu_temp"`
	MemoryUsage float64  `json:"memory_usage"`
	Uptime      int64    `json:"uptime"`

	DiskUsage float64 `json:"disk_usage,omitempty"`
	Load1     float64 `json:"load_1,omitempty"`
}

// CollectSystemInfo gathers host health. Readings that fail are left zero.
func CollectSystemInfo() SystemInfo {
	info := collectHost()
	info.CPUTemp = readCPUTemp(thermalZone)
	return info
}

// readCPUTemp parses a millidegree reading, rounded to 0.1 °C.
func readCPUTemp(path string) *float64 {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	milli, err := strconv.ParseFloat(strings.TrimSpace(string(raw)), 64)
	if err != nil {
		return nil
	}
	c := float64(int64(milli/100+0.5)) / 10
	return &c
}

// Sample converts info for the telemetry sink.
func (info SystemInfo) Sample() influxdb.SystemSample {
	s := influxdb.SystemSample{
		MemoryUsedPct: info.MemoryUsage,
		DiskUsedPct:   info.DiskUsage,
		UptimeSeconds: info.Uptime,
		Load1:         info.Load1,
	}
	if info.CPUTemp != nil {
		s.CPUTempC = *info.CPUTemp
	}
	return s
}
