//go:build linux

package cloud

import "golang.org/x/sys/unix"

// loadScale is the fixed-point scale of sysinfo load averages.
const loadScale = 1 << 16

func collectHost() SystemInfo {
	var info SystemInfo

	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err == nil {
		unit := uint64(si.Unit)
		if unit == 0 {
			unit = 1
		}
		total := uint64(si.Totalram) * unit
		free := (uint64(si.Freeram) + uint64(si.Bufferram)) * unit
		if total > 0 && free <= total {
			info.MemoryUsage = round1(float64(total-free) / float64(total) * 100)
		}
		info.Uptime = int64(si.Uptime)
		info.Load1 = round1(float64(si.Loads[0]) / loadScale)
	}

	var fs unix.Statfs_t
	if err := unix.Statfs("/", &fs); err == nil && fs.Blocks > 0 {
		used := uint64(fs.Blocks) - uint64(fs.Bfree)
		info.DiskUsage = round1(float64(used) / float64(uint64(fs.Blocks)) * 100)
	}

	return info
}

func round1(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}
