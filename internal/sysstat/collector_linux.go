//go:build linux

package sysstat

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Load averages from sysinfo(2) are fixed point with 16 fractional bits.
const loadScale = 1 << 16

type sysinfoCollector struct {
	diskPath string
}

func NewCollector(diskPath string) Collector {
	return &sysinfoCollector{diskPath: diskPath}
}

func (c *sysinfoCollector) Read() (Reading, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return Reading{}, fmt.Errorf("sysinfo: %w", err)
	}
	unit := uint64(info.Unit)
	if unit == 0 {
		unit = 1
	}

	r := Reading{
		TotalMemory: uint64(info.Totalram) * unit,
		FreeMemory:  uint64(info.Freeram) * unit,
		Uptime:      time.Duration(info.Uptime) * time.Second,
	}
	for i := range r.LoadAverages {
		r.LoadAverages[i] = float64(info.Loads[i]) / loadScale
	}

	var fs unix.Statfs_t
	if err := unix.Statfs(c.diskPath, &fs); err != nil {
		return Reading{}, fmt.Errorf("statfs %s: %w", c.diskPath, err)
	}
	r.DiskTotal = fs.Blocks * uint64(fs.Bsize)
	r.DiskFree = fs.Bavail * uint64(fs.Bsize)
	return r, nil
}
