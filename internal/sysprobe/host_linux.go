package sysprobe

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// Supported reports whether readHost works on this platform.
const Supported = true

// Load averages from sysinfo(2) are fixed point with 16 fractional bits.
const loadShift = 16

func readHost(diskPath string) (host, error) {
	var si unix.Sysinfo_t
	if err := unix.Sysinfo(&si); err != nil {
		return host{}, err
	}
	var fs unix.Statfs_t
	if err := unix.Statfs(diskPath, &fs); err != nil {
		return host{}, err
	}

	unit := uint64(si.Unit)
	if unit == 0 {
		unit = 1
	}
	return host{
		load1:      float64(si.Loads[0]) / float64(1<<loadShift),
		cpus:       runtime.NumCPU(),
		totalBytes: uint64(si.Totalram) * unit,
		availBytes: (uint64(si.Freeram) + uint64(si.Bufferram)) * unit,
		diskBlocks: uint64(fs.Blocks),
		diskAvail:  uint64(fs.Bavail),
	}, nil
}
