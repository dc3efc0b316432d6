//go:build linux

// Package systeminfo reports host facts for the startup parameters table.
package systeminfo

import "golang.org/x/sys/unix"

// TotalMemoryBytes returns the machine's physical memory.
func TotalMemoryBytes() (uint64, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, err
	}
	return info.Totalram * uint64(info.Unit), nil
}
