//go:build darwin

package systeminfo

import "golang.org/x/sys/unix"

// TotalMemoryBytes returns the machine's physical memory.
func TotalMemoryBytes() (uint64, error) {
	return unix.SysctlUint64("hw.memsize")
}
