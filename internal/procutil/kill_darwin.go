//go:build darwin
// +build darwin

package procutil

import (
	"os"
	"syscall"
)

// KillTree sends SIGKILL to the entire process group on macOS.
func KillTree(p *os.Process) error {
	return syscall.Kill(-p.Pid, syscall.SIGKILL)
}
