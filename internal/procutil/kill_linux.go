//go:build linux
// +build linux

package procutil

import (
	"os"
	"syscall"
)

// KillTree sends SIGKILL to the entire process group on Linux. The
// transcriber worker is started with its own process group (see
// internal/transcriber) so this never touches the parent's group.
func KillTree(p *os.Process) error {
	return syscall.Kill(-p.Pid, syscall.SIGKILL)
}
