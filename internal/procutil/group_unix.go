//go:build linux || darwin
// +build linux darwin

package procutil

import (
	"os/exec"
	"syscall"
)

// SetProcessGroup arranges for cmd to start in its own process group so
// KillTree can terminate it and any children it spawns without affecting
// the parent.
func SetProcessGroup(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}
