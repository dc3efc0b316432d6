//go:build windows
// +build windows

package procutil

import "os/exec"

// SetProcessGroup is a no-op on Windows; KillTree falls back to a direct
// process kill there.
func SetProcessGroup(cmd *exec.Cmd) {}
