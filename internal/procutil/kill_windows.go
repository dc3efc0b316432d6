//go:build windows
// +build windows

package procutil

import "os"

// KillTree attempts to kill the process. Windows lacks a simple process
// group SIGKILL equivalent; a direct Kill is the best effort available
// without pulling in job-object plumbing.
func KillTree(p *os.Process) error {
	return p.Kill()
}
