// Package probe locates SDRTrunk's recording directory so the user can
// omit the folder argument. Everything here is
// best-effort: any failure just means "not found", never a startup error.
package probe

import (
	"bufio"
	"os"
	"regexp"
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"signalscribe/pkg/logger"
)

var recordingsLine = regexp.MustCompile(`Recordings:\s+([^\[\r\n]+)`)

// FindSDRTrunkDirectory returns SDRTrunk's recording directory, trying its
// saved preferences first (whether or not SDRTrunk is running) and the open
// log file of a running instance second.
func FindSDRTrunkDirectory() (string, bool) {
	if dir := recordingDirFromPreferences(); dir != "" {
		logger.Info("found SDRTrunk recording directory in preferences", "dir", dir)
		return dir, true
	}

	proc := findProcess()
	if proc == nil {
		logger.Debug("SDRTrunk does not appear to be running")
		return "", false
	}

	if dir := recordingDirFromLogs(proc); dir != "" {
		logger.Info("found SDRTrunk recording directory in logs", "dir", dir)
		return dir, true
	}

	logger.Warn("SDRTrunk is running but its recording directory could not be determined")
	return "", false
}

// findProcess scans for a Java process whose command line mentions
// sdrtrunk.
func findProcess() *process.Process {
	procs, err := process.Processes()
	if err != nil {
		logger.Debug("could not enumerate processes", "error", err)
		return nil
	}

	for _, p := range procs {
		name, err := p.Name()
		if err != nil || !strings.Contains(strings.ToLower(name), "java") {
			continue
		}
		cmdline, err := p.Cmdline()
		if err != nil {
			continue
		}
		if strings.Contains(strings.ToLower(cmdline), "sdrtrunk") {
			logger.Debug("found SDRTrunk process", "pid", p.Pid)
			return p
		}
	}
	return nil
}

// recordingDirFromLogs finds the process's open application log and pulls
// the last "Recordings:" line out of it.
func recordingDirFromLogs(p *process.Process) string {
	files, err := p.OpenFiles()
	if err != nil {
		logger.Debug("could not list SDRTrunk open files", "error", err)
		return ""
	}

	var logPath string
	for _, f := range files {
		if strings.Contains(f.Path, "sdrtrunk_app.log") {
			logPath = f.Path
			break
		}
	}
	if logPath == "" {
		logger.Debug("SDRTrunk running but no open application log found")
		return ""
	}

	f, err := os.Open(logPath)
	if err != nil {
		logger.Debug("could not read SDRTrunk log", "path", logPath, "error", err)
		return ""
	}
	defer f.Close()

	var dir string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if m := recordingsLine.FindStringSubmatch(scanner.Text()); m != nil {
			dir = strings.TrimSpace(m[1])
		}
	}
	return dir
}
