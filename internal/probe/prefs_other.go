//go:build !linux

package probe

// Java preference stores on macOS (a binary plist) and Windows (the
// registry) are not parsed; the open-log-file fallback covers a running
// SDRTrunk on those platforms.
func recordingDirFromPreferences() string {
	return ""
}
