package probe

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordingsLinePattern(t *testing.T) {
	line := "2025-07-01 10:00:00 INFO  Recordings: /home/op/SDRTrunk/recordings [42 files]"
	m := recordingsLine.FindStringSubmatch(line)
	require.NotNil(t, m)
	// The capture stops at the bracketed stats; the caller trims the rest.
	assert.Equal(t, "/home/op/SDRTrunk/recordings", strings.TrimSpace(m[1]))
}

func TestRecordingsLineMatchesEachRecordingsLine(t *testing.T) {
	// recordingDirFromLogs keeps scanning so a reconfigured directory later
	// in the log replaces the earlier one; the regex itself matches both.
	first := recordingsLine.FindStringSubmatch("Recordings: /old/dir")
	second := recordingsLine.FindStringSubmatch("Recordings: /new/dir")
	require.NotNil(t, first)
	require.NotNil(t, second)
	assert.Equal(t, "/new/dir", strings.TrimSpace(second[1]))
}

func TestRecordingsLineNoMatch(t *testing.T) {
	assert.Nil(t, recordingsLine.FindStringSubmatch("INFO  Playlists: /somewhere"))
}
