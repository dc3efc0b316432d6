package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelInfo, ParseLevel(""))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel("error"))
	assert.Equal(t, LevelOff, ParseLevel("silent"))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
}

func TestFileSinkWritesAndCloses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "test.log")
	require.NoError(t, InitWithOptions(Options{
		ConsoleLevel: LevelOff,
		FileLevel:    LevelInfo,
		FilePath:     path,
	}))
	t.Cleanup(func() { Init("info") })

	Info("transcription started", "file", "a.wav")
	Debug("should not appear at info level")
	assert.Equal(t, path, FilePath())

	Close()
	assert.Equal(t, "", FilePath())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "transcription started")
	assert.Contains(t, content, "a.wav")
	assert.NotContains(t, content, "should not appear")
}

func TestFileLevelGatesDebug(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	require.NoError(t, InitWithOptions(Options{
		ConsoleLevel: LevelOff,
		FileLevel:    LevelDebug,
		FilePath:     path,
	}))
	t.Cleanup(func() { Init("info") })

	Debug("debug detail", "k", "v")
	Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "debug detail"))
}

func TestStartupBannerGatesOnConsoleLevel(t *testing.T) {
	// A permissive file sink must not drag the stdout banner back in when
	// the console sink itself is restricted (the --silent combination).
	path := filepath.Join(t.TempDir(), "test.log")
	require.NoError(t, InitWithOptions(Options{
		ConsoleLevel: LevelError,
		FileLevel:    LevelInfo,
		FilePath:     path,
	}))
	t.Cleanup(func() { Init("info") })

	out := captureStdout(t, func() {
		Startup("model", "Preparing model large-v3-turbo")
	})
	assert.NotContains(t, out, "Preparing model")

	// With a permissive console the banner prints.
	require.NoError(t, InitWithOptions(Options{
		ConsoleLevel: LevelInfo,
		FileLevel:    LevelOff,
	}))
	out = captureStdout(t, func() {
		Startup("model", "Preparing model large-v3-turbo")
	})
	assert.Contains(t, out, "Preparing model")
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()
	require.NoError(t, w.Close())
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(data)
}

func TestEmitRoutesByLevelName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	require.NoError(t, InitWithOptions(Options{
		ConsoleLevel: LevelOff,
		FileLevel:    LevelDebug,
		FilePath:     path,
	}))
	t.Cleanup(func() { Init("info") })

	Emit("error", "[worker] engine failed")
	Emit("info", "[worker] model loaded")
	Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "ERROR")
	assert.Contains(t, content, "engine failed")
	assert.Contains(t, content, "model loaded")
}
