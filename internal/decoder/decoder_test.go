package decoder

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalscribe/internal/job"
	"signalscribe/internal/queue"
)

func writeTestWAV(t *testing.T, path string, samples []int16) {
	t.Helper()
	header := make([]byte, wavHeaderBytes)
	body := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(body[i*2:], uint16(s))
	}
	require.NoError(t, os.WriteFile(path, append(header, body...), 0o644))
}

func TestDecodeWAVFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.wav")
	writeTestWAV(t, path, []int16{0, 16383, -32768, 32767})

	wave, err := decodeWAVFile(path)
	require.NoError(t, err)
	require.Len(t, wave.Samples, 4)
	assert.Equal(t, targetRate, wave.SampleRate)
	assert.InDelta(t, 0, wave.Samples[0], 1e-6)
	assert.InDelta(t, 1.0, wave.Samples[3], 1e-4)
}

func TestRunForwardsDecodedJobAndClosesOut(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.wav")
	writeTestWAV(t, path, []int16{100, 200, 300})

	in := queue.New[*job.Job](4)
	out := queue.New[*job.Job](4)
	d := New("", in, out)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	j := job.New(path)
	require.NoError(t, in.Put(ctx, j))
	in.Close()

	d.Run(ctx)

	got, ok := out.Get(ctx)
	require.True(t, ok)
	assert.NotNil(t, got.PCM)
	assert.Len(t, got.PCM.Samples, 3)

	_, ok = out.Get(ctx)
	assert.False(t, ok)
}

func TestDecodeUnsupportedWithoutTranscoderFails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.mp3")
	require.NoError(t, os.WriteFile(path, []byte("not really mp3"), 0o644))

	d := New("signalscribe-nonexistent-transcoder-binary", nil, nil)
	err := d.decode(job.New(path))
	require.ErrorIs(t, err, ErrMissingTranscoder)
}
