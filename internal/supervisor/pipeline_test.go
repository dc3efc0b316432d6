package supervisor

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"signalscribe/internal/decoder"
	"signalscribe/internal/job"
	"signalscribe/internal/output"
	"signalscribe/internal/queue"
)

// writeSineWAV writes seconds of a 440 Hz sine as mono 16-bit 16 kHz PCM,
// the exact shape the transcoder is forced to produce for real inputs.
func writeSineWAV(t *testing.T, path string, seconds float64) int {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	n := int(seconds * 16000)
	data := make([]int, n)
	for i := range data {
		data[i] = int(16000 * math.Sin(2*math.Pi*440*float64(i)/16000))
	}

	enc := wav.NewEncoder(f, 16000, 16, 1, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Data:           data,
		Format:         &audio.Format{NumChannels: 1, SampleRate: 16000},
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	return n
}

// TestPipelineWAVToCSV drives the decode → transcribe → output chain with
// a stub transcription stage: one WAV in, exactly one CSV row out, and the
// queue-closure cascade shuts every stage down.
func TestPipelineWAVToCSV(t *testing.T) {
	dir := t.TempDir()
	wavPath := filepath.Join(dir, "a.wav")
	sampleCount := writeSineWAV(t, wavPath, 2.0)

	decodeQ := queue.New[*job.Job](8)
	transcribeQ := queue.New[*job.Job](8)
	outputQ := queue.New[*job.Job](8)

	csvPath := filepath.Join(dir, "out.csv")
	out, err := output.New(output.Config{CSVPath: csvPath, Silent: true, In: outputQ})
	require.NoError(t, err)

	dec := decoder.New("", decodeQ, transcribeQ)
	ctx := context.Background()

	var g errgroup.Group
	g.Go(func() error { dec.Run(ctx); return nil })
	g.Go(func() error {
		// Stub transcriber: the engine contract without the engine.
		defer outputQ.Close()
		for {
			j, ok := transcribeQ.Get(ctx)
			if !ok {
				return nil
			}
			if j.PCM == nil {
				return fmt.Errorf("job %s arrived without decoded PCM", j.Path)
			}
			assert.Equal(t, sampleCount, len(j.PCM.Samples))
			j.PCM = nil
			j.Text = "hello"
			j.TranscribeMS = 1
			if err := outputQ.Put(ctx, j); err != nil {
				return err
			}
		}
	})
	g.Go(func() error { out.Run(ctx); return nil })

	require.NoError(t, decodeQ.Put(ctx, job.New(wavPath)))
	decodeQ.Close()

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not drain and shut down")
	}

	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 2)
	assert.Equal(t, wavPath, rows[1][1])
	assert.Equal(t, "0.00", rows[1][2])
	assert.Equal(t, "hello", rows[1][3])
}

// TestPipelineDropsUndecodableJob checks the transient-error contract: a
// job that cannot be decoded is dropped with the pipeline still healthy.
func TestPipelineDropsUndecodableJob(t *testing.T) {
	dir := t.TempDir()
	goodPath := filepath.Join(dir, "good.wav")
	writeSineWAV(t, goodPath, 0.1)
	badPath := filepath.Join(dir, "bad.mp3")
	require.NoError(t, os.WriteFile(badPath, []byte("not audio"), 0o644))

	decodeQ := queue.New[*job.Job](8)
	transcribeQ := queue.New[*job.Job](8)

	// A transcoder binary that cannot exist forces the mp3 decode to fail.
	dec := decoder.New("signalscribe-test-no-such-transcoder", decodeQ, transcribeQ)
	ctx := context.Background()

	require.NoError(t, decodeQ.Put(ctx, job.New(badPath)))
	require.NoError(t, decodeQ.Put(ctx, job.New(goodPath)))
	decodeQ.Close()

	dec.Run(ctx)

	j, ok := transcribeQ.Get(ctx)
	require.True(t, ok)
	assert.Equal(t, goodPath, j.Path)

	_, ok = transcribeQ.Get(ctx)
	assert.False(t, ok, "only the decodable job survives")
}
