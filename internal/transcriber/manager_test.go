package transcriber

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalscribe/internal/job"
	"signalscribe/internal/queue"
	"signalscribe/internal/transcriber/wire"
)

func TestStatusMapApplies(t *testing.T) {
	s := newStatusMap()
	assert.Equal(t, wire.StateInitialised, s.State())

	s.apply(wire.Event{State: wire.StateLoading})
	assert.Equal(t, wire.StateLoading, s.State())

	s.apply(wire.Event{State: wire.StateRunning, SystemInfo: "AVX2", ErrorCount: 3})
	assert.Equal(t, wire.StateRunning, s.State())
	assert.Equal(t, "AVX2", s.SystemInfo())
	assert.Equal(t, int64(3), s.ErrorCount())

	// A later event without system info keeps the recorded value.
	s.apply(wire.Event{State: wire.StateRunning, ErrorCount: 4})
	assert.Equal(t, "AVX2", s.SystemInfo())
	assert.Equal(t, int64(4), s.ErrorCount())
}

func TestWorkerArgvDefaultsToSelfExec(t *testing.T) {
	m := New(Config{ModelPath: "/models/ggml-x.bin", Threads: 4})
	argv, err := m.workerArgv()
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(argv), 6)
	assert.Equal(t, WorkerSubcommand, argv[1])
	assert.Contains(t, argv, "--model-path")
	assert.Contains(t, argv, "/models/ggml-x.bin")
	assert.Contains(t, argv, "--threads")
	assert.Contains(t, argv, "4")
}

func TestWorkerArgvOverrideIsParsedShellStyle(t *testing.T) {
	m := New(Config{
		ModelPath: "/models/ggml-x.bin",
		Threads:   2,
		WorkerCmd: `python3 "/opt/my worker/worker.py" --flag`,
	})
	argv, err := m.workerArgv()
	require.NoError(t, err)
	assert.Equal(t, "python3", argv[0])
	assert.Equal(t, "/opt/my worker/worker.py", argv[1])
	assert.Equal(t, "--flag", argv[2])
}

func TestWorkerArgvBadOverride(t *testing.T) {
	m := New(Config{WorkerCmd: `unterminated "quote`})
	_, err := m.workerArgv()
	assert.Error(t, err)
}

func TestDeliverMatchesPendingJob(t *testing.T) {
	out := queue.New[*job.Job](4)
	m := New(Config{Out: out})

	j := job.New("/tmp/a.wav")
	j.PCM = &job.Waveform{Samples: []float32{0.1}, SampleRate: 16000}
	m.pending[j.ID] = j

	m.deliver(wire.Event{
		Type:         wire.EventResult,
		ID:           j.ID,
		Path:         j.Path,
		Text:         "dispatch to main street",
		TranscribeMS: 420,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, ok := out.Get(ctx)
	require.True(t, ok)
	assert.Same(t, j, got)
	assert.Equal(t, "dispatch to main street", got.Text)
	assert.Equal(t, int64(420), got.TranscribeMS)

	// Unknown results are dropped without delivering anything.
	m.deliver(wire.Event{Type: wire.EventResult, ID: "nope"})
	assert.Equal(t, 0, out.Size())
}

func TestDeliverFailedResultDropsJob(t *testing.T) {
	out := queue.New[*job.Job](4)
	m := New(Config{Out: out})

	j := job.New("/tmp/b.wav")
	m.pending[j.ID] = j

	m.deliver(wire.Event{Type: wire.EventResult, ID: j.ID, Path: j.Path, Error: "inference blew up"})

	assert.Equal(t, 0, out.Size(), "failed jobs never reach output")
	m.pendingMu.Lock()
	_, still := m.pending[j.ID]
	m.pendingMu.Unlock()
	assert.False(t, still, "failed jobs are released from the pending set")
}

func TestSubmitReleasesPCM(t *testing.T) {
	// submit must hand the waveform to the wire message and nil the Job's
	// reference: the PCM is only non-nil between decode and transcription.
	in := queue.New[*job.Job](1)
	out := queue.New[*job.Job](1)
	m := New(Config{In: in, Out: out})

	// Without a started process there is no encoder; install one over a
	// discard pipe.
	m.enc = discardEncoder()

	j := job.New("/tmp/a.wav")
	j.PCM = &job.Waveform{Samples: []float32{0.5, -0.5}, SampleRate: 16000}
	m.submit(j)

	assert.Nil(t, j.PCM)
	m.pendingMu.Lock()
	_, pending := m.pending[j.ID]
	m.pendingMu.Unlock()
	assert.True(t, pending)
}

func discardEncoder() *json.Encoder {
	return json.NewEncoder(io.Discard)
}
