package workerproc

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalscribe/internal/transcriber/wire"
)

// stubEngine stands in for the whisper binding.
type stubEngine struct {
	text string
	err  error
}

func (s *stubEngine) SystemInfo() string { return "AVX2, NEON" }
func (s *stubEngine) Transcribe(samples []float32) (string, error) {
	return s.text, s.err
}
func (s *stubEngine) Close() error { return nil }

func withStubEngine(t *testing.T, eng stt, engErr error) {
	t.Helper()
	orig := newEngine
	newEngine = func(modelPath string, threads int) (stt, error) {
		if engErr != nil {
			return nil, engErr
		}
		return eng, nil
	}
	t.Cleanup(func() { newEngine = orig })
}

func writeModelFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ggml-test.bin")
	require.NoError(t, os.WriteFile(path, []byte("model"), 0o644))
	return path
}

func encodeTasks(t *testing.T, tasks ...wire.Task) io.Reader {
	t.Helper()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, task := range tasks {
		require.NoError(t, enc.Encode(task))
	}
	return &buf
}

func decodeEvents(t *testing.T, out *bytes.Buffer) []wire.Event {
	t.Helper()
	var events []wire.Event
	dec := json.NewDecoder(out)
	for {
		var ev wire.Event
		if err := dec.Decode(&ev); err != nil {
			break
		}
		events = append(events, ev)
	}
	return events
}

func statesOf(events []wire.Event) []wire.State {
	var states []wire.State
	for _, ev := range events {
		if ev.Type == wire.EventStatus {
			states = append(states, ev.State)
		}
	}
	return states
}

func TestWorkerLifecycleAndResult(t *testing.T) {
	withStubEngine(t, &stubEngine{text: "hello"}, nil)
	model := writeModelFile(t)

	in := encodeTasks(t,
		wire.Task{ID: "j1", Path: "/tmp/a.wav", PCM: wire.EncodeSamples([]float32{0.1, 0.2})},
		wire.Task{Sentinel: true},
	)
	var out bytes.Buffer

	code := run(Options{ModelPath: model, Threads: 2}, in, &out)
	assert.Equal(t, 0, code)

	events := decodeEvents(t, &out)
	assert.Equal(t, []wire.State{
		wire.StateInitialised,
		wire.StateLoading,
		wire.StateRunning,
		wire.StateShutdown,
	}, statesOf(events))

	var result *wire.Event
	for i := range events {
		if events[i].Type == wire.EventResult {
			result = &events[i]
		}
	}
	require.NotNil(t, result, "expected a result event")
	assert.Equal(t, "j1", result.ID)
	assert.Equal(t, "hello", result.Text)
	assert.GreaterOrEqual(t, result.TranscribeMS, int64(0))
}

func TestWorkerMissingModelIsError(t *testing.T) {
	withStubEngine(t, &stubEngine{}, nil)

	var out bytes.Buffer
	code := run(Options{ModelPath: "/nonexistent/model.bin"}, encodeTasks(t), &out)
	assert.Equal(t, 1, code)

	states := statesOf(decodeEvents(t, &out))
	assert.Equal(t, []wire.State{wire.StateInitialised, wire.StateError}, states)
}

func TestWorkerEngineLoadFailureIsError(t *testing.T) {
	withStubEngine(t, nil, errors.New("bad model"))
	model := writeModelFile(t)

	var out bytes.Buffer
	code := run(Options{ModelPath: model}, encodeTasks(t), &out)
	assert.Equal(t, 1, code)

	states := statesOf(decodeEvents(t, &out))
	assert.Equal(t, []wire.State{wire.StateInitialised, wire.StateLoading, wire.StateError}, states)
}

func TestWorkerTaskErrorIsNotFatal(t *testing.T) {
	withStubEngine(t, &stubEngine{err: errors.New("inference blew up")}, nil)
	model := writeModelFile(t)

	in := encodeTasks(t,
		wire.Task{ID: "j1", Path: "/tmp/a.wav"},
		wire.Task{ID: "j2", Path: "/tmp/b.wav"},
		wire.Task{Sentinel: true},
	)
	var out bytes.Buffer

	code := run(Options{ModelPath: model}, in, &out)
	assert.Equal(t, 0, code)

	events := decodeEvents(t, &out)
	var maxErrors int64
	for _, ev := range events {
		if ev.Type == wire.EventStatus && ev.ErrorCount > maxErrors {
			maxErrors = ev.ErrorCount
		}
	}
	assert.Equal(t, int64(2), maxErrors)

	states := statesOf(events)
	assert.Equal(t, wire.StateShutdown, states[len(states)-1])
}

func TestWorkerEOFWithoutSentinelShutsDown(t *testing.T) {
	withStubEngine(t, &stubEngine{text: "x"}, nil)
	model := writeModelFile(t)

	var out bytes.Buffer
	code := run(Options{ModelPath: model}, bytes.NewReader(nil), &out)
	assert.Equal(t, 0, code)

	states := statesOf(decodeEvents(t, &out))
	assert.Equal(t, wire.StateShutdown, states[len(states)-1])
}

func TestSamplesRoundTrip(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 1, -1, 0.123}
	assert.Equal(t, samples, wire.DecodeSamples(wire.EncodeSamples(samples)))
}
