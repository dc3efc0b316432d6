// Package workerproc is the transcriber worker's entrypoint. It runs in a
// child process launched by the transcriber manager: tasks arrive as JSON
// on stdin, and every status transition, log record, and result goes back
// as JSON on stdout. The worker never touches the network; if the model
// file is missing it reports ERROR and exits rather than downloading.
package workerproc

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"signalscribe/internal/transcriber/engine"
	"signalscribe/internal/transcriber/wire"
)

// Options configures one worker run.
type Options struct {
	ModelPath string
	Threads   int
}

// stt is the slice of the engine the loop needs; tests substitute a stub.
type stt interface {
	SystemInfo() string
	Transcribe(samples []float32) (string, error)
	Close() error
}

// newEngine is swapped by tests.
var newEngine = func(modelPath string, threads int) (stt, error) {
	return engine.New(modelPath, threads)
}

// Run executes the worker loop over stdin/stdout and returns the process
// exit code.
func Run(opts Options) int {
	return run(opts, os.Stdin, os.Stdout)
}

func run(opts Options, in io.Reader, out io.Writer) (code int) {
	w := &worker{enc: json.NewEncoder(out)}

	defer func() {
		if r := recover(); r != nil {
			w.sendStatus(wire.StateError, "", fmt.Sprintf("panic: %v", r))
			code = 1
		}
	}()

	w.sendStatus(wire.StateInitialised, "", "")

	// Pre-flight: the model binary must already be on disk.
	if _, err := os.Stat(opts.ModelPath); err != nil {
		w.log("error", fmt.Sprintf("model file %s does not exist", opts.ModelPath))
		w.sendStatus(wire.StateError, "", err.Error())
		return 1
	}

	w.sendStatus(wire.StateLoading, "", "")
	w.log("info", fmt.Sprintf("loading model from %s", opts.ModelPath))

	eng, err := newEngine(opts.ModelPath, opts.Threads)
	if err != nil {
		w.log("error", err.Error())
		w.sendStatus(wire.StateError, "", err.Error())
		return 1
	}
	defer eng.Close()

	systemInfo := eng.SystemInfo()
	w.log("info", "model loaded")
	w.sendStatus(wire.StateRunning, systemInfo, "")

	dec := json.NewDecoder(in)
	for {
		var task wire.Task
		if err := dec.Decode(&task); err != nil {
			if err == io.EOF {
				// Parent went away; treat like a sentinel.
				w.log("warn", "task stream closed without sentinel")
				w.sendStatus(wire.StateShutdown, "", "")
				return 0
			}
			// The parent is the only writer, so a framing error means the
			// stream itself is broken; the decoder cannot recover from it.
			w.log("error", fmt.Sprintf("task stream corrupt: %v", err))
			w.sendStatus(wire.StateError, "", err.Error())
			return 1
		}

		if task.Sentinel {
			w.log("info", "received shutdown sentinel")
			w.sendStatus(wire.StateShutdown, "", "")
			return 0
		}

		w.transcribe(eng, task)
	}
}

type worker struct {
	mu         sync.Mutex
	enc        *json.Encoder
	errorCount int64
}

// transcribe runs one task. Per-task failures are logged and counted; they
// never end the loop.
func (w *worker) transcribe(eng stt, task wire.Task) {
	samples := wire.DecodeSamples(task.PCM)
	w.log("debug", fmt.Sprintf("transcribing %s (%d samples)", task.Path, len(samples)))

	start := time.Now()
	text, err := eng.Transcribe(samples)
	elapsed := time.Since(start)

	if err != nil {
		w.errorCount++
		w.log("error", fmt.Sprintf("transcription of %s failed: %v", task.Path, err))
		w.sendStatus(wire.StateRunning, "", "")
		// A failed result lets the parent release the job immediately
		// instead of carrying it until shutdown.
		w.send(wire.Event{
			Type:  wire.EventResult,
			ID:    task.ID,
			Path:  task.Path,
			Error: err.Error(),
		})
		return
	}

	w.send(wire.Event{
		Type:         wire.EventResult,
		ID:           task.ID,
		Path:         task.Path,
		Text:         text,
		TranscribeMS: elapsed.Milliseconds(),
	})
}

func (w *worker) sendStatus(state wire.State, systemInfo, errMsg string) {
	w.send(wire.Event{
		Type:       wire.EventStatus,
		State:      state,
		SystemInfo: systemInfo,
		ErrorCount: w.errorCount,
		Error:      errMsg,
	})
}

func (w *worker) log(level, message string) {
	w.send(wire.Event{Type: wire.EventLog, Level: level, Message: message})
}

func (w *worker) send(ev wire.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	// Encoding errors mean the parent is gone; nothing useful remains to do
	// with them here.
	_ = w.enc.Encode(ev)
}
