// Package engine wraps the whisper.cpp binding. It is compiled into the one
// signalscribe binary but used only inside the transcriber worker process;
// the main process never loads a model or calls into the native library.
package engine

import (
	"fmt"
	"os"
	"strings"

	lowlevel "github.com/ggerganov/whisper.cpp/bindings/go"
	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// Engine holds one loaded whisper model.
type Engine struct {
	model   whisper.Model
	threads int
}

// New loads the model at modelPath. The file must already exist: asset
// acquisition is the model manager's job, and the worker never reaches out.
func New(modelPath string, threads int) (*Engine, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("engine: model file not found at %s: %w", modelPath, err)
	}

	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("engine: failed to load model: %w", err)
	}

	if threads < 1 {
		threads = 1
	}
	return &Engine{model: model, threads: threads}, nil
}

// SystemInfo reports the accelerator features the native library detected,
// as a comma-separated list of the enabled ones.
func (e *Engine) SystemInfo() string {
	raw := lowlevel.Whisper_print_system_info()

	var enabled []string
	for _, part := range strings.Split(raw, "|") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		if strings.TrimSpace(kv[1]) == "1" {
			enabled = append(enabled, strings.TrimSpace(kv[0]))
		}
	}
	return strings.Join(enabled, ", ")
}

// Transcribe runs inference over mono 16 kHz float32 samples and returns
// the segment texts joined by single spaces.
func (e *Engine) Transcribe(samples []float32) (string, error) {
	ctx, err := e.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("engine: failed to create context: %w", err)
	}
	ctx.SetThreads(uint(e.threads))

	if err := ctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("engine: failed to process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := ctx.NextSegment()
		if err != nil {
			break // no more segments
		}
		parts = append(parts, segment.Text)
	}
	return strings.TrimSpace(strings.Join(parts, " ")), nil
}

// Close releases the native model.
func (e *Engine) Close() error {
	if e.model != nil {
		return e.model.Close()
	}
	return nil
}
