// Package job defines the unit of work threaded through the ingestion
// pipeline: Watcher creates it, each stage mutates it in place, Output
// consumes it.
package job

import (
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Waveform is mono float32 PCM at 16 kHz, values in [-1.0, 1.0]. No other
// rate or channel count is ever produced by the Decoder or accepted by the
// Transcriber.
type Waveform struct {
	Samples    []float32
	SampleRate int
}

// Job is the per-recording record. A Job is referenced by exactly one stage
// at any moment; ownership transfers as it moves through a TrackedQueue.
type Job struct {
	// ID is a correlation id used only for log lines; it is not part of the
	// wire contract with the transcriber worker beyond that purpose.
	ID string

	// Path is the absolute filesystem path of the source recording.
	// Immutable after creation.
	Path string

	// EnqueuedAt is the wall-clock timestamp at creation. Immutable.
	EnqueuedAt time.Time

	// PCM is the decoded waveform. Set by Decoder, consumed by Transcriber,
	// released (set nil) when the Transcriber sends the samples to its
	// worker process. Non-nil exactly between Decoder completion and that
	// hand-off.
	PCM *Waveform

	// TranscribeMS is the monotonic elapsed milliseconds of the
	// transcription call. Set by Transcriber.
	TranscribeMS int64

	// Text is the final transcript. Set by Transcriber; may be empty.
	Text string
}

// New creates a Job for a freshly observed file. The path is made absolute
// so downstream stages and the CSV never see a path relative to a working
// directory they don't share.
func New(path string) *Job {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return &Job{
		ID:         uuid.NewString(),
		Path:       path,
		EnqueuedAt: time.Now(),
	}
}

// DurationSeconds converts TranscribeMS to wall-clock seconds, unrounded;
// the CSV sink formats the value with two decimal places.
func (j *Job) DurationSeconds() float64 {
	return float64(j.TranscribeMS) / 1000.0
}
