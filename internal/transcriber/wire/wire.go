// Package wire defines the messages exchanged between the main process and
// the transcriber worker process: tasks flow down the worker's stdin,
// events (status transitions, forwarded log records, results) flow back up
// its stdout. Everything is newline-delimited JSON so either side can be
// replaced or driven by tests with plain pipes.
package wire

import (
	"encoding/binary"
	"math"
)

// State is the worker lifecycle state machine.
type State string

const (
	StateInitialised State = "INITIALISED"
	StateLoading     State = "LOADING"
	StateRunning     State = "RUNNING"
	StateError       State = "ERROR"
	StateShutdown    State = "SHUTDOWN"
)

// Task is one unit of work sent to the worker. A Task with Sentinel set
// carries no job and tells the worker to shut down.
type Task struct {
	Sentinel bool   `json:"sentinel,omitempty"`
	ID       string `json:"id,omitempty"`
	Path     string `json:"path,omitempty"`

	// PCM is the decoded waveform as little-endian float32 bytes;
	// encoding/json transports it as base64.
	PCM []byte `json:"pcm,omitempty"`
}

// EventType discriminates the worker's stdout messages.
type EventType string

const (
	EventStatus EventType = "status"
	EventLog    EventType = "log"
	EventResult EventType = "result"
)

// Event is one message from the worker.
type Event struct {
	Type EventType `json:"type"`

	// status
	State      State  `json:"state,omitempty"`
	SystemInfo string `json:"system_info,omitempty"`
	ErrorCount int64  `json:"error_count,omitempty"`
	Error      string `json:"error,omitempty"`

	// log
	Level   string `json:"level,omitempty"`
	Message string `json:"message,omitempty"`

	// result
	ID           string `json:"id,omitempty"`
	Path         string `json:"path,omitempty"`
	Text         string `json:"text,omitempty"`
	TranscribeMS int64  `json:"transcribe_ms,omitempty"`
}

// EncodeSamples packs float32 samples into little-endian bytes for a Task.
func EncodeSamples(samples []float32) []byte {
	buf := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(s))
	}
	return buf
}

// DecodeSamples unpacks Task PCM bytes back into float32 samples.
func DecodeSamples(data []byte) []float32 {
	n := len(data) / 4
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return samples
}
