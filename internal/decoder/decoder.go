// Package decoder converts an audio file on disk into the mono 16 kHz
// float32 waveform the Transcriber requires.
package decoder

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"signalscribe/internal/job"
	"signalscribe/internal/queue"
	"signalscribe/pkg/logger"
)

// ErrMissingTranscoder is returned when the external audio-conversion
// utility is not present on PATH and the source file is not already a WAV.
var ErrMissingTranscoder = errors.New("decoder: transcoder binary not found on PATH")

// ErrDecodeFailed wraps a nonzero exit from the external transcoder.
type ErrDecodeFailed struct {
	Path     string
	ExitCode int
	Stderr   string
}

func (e *ErrDecodeFailed) Error() string {
	return fmt.Sprintf("decoder: transcode of %s failed (exit %d): %s", e.Path, e.ExitCode, e.Stderr)
}

const (
	wavHeaderBytes = 44
	sampleMax      = 32767.0
	targetRate     = 16000
)

// CheckTranscoder verifies the external transcoder is reachable on PATH.
// Called once at startup; a transcoder that disappears afterwards surfaces
// as a per-Job decode failure instead.
func CheckTranscoder(bin string) error {
	if bin == "" {
		bin = "ffmpeg"
	}
	if _, err := exec.LookPath(bin); err != nil {
		return fmt.Errorf("%w (looked for %q)", ErrMissingTranscoder, bin)
	}
	return nil
}

// Decoder is the single consumer that turns Jobs arriving on in into Jobs
// with PCM populated on out. One goroutine runs Run; decoding is I/O- and
// CPU-light relative to transcription so no further parallelism is needed.
type Decoder struct {
	TranscoderBin string // e.g. "ffmpeg"; resolved via exec.LookPath when needed
	In            *queue.TrackedQueue[*job.Job]
	Out           *queue.TrackedQueue[*job.Job]
}

// New constructs a Decoder wired between two TrackedQueues.
func New(transcoderBin string, in, out *queue.TrackedQueue[*job.Job]) *Decoder {
	if transcoderBin == "" {
		transcoderBin = "ffmpeg"
	}
	return &Decoder{TranscoderBin: transcoderBin, In: in, Out: out}
}

// Run drains In until it closes, decoding each Job and forwarding it to Out.
// A decode failure is logged and the Job is dropped; it never stops the
// loop. Run closes Out when In is exhausted, signalling the Transcriber
// that no more work is coming.
func (d *Decoder) Run(ctx context.Context) {
	defer d.Out.Close()
	for {
		j, ok := d.In.Get(ctx)
		if !ok {
			return
		}
		if err := d.decode(j); err != nil {
			logger.Warn("decode failed, dropping job", "path", j.Path, "error", err)
			continue
		}
		if err := d.Out.Put(ctx, j); err != nil {
			logger.Warn("failed to forward decoded job downstream", "path", j.Path, "error", err)
			return
		}
	}
}

// decode populates j.PCM in place.
func (d *Decoder) decode(j *job.Job) error {
	ext := strings.ToLower(filepath.Ext(j.Path))
	if ext == ".wav" {
		wave, err := decodeWAVFile(j.Path)
		if err != nil {
			return err
		}
		j.PCM = wave
		return nil
	}

	tmp, err := d.transcodeToWAV(j.Path)
	if tmp != "" {
		defer os.Remove(tmp)
	}
	if err != nil {
		return err
	}

	wave, err := decodeWAVFile(tmp)
	if err != nil {
		return err
	}
	j.PCM = wave
	return nil
}

// decodeWAVFile implements the spec-mandated exact algorithm: skip the
// 44-byte header, interpret the remainder as signed 16-bit little-endian
// samples, normalize by 32767. This is deliberately not a general WAV
// parser (see DESIGN.md): the spec requires this literal transform and its
// idempotence invariant depends on it behaving identically to the
// transcoder's own output shape (mono/16-bit/16kHz), not on honoring an
// arbitrary WAV header.
func decodeWAVFile(path string) (*job.Waveform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("decoder: read %s: %w", path, err)
	}
	if len(data) <= wavHeaderBytes {
		return &job.Waveform{SampleRate: targetRate}, nil
	}

	body := data[wavHeaderBytes:]
	n := len(body) / 2
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(body[i*2 : i*2+2]))
		samples[i] = float32(v) / sampleMax
	}
	return &job.Waveform{Samples: samples, SampleRate: targetRate}, nil
}

// transcodeToWAV invokes the external transcoder to force mono/16kHz/s16
// into a temp WAV file, returning its path (to be removed by the caller on
// every exit path).
func (d *Decoder) transcodeToWAV(src string) (string, error) {
	binPath, err := exec.LookPath(d.TranscoderBin)
	if err != nil {
		return "", ErrMissingTranscoder
	}

	out, err := os.CreateTemp("", "signalscribe-*.wav")
	if err != nil {
		return "", fmt.Errorf("decoder: create temp wav: %w", err)
	}
	dest := out.Name()
	out.Close()
	os.Remove(dest) // the transcoder must create it; a preexisting empty file trips some builds

	cmd := exec.Command(binPath, "-i", src, "-ac", "1", "-ar", "16000", dest, "-y")
	var stderr strings.Builder
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return dest, &ErrDecodeFailed{Path: src, ExitCode: exitCode, Stderr: stderr.String()}
	}
	return dest, nil
}
