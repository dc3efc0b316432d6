// Package output is the pipeline's terminal stage: every completed Job is
// appended to the CSV log and rendered on the console with keyword
// highlighting.
package output

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"

	"signalscribe/internal/highlight"
	"signalscribe/internal/job"
	"signalscribe/internal/queue"
	"signalscribe/pkg/logger"
)

// csvHeader is written once when the file is created.
var csvHeader = []string{"Timestamp", "File Path", "Duration", "Transcription"}

const timestampLayout = "2006-01-02 15:04:05"

// Config configures the Output stage.
type Config struct {
	CSVPath string
	Silent  bool
	Rules   *highlight.Rules
	In      *queue.TrackedQueue[*job.Job]
}

// Output consumes completed Jobs. One goroutine runs Run; the CSV writer
// is never shared with another writer.
type Output struct {
	cfg  Config
	file *os.File
	csv  *csv.Writer
}

// New opens (or creates, with header) the CSV file.
func New(cfg Config) (*Output, error) {
	path, err := filepath.Abs(cfg.CSVPath)
	if err != nil {
		return nil, fmt.Errorf("output: resolve csv path: %w", err)
	}
	cfg.CSVPath = path

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("output: create csv directory: %w", err)
	}

	info, statErr := os.Stat(path)
	needHeader := statErr != nil || info.Size() == 0

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("output: open csv: %w", err)
	}

	o := &Output{cfg: cfg, file: f, csv: csv.NewWriter(f)}
	if needHeader {
		if err := o.csv.Write(csvHeader); err != nil {
			f.Close()
			return nil, fmt.Errorf("output: write csv header: %w", err)
		}
		o.csv.Flush()
		if err := o.csv.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("output: write csv header: %w", err)
		}
	}
	return o, nil
}

// CSVPath returns the absolute path rows are appended to.
func (o *Output) CSVPath() string {
	return o.cfg.CSVPath
}

// Run drains In until it closes, persisting and printing each Job. Each
// row is flushed before the next Job is taken so a crash never loses more
// than the row in flight.
func (o *Output) Run(ctx context.Context) {
	defer o.Close()
	for {
		j, ok := o.cfg.In.Get(ctx)
		if !ok {
			return
		}
		if err := o.writeRow(j); err != nil {
			logger.Error("failed to write csv row", "path", j.Path, "error", err)
		}
		if !o.cfg.Silent {
			o.printJob(j)
		}
	}
}

// Close flushes and closes the CSV. Idempotent.
func (o *Output) Close() {
	if o.file == nil {
		return
	}
	o.csv.Flush()
	o.file.Close()
	o.file = nil
}

func (o *Output) writeRow(j *job.Job) error {
	err := o.csv.Write([]string{
		j.EnqueuedAt.Format(timestampLayout),
		j.Path,
		fmt.Sprintf("%.2f", j.DurationSeconds()),
		j.Text,
	})
	if err != nil {
		return err
	}
	o.csv.Flush()
	return o.csv.Error()
}

// printJob renders one Job: the enqueue time, the basename hyperlinked to
// the absolute path, then the (highlighted) transcript indented beneath it.
func (o *Output) printJob(j *job.Job) {
	stamp := j.EnqueuedAt.Format("15:04:05")
	name := color.New(color.FgBlue).Sprint(filepath.Base(j.Path))
	fmt.Printf("%s | %s\n", stamp, hyperlink(j.Path, name))

	pad := strings.Repeat(" ", len(stamp)+3)
	if j.Text == "" {
		fmt.Printf("%s<no transcription>\n", pad)
		return
	}

	text := j.Text
	if o.cfg.Rules != nil {
		text = o.cfg.Rules.Highlight(text)
	}
	fmt.Printf("%s%s\n", pad, text)
}

// hyperlink wraps label in an OSC 8 terminal hyperlink to path.
func hyperlink(path, label string) string {
	return fmt.Sprintf("\x1b]8;;file://%s\x1b\\%s\x1b]8;;\x1b\\", path, label)
}

// ResolveCSVPath turns the user's --csv-path (file, directory, or empty)
// into a concrete file path. Empty defaults to signalscribe.csv inside the
// watched directory; an existing directory gets the same filename inside
// it.
func ResolveCSVPath(csvPath, watchDir string) string {
	const defaultName = "signalscribe.csv"
	if csvPath == "" {
		return filepath.Join(watchDir, defaultName)
	}
	if info, err := os.Stat(csvPath); err == nil && info.IsDir() {
		return filepath.Join(csvPath, defaultName)
	}
	return csvPath
}
