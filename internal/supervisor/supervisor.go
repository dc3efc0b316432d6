// Package supervisor composes the pipeline: it sequences startup leaves
// first, runs the live status display, translates an interrupt into the
// graceful shutdown cascade, and makes sure components stop in the reverse
// of their start order.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"

	"signalscribe/internal/config"
	"signalscribe/internal/decoder"
	"signalscribe/internal/highlight"
	"signalscribe/internal/job"
	"signalscribe/internal/modelmanager"
	"signalscribe/internal/modelmanager/catalog"
	"signalscribe/internal/output"
	"signalscribe/internal/queue"
	"signalscribe/internal/transcriber"
	"signalscribe/internal/watcher"
	"signalscribe/pkg/logger"
)

// queueCapacity bounds each inter-stage queue. Scanner recordings arrive
// far slower than they decode, so backpressure only matters when the
// transcriber falls behind a burst.
const queueCapacity = 256

// Options carries the flag-level choices into the supervisor.
type Options struct {
	Version string

	WatchDir  string
	Formats   []string
	Recursive bool

	Model          string
	ModelDir       string
	RefreshCatalog bool
	ForceYes       bool

	CSVPath string
	Threads int
	Silent  bool
}

// Supervisor owns startup, steady state, and shutdown.
type Supervisor struct {
	opts Options
	cfg  *config.Config
}

// New builds a Supervisor over parsed options and ambient configuration.
func New(opts Options, cfg *config.Config) *Supervisor {
	return &Supervisor{opts: opts, cfg: cfg}
}

// Run executes the full lifecycle. The passed context ends on SIGINT; a
// nil return means a clean run (including an interrupted one), an error
// means a fatal startup or runtime failure.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.opts.Silent {
		printBanner(s.opts.Version)
	}

	watchDir, csvPath, err := s.preparePaths()
	if err != nil {
		return err
	}

	// Highlight rules load up front if colors.yaml already exists; the
	// watcher keeps them fresh afterwards.
	rules := highlight.New()
	colorsPath := filepath.Join(watchDir, "colors.yaml")
	if _, err := os.Stat(colorsPath); err == nil {
		if err := rules.Reload(colorsPath); err != nil {
			logger.Warn("could not load colors.yaml", "error", err)
		}
	}

	// Model assets first: everything downstream needs the validated path.
	logger.Startup("model", "Preparing model "+s.opts.Model)
	manager, err := modelmanager.New(ctx, modelmanager.Options{
		ModelDir:       s.opts.ModelDir,
		RefreshCatalog: s.opts.RefreshCatalog,
		Source:         catalog.NewHuggingFace(s.cfg.CatalogRepoURL, s.cfg.CatalogResolveURL),
	})
	if err != nil {
		return err
	}
	modelPath, err := manager.Select(ctx, s.opts.Model, s.opts.ForceYes)
	if err != nil {
		return err
	}

	// The transcoder must exist before any non-wav file shows up.
	if err := decoder.CheckTranscoder(s.cfg.TranscoderBin); err != nil {
		return err
	}

	decodeQ := queue.New[*job.Job](queueCapacity)
	transcribeQ := queue.New[*job.Job](queueCapacity)
	outputQ := queue.New[*job.Job](queueCapacity)

	out, err := output.New(output.Config{
		CSVPath: csvPath,
		Silent:  s.opts.Silent,
		Rules:   rules,
		In:      outputQ,
	})
	if err != nil {
		return err
	}

	tm := transcriber.New(transcriber.Config{
		ModelPath:    modelPath,
		Threads:      s.opts.Threads,
		WorkerCmd:    s.cfg.WorkerCmd,
		StartTimeout: s.cfg.WorkerStartTimeout,
		StopTimeout:  s.cfg.WorkerStopTimeout,
		In:           transcribeQ,
		Out:          outputQ,
	})
	if err := tm.Start(ctx); err != nil {
		out.Close()
		return err
	}

	logger.Startup("transcriber", "Loading model into transcriber worker")
	if err := s.waitForWorker(ctx, tm); err != nil {
		tm.Stop()
		out.Close()
		return err
	}

	if !s.opts.Silent {
		printParams(params{
			Model:        s.opts.Model,
			Accelerators: tm.Status().SystemInfo(),
			Threads:      s.opts.Threads,
			CSVPath:      out.CSVPath(),
			LogPath:      logger.FilePath(),
			WatchDir:     watchDir,
		})
	}

	// The pipeline runs on a context the interrupt does NOT cancel:
	// graceful shutdown drains the queues, and cancellation is reserved
	// for the fatal path.
	pipeCtx, pipeCancel := context.WithCancel(context.Background())
	defer pipeCancel()

	dec := decoder.New(s.cfg.TranscoderBin, decodeQ, transcribeQ)

	var stages sync.WaitGroup
	stages.Add(3)
	go func() { defer stages.Done(); dec.Run(pipeCtx) }()
	go func() { defer stages.Done(); tm.Run(pipeCtx) }()
	go func() { defer stages.Done(); out.Run(pipeCtx) }()

	w, err := watcher.New(watcher.Config{
		RootDir:   watchDir,
		Formats:   s.opts.Formats,
		Recursive: s.opts.Recursive,
	}, decodeQ, rules)
	if err != nil {
		s.abort(pipeCancel, decodeQ, &stages)
		return err
	}

	watchCtx, stopWatcher := context.WithCancel(context.Background())
	defer stopWatcher()

	var g errgroup.Group
	g.Go(func() error { return w.Start(watchCtx) })

	logger.Startup("watcher", "Watching "+watchDir)

	var display *statusDisplay
	if !s.opts.Silent {
		display = newStatusDisplay(watchDir, decodeQ, transcribeQ)
		go display.run()
	}

	// Steady state: hold until the interrupt or a watcher failure.
	watcherFailed := make(chan error, 1)
	go func() {
		if err := g.Wait(); err != nil {
			watcherFailed <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("interrupt received, shutting down")
	case runErr = <-watcherFailed:
		logger.Error("watcher failed", "error", runErr)
	}

	if display != nil {
		display.Stop()
	}

	// Reverse-order teardown: no new Jobs, then cascade queue closures
	// down the pipeline. Each stage closes its downstream queue as it
	// exits, and the transcriber turns its queue's closure into the worker
	// sentinel.
	stopWatcher()
	g.Wait()
	decodeQ.Close()
	stages.Wait()

	logger.Info("shutdown complete")
	logger.Close()
	return runErr
}

// preparePaths validates and creates the watched directory and the CSV
// parent.
func (s *Supervisor) preparePaths() (string, string, error) {
	watchDir, err := filepath.Abs(s.opts.WatchDir)
	if err != nil {
		return "", "", fmt.Errorf("supervisor: resolve watch directory: %w", err)
	}

	info, err := os.Stat(watchDir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Info("watched directory does not exist, creating it", "dir", watchDir)
		if err := os.MkdirAll(watchDir, 0755); err != nil {
			return "", "", fmt.Errorf("supervisor: create watch directory: %w", err)
		}
	case err != nil:
		return "", "", fmt.Errorf("supervisor: stat watch directory: %w", err)
	case !info.IsDir():
		return "", "", fmt.Errorf("supervisor: %s is not a directory", watchDir)
	}

	csvPath := output.ResolveCSVPath(s.opts.CSVPath, watchDir)
	if err := os.MkdirAll(filepath.Dir(csvPath), 0755); err != nil {
		return "", "", fmt.Errorf("supervisor: create csv directory: %w", err)
	}
	return watchDir, csvPath, nil
}

// waitForWorker shows a spinner while the worker loads the model, then
// enforces the RUNNING-or-fail startup contract.
func (s *Supervisor) waitForWorker(ctx context.Context, tm *transcriber.Manager) error {
	var spin *spinner.Spinner
	if !s.opts.Silent {
		spin = spinner.New(spinner.CharSets[14], 100*time.Millisecond,
			spinner.WithSuffix(" Loading model..."))
		spin.Start()
	}

	err := tm.WaitRunning(ctx)

	if spin != nil {
		spin.Stop()
	}
	if err != nil {
		return err
	}
	if info := tm.Status().SystemInfo(); info != "" {
		logger.Info("transcriber ready", "accelerators", info)
	} else {
		logger.Info("transcriber ready")
	}
	return nil
}

// abort tears the already-started stages down after a late startup
// failure.
func (s *Supervisor) abort(cancel context.CancelFunc, decodeQ *queue.TrackedQueue[*job.Job], stages *sync.WaitGroup) {
	decodeQ.Close()
	cancel()
	stages.Wait()
}

// PrintFatal renders a fatal error in red with a pointer at the log file.
func PrintFatal(err error) {
	color.New(color.FgRed, color.Bold).Fprintf(os.Stderr, "Error: %v\n", err)
	if path := logger.FilePath(); path != "" {
		fmt.Fprintf(os.Stderr, "See %s for details\n", path)
	}
}
