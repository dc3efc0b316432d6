// Package transcriber hosts the speech-to-text engine in a separate OS
// process and manages its lifecycle from the main process: launch, wait
// for RUNNING, pump Jobs across the process boundary, forward the worker's
// log records, and shut it down with a sentinel backed by a kill deadline.
// The engine serializes aggressively with whatever runtime hosts it, so
// keeping it in its own address space is what keeps the watcher, decoder,
// output, and status display responsive.
package transcriber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/google/shlex"

	"signalscribe/internal/job"
	"signalscribe/internal/procutil"
	"signalscribe/internal/queue"
	"signalscribe/internal/transcriber/wire"
	"signalscribe/pkg/logger"
)

// WorkerSubcommand is the hidden argv[1] that re-executes this binary as
// the worker process.
const WorkerSubcommand = "__transcriber-worker"

var (
	// ErrWorkerFailed means the worker reported ERROR or exited before
	// reaching RUNNING.
	ErrWorkerFailed = errors.New("transcriber: worker failed to start")

	// ErrStartTimeout means the worker did not reach RUNNING in time.
	ErrStartTimeout = errors.New("transcriber: worker did not become ready in time")
)

// Config configures the manager.
type Config struct {
	ModelPath string
	Threads   int

	// WorkerCmd optionally overrides the worker argv (parsed shell-style).
	// Empty means re-execute this binary with WorkerSubcommand.
	WorkerCmd string

	// StartTimeout caps the wait for RUNNING. StopTimeout caps the wait for
	// a graceful exit after the sentinel before the process tree is killed.
	StartTimeout time.Duration
	StopTimeout  time.Duration

	In  *queue.TrackedQueue[*job.Job]
	Out *queue.TrackedQueue[*job.Job]
}

// Manager is the main-process side of the transcriber.
type Manager struct {
	cfg    Config
	status *StatusMap

	cmd   *exec.Cmd
	stdin io.WriteCloser

	encMu sync.Mutex
	enc   *json.Encoder

	pendingMu sync.Mutex
	pending   map[string]*job.Job

	readerDone chan struct{}
	procDone   chan struct{}
}

// New builds a Manager; Start launches the worker.
func New(cfg Config) *Manager {
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = 20 * time.Second
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 10 * time.Second
	}
	return &Manager{
		cfg:        cfg,
		status:     newStatusMap(),
		pending:    make(map[string]*job.Job),
		readerDone: make(chan struct{}),
		procDone:   make(chan struct{}),
	}
}

// Status exposes the worker's mirrored state for the supervisor and the
// status display.
func (m *Manager) Status() *StatusMap {
	return m.status
}

// Start launches the worker process and begins mirroring its events. It
// returns once the process is running; use WaitRunning to block until the
// model is loaded.
func (m *Manager) Start(ctx context.Context) error {
	argv, err := m.workerArgv()
	if err != nil {
		return err
	}

	// Deliberately not CommandContext: graceful shutdown must let the
	// worker drain queued tasks after the supervisor's context ends; its
	// lifetime is bounded by the sentinel handshake and KillTree instead.
	cmd := exec.Command(argv[0], argv[1:]...)
	procutil.SetProcessGroup(cmd)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("transcriber: worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("transcriber: worker stdout: %w", err)
	}

	logger.Debug("starting transcriber worker", "argv", argv)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("transcriber: start worker: %w", err)
	}

	m.cmd = cmd
	m.stdin = stdin
	m.enc = json.NewEncoder(stdin)

	go m.readEvents(stdout)
	go func() {
		cmd.Wait()
		close(m.procDone)
	}()
	return nil
}

// workerArgv resolves the worker command line: an override from
// configuration, or this same binary re-executed with the hidden worker
// subcommand.
func (m *Manager) workerArgv() ([]string, error) {
	var argv []string
	if m.cfg.WorkerCmd != "" {
		parts, err := shlex.Split(m.cfg.WorkerCmd)
		if err != nil || len(parts) == 0 {
			return nil, fmt.Errorf("transcriber: invalid worker command %q", m.cfg.WorkerCmd)
		}
		argv = parts
	} else {
		self, err := os.Executable()
		if err != nil {
			self = os.Args[0]
		}
		argv = []string{self, WorkerSubcommand}
	}
	return append(argv,
		"--model-path", m.cfg.ModelPath,
		"--threads", strconv.Itoa(m.cfg.Threads),
	), nil
}

// readEvents mirrors the worker's stdout into the status map, the logging
// subsystem, and the output queue.
func (m *Manager) readEvents(r io.Reader) {
	defer close(m.readerDone)

	dec := json.NewDecoder(r)
	for {
		var ev wire.Event
		if err := dec.Decode(&ev); err != nil {
			if err != io.EOF {
				logger.Warn("transcriber event stream broke", "error", err)
			}
			// A worker that disappears before announcing SHUTDOWN died.
			if s := m.status.State(); s != wire.StateShutdown && s != wire.StateError {
				m.status.apply(wire.Event{State: wire.StateError, Error: "worker exited unexpectedly"})
			}
			return
		}

		switch ev.Type {
		case wire.EventStatus:
			m.status.apply(ev)
			logger.Debug("worker status", "state", ev.State, "error_count", ev.ErrorCount)
		case wire.EventLog:
			logger.Emit(ev.Level, "[worker] "+ev.Message)
		case wire.EventResult:
			m.deliver(ev)
		}
	}
}

// deliver matches a result to its pending Job and forwards it downstream.
func (m *Manager) deliver(ev wire.Event) {
	m.pendingMu.Lock()
	j, ok := m.pending[ev.ID]
	delete(m.pending, ev.ID)
	m.pendingMu.Unlock()

	if !ok {
		logger.Warn("result for unknown job", "id", ev.ID, "path", ev.Path)
		return
	}

	if ev.Error != "" {
		// Transient per-job failure: drop the job, the pipeline continues.
		logger.JobFailed(j.ID, time.Duration(ev.TranscribeMS)*time.Millisecond, errors.New(ev.Error))
		return
	}

	j.Text = ev.Text
	j.TranscribeMS = ev.TranscribeMS
	logger.JobCompleted(j.ID, time.Duration(ev.TranscribeMS)*time.Millisecond)

	if err := m.cfg.Out.Put(context.Background(), j); err != nil {
		logger.Warn("failed to forward transcription downstream", "path", j.Path, "error", err)
	}
}

// WaitRunning blocks until the worker reports RUNNING, or fails if it
// reports ERROR or SHUTDOWN first, exits, or the start deadline passes.
func (m *Manager) WaitRunning(ctx context.Context) error {
	deadline := time.NewTimer(m.cfg.StartTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for {
		switch m.status.State() {
		case wire.StateRunning:
			return nil
		case wire.StateError:
			return fmt.Errorf("%w: %s", ErrWorkerFailed, m.status.LastError())
		case wire.StateShutdown:
			return fmt.Errorf("%w: worker shut down before running", ErrWorkerFailed)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.procDone:
			if m.status.State() == wire.StateRunning {
				return nil
			}
			return fmt.Errorf("%w: worker process exited", ErrWorkerFailed)
		case <-deadline.C:
			return ErrStartTimeout
		case <-tick.C:
		}
	}
}

// Run pumps Jobs from the transcribing queue into the worker until the
// queue closes, then performs the shutdown handshake: sentinel, bounded
// wait, forced kill on expiry. It closes Out when the worker is gone so
// the Output stage drains and exits.
func (m *Manager) Run(ctx context.Context) {
	defer m.cfg.Out.Close()

	for {
		j, ok := m.cfg.In.Get(ctx)
		if !ok {
			break
		}
		m.submit(j)
	}

	m.shutdown()
}

// submit sends one Job to the worker and releases its waveform; the PCM
// now lives on the other side of the process boundary.
func (m *Manager) submit(j *job.Job) {
	task := wire.Task{ID: j.ID, Path: j.Path}
	if j.PCM != nil {
		task.PCM = wire.EncodeSamples(j.PCM.Samples)
	}
	j.PCM = nil

	m.pendingMu.Lock()
	m.pending[j.ID] = j
	m.pendingMu.Unlock()

	logger.JobStarted(j.ID, j.Path, "")
	if err := m.encode(task); err != nil {
		logger.Warn("failed to send job to worker", "path", j.Path, "error", err)
		m.pendingMu.Lock()
		delete(m.pending, j.ID)
		m.pendingMu.Unlock()
	}
}

// Stop performs the shutdown handshake outside of Run, for startup paths
// that fail after the worker was launched.
func (m *Manager) Stop() {
	m.shutdown()
}

// shutdown sends the sentinel and waits out the stop deadline before
// killing the worker's process group.
func (m *Manager) shutdown() {
	if m.cmd == nil {
		return
	}

	logger.Debug("sending shutdown sentinel to transcriber worker")
	if err := m.encode(wire.Task{Sentinel: true}); err != nil {
		logger.Debug("could not send sentinel, worker already gone", "error", err)
	}
	m.stdin.Close()

	select {
	case <-m.procDone:
	case <-time.After(m.cfg.StopTimeout):
		logger.Warn("worker did not exit in time, terminating it")
		if m.cmd.Process != nil {
			if err := procutil.KillTree(m.cmd.Process); err != nil {
				logger.Warn("failed to kill worker process", "error", err)
			}
		}
		<-m.procDone
	}

	// Let the reader drain any final events so late results are not lost.
	select {
	case <-m.readerDone:
	case <-time.After(time.Second):
	}

	m.dropPending()
	logger.Info("transcriber worker stopped")
}

// dropPending logs Jobs that were sent to the worker but never came back.
func (m *Manager) dropPending() {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	for _, j := range m.pending {
		logger.Warn("job lost in shutdown before transcription completed", "path", j.Path)
	}
	m.pending = make(map[string]*job.Job)
}

func (m *Manager) encode(task wire.Task) error {
	m.encMu.Lock()
	defer m.encMu.Unlock()
	return m.enc.Encode(task)
}
