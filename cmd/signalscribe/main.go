// Command signalscribe watches a directory for new audio recordings,
// transcribes them with a locally hosted whisper model, and appends every
// transcript to a CSV log.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"signalscribe/internal/config"
	"signalscribe/internal/modelmanager"
	"signalscribe/internal/modelmanager/catalog"
	"signalscribe/internal/probe"
	"signalscribe/internal/supervisor"
	"signalscribe/internal/transcriber"
	"signalscribe/internal/transcriber/workerproc"
	"signalscribe/pkg/logger"
)

const version = "0.6.0"

type flags struct {
	model        string
	listModels   bool
	reloadModels bool
	modelDir     string
	csvPath      string
	logPath      string
	noLogs       bool
	formats      []string
	recursive    bool
	threads      int
	verbose      bool
	silent       bool
	debug        bool
	yes          bool
}

func main() {
	// The hidden worker subcommand must never pass through cobra's normal
	// parsing-and-help machinery; it is an internal re-exec target.
	if len(os.Args) > 1 && os.Args[1] == transcriber.WorkerSubcommand {
		os.Exit(runWorker(os.Args[2:]))
	}

	if err := newRootCmd().Execute(); err != nil {
		supervisor.PrintFatal(err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags

	cmd := &cobra.Command{
		Use:     "signalscribe [folder]",
		Short:   "Live transcription of radio scanner recordings",
		Long:    "SignalScribe watches a folder for new audio recordings and transcribes them to a CSV log using a local whisper model.",
		Version: version,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return run(cmd.Context(), &f, args)
		},
	}

	cmd.Flags().StringVarP(&f.model, "model", "m", modelmanager.DefaultModel, "model to use, by catalog name")
	cmd.Flags().BoolVarP(&f.listModels, "list-models", "M", false, "list models in the catalog and exit")
	cmd.Flags().BoolVarP(&f.reloadModels, "reload-models", "r", false, "force a catalog refresh from the remote index")
	cmd.Flags().StringVar(&f.modelDir, "model-dir", config.DefaultModelDir(), "directory holding model files")
	cmd.Flags().StringVarP(&f.csvPath, "csv-path", "c", "", "CSV destination (file or directory; default: inside the watched folder)")
	cmd.Flags().StringVarP(&f.logPath, "log-path", "l", defaultLogPath(), "log file destination")
	cmd.Flags().BoolVarP(&f.noLogs, "no-logs", "n", false, "disable file logging")
	cmd.Flags().StringSliceVarP(&f.formats, "formats", "f", []string{"mp3", "m4a", "wav"}, "audio extensions to observe")
	cmd.Flags().BoolVarP(&f.recursive, "recursive", "R", false, "recurse into subdirectories")
	cmd.Flags().IntVarP(&f.threads, "threads", "t", config.DefaultThreads(), "worker threads for the STT engine")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "V", false, "mirror logs to the console")
	cmd.Flags().BoolVarP(&f.silent, "silent", "S", false, "suppress interactive console output")
	cmd.Flags().BoolVar(&f.debug, "debug", false, "maximum verbosity (overrides --verbose and --silent)")
	cmd.Flags().BoolVarP(&f.yes, "yes", "y", false, "assume yes for download prompts")

	return cmd
}

func run(ctx context.Context, f *flags, args []string) error {
	if err := initLogging(f); err != nil {
		return err
	}
	cfg := config.Load()

	if f.listModels {
		return listModels(ctx, f, cfg)
	}

	watchDir, err := resolveWatchDir(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sup := supervisor.New(supervisor.Options{
		Version:        version,
		WatchDir:       watchDir,
		Formats:        f.formats,
		Recursive:      f.recursive,
		Model:          f.model,
		ModelDir:       f.modelDir,
		RefreshCatalog: f.reloadModels,
		ForceYes:       f.yes || f.silent,
		CSVPath:        f.csvPath,
		Threads:        f.threads,
		Silent:         f.silent,
	}, cfg)

	return sup.Run(ctx)
}

// resolveWatchDir uses the positional folder, or falls back to the
// SDRTrunk probe when it was omitted.
func resolveWatchDir(args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if dir, ok := probe.FindSDRTrunkDirectory(); ok {
		fmt.Printf("No folder given, using SDRTrunk recording directory: %s\n", dir)
		return dir, nil
	}
	return "", errors.New("no folder given and no SDRTrunk recording directory found; pass a directory to watch")
}

func listModels(ctx context.Context, f *flags, cfg *config.Config) error {
	manager, err := modelmanager.New(ctx, modelmanager.Options{
		ModelDir:       f.modelDir,
		RefreshCatalog: f.reloadModels,
		Source:         catalog.NewHuggingFace(cfg.CatalogRepoURL, cfg.CatalogResolveURL),
	})
	if err != nil {
		return err
	}

	fmt.Println("Available models:")
	for _, name := range manager.Models() {
		entry, _ := manager.Entry(name)
		line := fmt.Sprintf("  %-24s %s", name, humanize.Bytes(uint64(entry.Bin.SizeBytes)))
		if entry.CoreML != nil {
			line += fmt.Sprintf(" (+ %s for CoreML)", humanize.Bytes(uint64(entry.CoreML.SizeBytes)))
		}
		fmt.Println(line)
	}
	return nil
}

// initLogging maps the verbosity flags onto the two sinks. --debug wins
// over everything; --verbose mirrors file-level detail to the console;
// --silent keeps the console to errors only.
func initLogging(f *flags) error {
	fileLevel := logger.LevelInfo
	consoleLevel := logger.LevelWarn
	switch {
	case f.debug:
		fileLevel = logger.LevelDebug
		consoleLevel = logger.LevelDebug
	case f.silent:
		consoleLevel = logger.LevelError
	case f.verbose:
		consoleLevel = fileLevel
	}

	logPath := f.logPath
	if f.noLogs {
		logPath = ""
		fileLevel = logger.LevelOff
	}

	return logger.InitWithOptions(logger.Options{
		ConsoleLevel: consoleLevel,
		FileLevel:    fileLevel,
		FilePath:     logPath,
	})
}

func defaultLogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "signalscribe.log"
	}
	return filepath.Join(home, ".signalscribe", "signalscribe.log")
}

// runWorker is the re-exec entrypoint for the transcriber worker process.
func runWorker(args []string) int {
	opts := workerproc.Options{Threads: 1}
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--model-path":
			if i+1 < len(args) {
				i++
				opts.ModelPath = args[i]
			}
		case "--threads":
			if i+1 < len(args) {
				i++
				fmt.Sscanf(args[i], "%d", &opts.Threads)
			}
		}
	}
	return workerproc.Run(opts)
}
