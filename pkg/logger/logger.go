package logger

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Logger wraps slog.Logger with convenience methods
type Logger struct {
	*slog.Logger
}

// LogLevel represents logging levels
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	// LevelOff disables a sink entirely.
	LevelOff
)

var (
	// Default logger instance
	defaultLogger *Logger
	// Lowest level either sink will accept; package-level wrappers gate on
	// this so per-Job log calls skip argument evaluation when nothing would
	// be emitted.
	currentLevel = LevelInfo
	// The console sink's own level. Startup's banner line writes straight
	// to stdout, so it must gate on this, not on the blended currentLevel:
	// a permissive file sink must not drag console-only output back in
	// under --silent.
	consoleLevel = LevelInfo
	// Open log file, if any
	logFile *os.File
	// Where the file sink writes, for printing to the user
	logFilePath string
)

// Options selects the sinks and their levels. A console sink at LevelOff
// is disabled (--silent sets it to LevelError instead); an empty FilePath
// corresponds to --no-logs.
type Options struct {
	ConsoleLevel LogLevel
	FileLevel    LogLevel
	FilePath     string
}

// ParseLevel maps a level name to a LogLevel, defaulting to info.
func ParseLevel(level string) LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return LevelDebug
	case "info", "":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "off", "silent", "none":
		return LevelOff
	}
	return LevelInfo
}

// Init initializes the global logger with specified level, console only.
// Kept as the short form for tests and tools; the application proper calls
// InitWithOptions once flags are parsed.
func Init(level string) {
	InitWithOptions(Options{ConsoleLevel: ParseLevel(level), FileLevel: LevelOff})
}

// InitWithOptions builds the console and file sinks. It is safe to call
// more than once; the previous file sink is closed first.
func InitWithOptions(opts Options) error {
	Close()

	var handlers []slog.Handler

	if opts.ConsoleLevel < LevelOff {
		handlers = append(handlers, newTextHandler(os.Stdout, opts.ConsoleLevel))
	}

	if opts.FileLevel < LevelOff && opts.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.FilePath), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(opts.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		logFile = f
		logFilePath = opts.FilePath
		handlers = append(handlers, newTextHandler(f, opts.FileLevel))
	}

	consoleLevel = opts.ConsoleLevel
	currentLevel = LevelOff
	if opts.ConsoleLevel < currentLevel {
		currentLevel = opts.ConsoleLevel
	}
	if opts.FileLevel < currentLevel && opts.FilePath != "" {
		currentLevel = opts.FileLevel
	}

	defaultLogger = &Logger{slog.New(fanout(handlers))}
	return nil
}

// newTextHandler creates a text handler with clean timestamp and level
// formatting.
func newTextHandler(w *os.File, level LogLevel) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:     slogLevel(level),
		AddSource: false, // Clean logs without source info
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Clean timestamp format
			if a.Key == slog.TimeKey {
				return slog.Attr{
					Key:   a.Key,
					Value: slog.StringValue(a.Value.Time().Format("15:04:05")),
				}
			}
			// Clean level names
			if a.Key == slog.LevelKey {
				level := a.Value.Any().(slog.Level)
				switch level {
				case slog.LevelDebug:
					a.Value = slog.StringValue("DEBUG")
				case slog.LevelInfo:
					a.Value = slog.StringValue("INFO ")
				case slog.LevelWarn:
					a.Value = slog.StringValue("WARN ")
				case slog.LevelError:
					a.Value = slog.StringValue("ERROR")
				}
			}
			return a
		},
	}
	return slog.NewTextHandler(w, opts)
}

func slogLevel(level LogLevel) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// Get returns the default logger instance
func Get() *Logger {
	if defaultLogger == nil {
		Init(os.Getenv("LOG_LEVEL"))
	}
	return defaultLogger
}

// GetLevel returns the current log level
func GetLevel() LogLevel {
	return currentLevel
}

// FilePath returns where the file sink writes, or "" if there is none.
func FilePath() string {
	return logFilePath
}

// Close flushes and closes the file sink. Idempotent.
func Close() {
	if logFile != nil {
		logFile.Close()
		logFile = nil
		logFilePath = ""
	}
}

// Convenience methods for common logging patterns

func Debug(msg string, args ...any) {
	if currentLevel <= LevelDebug {
		Get().Debug(msg, args...)
	}
}

func Info(msg string, args ...any) {
	if currentLevel <= LevelInfo {
		Get().Info(msg, args...)
	}
}

func Warn(msg string, args ...any) {
	if currentLevel <= LevelWarn {
		Get().Warn(msg, args...)
	}
}

func Error(msg string, args ...any) {
	if currentLevel <= LevelError {
		Get().Error(msg, args...)
	}
}

// Emit re-logs a record that originated elsewhere, used by the transcriber
// manager to surface the worker process's forwarded log records through the
// same sinks as everything else.
func Emit(level string, msg string, args ...any) {
	switch ParseLevel(level) {
	case LevelDebug:
		Debug(msg, args...)
	case LevelWarn:
		Warn(msg, args...)
	case LevelError:
		Error(msg, args...)
	default:
		Info(msg, args...)
	}
}

// WithContext creates a logger with additional context
func WithContext(key string, value any) *Logger {
	return &Logger{Get().With(key, value)}
}

// Startup logging for key initialization steps
func Startup(step, message string, args ...any) {
	// Simple message at INFO level, technical details at DEBUG
	if consoleLevel <= LevelInfo {
		// Clean, user-friendly startup message
		// \033[36m is Cyan color for the [+] prefix
		fmt.Printf("\033[36m[+]\033[0m %s\n", message)
	}
	if currentLevel <= LevelDebug {
		Debug("Startup step", append([]any{"step", step, "message", message}, args...)...)
	}
}

// Job logging for transcription operations
func JobStarted(jobID, filename, model string) {
	// Simple message at INFO, details at DEBUG
	Info("Transcription started", "file", filename)
	Debug("Job started with details",
		"job_id", jobID,
		"file", filename,
		"model", model)
}

func JobCompleted(jobID string, duration time.Duration) {
	Info("Transcription completed", "duration", duration.String())
	Debug("Job completed with details",
		"job_id", jobID,
		"duration", duration.String())
}

func JobFailed(jobID string, duration time.Duration, err error) {
	Error("Transcription failed", "error", err.Error())
	Debug("Job failed with details",
		"job_id", jobID,
		"duration", duration.String(),
		"error", err.Error())
}
