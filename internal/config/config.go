package config

import (
	"log"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the advanced settings that don't deserve CLI flag clutter.
// Everything user-facing is a flag (see cmd/signalscribe); these are the
// rarely-touched knobs loaded from the environment or an optional .env file.
type Config struct {
	// Remote model catalog
	CatalogRepoURL    string
	CatalogResolveURL string

	// External audio transcoder binary name
	TranscoderBin string

	// Transcriber worker process
	WorkerCmd          string // override for the worker argv; empty means re-exec self
	WorkerStartTimeout time.Duration
	WorkerStopTimeout  time.Duration
}

const (
	defaultCatalogRepoURL    = "https://huggingface.co/ggerganov/whisper.cpp/tree/main"
	defaultCatalogResolveURL = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"
	defaultTranscoderBin     = "ffmpeg"
)

// Load loads configuration from environment variables and .env file
func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded settings overrides from .env")
	}

	return &Config{
		CatalogRepoURL:     getEnv("SIGNALSCRIBE_CATALOG_URL", defaultCatalogRepoURL),
		CatalogResolveURL:  getEnv("SIGNALSCRIBE_CATALOG_RESOLVE_URL", defaultCatalogResolveURL),
		TranscoderBin:      getEnv("SIGNALSCRIBE_TRANSCODER", defaultTranscoderBin),
		WorkerCmd:          getEnv("SIGNALSCRIBE_WORKER_CMD", ""),
		WorkerStartTimeout: getEnvAsDuration("SIGNALSCRIBE_WORKER_START_TIMEOUT", 20*time.Second),
		WorkerStopTimeout:  getEnvAsDuration("SIGNALSCRIBE_WORKER_STOP_TIMEOUT", 10*time.Second),
	}
}

// DefaultModelDir is <user-home>/.signalscribe/models.
func DefaultModelDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fall back to the working directory; ModelManager will create it.
		return filepath.Join(".signalscribe", "models")
	}
	return filepath.Join(home, ".signalscribe", "models")
}

// DefaultThreads is half the logical CPUs, minimum one.
func DefaultThreads() int {
	n := runtime.NumCPU() / 2
	if n < 1 {
		n = 1
	}
	return n
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsDuration gets an environment variable as a duration with a
// default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
