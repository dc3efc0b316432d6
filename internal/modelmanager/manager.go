// Package modelmanager reconciles the local model directory with the
// remote catalog, downloads and verifies model assets, and hands the
// Transcriber an absolute path to a validated model binary.
package modelmanager

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"signalscribe/internal/modelmanager/catalog"
	"signalscribe/pkg/downloader"
	"signalscribe/pkg/logger"
)

// DefaultModel is selected when the user names none.
const DefaultModel = "large-v3-turbo"

var (
	// ErrCatalogUnavailable means no valid local catalog exists and the
	// remote fetch failed too.
	ErrCatalogUnavailable = errors.New("modelmanager: no valid model catalog available")

	// ErrUnknownModel means the requested name does not key into the catalog.
	ErrUnknownModel = errors.New("modelmanager: unknown model")

	// ErrIntegrityFailed means an asset's SHA-256 does not match the catalog.
	ErrIntegrityFailed = errors.New("modelmanager: model file integrity check failed")

	// ErrDeclined means the user answered no to the download prompt.
	ErrDeclined = errors.New("modelmanager: declined by user")
)

// Prompter asks the user a yes/no question. The default implementation
// reads the terminal; tests and non-interactive callers substitute their
// own or pass force to Select.
type Prompter interface {
	Confirm(prompt string, defaultYes bool) bool
}

// Options configures construction.
type Options struct {
	// ModelDir defaults to <user-home>/.signalscribe/models.
	ModelDir string

	// RefreshCatalog forces a remote fetch even when a valid local catalog
	// exists.
	RefreshCatalog bool

	// Source supplies remote listing and metadata. Required.
	Source catalog.Source

	// Prompter handles interactive confirmation. Nil selects the terminal
	// prompter.
	Prompter Prompter
}

// Manager owns the model directory and catalog. Single-threaded by
// contract; the Supervisor serializes its use during startup.
type Manager struct {
	modelDir string
	source   catalog.Source
	prompter Prompter
	catalog  Catalog
}

// New ensures the model directory exists and acquires the catalog,
// following the startup algorithm: prefer a valid local catalog unless a
// refresh was requested, fall back to it if the remote fetch fails, and
// fail with ErrCatalogUnavailable only when neither is usable.
func New(ctx context.Context, opts Options) (*Manager, error) {
	if opts.Source == nil {
		return nil, errors.New("modelmanager: a catalog source is required")
	}
	if opts.ModelDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("modelmanager: resolve home directory: %w", err)
		}
		opts.ModelDir = filepath.Join(home, ".signalscribe", "models")
	}
	if opts.Prompter == nil {
		opts.Prompter = terminalPrompter{}
	}

	modelDir, err := filepath.Abs(opts.ModelDir)
	if err != nil {
		return nil, fmt.Errorf("modelmanager: resolve model directory: %w", err)
	}
	if err := os.MkdirAll(modelDir, 0755); err != nil {
		return nil, fmt.Errorf("modelmanager: create model directory: %w", err)
	}

	m := &Manager{
		modelDir: modelDir,
		source:   opts.Source,
		prompter: opts.Prompter,
	}

	if err := m.acquireCatalog(ctx, opts.RefreshCatalog); err != nil {
		return nil, err
	}
	m.markPresence()
	logger.Info("model catalog loaded", "models", len(m.catalog), "dir", m.modelDir)
	return m, nil
}

// ModelDir returns the absolute model directory path.
func (m *Manager) ModelDir() string {
	return m.modelDir
}

// Models returns the catalog's model names in sorted order.
func (m *Manager) Models() []string {
	names := make([]string, 0, len(m.catalog))
	for name := range m.catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Entry returns one model's catalog entry.
func (m *Manager) Entry(name string) (Entry, bool) {
	e, ok := m.catalog[name]
	return e, ok
}

// acquireCatalog implements the catalog acquisition algorithm.
func (m *Manager) acquireCatalog(ctx context.Context, refresh bool) error {
	path := filepath.Join(m.modelDir, CatalogFilename)

	local, err := readCatalog(path)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		logger.Info("no local model catalog found")
	default:
		// Malformed on disk: delete and treat as missing.
		logger.Warn("local model catalog is corrupt, deleting it", "error", err)
		os.Remove(path)
	}

	localValid := local != nil && local.Valid()
	if localValid && !refresh {
		m.catalog = local
		return nil
	}

	fetched, fetchErr := m.fetchCatalog(ctx)
	if fetchErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if localValid {
			logger.Warn("failed to refresh model catalog, using local copy", "error", fetchErr)
			m.catalog = local
			return nil
		}
		return fmt.Errorf("%w: %v", ErrCatalogUnavailable, fetchErr)
	}

	if err := writeCatalog(path, fetched); err != nil {
		return err
	}
	m.catalog = fetched
	return nil
}

// fetchCatalog assembles a fresh catalog from the remote source: list the
// artifacts, pair each ggml binary with its CoreML encoder archive when one
// exists, and resolve each asset's size and hash out-of-band.
func (m *Manager) fetchCatalog(ctx context.Context) (Catalog, error) {
	files, err := m.source.ListFiles(ctx)
	if err != nil {
		return nil, err
	}

	listed := make(map[string]struct{}, len(files))
	for _, f := range files {
		listed[f] = struct{}{}
	}

	c := make(Catalog)
	for _, f := range files {
		if !strings.HasPrefix(f, "ggml-") || !strings.HasSuffix(f, ".bin") {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(f, "ggml-"), ".bin")

		binDetails, err := m.source.FileDetails(ctx, f)
		if err != nil {
			logger.Warn("skipping model with unresolvable metadata", "file", f, "error", err)
			continue
		}
		entry := Entry{Bin: Asset{
			Filename:  f,
			URL:       m.source.DownloadURL(f),
			SizeBytes: binDetails.SizeBytes,
			SHA256:    binDetails.SHA256,
		}}

		coremlZip := fmt.Sprintf("ggml-%s-encoder.mlmodelc.zip", name)
		if _, ok := listed[coremlZip]; ok {
			coremlDetails, err := m.source.FileDetails(ctx, coremlZip)
			if err != nil {
				logger.Warn("skipping coreml asset with unresolvable metadata", "file", coremlZip, "error", err)
			} else {
				entry.CoreML = &Asset{
					Filename:  coremlZip,
					URL:       m.source.DownloadURL(coremlZip),
					SizeBytes: coremlDetails.SizeBytes,
					SHA256:    coremlDetails.SHA256,
				}
			}
		}

		c[name] = entry
	}

	if len(c) == 0 {
		return nil, errors.New("modelmanager: remote catalog contained no models")
	}
	return c, nil
}

// markPresence records file existence for every catalog asset. Existence
// only; hashing waits for Select.
func (m *Manager) markPresence() {
	for name, entry := range m.catalog {
		entry.Bin.Present = m.assetPresent(entry.Bin, false)
		if entry.CoreML != nil {
			coreml := *entry.CoreML
			coreml.Present = m.assetPresent(coreml, true)
			entry.CoreML = &coreml
		}
		m.catalog[name] = entry
	}
}

func (m *Manager) assetPresent(a Asset, archive bool) bool {
	if archive {
		// The archive counts as present once either the zip or its
		// extracted directory exists.
		if _, err := os.Stat(filepath.Join(m.modelDir, coremlDirName(a.Filename))); err == nil {
			return true
		}
	}
	_, err := os.Stat(filepath.Join(m.modelDir, a.Filename))
	return err == nil
}

// Select resolves name to a verified on-disk model, downloading missing
// assets (after confirmation unless force is set) and hashing every
// required asset against the catalog. It returns the absolute path to the
// model's .bin file.
func (m *Manager) Select(ctx context.Context, name string, force bool) (string, error) {
	entry, ok := m.catalog[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}

	required := []Asset{entry.Bin}
	if platformNeedsCoreML() {
		if entry.CoreML == nil {
			return "", fmt.Errorf("modelmanager: model %q has no coreml asset for this platform", name)
		}
		required = append(required, *entry.CoreML)
	}

	if err := m.downloadMissing(ctx, name, required, force); err != nil {
		return "", err
	}

	for _, asset := range required {
		if err := m.verifyAsset(ctx, name, asset, force); err != nil {
			return "", err
		}
	}

	if entry.CoreML != nil && platformNeedsCoreML() {
		if err := m.ensureExtracted(*entry.CoreML); err != nil {
			return "", err
		}
	}

	return filepath.Join(m.modelDir, entry.Bin.Filename), nil
}

// downloadMissing prompts once for the total download size, then fetches
// each absent asset with progress reporting.
func (m *Manager) downloadMissing(ctx context.Context, name string, required []Asset, force bool) error {
	var missing []Asset
	var totalBytes int64
	for _, asset := range required {
		if _, err := os.Stat(filepath.Join(m.modelDir, asset.Filename)); err == nil {
			continue
		}
		if asset.Filename == "" {
			continue
		}
		// For the coreml archive, an already-extracted directory counts.
		if strings.HasSuffix(asset.Filename, ".zip") {
			if _, err := os.Stat(filepath.Join(m.modelDir, coremlDirName(asset.Filename))); err == nil {
				continue
			}
		}
		missing = append(missing, asset)
		totalBytes += asset.SizeBytes
	}
	if len(missing) == 0 {
		return nil
	}

	fmt.Printf("Missing %d model file(s) for %s in %s:\n", len(missing), name, m.modelDir)
	for _, asset := range missing {
		fmt.Printf("  - %s: %s\n", asset.Filename, humanize.Bytes(uint64(asset.SizeBytes)))
	}

	if !force {
		prompt := fmt.Sprintf("Download %s to %s?", humanize.Bytes(uint64(totalBytes)), m.modelDir)
		if !m.prompter.Confirm(prompt, true) {
			return fmt.Errorf("%w: download of model %q", ErrDeclined, name)
		}
	}

	for _, asset := range missing {
		dest := filepath.Join(m.modelDir, asset.Filename)
		logger.Info("downloading model asset", "file", asset.Filename, "size", humanize.Bytes(uint64(asset.SizeBytes)))
		if err := downloader.DownloadFile(ctx, asset.URL, dest); err != nil {
			return fmt.Errorf("modelmanager: download %s: %w", asset.Filename, err)
		}
	}
	return nil
}

// verifyAsset hashes one asset against the catalog. On mismatch it offers
// to delete the file (when force is set there is no prompt and the file is
// kept) and reports ErrIntegrityFailed either way; there is no automatic
// retry.
func (m *Manager) verifyAsset(ctx context.Context, name string, asset Asset, force bool) error {
	path := filepath.Join(m.modelDir, asset.Filename)
	if strings.HasSuffix(asset.Filename, ".zip") {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			// Only the extracted directory remains; nothing left to hash.
			logger.Debug("coreml archive already extracted, skipping hash", "file", asset.Filename)
			return nil
		}
	}

	logger.Info("verifying model asset", "file", asset.Filename)
	sum, err := fileSHA256(ctx, path)
	if err != nil {
		return err
	}
	if sum == strings.ToLower(asset.SHA256) {
		return nil
	}

	logger.Error("model asset hash mismatch", "file", asset.Filename, "expected", asset.SHA256, "actual", sum)
	if !force && m.prompter.Confirm(fmt.Sprintf("The downloaded file for %s appears to be corrupted. Delete it?", name), true) {
		if rmErr := os.Remove(path); rmErr != nil {
			logger.Error("could not delete corrupted model file, delete it manually", "path", path, "error", rmErr)
		}
	} else {
		logger.Warn("keeping corrupted model file, the model may not work", "path", path)
	}
	return fmt.Errorf("%w: %s", ErrIntegrityFailed, asset.Filename)
}

// ensureExtracted unpacks the CoreML archive if its directory is absent.
func (m *Manager) ensureExtracted(asset Asset) error {
	dir := filepath.Join(m.modelDir, coremlDirName(asset.Filename))
	if _, err := os.Stat(dir); err == nil {
		return nil
	}
	return extractArchive(filepath.Join(m.modelDir, asset.Filename), m.modelDir)
}

// terminalPrompter asks on stdout and reads one line from stdin.
type terminalPrompter struct{}

func (terminalPrompter) Confirm(prompt string, defaultYes bool) bool {
	suffix := "[Y/n]"
	if !defaultYes {
		suffix = "[y/N]"
	}
	fmt.Printf("%s %s ", prompt, suffix)

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return defaultYes
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "":
		return defaultYes
	case "y", "yes":
		return true
	default:
		return false
	}
}
