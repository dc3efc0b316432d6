package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
)

// DownloadFile downloads a file from a URL to a destination path with
// progress tracking. The download goes to dest+".tmp" first and is renamed
// into place only on success, so a cancelled or failed download never
// leaves a plausible-looking partial file at dest.
func DownloadFile(ctx context.Context, url, dest string) error {
	// Create parent directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Create temporary file
	tempDest := dest + ".tmp"
	out, err := os.Create(tempDest)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		out.Close()
		os.Remove(tempDest)
	}()

	// Create request with context
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	// Execute request
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	bar := progressbar.DefaultBytes(resp.ContentLength,
		fmt.Sprintf("Downloading %s", filepath.Base(dest)))

	// Copy with progress
	if _, err := io.Copy(io.MultiWriter(out, bar), resp.Body); err != nil {
		return fmt.Errorf("failed to save file: %w", err)
	}

	// Close file before renaming
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to flush file: %w", err)
	}

	// Rename temp file to final destination
	if err := os.Rename(tempDest, dest); err != nil {
		return fmt.Errorf("failed to rename file: %w", err)
	}

	return nil
}
