package modelmanager

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"signalscribe/pkg/logger"
)

// extractArchive unpacks the CoreML encoder zip into the model directory.
// Entry paths are confined to destDir; an archive member that escapes it is
// an error, not a write.
func extractArchive(zipPath, destDir string) error {
	logger.Debug("extracting archive", "zip", zipPath, "dest", destDir)

	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("modelmanager: open archive %s: %w", zipPath, err)
	}
	defer r.Close()

	for _, f := range r.File {
		target := filepath.Join(destDir, f.Name)
		rel, err := filepath.Rel(destDir, target)
		if err != nil || strings.HasPrefix(rel, "..") {
			return fmt.Errorf("modelmanager: archive member %q escapes %s", f.Name, destDir)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("modelmanager: extract %s: %w", f.Name, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return fmt.Errorf("modelmanager: extract %s: %w", f.Name, err)
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	src, err := f.Open()
	if err != nil {
		return fmt.Errorf("modelmanager: extract %s: %w", f.Name, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, f.Mode())
	if err != nil {
		return fmt.Errorf("modelmanager: extract %s: %w", f.Name, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("modelmanager: extract %s: %w", f.Name, err)
	}
	return nil
}
