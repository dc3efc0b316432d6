package modelmanager

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// CatalogFilename is the catalog's on-disk name inside the model directory.
const CatalogFilename = "models.json"

// Asset describes one downloadable model artifact and its expected
// integrity metadata.
type Asset struct {
	Filename  string `json:"filename"`
	URL       string `json:"url"`
	SizeBytes int64  `json:"size_bytes"`
	SHA256    string `json:"sha256"`

	// Present is derived from the filesystem at load time; it records file
	// existence only. Hashing is deferred to Select.
	Present bool `json:"-"`
}

// Entry is the per-model record: the ggml binary plus, where the platform
// uses it, the CoreML encoder archive. The CoreML filename is the .zip
// artifact; the extracted directory is that name without the extension.
type Entry struct {
	Bin    Asset  `json:"bin"`
	CoreML *Asset `json:"coreml,omitempty"`
}

// Catalog maps model name (e.g. "large-v3-turbo") to its Entry. Created or
// refreshed at startup, read-only thereafter.
type Catalog map[string]Entry

// platformNeedsCoreML reports whether this platform requires the CoreML
// asset alongside the binary.
func platformNeedsCoreML() bool {
	return runtime.GOOS == "darwin"
}

// validAsset checks the fields the catalog contract requires.
func validAsset(a Asset) bool {
	return a.Filename != "" && a.URL != "" && a.SizeBytes > 0 && len(a.SHA256) == 64
}

// Valid reports whether the catalog is usable on this platform: every entry
// carries a complete bin asset and, where the platform needs it, a complete
// coreml asset.
func (c Catalog) Valid() bool {
	return c.validFor(platformNeedsCoreML())
}

func (c Catalog) validFor(needCoreML bool) bool {
	if len(c) == 0 {
		return false
	}
	for _, entry := range c {
		if !validAsset(entry.Bin) {
			return false
		}
		if needCoreML {
			if entry.CoreML == nil || !validAsset(*entry.CoreML) {
				return false
			}
		} else if entry.CoreML != nil && !validAsset(*entry.CoreML) {
			return false
		}
	}
	return true
}

// readCatalog loads the catalog JSON at path. A missing file returns
// os.ErrNotExist; malformed JSON returns a decode error the caller treats
// as corruption.
func readCatalog(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("modelmanager: parse %s: %w", path, err)
	}
	return c, nil
}

// writeCatalog persists the catalog atomically: write to a temp file in the
// same directory, then rename into place.
func writeCatalog(path string, c Catalog) error {
	data, err := json.MarshalIndent(c, "", "    ")
	if err != nil {
		return fmt.Errorf("modelmanager: encode catalog: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), CatalogFilename+".*")
	if err != nil {
		return fmt.Errorf("modelmanager: create catalog temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("modelmanager: write catalog: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("modelmanager: write catalog: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("modelmanager: replace catalog: %w", err)
	}
	return nil
}

// coremlDirName converts the CoreML zip artifact name into the directory
// the archive extracts to.
func coremlDirName(zipName string) string {
	return strings.TrimSuffix(zipName, ".zip")
}
