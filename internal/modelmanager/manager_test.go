package modelmanager

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalscribe/internal/modelmanager/catalog"
)

// fixtureSource serves a canned listing and per-file metadata, optionally
// backed by an httptest server for actual downloads.
type fixtureSource struct {
	files   []string
	details map[string]catalog.FileDetails
	baseURL string
	listErr error
}

func (f *fixtureSource) ListFiles(ctx context.Context) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.files, nil
}

func (f *fixtureSource) FileDetails(ctx context.Context, filename string) (catalog.FileDetails, error) {
	d, ok := f.details[filename]
	if !ok {
		return catalog.FileDetails{}, fmt.Errorf("no details for %s", filename)
	}
	return d, nil
}

func (f *fixtureSource) DownloadURL(filename string) string {
	return f.baseURL + "/" + filename
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// fixture builds a source with two models: m1 (bin only) and m2
// (bin + coreml).
func fixture(baseURL string, m1bin, m2bin, m2coreml []byte) *fixtureSource {
	return &fixtureSource{
		baseURL: baseURL,
		files: []string{
			"ggml-m1.bin",
			"ggml-m2.bin",
			"ggml-m2-encoder.mlmodelc.zip",
			"README.md",
		},
		details: map[string]catalog.FileDetails{
			"ggml-m1.bin":                  {SizeBytes: int64(len(m1bin)), SHA256: sha256Hex(m1bin)},
			"ggml-m2.bin":                  {SizeBytes: int64(len(m2bin)), SHA256: sha256Hex(m2bin)},
			"ggml-m2-encoder.mlmodelc.zip": {SizeBytes: int64(len(m2coreml)), SHA256: sha256Hex(m2coreml)},
		},
	}
}

func TestColdStartWritesCatalog(t *testing.T) {
	dir := t.TempDir()
	src := fixture("http://unused", []byte("m1-bin"), []byte("m2-bin"), []byte("m2-coreml"))

	m, err := New(context.Background(), Options{ModelDir: dir, Source: src})
	require.NoError(t, err)

	// models.json appeared with both entries and the fixture's metadata.
	written, err := readCatalog(filepath.Join(dir, CatalogFilename))
	require.NoError(t, err)
	require.Len(t, written, 2)

	m1 := written["m1"]
	assert.Equal(t, "ggml-m1.bin", m1.Bin.Filename)
	assert.Equal(t, sha256Hex([]byte("m1-bin")), m1.Bin.SHA256)
	assert.Equal(t, int64(6), m1.Bin.SizeBytes)
	assert.Nil(t, m1.CoreML)

	m2 := written["m2"]
	require.NotNil(t, m2.CoreML)
	assert.Equal(t, "ggml-m2-encoder.mlmodelc.zip", m2.CoreML.Filename)
	assert.Equal(t, sha256Hex([]byte("m2-coreml")), m2.CoreML.SHA256)

	assert.ElementsMatch(t, []string{"m1", "m2"}, m.Models())
}

func TestCatalogRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, CatalogFilename)

	coreml := &Asset{Filename: "ggml-x-encoder.mlmodelc.zip", URL: "u2", SizeBytes: 2, SHA256: sha256Hex([]byte("b"))}
	orig := Catalog{
		"x": {Bin: Asset{Filename: "ggml-x.bin", URL: "u1", SizeBytes: 1, SHA256: sha256Hex([]byte("a"))}, CoreML: coreml},
	}
	require.NoError(t, writeCatalog(path, orig))

	got, err := readCatalog(path)
	require.NoError(t, err)
	assert.Equal(t, orig, got)
}

func TestValidLocalCatalogUsedWithoutRefresh(t *testing.T) {
	dir := t.TempDir()
	valid := Catalog{
		"m1": {Bin: Asset{Filename: "ggml-m1.bin", URL: "u", SizeBytes: 10, SHA256: sha256Hex([]byte("x"))}},
	}
	require.NoError(t, writeCatalog(filepath.Join(dir, CatalogFilename), valid))

	// A source that always fails proves the local catalog was preferred.
	src := &fixtureSource{listErr: errors.New("offline")}
	m, err := New(context.Background(), Options{ModelDir: dir, Source: src})
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, m.Models())
}

func TestRefreshFallsBackToValidLocalCatalog(t *testing.T) {
	dir := t.TempDir()
	valid := Catalog{
		"m1": {Bin: Asset{Filename: "ggml-m1.bin", URL: "u", SizeBytes: 10, SHA256: sha256Hex([]byte("x"))}},
	}
	require.NoError(t, writeCatalog(filepath.Join(dir, CatalogFilename), valid))

	src := &fixtureSource{listErr: errors.New("offline")}
	m, err := New(context.Background(), Options{ModelDir: dir, Source: src, RefreshCatalog: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, m.Models())
}

func TestNoCatalogAnywhereFails(t *testing.T) {
	dir := t.TempDir()
	src := &fixtureSource{listErr: errors.New("offline")}
	_, err := New(context.Background(), Options{ModelDir: dir, Source: src})
	assert.ErrorIs(t, err, ErrCatalogUnavailable)
}

func TestCorruptCatalogIsDeletedAndRefetched(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, CatalogFilename)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	src := fixture("http://unused", []byte("m1-bin"), []byte("m2-bin"), []byte("m2-coreml"))
	m, err := New(context.Background(), Options{ModelDir: dir, Source: src})
	require.NoError(t, err)
	assert.Len(t, m.Models(), 2)

	got, err := readCatalog(path)
	require.NoError(t, err)
	assert.True(t, got.Valid())
}

func TestSelectUnknownModel(t *testing.T) {
	dir := t.TempDir()
	src := fixture("http://unused", []byte("m1-bin"), []byte("m2-bin"), []byte("m2-coreml"))
	m, err := New(context.Background(), Options{ModelDir: dir, Source: src})
	require.NoError(t, err)

	_, err = m.Select(context.Background(), "nope", true)
	assert.ErrorIs(t, err, ErrUnknownModel)
}

func TestSelectDownloadsAndVerifies(t *testing.T) {
	m1bin := []byte("m1 model contents")

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ggml-m1.bin" {
			w.Write(m1bin)
			return
		}
		http.NotFound(w, r)
	}))
	defer ts.Close()

	dir := t.TempDir()
	src := fixture(ts.URL, m1bin, []byte("m2-bin"), []byte("m2-coreml"))
	m, err := New(context.Background(), Options{ModelDir: dir, Source: src})
	require.NoError(t, err)

	path, err := m.Select(context.Background(), "m1", true)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "ggml-m1.bin"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, m1bin, data)
}

func TestSelectIntegrityFailureIsNotSilentlyRepaired(t *testing.T) {
	dir := t.TempDir()
	src := fixture("http://unused", []byte("m1-bin"), []byte("m2-bin"), []byte("m2-coreml"))
	m, err := New(context.Background(), Options{ModelDir: dir, Source: src})
	require.NoError(t, err)

	// Pre-place a bin whose hash does not match the catalog.
	bad := filepath.Join(dir, "ggml-m1.bin")
	require.NoError(t, os.WriteFile(bad, []byte("corrupted"), 0o644))

	_, err = m.Select(context.Background(), "m1", true)
	assert.ErrorIs(t, err, ErrIntegrityFailed)

	// The corrupted file is still there: no silent replacement.
	data, err := os.ReadFile(bad)
	require.NoError(t, err)
	assert.Equal(t, []byte("corrupted"), data)
}

func TestSelectDeclinedDownload(t *testing.T) {
	dir := t.TempDir()
	src := fixture("http://unused", []byte("m1-bin"), []byte("m2-bin"), []byte("m2-coreml"))
	m, err := New(context.Background(), Options{
		ModelDir: dir,
		Source:   src,
		Prompter: declineAll{},
	})
	require.NoError(t, err)

	_, err = m.Select(context.Background(), "m1", false)
	assert.ErrorIs(t, err, ErrDeclined)
}

type declineAll struct{}

func (declineAll) Confirm(string, bool) bool { return false }
