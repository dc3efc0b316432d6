package catalog

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"signalscribe/pkg/logger"
)

// HuggingFace scrapes a Hugging Face model repository: the tree page for
// the file listing, each file's blob page for its SHA-256, and a HEAD
// request against the resolve URL for its size. Only the SHA256 line and
// the Content-Length header are contract; the surrounding markup is not.
type HuggingFace struct {
	// RepoURL is the tree listing page, e.g.
	// https://huggingface.co/ggerganov/whisper.cpp/tree/main
	RepoURL string
	// ResolveURL is the direct-download base, e.g.
	// https://huggingface.co/ggerganov/whisper.cpp/resolve/main
	ResolveURL string

	Client *http.Client
}

// NewHuggingFace builds a source over the given repo tree and resolve URLs.
func NewHuggingFace(repoURL, resolveURL string) *HuggingFace {
	return &HuggingFace{
		RepoURL:    repoURL,
		ResolveURL: resolveURL,
		Client:     &http.Client{Timeout: 60 * time.Second},
	}
}

// ListFiles extracts artifact filenames from the repository tree page.
func (h *HuggingFace) ListFiles(ctx context.Context) ([]string, error) {
	doc, err := h.fetchDocument(ctx, h.RepoURL)
	if err != nil {
		return nil, fmt.Errorf("catalog: fetch listing: %w", err)
	}

	var files []string
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if !strings.Contains(href, "/blob/main/") || strings.HasSuffix(href, "/") {
			return
		}
		parts := strings.Split(href, "/")
		name := parts[len(parts)-1]
		if name == "" {
			return
		}
		if _, dup := seen[name]; dup {
			return
		}
		seen[name] = struct{}{}
		files = append(files, name)
	})

	if len(files) == 0 {
		return nil, fmt.Errorf("catalog: listing at %s contained no files", h.RepoURL)
	}
	return files, nil
}

// FileDetails scrapes the blob page for the SHA256 line and issues a HEAD
// request for the content length.
func (h *HuggingFace) FileDetails(ctx context.Context, filename string) (FileDetails, error) {
	var details FileDetails

	blobURL := strings.Replace(h.RepoURL, "/tree/", "/blob/", 1) + "/" + filename
	doc, err := h.fetchDocument(ctx, blobURL)
	if err != nil {
		return details, fmt.Errorf("catalog: fetch metadata for %s: %w", filename, err)
	}

	doc.Find("strong").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if !strings.Contains(sel.Text(), "SHA256:") {
			return true
		}
		line := sel.Parent().Text()
		if idx := strings.Index(line, ":"); idx >= 0 {
			details.SHA256 = strings.ToLower(strings.TrimSpace(line[idx+1:]))
		}
		return false
	})
	if details.SHA256 == "" {
		return details, fmt.Errorf("catalog: no SHA256 found for %s", filename)
	}

	size, err := h.downloadSize(ctx, h.DownloadURL(filename))
	if err != nil {
		return details, err
	}
	details.SizeBytes = size

	logger.Debug("fetched file details", "file", filename, "size", size)
	return details, nil
}

// DownloadURL returns the direct download URL for filename.
func (h *HuggingFace) DownloadURL(filename string) string {
	return h.ResolveURL + "/" + filename
}

// downloadSize reads Content-Length from a HEAD request.
func (h *HuggingFace) downloadSize(ctx context.Context, url string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, fmt.Errorf("catalog: head %s: %w", url, err)
	}
	resp, err := h.client().Do(req)
	if err != nil {
		return 0, fmt.Errorf("catalog: head %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("catalog: head %s: %s", url, resp.Status)
	}

	if cl := resp.Header.Get("Content-Length"); cl != "" {
		size, err := strconv.ParseInt(cl, 10, 64)
		if err == nil && size > 0 {
			return size, nil
		}
	}
	return 0, fmt.Errorf("catalog: no content length for %s", url)
}

func (h *HuggingFace) fetchDocument(ctx context.Context, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: %s", url, resp.Status)
	}
	return goquery.NewDocumentFromReader(resp.Body)
}

func (h *HuggingFace) client() *http.Client {
	if h.Client != nil {
		return h.Client
	}
	return http.DefaultClient
}
