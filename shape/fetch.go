package shape

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// ErrFetch indicates a shape download failure.
var ErrFetch = errors.New("shape fetch")

const cacheIndexName = "cache.json"

// cacheEntry records the validators for one cached URL.
type cacheEntry struct {
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
	Path         string `json:"path"`
}

// Fetcher downloads shape files into a cache directory, consulting
// ETag and Last-Modified so unchanged files are not re-downloaded.
// Cached content is keyed by URL in <dir>/cache.json.
type Fetcher struct {
	dir    string
	client *http.Client
}

// NewFetcher returns a fetcher writing to dir. client may be nil for a
// default with a 30 second timeout.
func NewFetcher(dir string, client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	return &Fetcher{dir: dir, client: client}
}

// Fetch downloads the SHACL and context files for a shape and returns
// the local paths. The mapping file is authored locally, not fetched.
func (f *Fetcher) Fetch(ctx context.Context, name, shaclURL, contextURL string) (shaclFile, contextFile string, err error) {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrFetch, err)
	}

	index, err := f.readIndex()
	if err != nil {
		return "", "", err
	}

	shaclFile, err = f.fetchOne(ctx, index, shaclURL, name+"_SHACL.ttl")
	if err != nil {
		return "", "", err
	}

	contextFile, err = f.fetchOne(ctx, index, contextURL, name+"_context.json")
	if err != nil {
		return "", "", err
	}

	if err := f.writeIndex(index); err != nil {
		return "", "", err
	}

	return shaclFile, contextFile, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, index map[string]cacheEntry, rawURL, filename string) (string, error) {
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrFetch, rawURL, err)
	}

	dest := filepath.Join(f.dir, filename)
	entry, cached := index[rawURL]

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFetch, err)
	}

	if cached {
		if _, statErr := os.Stat(entry.Path); statErr == nil {
			if entry.ETag != "" {
				req.Header.Set("If-None-Match", entry.ETag)
			}

			if entry.LastModified != "" {
				req.Header.Set("If-Modified-Since", entry.LastModified)
			}
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrFetch, rawURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return entry.Path, nil

	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("%w: %s: status %s", ErrFetch, rawURL, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrFetch, rawURL, err)
	}

	if err := os.WriteFile(dest, body, 0o644); err != nil {
		return "", fmt.Errorf("%w: %w", ErrFetch, err)
	}

	index[rawURL] = cacheEntry{
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		Path:         dest,
	}

	return dest, nil
}

func (f *Fetcher) readIndex() (map[string]cacheEntry, error) {
	index := make(map[string]cacheEntry)

	data, err := os.ReadFile(filepath.Join(f.dir, cacheIndexName))
	if os.IsNotExist(err) {
		return index, nil
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("%w: corrupt %s: %w", ErrFetch, cacheIndexName, err)
	}

	return index, nil
}

func (f *Fetcher) writeIndex(index map[string]cacheEntry) error {
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFetch, err)
	}

	if err := os.WriteFile(filepath.Join(f.dir, cacheIndexName), data, 0o644); err != nil {
		return fmt.Errorf("%w: %w", ErrFetch, err)
	}

	return nil
}
