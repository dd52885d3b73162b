package features

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
)

// Fetcher retrieves a layer's source document by its relative URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// StatusError is returned when a source answers with a non-OK status.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
}

// DirFetcher reads sources from a local directory.
type DirFetcher struct {
	Root string
}

// Fetch reads url relative to the root. Paths escaping the root are rejected.
func (d DirFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.Contains(url, "..") {
		return nil, fmt.Errorf("fetch %s: path escapes data dir", url)
	}
	clean := filepath.Clean("/" + filepath.FromSlash(url))
	data, err := os.ReadFile(filepath.Join(d.Root, clean))
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	return data, nil
}

// HTTPFetcher downloads sources relative to a base URL.
type HTTPFetcher struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPFetcher creates a fetcher with a bounded request timeout.
func NewHTTPFetcher(baseURL string) *HTTPFetcher {
	return &HTTPFetcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Fetch issues a GET; non-2xx answers are a *StatusError.
func (h *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	full := h.BaseURL + "/" + strings.TrimLeft(url, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: url, Status: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

// CachedFetcher keeps fetched documents in a ristretto cache for TTL, so
// invalidating a layer and reloading it does not hit the source again
// unless the entry expired.
type CachedFetcher struct {
	next  Fetcher
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewCachedFetcher wraps next with a cache bounded to maxBytes.
func NewCachedFetcher(next Fetcher, maxBytes int64, ttl time.Duration) (*CachedFetcher, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating fetch cache: %w", err)
	}
	return &CachedFetcher{next: next, cache: cache, ttl: ttl}, nil
}

// Fetch serves url from cache or the wrapped fetcher.
func (c *CachedFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if v, found := c.cache.Get(url); found {
		if data, ok := v.([]byte); ok {
			return data, nil
		}
	}
	data, err := c.next.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	c.cache.SetWithTTL(url, data, int64(len(data)), c.ttl)
	c.cache.Wait()
	return data, nil
}

// Purge drops one cached document.
func (c *CachedFetcher) Purge(url string) {
	c.cache.Del(url)
}

// Close releases the cache.
func (c *CachedFetcher) Close() {
	c.cache.Close()
}

// MapFetcher serves documents from memory and counts fetches per URL.
type MapFetcher struct {
	mu     sync.Mutex
	Docs   map[string][]byte
	counts map[string]int
}

// NewMapFetcher creates a fetcher over docs keyed by URL.
func NewMapFetcher(docs map[string][]byte) *MapFetcher {
	return &MapFetcher{Docs: docs, counts: map[string]int{}}
}

// Fetch returns the document for url or a 404 *StatusError.
func (m *MapFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[url]++
	data, ok := m.Docs[url]
	if !ok {
		return nil, &StatusError{URL: url, Status: http.StatusNotFound}
	}
	return data, nil
}

// Count returns how many times url was fetched.
func (m *MapFetcher) Count(url string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[url]
}
