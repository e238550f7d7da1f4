package graph

import (
	"fmt"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Loader loads the raw text of a SQL file.
type Loader interface {
	Load(path string) (string, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(path string) (string, error)

// Load calls f(path).
func (f LoaderFunc) Load(path string) (string, error) {
	return f(path)
}

// FileLoader reads files from disk as-is. Line breaks are kept.
type FileLoader struct{}

// Load reads the whole file at path.
func (FileLoader) Load(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// CachedLoader memoizes another Loader by cleaned path.
// A procedure reached from several branches is read from disk once.
type CachedLoader struct {
	next  Loader
	cache *lru.Cache[string, string]
}

// NewCachedLoader wraps next with an LRU cache holding up to size files.
func NewCachedLoader(next Loader, size int) (*CachedLoader, error) {
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create text cache: %w", err)
	}
	return &CachedLoader{next: next, cache: cache}, nil
}

// Load returns the cached text for path, loading it on a miss.
// Failed loads are not cached.
func (c *CachedLoader) Load(path string) (string, error) {
	key := filepath.Clean(path)
	if text, ok := c.cache.Get(key); ok {
		return text, nil
	}
	text, err := c.next.Load(path)
	if err != nil {
		return "", err
	}
	c.cache.Add(key, text)
	return text, nil
}

// Len returns the number of cached files.
func (c *CachedLoader) Len() int {
	return c.cache.Len()
}
