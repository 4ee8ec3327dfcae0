package imagegen

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Cache provides file-based caching for rendered PNGs such as legends.
type Cache struct {
	dir    string
	maxAge time.Duration
}

// NewCache creates a cache in dir. Entries older than maxAge are treated as
// missing. A cache that cannot create its directory still works; every Get
// misses and Set returns the error.
func NewCache(dir string, maxAge time.Duration, log *zap.Logger) *Cache {
	if err := os.MkdirAll(dir, 0o755); err != nil && log != nil {
		log.Warn("could not create image cache directory", zap.String("dir", dir), zap.Error(err))
	}
	return &Cache{dir: dir, maxAge: maxAge}
}

// path returns the cache file path for key. Characters outside
// [A-Za-z0-9._-] are replaced so keys cannot escape the cache directory.
func (c *Cache) path(key string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, key)
	return filepath.Join(c.dir, fmt.Sprintf("%s.png", safe))
}

// Get retrieves a cached image if it exists and is not stale.
func (c *Cache) Get(key string) ([]byte, bool) {
	path := c.path(key)
	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if c.maxAge > 0 && time.Since(info.ModTime()) > c.maxAge {
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return data, true
}

// Set stores an image in the cache.
func (c *Cache) Set(key string, data []byte) error {
	tmp, err := os.CreateTemp(c.dir, "tmp-*.png")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), c.path(key))
}

// GetOrRender returns the cached image for key, rendering and storing it on
// a miss. A failed store is not an error.
func (c *Cache) GetOrRender(key string, render func() ([]byte, error)) ([]byte, error) {
	if data, ok := c.Get(key); ok {
		return data, nil
	}
	data, err := render()
	if err != nil {
		return nil, err
	}
	_ = c.Set(key, data)
	return data, nil
}
