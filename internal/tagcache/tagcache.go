// Package tagcache keeps a small local JSON cache of tag name to tag id
// mappings so repeated runs do not re-resolve names against the
// database.
package tagcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Cache is a name-keyed tag id cache backed by one JSON file. Methods
// are safe for concurrent use.
type Cache struct {
	mu   sync.Mutex
	path string
	tags map[string]string
}

// Load reads the cache file at path, creating an empty cache when the
// file does not exist yet.
func Load(path string) (*Cache, error) {
	c := &Cache{path: path, tags: make(map[string]string)}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read tag cache: %w", err)
	}
	if len(data) == 0 {
		return c, nil
	}
	if err := json.Unmarshal(data, &c.tags); err != nil {
		return nil, fmt.Errorf("decode tag cache: %w", err)
	}
	return c, nil
}

// Lookup returns the cached tag id for name.
func (c *Cache) Lookup(name string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.tags[name]
	return id, ok
}

// Update stores the mapping and persists the whole cache file.
func (c *Cache) Update(name, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tags[name] = id
	return c.persistLocked()
}

// Len returns the number of cached tags.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tags)
}

func (c *Cache) persistLocked() error {
	data, err := json.MarshalIndent(c.tags, "", "  ")
	if err != nil {
		return fmt.Errorf("encode tag cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create tag cache dir: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o644); err != nil {
		return fmt.Errorf("write tag cache: %w", err)
	}
	return nil
}
