// Package exclusion tracks collection ids that must never be collected
// again. The list is one-way: ids are appended, never removed.
package exclusion

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// List is a file-backed, append-only set of excluded collection ids.
// Methods are safe for concurrent use.
type List struct {
	mu   sync.Mutex
	path string
	ids  map[string]bool
}

// Load reads the exclusion file at path, one id per line. A missing
// file is an empty list.
func Load(path string) (*List, error) {
	l := &List{path: path, ids: make(map[string]bool)}

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open exclusion list: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		id := strings.TrimSpace(scanner.Text())
		if id != "" {
			l.ids[id] = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read exclusion list: %w", err)
	}
	return l, nil
}

// Contains reports whether id is excluded.
func (l *List) Contains(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ids[id]
}

// Append adds id to the list and appends it to the backing file. Adding
// an id that is already present is a no-op.
func (l *List) Append(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ids[id] {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create exclusion dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open exclusion list: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintln(f, id); err != nil {
		return fmt.Errorf("append exclusion: %w", err)
	}
	l.ids[id] = true
	return nil
}

// Len returns the number of excluded ids.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ids)
}
