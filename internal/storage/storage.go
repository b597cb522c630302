// Package storage persists the per-source cursor in a flat key/value text
// file, one "key value" pair per line. It is not safe for concurrent writers;
// the run-level lock acquired at startup serializes processes.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type entry struct {
	key   string
	value int64
}

// FileStore is a cursor store backed by a single text file that is fully
// rewritten on every Set. Line order is preserved; new keys are appended.
type FileStore struct {
	path string
}

// NewFileStore creates the storage file (and its parent directories) if it
// does not exist yet.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("storage path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create storage file: %w", err)
	}
	file.Close()
	return &FileStore{path: path}, nil
}

// Get returns the stored timestamp for key, reporting whether an entry
// exists.
func (s *FileStore) Get(key string) (int64, bool, error) {
	entries, err := s.read()
	if err != nil {
		return 0, false, err
	}
	for _, e := range entries {
		if e.key == key {
			return e.value, true, nil
		}
	}
	return 0, false, nil
}

// Set stores ts under key and rewrites the whole file.
func (s *FileStore) Set(key string, ts int64) error {
	if strings.ContainsAny(key, " \t\n") {
		return fmt.Errorf("key %q must not contain whitespace", key)
	}
	entries, err := s.read()
	if err != nil {
		return err
	}
	updated := false
	for i := range entries {
		if entries[i].key == key {
			entries[i].value = ts
			updated = true
			break
		}
	}
	if !updated {
		entries = append(entries, entry{key: key, value: ts})
	}

	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s %d\n", e.key, e.value)
	}
	if err := os.WriteFile(s.path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write storage file %s: %w", s.path, err)
	}
	return nil
}

func (s *FileStore) read() ([]entry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read storage file %s: %w", s.path, err)
	}
	var entries []entry
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return nil, fmt.Errorf("malformed storage line %q in %s", line, s.path)
		}
		value, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed timestamp in storage line %q: %w", line, err)
		}
		entries = append(entries, entry{key: fields[0], value: value})
	}
	return entries, nil
}
