package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"sync"
)

// FilePerms restricts the credentials file to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the credentials directory.
const DirPerms = 0o700

// fileFormat is the on-disk document.
type fileFormat struct {
	Entries map[string]string `json:"entries"`
}

// FileStore keeps every entry in one JSON document, rewritten atomically
// (temp file, fsync, rename) on each mutation. The mutex makes each
// read-modify-write atomic within the process. Never logs values.
type FileStore struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewFileStore returns a FileStore backed by path. The file is created on
// the first write.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}

	return &FileStore{path: path, logger: logger}
}

func (s *FileStore) Get(_ context.Context, key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		s.logger.Warn("credstore: reading credentials file, treating as absent",
			slog.String("path", s.path),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)

		return "", false
	}

	v, ok := entries[key]

	return v, ok
}

func (s *FileStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return &Error{Op: "set", Key: key, Backend: "file", Err: err}
	}

	entries[key] = value

	if err := s.save(entries); err != nil {
		return &Error{Op: "set", Key: key, Backend: "file", Err: err}
	}

	return nil
}

func (s *FileStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.removeLocked(key)
}

// Clear rewrites the document once with every managed key dropped.
func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load()
	if err != nil {
		return &Error{Op: "clear", Backend: "file", Err: err}
	}

	changed := false

	for _, key := range ManagedKeys {
		if _, ok := entries[key]; ok {
			delete(entries, key)
			changed = true
		}
	}

	if !changed {
		return nil
	}

	if err := s.save(entries); err != nil {
		return &Error{Op: "clear", Backend: "file", Err: err}
	}

	s.logger.Debug("credstore: cleared managed keys", slog.String("path", s.path))

	return nil
}

func (s *FileStore) removeLocked(key string) error {
	entries, err := s.load()
	if err != nil {
		return &Error{Op: "remove", Key: key, Backend: "file", Err: err}
	}

	if _, ok := entries[key]; !ok {
		return nil
	}

	delete(entries, key)

	if err := s.save(entries); err != nil {
		return &Error{Op: "remove", Key: key, Backend: "file", Err: err}
	}

	return nil
}

// load reads the document. A missing file is an empty store.
func (s *FileStore) load() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]string), nil
	}

	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.path, err)
	}

	var doc fileFormat
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", s.path, err)
	}

	entries := make(map[string]string, len(doc.Entries))
	maps.Copy(entries, doc.Entries)

	return entries, nil
}

// save writes the document atomically with 0600 permissions.
func (s *FileStore) save(entries map[string]string) error {
	data, err := json.MarshalIndent(fileFormat{Entries: entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding: %w", err)
	}

	dir := filepath.Dir(s.path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("creating directory %s: %w", dir, mkErr)
	}

	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(dir, ".credentials-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("renaming: %w", err)
	}

	success = true

	return nil
}
