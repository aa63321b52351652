// Package logtail reads newly appended lines from monitored log files,
// tracking per-file byte offsets across agent restarts and handling log
// rotation.
package logtail

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// OffsetStore persists the last-read byte offset of each monitored file in a
// single JSON document. All methods are safe for concurrent use.
type OffsetStore struct {
	mu      sync.Mutex
	path    string
	offsets map[string]int64
	logger  *slog.Logger
}

// NewOffsetStore loads the offset file at path, creating an empty store when
// the file does not exist. A corrupt file is treated as empty so the agent
// can start; the damage is logged and the file is rewritten on the next Save.
func NewOffsetStore(path string, logger *slog.Logger) (*OffsetStore, error) {
	s := &OffsetStore{
		path:    path,
		offsets: make(map[string]int64),
		logger:  logger,
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("logtail: read offsets %q: %w", path, err)
	}

	if err := json.Unmarshal(data, &s.offsets); err != nil {
		logger.Warn("offset file corrupt, starting from scratch",
			slog.String("path", path),
			slog.Any("error", err))
		s.offsets = make(map[string]int64)
	}
	return s, nil
}

// Get returns the stored offset for file, or 0 when none is recorded.
func (s *OffsetStore) Get(file string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offsets[file]
}

// Set records the offset for file in memory. Call Save to persist.
func (s *OffsetStore) Set(file string, offset int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offsets[file] = offset
}

// Reset removes the recorded offset for file, so the next read starts at the
// beginning.
func (s *OffsetStore) Reset(file string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.offsets, file)
}

// ResetAll discards every recorded offset.
func (s *OffsetStore) ResetAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offsets = make(map[string]int64)
}

// Save writes the offset map to disk atomically: the document is written to
// a temp file in the same directory and renamed over the target, so a crash
// mid-write never leaves a torn file.
func (s *OffsetStore) Save() error {
	s.mu.Lock()
	data, err := json.MarshalIndent(s.offsets, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("logtail: marshal offsets: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".offsets-*.tmp")
	if err != nil {
		return fmt.Errorf("logtail: create temp offsets file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("logtail: write temp offsets file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("logtail: close temp offsets file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("logtail: rename offsets file: %w", err)
	}
	return nil
}
