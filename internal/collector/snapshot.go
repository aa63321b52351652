package collector

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// loadSnapshot reads a JSON snapshot file into dst. A missing or corrupt
// file leaves dst untouched and returns ok=false; the collector then starts
// from an empty prior snapshot.
func loadSnapshot(path string, dst any) (ok bool, err error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("collector: read snapshot %q: %w", path, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return false, nil
	}
	return true, nil
}

// saveSnapshot writes src as JSON to path atomically (temp file + rename).
func saveSnapshot(path string, src any) error {
	data, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("collector: marshal snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("collector: create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("collector: write temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("collector: close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("collector: rename snapshot: %w", err)
	}
	return nil
}
