// Package persist reads and writes whole JSON documents on local disk.
// Writes go to a temp file in the same directory which is then renamed over
// the target, so readers only ever see a complete document.
package persist

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// ReadJSON decodes the document at path into v. found is false when the file
// does not exist; any other failure is returned as an error.
func ReadJSON(path string, v any) (found bool, err error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ReadJSON: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("ReadJSON: %s: %w", path, err)
	}
	return true, nil
}

// WriteJSON atomically replaces the document at path with v. The write is
// fsynced before the rename.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("WriteJSON: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("WriteJSON: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("WriteJSON: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// No-op after a successful rename.
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("WriteJSON: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("WriteJSON: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("WriteJSON: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("WriteJSON: %w", err)
	}
	return nil
}
