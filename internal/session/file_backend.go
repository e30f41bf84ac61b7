package session

import (
	"context"
	"fmt"

	"github.com/webmcp/relay/internal/persist"
)

// FileName is the document name used inside the data directory.
const FileName = "sessions.json"

type fileDoc struct {
	Sessions map[string][]string `json:"sessions"`
}

// FileBackend keeps the whole session map in one JSON document.
type FileBackend struct {
	path string
}

func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Load returns an empty map when the file does not exist.
func (b *FileBackend) Load(_ context.Context) (map[string][]string, error) {
	var doc fileDoc
	found, err := persist.ReadJSON(b.path, &doc)
	if err != nil {
		return nil, fmt.Errorf("FileBackend.Load: %w", err)
	}
	if !found || doc.Sessions == nil {
		return map[string][]string{}, nil
	}
	return doc.Sessions, nil
}

func (b *FileBackend) Save(_ context.Context, snap Snapshot) error {
	if err := persist.WriteJSON(b.path, fileDoc{Sessions: snap.Sessions}); err != nil {
		return fmt.Errorf("FileBackend.Save: %w", err)
	}
	return nil
}
