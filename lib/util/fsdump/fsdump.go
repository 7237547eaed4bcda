// Package fsdump writes captured documents to a directory for offline inspection.
package fsdump

import (
	"log/slog"
	"os"
	"path/filepath"
)

// Directory writes each document to its own file under a directory.
type Directory struct {
	path string
}

// New prepares dir, creating it when missing. Unlike a scratch output it keeps previous
// captures so pages from several passes can be compared.
func New(dir string) (Directory, error) {
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return Directory{}, err
	}
	return Directory{path: dir}, nil
}

func (d Directory) Path() string {
	return d.path
}

func (d Directory) Write(id string, contents string) {
	err := os.WriteFile(filepath.Join(d.path, filepath.Base(id)), []byte(contents), 0o600)
	if err != nil {
		slog.Warn("failed to write captured document", "id", id, "err", err)
	}
}
