package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FolderStore writes documents into a local directory. The file name is
// derived from the document title and key, so archiving a record twice
// overwrites the same file.
type FolderStore struct {
	dir string
}

// NewFolderStore creates dir if needed.
func NewFolderStore(dir string) (*FolderStore, error) {
	if dir == "" {
		return nil, errors.New("archive directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating archive directory %s: %w", dir, err)
	}
	return &FolderStore{dir: dir}, nil
}

// Put writes doc and returns its file name relative to the folder.
func (s *FolderStore) Put(ctx context.Context, doc Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key := safeName(doc.Key)
	if key == "" {
		return "", errors.New("document key is empty")
	}

	name := key + ".md"
	if title := safeName(strings.TrimSuffix(doc.Name, ".md")); title != "" && title != key {
		name = title + " (" + key + ").md"
	}

	tmp, err := os.CreateTemp(s.dir, ".note-*.tmp")
	if err != nil {
		return "", fmt.Errorf("creating temp note: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(doc.Body); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing note %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing note %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return "", fmt.Errorf("placing note %s: %w", name, err)
	}
	return name, nil
}
