package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"annotator/internal/safeio"
)

// FileStore writes one file per id under a root directory. Ids are
// path-escaped, so an id can never name a file outside the root.
type FileStore struct {
	root string
}

func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("snapshot dir is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.root, url.PathEscape(id)+".snap")
}

func (s *FileStore) Put(_ context.Context, id, content string) error {
	id, err := checkID(id)
	if err != nil {
		return err
	}
	return safeio.WriteFile(s.path(id), []byte(content), 0o644)
}

func (s *FileStore) Get(_ context.Context, id string) (string, error) {
	id, err := checkID(id)
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s *FileStore) Delete(_ context.Context, id string) error {
	id, err := checkID(id)
	if err != nil {
		return err
	}
	err = os.Remove(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	return err
}
