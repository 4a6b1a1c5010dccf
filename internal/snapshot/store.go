// Package snapshot persists the last processed content of each tracked
// document so the next change can be diffed against it.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Store keeps one content string per document id.
type Store interface {
	Get(ctx context.Context, id string) (string, error)
	Put(ctx context.Context, id, content string) error
	Delete(ctx context.Context, id string) error
}

var ErrNotFound = errors.New("snapshot not found")

// DiffKey is the id under which the rendered diff for id is stored.
func DiffKey(id string) string { return id + ".diff" }

// GetOrEmpty returns the stored content, treating a missing id as empty.
func GetOrEmpty(ctx context.Context, s Store, id string) (string, error) {
	v, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return v, err
}

func checkID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("snapshot id is required")
	}
	return id, nil
}
