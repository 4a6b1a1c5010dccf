// Package file watches local Markdown files: a single document, or a
// directory whose *.md files are the tracked items.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"annotator/internal/common/fault"
	"annotator/internal/safeio"
	"annotator/internal/tracker"
)

// Document is one local file. It implements source.Document.
type Document struct {
	Path string
}

func (d Document) Content(context.Context) (string, error) {
	b, err := os.ReadFile(d.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fault.NotFound("read document", d.Path, err)
	}
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d Document) SetContent(_ context.Context, content string) error {
	return safeio.WriteFile(d.Path, []byte(content), 0o644)
}

// Dir tracks every *.md file under Root. The item id is the slash-separated
// path relative to Root and the title is the file name without extension.
// DescriptionFile, when set, is read by Description and is not an item.
type Dir struct {
	Root            string
	DescriptionFile string
}

func (d Dir) ListItems(context.Context) ([]tracker.Snapshot, error) {
	var out []tracker.Snapshot
	err := filepath.WalkDir(d.Root, func(path string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := e.Name()
		if e.IsDir() {
			if path != d.Root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(name), ".md") || strings.HasPrefix(name, ".") {
			return nil
		}
		rel, err := filepath.Rel(d.Root, path)
		if err != nil {
			return err
		}
		id := filepath.ToSlash(rel)
		if d.DescriptionFile != "" && id == filepath.ToSlash(d.DescriptionFile) {
			return nil
		}
		info, err := e.Info()
		if err != nil {
			return err
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		out = append(out, tracker.Snapshot{
			ID:         id,
			Title:      strings.TrimSuffix(name, filepath.Ext(name)),
			Body:       string(b),
			ModifiedAt: info.ModTime(),
		})
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fault.NotFound("list items", d.Root, err)
	}
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d Dir) UpdateBody(_ context.Context, id, _ string, body string) error {
	path, err := d.resolve(id)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return fault.NotFound("update item body", id, err)
	}
	return safeio.WriteFile(path, []byte(body), 0o644)
}

func (d Dir) Description(context.Context) (string, error) {
	if d.DescriptionFile == "" {
		return "", nil
	}
	root, err := safeio.NewRoot(d.Root)
	if err != nil {
		return "", err
	}
	b, err := root.ReadFile(d.DescriptionFile)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// resolve maps an item id to a path, refusing ids that leave Root.
func (d Dir) resolve(id string) (string, error) {
	root, err := safeio.NewRoot(d.Root)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fault.NotFound("resolve item", id, err)
	}
	if err != nil {
		return "", err
	}
	path, err := root.Resolve(id)
	if errors.Is(err, safeio.ErrOutsideRoot) {
		return "", fault.NotFound("resolve item", id, err)
	}
	return path, err
}
