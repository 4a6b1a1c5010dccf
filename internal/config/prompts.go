package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"annotator/internal/common/fault"
)

// Prompt file names inside the prompt directory.
const (
	UpdatedPromptFile  = "assist_updated_item.txt"
	CreatedPromptFile  = "assist_created_item.txt"
	ItemFormatFile     = "item_format.txt"
	DocumentPromptFile = "assist_document.txt"
)

// Prompts holds the system prompts and templates sent to the model.
type Prompts struct {
	Updated    string
	Created    string
	ItemFormat string
	Document   string
}

// LoadPrompts reads the files a mode needs. Multi-item modes need the
// updated, created and format files; single-document modes need the
// document prompt. A missing or empty file is a config error.
func LoadPrompts(dir string, multiItem bool) (Prompts, error) {
	var p Prompts
	targets := map[string]*string{DocumentPromptFile: &p.Document}
	if multiItem {
		targets = map[string]*string{
			UpdatedPromptFile: &p.Updated,
			CreatedPromptFile: &p.Created,
			ItemFormatFile:    &p.ItemFormat,
		}
	}
	for name, dst := range targets {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			return Prompts{}, fault.Config("load prompts", fmt.Errorf("%s not found in %s", name, dir))
		}
		if err != nil {
			return Prompts{}, fault.Config("load prompts", err)
		}
		text := strings.TrimSpace(string(b))
		if text == "" {
			return Prompts{}, fault.Config("load prompts", fmt.Errorf("%s is empty", name))
		}
		*dst = text
	}
	return p, nil
}
