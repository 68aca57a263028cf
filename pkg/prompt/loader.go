package prompt

import (
	"os"
	"path/filepath"
	"strings"
)

// Loader reads prompt text files from a base directory.
type Loader struct {
	basePath string
}

func NewLoader(basePath string) *Loader {
	if basePath == "" {
		basePath = "prompts"
	}
	return &Loader{basePath: basePath}
}

// LoadPrompt reads <basePath>/<name>.txt.
func (l *Loader) LoadPrompt(name string) (string, error) {
	promptPath := filepath.Join(l.basePath, name+".txt")
	content, err := os.ReadFile(promptPath)
	if err != nil {
		return "", err
	}
	return string(content), nil
}

// LoadPromptOr returns the fallback when the prompt file is missing or empty.
func (l *Loader) LoadPromptOr(name, fallback string) string {
	content, err := l.LoadPrompt(name)
	if err != nil || strings.TrimSpace(content) == "" {
		return fallback
	}
	return content
}

// ListPrompts lists available prompt names (without extension).
func (l *Loader) ListPrompts() []string {
	entries, err := os.ReadDir(l.basePath)
	if err != nil {
		return nil
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".txt"))
	}
	return names
}
