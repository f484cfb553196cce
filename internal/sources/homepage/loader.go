// Package homepage imports bookmarks from a Homepage dashboard
// (gethomepage.dev) bookmarks.yaml.
package homepage

import (
	"fmt"
	"io"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

var templateVar = regexp.MustCompile(`\{\{[^}]+\}\}`)

// Loader reads a Homepage bookmarks.yaml.
type Loader struct {
	filePath string
}

// NewLoader creates a loader for filePath.
func NewLoader(filePath string) *Loader {
	return &Loader{
		filePath: filePath,
	}
}

// Load reads and parses the file.
func (l *Loader) Load() (BookmarksConfig, error) {
	f, err := os.Open(l.filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read bookmarks file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes bookmarks.yaml from r.
func Parse(r io.Reader) (BookmarksConfig, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read bookmarks: %w", err)
	}

	// Homepage substitutes {{HOMEPAGE_VAR_...}} at runtime; we cannot.
	data = stripTemplateVariables(data)

	var config BookmarksConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse bookmarks yaml: %w", err)
	}
	return config, nil
}

// stripTemplateVariables replaces {{...}} with an empty YAML string.
func stripTemplateVariables(data []byte) []byte {
	return templateVar.ReplaceAll(data, []byte(`""`))
}
