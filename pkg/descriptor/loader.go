package descriptor

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"errors"

	"gopkg.in/yaml.v3"
)

// Load reads a descriptor file (YAML or JSON), validates it, and builds the
// frozen in-memory graph.
func Load(path string) (*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read descriptor: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	case ".json":
		return ParseJSON(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// ParseYAML parses and validates a YAML descriptor document.
func ParseYAML(data []byte) (*Descriptor, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse descriptor yaml: %w", err)
	}
	return build(raw)
}

// ParseJSON parses and validates a JSON descriptor document.
func ParseJSON(data []byte) (*Descriptor, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse descriptor json: %w", err)
	}
	return build(raw)
}

// normalize round-trips the document through encoding/json so the schema
// validator sees canonical JSON types (float64 numbers, map[string]any)
// regardless of the source format.
func normalize(raw map[string]any) (map[string]any, error) {
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("descriptor is not JSON-representable: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(buf, &out); err != nil {
		return nil, err
	}
	return out, nil
}
