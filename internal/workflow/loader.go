package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// definitionFile is the on-disk layout of a definitions file.
type definitionFile struct {
	Workflows []Definition `json:"workflows" yaml:"workflows" toml:"workflows"`
}

// LoadDefinitions reads workflow definitions from the given files.
//
// The format is chosen by extension: .yaml/.yml, .toml or .json. Each file
// holds a top-level "workflows" list. Unknown YAML keys are rejected so that
// typos in step fields surface at startup.
func LoadDefinitions(paths ...string) ([]Definition, error) {
	var defs []Definition
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading workflow definitions %s: %w", p, err)
		}
		parsed, err := ParseDefinitions(filepath.Ext(p), data)
		if err != nil {
			return nil, fmt.Errorf("parsing workflow definitions %s: %w", p, err)
		}
		defs = append(defs, parsed...)
	}
	return defs, nil
}

// ParseDefinitions decodes definitions from data in the format named by ext.
func ParseDefinitions(ext string, data []byte) ([]Definition, error) {
	var file definitionFile

	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "yaml", "yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&file); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
		}
	case "toml":
		if _, err := toml.Decode(string(data), &file); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
		}
	case "json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&file); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported definition format %q", ErrInvalidDefinition, ext)
	}

	return file.Workflows, nil
}
