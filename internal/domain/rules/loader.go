package rules

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// File is the on-disk shape of a rule list.
type File struct {
	Rules []Rule `yaml:"rules" toml:"rules"`
}

// LoadFile reads a rule list from a .yaml, .yml or .toml file. Unknown keys
// are rejected so a typo in a predicate name can't silently widen a rule.
func LoadFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRuleFile, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	case ".toml":
		return ParseTOML(data)
	default:
		return nil, fmt.Errorf("%w: unsupported extension %q", ErrRuleFile, filepath.Ext(path))
	}
}

// ParseYAML decodes a YAML rule list.
func ParseYAML(data []byte) ([]Rule, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: yaml: %v", ErrRuleFile, err)
	}
	return f.Rules, nil
}

// ParseTOML decodes a TOML rule list.
func ParseTOML(data []byte) ([]Rule, error) {
	var f File
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: toml: %v", ErrRuleFile, err)
	}
	return f.Rules, nil
}
