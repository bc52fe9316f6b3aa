package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/c360studio/defcheck/rules"
)

// Format is a catalog file encoding.
type Format string

// Supported formats.
const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported catalog file extension %q", filepath.Ext(path))
	}
}

// ConfigError reports a malformed catalog.
type ConfigError struct {
	Source string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("catalog %s: %v", e.Source, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// IsConfigError reports whether err is or wraps a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// fileRule is the on-disk rule entry. Enabled defaults to true.
type fileRule struct {
	Code        string         `json:"code" yaml:"code"`
	Category    rules.Category `json:"category" yaml:"category"`
	Severity    rules.Severity `json:"severity" yaml:"severity"`
	Weight      float64        `json:"weight" yaml:"weight"`
	Enabled     *bool          `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Suggestion  string         `json:"suggestion,omitempty" yaml:"suggestion,omitempty"`
}

// File is the catalog file layout.
type File struct {
	Version  string             `json:"version" yaml:"version"`
	Rules    []fileRule         `json:"rules" yaml:"rules"`
	Profiles map[string]Profile `json:"profiles,omitempty" yaml:"profiles,omitempty"`
}

// Parse decodes a catalog document. Unknown fields are rejected.
func Parse(data []byte, format Format, source string) (*Snapshot, error) {
	var f File
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil {
			return nil, &ConfigError{Source: source, Err: fmt.Errorf("decode yaml: %w", err)}
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&f); err != nil {
			return nil, &ConfigError{Source: source, Err: fmt.Errorf("decode json: %w", err)}
		}
	default:
		return nil, &ConfigError{Source: source, Err: fmt.Errorf("unsupported format %q", format)}
	}

	if f.Version == "" {
		return nil, &ConfigError{Source: source, Err: errors.New("version is required")}
	}
	if !semver.IsValid("v" + strings.TrimPrefix(f.Version, "v")) {
		return nil, &ConfigError{Source: source, Err: fmt.Errorf("version %q is not semantic", f.Version)}
	}

	defs := make([]rules.Definition, 0, len(f.Rules))
	for _, r := range f.Rules {
		enabled := true
		if r.Enabled != nil {
			enabled = *r.Enabled
		}
		defs = append(defs, rules.Definition{
			Code:        strings.TrimSpace(r.Code),
			Category:    r.Category,
			Severity:    r.Severity,
			Weight:      r.Weight,
			Enabled:     enabled,
			Description: r.Description,
			Suggestion:  r.Suggestion,
		})
	}

	snap, err := NewSnapshot(f.Version, defs, f.Profiles)
	if err != nil {
		return nil, &ConfigError{Source: source, Err: err}
	}
	snap.source = source
	return snap, nil
}

// LoadFile reads and parses the catalog at path.
func LoadFile(path string) (*Snapshot, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, &ConfigError{Source: path, Err: err}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data, format, path)
}
