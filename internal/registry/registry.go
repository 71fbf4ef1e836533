// Package registry loads the provider → feed URL mapping from the sources
// file. The file is re-read on every poll cycle, so edits take effect on the
// next cycle without a restart.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source is one monitored status feed.
type Source struct {
	Name string
	URL  string
}

// ConfigError reports a sources file that is missing, unreadable or invalid.
// Callers keep using the last mapping that loaded successfully.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("sources file %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// File is a sources file on disk. JSON and YAML (.yaml, .yml) are supported;
// both must be a flat mapping of name to URL.
type File struct {
	path string
}

// New returns a registry reading path.
func New(path string) *File {
	return &File{path: path}
}

// Path returns the sources file path.
func (f *File) Path() string {
	return f.path
}

// Load reads and validates the sources file. Sources are returned in
// document order. Entries with an invalid URL are kept; the scheduler fails
// them individually.
func (f *File) Load() ([]Source, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, &ConfigError{Path: f.path, Err: err}
	}

	var sources []Source
	switch strings.ToLower(filepath.Ext(f.path)) {
	case ".yaml", ".yml":
		sources, err = decodeYAML(data)
	default:
		sources, err = decodeJSON(data)
	}
	if err != nil {
		return nil, &ConfigError{Path: f.path, Err: err}
	}

	if err := Validate(sources); err != nil {
		return nil, &ConfigError{Path: f.path, Err: err}
	}
	return sources, nil
}

// Static is a fixed in-memory registry.
type Static []Source

// Load returns a copy of the sources after validating them.
func (s Static) Load() ([]Source, error) {
	if err := Validate(s); err != nil {
		return nil, &ConfigError{Path: "<static>", Err: err}
	}
	return append([]Source(nil), s...), nil
}

// Validate checks names are non-empty and unique. URLs are not checked
// here: a bad URL fails only its own source when polled (see [ValidateURL]).
// URLs may repeat across names.
func Validate(sources []Source) error {
	seen := make(map[string]struct{}, len(sources))
	for i, src := range sources {
		if strings.TrimSpace(src.Name) == "" {
			return fmt.Errorf("source[%d]: name is required", i)
		}
		if _, dup := seen[src.Name]; dup {
			return fmt.Errorf("source[%d]: duplicate name %q", i, src.Name)
		}
		seen[src.Name] = struct{}{}
	}
	return nil
}

// ValidateURL checks raw is an absolute http(s) URL with a host.
func ValidateURL(raw string) error {
	if raw == "" {
		return errors.New("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid url %q: missing host", raw)
	}
	return nil
}

// decodeJSON streams the top-level object so keys keep their document order
// and duplicate keys are detected rather than silently merged.
func decodeJSON(data []byte) ([]Source, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("file is empty")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("expected a JSON object of name to URL")
	}

	var sources []Source
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
		name := keyTok.(string)

		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("invalid JSON value for %q: %w", name, err)
		}
		u, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("value for %q must be a string URL", name)
		}
		sources = append(sources, Source{Name: name, URL: strings.TrimSpace(u)})
	}

	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after JSON object")
	}
	return sources, nil
}

// decodeYAML walks the mapping node directly so document order survives.
func decodeYAML(data []byte) ([]Source, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, errors.New("file is empty")
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, errors.New("expected a YAML mapping of name to URL")
	}

	sources := make([]Source, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i], root.Content[i+1]
		if value.Kind != yaml.ScalarNode || value.Tag != "!!str" {
			return nil, fmt.Errorf("line %d: value for %q must be a string URL", value.Line, key.Value)
		}
		sources = append(sources, Source{Name: key.Value, URL: strings.TrimSpace(value.Value)})
	}
	return sources, nil
}
