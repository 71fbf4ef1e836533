package statuswatch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jpalmerr/statuswatch/internal/registry"
)

// Source is a named status feed to poll.
//
// Source is immutable after creation via [NewSource]. The name is the key
// under which the last seen incident is persisted, so renaming a source
// makes its next incident look new.
type Source struct {
	name string
	url  string
}

// Name returns the source's display name.
func (s Source) Name() string {
	return s.name
}

// URL returns the feed URL.
func (s Source) URL() string {
	return s.url
}

// NewSource creates a [Source] polled at rawURL.
//
// The URL must be absolute with an http or https scheme.
//
// Example:
//
//	gh, err := statuswatch.NewSource("GitHub", "https://www.githubstatus.com/history.atom")
func NewSource(name, rawURL string) (Source, error) {
	if strings.TrimSpace(name) == "" {
		return Source{}, errors.New("source name cannot be empty")
	}
	if err := registry.ValidateURL(rawURL); err != nil {
		return Source{}, fmt.Errorf("invalid source %q: %w", name, err)
	}
	return Source{name: name, url: rawURL}, nil
}

func toRegistrySources(sources []Source) registry.Static {
	out := make(registry.Static, len(sources))
	for i, s := range sources {
		out[i] = registry.Source{Name: s.name, URL: s.url}
	}
	return out
}
