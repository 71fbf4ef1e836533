// Package state defines the persisted "last seen incident" mapping and the
// contract every storage backend implements.
//
// The mapping is owned by the poll cycle orchestrator, which loads it once at
// startup and replaces it as a whole, exactly once per completed cycle. A
// backend must make that replacement atomic: a reader after a crash observes
// either the previous mapping or the new one, never a mix.
package state

import (
	"context"
	"fmt"
	"maps"
)

// Store persists the source name → last incident id mapping.
type Store interface {
	// Load returns the persisted mapping. A missing resource is an empty
	// mapping, not an error. The returned map is owned by the caller.
	Load(ctx context.Context) (map[string]string, error)

	// Commit atomically replaces the persisted mapping with m. Names absent
	// from m are removed. Implementations must not retain m.
	Commit(ctx context.Context, m map[string]string) error

	// Close releases the backend's resources.
	Close() error
}

// PersistError reports a failed commit. The previously persisted mapping is
// still intact when a backend returns it.
type PersistError struct {
	Backend string
	Err     error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist state (%s): %v", e.Backend, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// Clone returns an independent copy of m, never nil.
func Clone(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	maps.Copy(out, m)
	return out
}
