package statuswatch

import (
	"context"
	"fmt"

	"github.com/jpalmerr/statuswatch/internal/state/bolt"
	"github.com/jpalmerr/statuswatch/internal/state/file"
	"github.com/jpalmerr/statuswatch/internal/state/memory"
	"github.com/jpalmerr/statuswatch/internal/state/sqlite"
)

// StateStore persists the source name → last seen incident id mapping.
//
// Commit must replace the whole mapping atomically: after a crash, Load
// returns either the previous mapping or the new one. Stores passed to
// [WithStateStore] are owned by the caller, who closes them after
// [StatusWatch.Start] returns.
type StateStore interface {
	Load(ctx context.Context) (map[string]string, error)
	Commit(ctx context.Context, m map[string]string) error
	Close() error
}

// State drivers accepted by [OpenState].
const (
	StateDriverFile   = "file"
	StateDriverSQLite = "sqlite"
	StateDriverBolt   = "bolt"
	StateDriverMemory = "memory"
)

// FileState returns a store that keeps the mapping in a JSON file, replaced
// atomically by writing a temporary file and renaming it over path.
func FileState(path string) StateStore {
	return file.New(path)
}

// OpenSQLiteState opens (creating if needed) a SQLite database at path.
func OpenSQLiteState(path string) (StateStore, error) {
	st, err := sqlite.Open(path)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// OpenBoltState opens (creating if needed) a bbolt database at path.
func OpenBoltState(path string) (StateStore, error) {
	st, err := bolt.Open(path)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// MemoryState returns a non-persistent store seeded with initial. It is
// meant for tests and dry runs.
func MemoryState(initial map[string]string) StateStore {
	return memory.New(initial)
}

// OpenState opens the store for driver at path.
func OpenState(driver, path string) (StateStore, error) {
	switch driver {
	case "", StateDriverFile:
		if path == "" {
			return nil, fmt.Errorf("state driver %q requires a path", StateDriverFile)
		}
		return FileState(path), nil
	case StateDriverSQLite:
		return OpenSQLiteState(path)
	case StateDriverBolt:
		return OpenBoltState(path)
	case StateDriverMemory:
		return MemoryState(nil), nil
	default:
		return nil, fmt.Errorf("unknown state driver %q (expected file, sqlite, bolt or memory)", driver)
	}
}
