// Package file persists the incident mapping as a flat JSON object.
//
// The on-disk format is a single object of source name to incident id:
//
//	{
//	    "GitHub": "tag:github.com,2008:Incident/20911"
//	}
//
// Every commit rewrites the whole file atomically: the new content goes to a
// temporary file in the same directory, is fsynced, and is renamed over the
// target. The directory is synced afterwards so the rename itself is durable.
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/jpalmerr/statuswatch/internal/state"
)

const backendName = "file"

// Store is a JSON file backed state.Store.
type Store struct {
	mu   sync.Mutex
	path string

	// rename is os.Rename; tests swap it to simulate a crash between the
	// temp write and the swap.
	rename func(oldpath, newpath string) error
}

var _ state.Store = (*Store)(nil)

// New returns a Store persisting to path. The file is created on first commit.
func New(path string) *Store {
	return &Store{path: path, rename: os.Rename}
}

// Path returns the target file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the mapping from disk. A missing file yields an empty mapping;
// an unreadable or corrupt file is an error.
func (s *Store) Load(_ context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return map[string]string{}, nil
	}

	m := make(map[string]string)
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode state file %s: %w", s.path, err)
	}
	return m, nil
}

// Commit atomically replaces the file contents with m.
func (s *Store) Commit(ctx context.Context, m map[string]string) error {
	if err := ctx.Err(); err != nil {
		return &state.PersistError{Backend: backendName, Err: err}
	}

	data, err := json.MarshalIndent(m, "", "    ")
	if err != nil {
		return &state.PersistError{Backend: backendName, Err: fmt.Errorf("encode: %w", err)}
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeFile(data); err != nil {
		return &state.PersistError{Backend: backendName, Err: err}
	}
	return nil
}

// Close is a no-op; the file is not held open between commits.
func (s *Store) Close() error {
	return nil
}

func (s *Store) writeFile(data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := f.Name()

	fail := func(err error) error {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return err
	}

	if _, err := f.Write(data); err != nil {
		return fail(fmt.Errorf("write temp file: %w", err))
	}
	if err := f.Sync(); err != nil {
		return fail(fmt.Errorf("sync temp file: %w", err))
	}
	if err := f.Chmod(0o644); err != nil {
		return fail(fmt.Errorf("chmod temp file: %w", err))
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := s.rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}

	return syncDir(dir)
}

// syncDir fsyncs a directory so a completed rename survives power loss.
// Filesystems that refuse to sync directories are tolerated.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open directory: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		return fmt.Errorf("sync directory: %w", err)
	}
	return nil
}
