// Package memory provides a process-local state.Store.
package memory

import (
	"context"
	"sync"

	"github.com/jpalmerr/statuswatch/internal/state"
)

const backendName = "memory"

// Store holds the mapping in memory. It counts commits and can be told to
// fail them, which makes it the backend of choice for orchestrator tests.
type Store struct {
	mu      sync.Mutex
	m       map[string]string
	commits int
	failErr error
}

var _ state.Store = (*Store)(nil)

// New returns a Store pre-populated with a copy of initial.
func New(initial map[string]string) *Store {
	return &Store{m: state.Clone(initial)}
}

func (s *Store) Load(_ context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return state.Clone(s.m), nil
}

func (s *Store) Commit(_ context.Context, m map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return &state.PersistError{Backend: backendName, Err: s.failErr}
	}
	s.m = state.Clone(m)
	s.commits++
	return nil
}

func (s *Store) Close() error { return nil }

// Commits returns the number of successful commits.
func (s *Store) Commits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// FailCommits makes subsequent commits fail with err. Nil restores success.
func (s *Store) FailCommits(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}
