// Package notify provides a broadcast wake-up primitive.
package notify

import "sync"

// Signal wakes every goroutine waiting on the channel returned by [Signal.C].
// Each call to [Signal.Notify] closes the current channel and installs a
// fresh one, so waiters must call C again after each wake-up.
type Signal struct {
	mu sync.Mutex
	ch chan struct{}
}

// NewSignal returns a ready-to-use Signal.
func NewSignal() *Signal { return &Signal{ch: make(chan struct{})} }

// Notify wakes all current waiters.
func (s *Signal) Notify() {
	s.mu.Lock()
	close(s.ch)
	s.ch = make(chan struct{})
	s.mu.Unlock()
}

// C returns a channel that is closed on the next Notify.
func (s *Signal) C() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}
