package store

import (
	"sync"
)

const subscriberBuffer = 100

// MemoryStore is an in-memory ring buffer implementation of [Store].
//
// Subscribers receive incidents via buffered channels (buffer size 100).
// Sends are non-blocking; if a subscriber's buffer is full the incident is
// dropped for that subscriber so the poll loop is never blocked.
type MemoryStore struct {
	mu    sync.RWMutex
	ring  []Incident
	next  int // index the next Add writes to
	count int

	subscribers map[chan Incident]struct{}
	subMu       sync.RWMutex
}

// NewMemoryStore creates a store holding at most capacity incidents.
// capacity < 1 means [DefaultCapacity].
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{
		ring:        make([]Incident, capacity),
		subscribers: make(map[chan Incident]struct{}),
	}
}

// Add stores incident, evicting the oldest when full, and notifies all
// subscribers.
func (m *MemoryStore) Add(incident Incident) {
	m.mu.Lock()
	m.ring[m.next] = incident
	m.next = (m.next + 1) % len(m.ring)
	if m.count < len(m.ring) {
		m.count++
	}
	m.mu.Unlock()

	m.notifySubscribers(incident)
}

// Recent returns a snapshot of stored incidents, newest first.
func (m *MemoryStore) Recent() []Incident {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Incident, 0, m.count)
	for i := 1; i <= m.count; i++ {
		idx := (m.next - i + len(m.ring)) % len(m.ring)
		out = append(out, m.ring[idx])
	}
	return out
}

// Len returns the number of stored incidents.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.count
}

// Subscribe creates a new subscription.
//
// Caller must call [MemoryStore.Unsubscribe] when done to prevent resource leaks.
func (m *MemoryStore) Subscribe() <-chan Incident {
	ch := make(chan Incident, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel. Safe to call
// multiple times or with an unknown channel.
func (m *MemoryStore) Unsubscribe(ch <-chan Incident) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// notifySubscribers sends without blocking; full subscribers miss the update.
func (m *MemoryStore) notifySubscribers(incident Incident) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- incident:
		default:
		}
	}
}
