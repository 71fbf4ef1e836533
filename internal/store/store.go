package store

import "time"

// DefaultCapacity is how many recent incidents the web view keeps.
const DefaultCapacity = 50

// Incident is the storage representation of a detected change, shaped for
// the JSON API and SSE stream. It is decoupled from the poller's types.
type Incident struct {
	Source     string `json:"source"`
	URL        string `json:"url"`
	IncidentID string `json:"incident_id"`

	// PreviousID is empty for a source's first observed incident.
	PreviousID string `json:"previous_id,omitempty"`
	FirstSeen  bool   `json:"first_seen"`

	Title       string    `json:"title"`
	Link        string    `json:"link,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	PublishedAt time.Time `json:"published_at,omitzero"`
	DetectedAt  time.Time `json:"detected_at"`
	CycleID     string    `json:"cycle_id"`

	// Message is the line written to the primary output for this change.
	Message string `json:"message"`
}

// Store keeps a bounded history of recent incidents and fans new ones out
// to subscribers.
//
// Store implementations must be safe for concurrent access.
type Store interface {
	// Add records an incident and notifies all subscribers. The oldest
	// incident is evicted when the store is full.
	Add(incident Incident)

	// Recent returns stored incidents, newest first. The returned slice is
	// a snapshot; modifications do not affect the store.
	Recent() []Incident

	// Subscribe returns a channel that receives new incidents.
	// The returned channel has a buffer; slow consumers may miss updates.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan Incident

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan Incident)
}
