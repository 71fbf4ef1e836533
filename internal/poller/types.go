package poller

import (
	"errors"
	"time"
)

// ErrCycleAbandoned is returned by [Scheduler.RunCycle] when shutdown
// interrupted in-flight fetches past the grace period. Nothing from the
// cycle was diffed, emitted or committed.
var ErrCycleAbandoned = errors.New("poll cycle abandoned during shutdown")

// FirstSeenPolicy decides what happens when a source reports an incident and
// no state entry exists for it yet.
type FirstSeenPolicy string

const (
	// FirstSeenNotify emits a change for a source's first observed incident.
	FirstSeenNotify FirstSeenPolicy = "notify"

	// FirstSeenSeed records the first observed incident silently.
	FirstSeenSeed FirstSeenPolicy = "seed"
)

// Valid reports whether p is a known policy.
func (p FirstSeenPolicy) Valid() bool {
	return p == FirstSeenNotify || p == FirstSeenSeed
}

// Snapshot is what one source's feed said during one cycle.
type Snapshot struct {
	SourceName  string
	IncidentID  string
	Title       string
	Link        string
	Summary     string
	PublishedAt time.Time
	FetchedAt   time.Time

	// Lenient reports whether the fallback parser produced the snapshot.
	Lenient bool
}

// Change is emitted when a source's latest incident differs from the one
// recorded in state.
type Change struct {
	Source      string    `json:"source"`
	URL         string    `json:"url"`
	IncidentID  string    `json:"incident_id"`
	PreviousID  string    `json:"previous_id,omitempty"`
	Title       string    `json:"title"`
	Link        string    `json:"link,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	DetectedAt  time.Time `json:"detected_at"`

	// FirstSeen is true when no previous incident was recorded.
	FirstSeen bool `json:"first_seen"`

	CycleID string `json:"cycle_id"`
}

// Failure describes a source that could not be polled in a cycle.
type Failure struct {
	Source string
	URL    string

	// Kind is network, timeout, http_status, parse or cancelled.
	Kind string

	Err error
}

// CycleReport summarizes one completed (or abandoned) poll cycle.
type CycleReport struct {
	ID        string
	StartedAt time.Time
	Duration  time.Duration

	// Sources is the number of sources polled, Succeeded how many produced
	// a snapshot. Sources == Succeeded + len(Failures).
	Sources   int
	Succeeded int
	Failures  []Failure

	// Changes are in registry order.
	Changes []Change

	// Seeded names sources whose first incident was recorded without a change.
	Seeded []string

	Committed  bool
	PersistErr error
}
