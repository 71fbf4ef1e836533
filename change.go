package statuswatch

import (
	"time"

	"github.com/jpalmerr/statuswatch/internal/poller"
)

// FirstSeenPolicy decides what happens the first time a source reports an
// incident and nothing is recorded for it yet.
type FirstSeenPolicy string

const (
	// FirstSeenNotify reports the first observed incident as a change.
	FirstSeenNotify FirstSeenPolicy = "notify"

	// FirstSeenSeed records the first observed incident without reporting it.
	// Useful when adding many sources at once.
	FirstSeenSeed FirstSeenPolicy = "seed"
)

// String returns the policy name.
func (p FirstSeenPolicy) String() string {
	return string(p)
}

// OutputFormat selects how change lines are written to the primary output.
type OutputFormat string

const (
	// OutputText writes "[time] Product: name - title | Status: s | ID: id".
	OutputText OutputFormat = "text"

	// OutputJSON writes one JSON object per line.
	OutputJSON OutputFormat = "json"
)

// Change is reported when a source's newest incident differs from the one
// last recorded for it.
//
// Change values are copies; callbacks may keep them.
type Change struct {
	// Source is the source's name.
	Source string

	// URL is the feed the change was read from.
	URL string

	// IncidentID is the new incident's identifier.
	IncidentID string

	// PreviousID is the identifier it replaced. Empty when FirstSeen is true.
	PreviousID string

	Title   string
	Link    string
	Summary string

	// PublishedAt is the feed's publication time, zero if the feed had none.
	PublishedAt time.Time

	// DetectedAt is when the feed was fetched.
	DetectedAt time.Time

	// FirstSeen is true when no incident had been recorded for the source.
	FirstSeen bool

	// CycleID correlates the change with the poll cycle's log entries.
	CycleID string
}

// Failure describes a source that could not be polled in a cycle.
type Failure struct {
	Source string
	URL    string

	// Kind is one of network, timeout, http_status, parse or cancelled.
	Kind string

	Err error
}

// Report summarizes a poll cycle run with [StatusWatch.RunOnce].
type Report struct {
	ID        string
	StartedAt time.Time
	Duration  time.Duration

	// Sources is the number of sources polled; Sources == Succeeded + len(Failures).
	Sources   int
	Succeeded int
	Failures  []Failure

	// Changes are in source order.
	Changes []Change

	// Seeded names sources recorded silently under [FirstSeenSeed].
	Seeded []string

	// Committed reports whether the new state was persisted. When false,
	// PersistErr says why.
	Committed  bool
	PersistErr error
}

func toPublicChange(ch poller.Change) Change {
	return Change{
		Source:      ch.Source,
		URL:         ch.URL,
		IncidentID:  ch.IncidentID,
		PreviousID:  ch.PreviousID,
		Title:       ch.Title,
		Link:        ch.Link,
		Summary:     ch.Summary,
		PublishedAt: ch.PublishedAt,
		DetectedAt:  ch.DetectedAt,
		FirstSeen:   ch.FirstSeen,
		CycleID:     ch.CycleID,
	}
}

func toPublicReport(r poller.CycleReport) Report {
	out := Report{
		ID:         r.ID,
		StartedAt:  r.StartedAt,
		Duration:   r.Duration,
		Sources:    r.Sources,
		Succeeded:  r.Succeeded,
		Seeded:     append([]string(nil), r.Seeded...),
		Committed:  r.Committed,
		PersistErr: r.PersistErr,
	}
	for _, f := range r.Failures {
		out.Failures = append(out.Failures, Failure(f))
	}
	for _, ch := range r.Changes {
		out.Changes = append(out.Changes, toPublicChange(ch))
	}
	return out
}
