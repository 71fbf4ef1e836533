package feed

import (
	"errors"
	"fmt"
	"time"
)

// Entry is the normalized form of a feed's most recent entry.
type Entry struct {
	// ID is the incident identifier: the entry id/guid, or its link when
	// the feed provides no id. Empty means no incident was found.
	ID string

	Title   string
	Link    string
	Summary string

	// Published is the entry's publish time, falling back to its update
	// time. Zero when absent or unparseable.
	Published time.Time

	// Lenient reports whether the entry came from the fallback parser.
	Lenient bool

	// StrictErr is the strict parser's failure when Lenient is set.
	StrictErr error
}

// HasIncident reports whether the entry carries an incident identifier.
func (e Entry) HasIncident() bool {
	return e.ID != ""
}

// StrictError reports that the strict parser rejected the document.
// It is the trigger for the lenient fallback.
type StrictError struct {
	Err error
}

func (e *StrictError) Error() string {
	return "strict parse: " + e.Err.Error()
}

func (e *StrictError) Unwrap() error {
	return e.Err
}

// ParseError reports that no entry-like content could be located.
type ParseError struct {
	Reason string

	// Strict is the strict parser's failure, if any.
	Strict error
}

func (e *ParseError) Error() string {
	if e.Strict != nil {
		return fmt.Sprintf("parse feed: %s (%v)", e.Reason, e.Strict)
	}
	return "parse feed: " + e.Reason
}

func (e *ParseError) Unwrap() error {
	return e.Strict
}

// IsParseError reports whether err is or wraps a [ParseError].
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
