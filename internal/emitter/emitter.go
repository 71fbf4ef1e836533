// Package emitter writes one line per detected incident change to the
// primary output. The primary output carries change events only; routine
// diagnostics go to the logger.
package emitter

import (
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/jpalmerr/statuswatch/internal/logging"
	"github.com/jpalmerr/statuswatch/internal/poller"
)

// Format selects the line encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

const (
	timeLayout   = "2006-01-02 15:04:05"
	unknownTitle = "Unknown Title"
)

// Emitter serializes change lines onto a writer.
type Emitter struct {
	mu     sync.Mutex
	w      io.Writer
	format Format
	logger *slog.Logger
}

// New returns an Emitter writing to w. An empty format means text.
func New(w io.Writer, format Format, logger *slog.Logger) (*Emitter, error) {
	switch format {
	case "":
		format = FormatText
	case FormatText, FormatJSON:
	default:
		return nil, fmt.Errorf("unknown output format %q (expected text or json)", format)
	}
	return &Emitter{
		w:      w,
		format: format,
		logger: logging.Default(logger).With("component", "emitter"),
	}, nil
}

// Emit writes exactly one line for ch. Write errors are logged, not returned:
// a broken output must not stop the poll loop.
func (e *Emitter) Emit(ch poller.Change) {
	var line []byte
	switch e.format {
	case FormatJSON:
		b, err := FormatJSONLine(ch)
		if err != nil {
			e.logger.Error("encode change", "source", ch.Source, "error", err)
			return
		}
		line = b
	default:
		line = []byte(FormatLine(ch) + "\n")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.w.Write(line); err != nil {
		e.logger.Error("write change", "source", ch.Source, "incident_id", ch.IncidentID, "error", err)
	}
}

// FormatLine renders ch as a single human-readable line without a trailing
// newline:
//
//	[2024-03-01 10:15:00] Product: GitHub - Degraded performance | Status: Investigating | ID: tag:github.com,2008:Incident/1
func FormatLine(ch poller.Change) string {
	title := Sanitize(ch.Title)
	if title == "" {
		title = unknownTitle
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] Product: %s - %s", eventTime(ch).Format(timeLayout), Sanitize(ch.Source), title)
	if summary := Sanitize(ch.Summary); summary != "" {
		b.WriteString(" | Status: ")
		b.WriteString(summary)
	}
	b.WriteString(" | ID: ")
	b.WriteString(Sanitize(ch.IncidentID))
	return b.String()
}

type jsonLine struct {
	Time       string `json:"time"`
	Source     string `json:"source"`
	IncidentID string `json:"incident_id"`
	PreviousID string `json:"previous_id,omitempty"`
	Title      string `json:"title"`
	Summary    string `json:"summary,omitempty"`
	Link       string `json:"link,omitempty"`
	URL        string `json:"url"`
	FirstSeen  bool   `json:"first_seen"`
	DetectedAt string `json:"detected_at"`
	CycleID    string `json:"cycle_id,omitempty"`
}

// FormatJSONLine renders ch as one JSON object followed by a newline.
func FormatJSONLine(ch poller.Change) ([]byte, error) {
	title := Sanitize(ch.Title)
	if title == "" {
		title = unknownTitle
	}

	var b strings.Builder
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	err := enc.Encode(jsonLine{
		Time:       eventTime(ch).Format(time.RFC3339),
		Source:     Sanitize(ch.Source),
		IncidentID: Sanitize(ch.IncidentID),
		PreviousID: Sanitize(ch.PreviousID),
		Title:      title,
		Summary:    Sanitize(ch.Summary),
		Link:       Sanitize(ch.Link),
		URL:        ch.URL,
		FirstSeen:  ch.FirstSeen,
		DetectedAt: ch.DetectedAt.UTC().Format(time.RFC3339),
		CycleID:    ch.CycleID,
	})
	if err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

// eventTime is the incident's publish time, or the detection time when the
// feed gave none.
func eventTime(ch poller.Change) time.Time {
	if !ch.PublishedAt.IsZero() {
		return ch.PublishedAt.UTC()
	}
	return ch.DetectedAt.UTC()
}

var tagPattern = regexp.MustCompile(`<[^<>]*>`)

// Sanitize reduces s to a single clean line: markup stripped, entities
// decoded, whitespace collapsed, control characters removed and the result
// NFC-normalized.
func Sanitize(s string) string {
	if s == "" {
		return ""
	}
	s = tagPattern.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	s = strings.Join(strings.Fields(s), " ")

	// transformers carry state; build a fresh chain per call
	t := transform.Chain(runes.Remove(runes.In(unicode.Cc)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
