package feed

import (
	"html"
	"regexp"
	"strings"
	"time"
)

var tagPattern = regexp.MustCompile(`<[^<>]*>`)

// cleanText collapses all whitespace runs to single spaces.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// cleanHTML strips markup and entities from an HTML fragment.
func cleanHTML(s string) string {
	s = tagPattern.ReplaceAllString(s, " ")
	return cleanText(html.UnescapeString(s))
}

// timeLayouts covers the date formats seen in Atom, RSS and hand-rolled feeds.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	time.RFC822Z,
	time.RFC822,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTime returns the UTC time for s, or the zero time when no layout fits.
func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
