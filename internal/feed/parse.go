package feed

import (
	"bytes"
	"errors"
	"strings"

	"github.com/mmcdole/gofeed"
)

// Parse extracts the newest entry from data.
//
// The strict parser is tried first; on a [StrictError] the lenient parser
// runs over the same bytes and the strict failure is kept in
// [Entry.StrictErr]. The returned error, when non-nil, is always a
// *[ParseError].
func Parse(data []byte) (Entry, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Entry{}, &ParseError{Reason: "empty document"}
	}

	entry, err := parseStrict(data)
	if err == nil {
		return entry, nil
	}

	var strictErr *StrictError
	if !errors.As(err, &strictErr) {
		return Entry{}, &ParseError{Reason: "unexpected parser failure", Strict: err}
	}

	entry, ok := parseLenient(data)
	if !ok {
		return Entry{}, &ParseError{Reason: "no entry-like content found", Strict: strictErr}
	}
	entry.StrictErr = strictErr
	return entry, nil
}

// parseStrict parses data with gofeed. A gofeed.Parser keeps per-parse state,
// so a new one is built for every call to stay safe for concurrent use.
func parseStrict(data []byte) (Entry, error) {
	f, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return Entry{}, &StrictError{Err: err}
	}
	if len(f.Items) == 0 || f.Items[0] == nil {
		return Entry{}, nil
	}

	item := f.Items[0]
	entry := Entry{
		ID:      strings.TrimSpace(item.GUID),
		Title:   cleanText(item.Title),
		Link:    strings.TrimSpace(item.Link),
		Summary: cleanHTML(firstNonEmpty(item.Description, item.Content)),
	}
	if entry.ID == "" {
		entry.ID = entry.Link
	}

	switch {
	case item.PublishedParsed != nil:
		entry.Published = item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil:
		entry.Published = item.UpdatedParsed.UTC()
	default:
		entry.Published = parseTime(firstNonEmpty(item.Published, item.Updated))
	}

	return entry, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
