package feed

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// field identifies which Entry field a tag's text feeds into.
type field int

const (
	fieldNone field = iota
	fieldID
	fieldTitle
	fieldLink
	fieldSummary
	fieldPublished
	fieldUpdated
)

// tagFields maps lower-cased tag names (the tokenizer lower-cases them) to
// the Entry field they populate.
var tagFields = map[string]field{
	"id":              fieldID,
	"guid":            fieldID,
	"title":           fieldTitle,
	"link":            fieldLink,
	"summary":         fieldSummary,
	"description":     fieldSummary,
	"content":         fieldSummary,
	"content:encoded": fieldSummary,
	"published":       fieldPublished,
	"pubdate":         fieldPublished,
	"issued":          fieldPublished,
	"dc:date":         fieldPublished,
	"updated":         fieldUpdated,
	"modified":        fieldUpdated,
}

func isEntryTag(name string) bool {
	return name == "entry" || name == "item"
}

// parseLenient scans data for the first <entry> or <item> element and
// collects its fields. The HTML5 tokenizer never fails on bad markup, so
// unclosed tags, stray end tags, truncation and bad entities all degrade to
// partial data. ok is false only when no entry-like element exists.
func parseLenient(data []byte) (Entry, bool) {
	z := html.NewTokenizer(bytes.NewReader(data))
	z.AllowCDATA(true)

	var (
		inEntry   bool
		found     bool
		current   field
		closeTag  string
		text      strings.Builder
		collected = make(map[field]string)
	)

	flush := func() {
		if current != fieldNone {
			if _, seen := collected[current]; !seen {
				if v := strings.TrimSpace(text.String()); v != "" {
					collected[current] = v
				}
			}
		}
		current = fieldNone
		closeTag = ""
		text.Reset()
	}

scan:
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or a read error; whatever was collected stands
			break scan

		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			name := tok.Data

			if isEntryTag(name) {
				if inEntry {
					// a second entry started before the first closed
					break scan
				}
				inEntry, found = true, true
				continue
			}
			if !inEntry || current != fieldNone {
				continue
			}

			f, ok := tagFields[name]
			if !ok {
				continue
			}
			if f == fieldLink {
				if href := linkHref(tok); href != "" {
					if _, seen := collected[fieldLink]; !seen {
						collected[fieldLink] = href
					}
					continue
				}
			}
			if tok.Type == html.SelfClosingTagToken {
				continue
			}
			current, closeTag = f, name

		case html.TextToken:
			if inEntry && current != fieldNone {
				text.Write(z.Text())
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if inEntry && isEntryTag(tag) {
				flush()
				break scan
			}
			if current != fieldNone && tag == closeTag {
				flush()
			}
		}
	}
	flush()

	if !found {
		return Entry{}, false
	}

	entry := Entry{
		ID:      stripCDATA(collected[fieldID]),
		Title:   cleanText(stripCDATA(collected[fieldTitle])),
		Link:    stripCDATA(collected[fieldLink]),
		Summary: cleanHTML(stripCDATA(collected[fieldSummary])),
		Lenient: true,
	}
	if entry.ID == "" {
		entry.ID = entry.Link
	}
	entry.Published = parseTime(stripCDATA(collected[fieldPublished]))
	if entry.Published.IsZero() {
		entry.Published = parseTime(stripCDATA(collected[fieldUpdated]))
	}
	return entry, true
}

// linkHref returns the href of an Atom-style <link>, preferring rel="alternate"
// or an absent rel. Links with other rels (self, enclosure) are skipped.
func linkHref(tok html.Token) string {
	var href, rel string
	for _, attr := range tok.Attr {
		switch strings.ToLower(attr.Key) {
		case "href":
			href = strings.TrimSpace(attr.Val)
		case "rel":
			rel = strings.ToLower(strings.TrimSpace(attr.Val))
		}
	}
	if rel != "" && rel != "alternate" {
		return ""
	}
	return href
}

// stripCDATA removes CDATA markers left in raw-text elements such as
// <title>, which the tokenizer reads verbatim.
func stripCDATA(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "<![CDATA[") {
		s = strings.TrimPrefix(s, "<![CDATA[")
		s = strings.TrimSuffix(s, "]]>")
	}
	return strings.TrimSpace(s)
}
