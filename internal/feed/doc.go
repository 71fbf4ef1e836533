// Package feed turns raw status feed bytes into the newest incident entry.
//
// Parsing is a two-stage strategy. [Parse] first runs the strict parser
// (gofeed, which understands Atom, RSS and JSON Feed). When the strict parser
// rejects the document with a [StrictError], a lenient pass tokenizes the
// bytes with the HTML5 tokenizer and collects whatever it can from the first
// entry-like element (<entry> or <item>), accepting partial data.
//
// A well-formed feed with no entries is not an error: it yields a zero
// [Entry] whose ID is empty, meaning "no current incident". A [ParseError] is
// returned only when no entry-like content can be located at all.
package feed
