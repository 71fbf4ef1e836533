// Package mockfeed serves fake vendor status feeds whose newest incident
// rotates every 20-60 seconds. It backs the demo programs under example/.
package mockfeed

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"
)

// Products served by the mock. Each gets an Atom feed at /<name>.atom and
// an RSS feed at /<name>.rss.
var Products = []string{"acme-cloud", "widgets-api", "payments"}

var titles = []string{
	"Elevated error rates",
	"Degraded performance",
	"Partial outage",
	"Scheduled maintenance",
}

var statuses = []string{"Investigating", "Identified", "Monitoring", "Resolved"}

type product struct {
	seq          int
	published    time.Time
	nextChangeAt time.Time
}

// Server holds the per-product incident sequence.
type Server struct {
	logger *slog.Logger

	mu       sync.Mutex
	products map[string]*product
}

// New returns a mock feed server.
func New(logger *slog.Logger) *Server {
	return &Server{logger: logger, products: make(map[string]*product)}
}

// ServeHTTP serves /<product>.atom and /<product>.rss.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name, kind, ok := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), ".")
	if !ok || !slices.Contains(Products, name) {
		http.NotFound(w, r)
		return
	}

	// simulate small latency variance
	time.Sleep(time.Duration(50+rand.IntN(150)) * time.Millisecond)

	seq, published := s.advance(name)
	id := fmt.Sprintf("tag:%s.example,2024:incident/%d", name, seq)
	title := titles[seq%len(titles)]
	status := statuses[seq%len(statuses)]

	switch kind {
	case "atom":
		w.Header().Set("Content-Type", "application/atom+xml")
		fmt.Fprintf(w, atomTemplate, name, id, title, published.Format(time.RFC3339), status)
	case "rss":
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprintf(w, rssTemplate, name, id, title, published.Format(time.RFC1123Z), status)
	default:
		http.NotFound(w, r)
	}
}

// advance returns the current incident for name, moving to a new one when
// its scheduled change time has passed.
func (s *Server) advance(name string) (int, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Truncate(time.Second)
	p, exists := s.products[name]
	if !exists {
		p = &product{seq: 1, published: now, nextChangeAt: now.Add(nextChange())}
		s.products[name] = p
	}
	if now.After(p.nextChangeAt) {
		p.seq++
		p.published = now
		p.nextChangeAt = now.Add(nextChange())
		s.logger.Info("new incident", "product", name, "seq", p.seq)
	}
	return p.seq, p.published
}

func nextChange() time.Duration {
	return time.Duration(20+rand.IntN(41)) * time.Second
}

const atomTemplate = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>%[1]s status</title>
  <id>urn:%[1]s:status</id>
  <updated>%[4]s</updated>
  <entry>
    <id>%[2]s</id>
    <title>%[3]s</title>
    <published>%[4]s</published>
    <updated>%[4]s</updated>
    <summary type="html">&lt;strong&gt;%[5]s&lt;/strong&gt; - we are looking into it.</summary>
  </entry>
</feed>
`

const rssTemplate = `<?xml version="1.0" encoding="utf-8"?>
<rss version="2.0">
  <channel>
    <title>%[1]s status</title>
    <link>http://localhost:9999/</link>
    <item>
      <guid isPermaLink="false">%[2]s</guid>
      <title>%[3]s</title>
      <pubDate>%[4]s</pubDate>
      <description>&lt;p&gt;%[5]s&lt;/p&gt;</description>
    </item>
  </channel>
</rss>
`
