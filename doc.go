// Package statuswatch polls many vendor status feeds (Atom or RSS) and
// reports each time a source publishes a new incident.
//
// For every source it remembers the identifier of the newest incident seen.
// Each poll cycle fetches all feeds concurrently, compares each feed's newest
// entry with what was remembered, writes one line per difference and then
// persists the updated mapping once. A feed that cannot be fetched or parsed
// never causes a change and never erases what was remembered for it.
//
// # Quick Start
//
//	sw, _ := statuswatch.New(statuswatch.WithSourcesFile("sources.json"))
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	sw.Start(ctx) // blocks until context is cancelled
//
// The sources file maps names to feed URLs, as JSON or YAML:
//
//	{
//	    "GitHub": "https://www.githubstatus.com/history.atom",
//	    "Slack": "https://slack-status.com/feed/atom"
//	}
//
// It is re-read every cycle, so sources can be added or removed without a
// restart.
//
// # Configuration
//
// statuswatch uses the functional options pattern:
//
//	sw, err := statuswatch.New(
//	    statuswatch.WithSourcesFile("sources.json"),
//	    statuswatch.WithStateStore(statuswatch.FileState("/var/lib/statuswatch/state.json")),
//	    statuswatch.WithPollingInterval(2 * time.Minute),
//	    statuswatch.WithMaxConcurrency(10),
//	    statuswatch.WithFirstSeenPolicy(statuswatch.FirstSeenSeed),
//	    statuswatch.WithPort(8080),
//	)
//
// # Output
//
// Changes are written to the output (stdout by default) one per line:
//
//	[2024-03-01 10:00:00] Product: GitHub - Degraded performance | Status: Investigating | ID: tag:github,2024:1
//
// Diagnostics, including per-source failures, go to the [slog.Logger] given
// with [WithLogger] and never to the output.
//
// # Shutdown
//
// Cancelling the context stops new fetches. Fetches already running get the
// grace period ([WithGracePeriod]) to finish, after which the cycle is
// completed as usual. If they do not finish in time the cycle is abandoned:
// nothing is written and the persisted state is left as it was.
//
// # Architecture
//
// statuswatch consists of several internal packages (under internal/):
//
//   - internal/registry: sources file loading and validation
//   - internal/feed: strict feed parsing with a lenient fallback
//   - internal/poller: feed client and the poll cycle orchestrator
//   - internal/state: persisted mapping with file, SQLite and bbolt backends
//   - internal/emitter: change line formatting
//   - internal/store: recent changes with pub/sub for the HTTP view
//   - internal/server: HTTP view with JSON, Server-Sent Events and metrics
//   - internal/watch: early polling when the sources file changes
//
// The internal packages are not part of the public API and may change
// without notice.
package statuswatch
