// Package poller provides the feed client and the poll cycle scheduler for
// statuswatch.
//
// A cycle moves through IDLE → RELOADING → FETCHING → DIFFING → PERSISTING →
// SLEEPING. Sources are fetched and parsed concurrently under a bound; the
// scheduler waits for all of them before comparing each source's newest
// incident against state, emitting changes in registry order and committing
// the new state exactly once.
//
// The main components are:
//
//   - [Client]: pooled HTTP client with per-request timeouts, an optional
//     rate limit, and content decoding
//   - [Scheduler]: drives poll cycles
//   - [Change]: a detected incident change
//   - [CycleReport]: what happened in one cycle
//
// Users of the statuswatch library should not need to interact with this
// package directly. Configuration is done through the main statuswatch package.
package poller
