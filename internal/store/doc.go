// Package store keeps the recent incident history shown by the web view.
//
// The history is bounded, volatile and never persisted: it exists so an
// operator can see the last few changes without reading the output stream.
// New incidents are published to subscribers (the SSE endpoint) with
// non-blocking sends, so slow subscribers miss updates rather than stall the
// poll loop.
//
// The main components are:
//
//   - [Store]: interface defining history and subscription operations
//   - [MemoryStore]: ring buffer implementation with pub/sub
//   - [Incident]: storage representation of a detected change
package store
