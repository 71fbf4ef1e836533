// Package server provides the optional HTTP view for statuswatch.
//
// It exposes the recent incident history as plain text, JSON and a
// Server-Sent Events stream, plus Prometheus metrics and a health check.
// Routine diagnostics are never served.
package server
