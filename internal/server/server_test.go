package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jpalmerr/statuswatch/internal/store"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockStore implements store.Store for testing.
type mockStore struct {
	mu          sync.RWMutex
	incidents   []store.Incident // newest first
	subscribers map[chan store.Incident]struct{}
	subMu       sync.Mutex
}

func newMockStore() *mockStore {
	return &mockStore{
		subscribers: make(map[chan store.Incident]struct{}),
	}
}

func (m *mockStore) Add(inc store.Incident) {
	m.mu.Lock()
	m.incidents = append([]store.Incident{inc}, m.incidents...)
	m.mu.Unlock()

	m.subMu.Lock()
	for ch := range m.subscribers {
		select {
		case ch <- inc:
		default:
		}
	}
	m.subMu.Unlock()
}

func (m *mockStore) Recent() []store.Incident {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]store.Incident, len(m.incidents))
	copy(out, m.incidents)
	return out
}

func (m *mockStore) Subscribe() <-chan store.Incident {
	ch := make(chan store.Incident, 100)
	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()
	return ch
}

func (m *mockStore) Unsubscribe(ch <-chan store.Incident) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

func incident(source, id string) store.Incident {
	return store.Incident{
		Source:     source,
		IncidentID: id,
		Title:      "title " + id,
		DetectedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		Message:    "[2024-03-01 10:00:00] Product: " + source + " - title " + id + " | ID: " + id,
	}
}

func serve(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

// --- Tests ---

func TestHandleIndex_Empty(t *testing.T) {
	srv := NewServer(newMockStore(), 0, nil, nil, testLogger())

	rec := serve(t, srv, "/")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if got := rec.Body.String(); got != emptyMessage+"\n" {
		t.Errorf("body = %q, want %q", got, emptyMessage+"\n")
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("Content-Type = %q, want text/plain", ct)
	}
}

func TestHandleIndex_NewestFirst(t *testing.T) {
	ms := newMockStore()
	ms.Add(incident("GitHub", "gh-1"))
	ms.Add(incident("Slack", "sl-1"))
	srv := NewServer(ms, 0, nil, nil, testLogger())

	lines := strings.Split(strings.TrimSpace(serve(t, srv, "/").Body.String()), "\n")

	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	if !strings.Contains(lines[0], "Slack") || !strings.Contains(lines[1], "GitHub") {
		t.Errorf("lines = %q, want Slack then GitHub", lines)
	}
}

func TestHandleIndex_UnknownPath(t *testing.T) {
	srv := NewServer(newMockStore(), 0, nil, nil, testLogger())

	if rec := serve(t, srv, "/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandleIncidents_JSON(t *testing.T) {
	ms := newMockStore()
	ms.Add(incident("GitHub", "gh-1"))
	srv := NewServer(ms, 0, nil, nil, testLogger())

	rec := serve(t, srv, "/api/incidents")

	var got []store.Incident
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}
	if len(got) != 1 || got[0].IncidentID != "gh-1" {
		t.Errorf("incidents = %+v, want one gh-1", got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestHandleIncidents_MethodNotAllowed(t *testing.T) {
	srv := NewServer(newMockStore(), 0, nil, nil, testLogger())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/incidents", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}

func TestHandleHealth(t *testing.T) {
	last := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	var ready atomic.Bool
	health := func() (time.Time, bool) { return last, ready.Load() }
	srv := NewServer(newMockStore(), 0, nil, health, testLogger())

	var resp healthResponse
	if err := json.Unmarshal(serve(t, srv, "/healthz").Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}
	if resp.Status != "starting" || resp.LastCycle != nil {
		t.Errorf("health before first cycle = %+v, want starting", resp)
	}

	ready.Store(true)
	resp = healthResponse{}
	if err := json.Unmarshal(serve(t, srv, "/healthz").Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}
	if resp.Status != "ok" || resp.LastCycle == nil || !resp.LastCycle.Equal(last) {
		t.Errorf("health = %+v, want ok at %v", resp, last)
	}
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "statuswatch_changes_total 1\n")
	})

	withMetrics := NewServer(newMockStore(), 0, metrics, nil, testLogger())
	if body := serve(t, withMetrics, "/metrics").Body.String(); !strings.Contains(body, "statuswatch_changes_total") {
		t.Errorf("metrics body = %q", body)
	}

	without := NewServer(newMockStore(), 0, nil, nil, testLogger())
	if rec := serve(t, without, "/metrics"); rec.Code != http.StatusNotFound {
		t.Errorf("status without metrics = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandleSSE_ReplaysHistoryOldestFirst(t *testing.T) {
	ms := newMockStore()
	ms.Add(incident("GitHub", "gh-1"))
	ms.Add(incident("Slack", "sl-1"))

	srv := NewServer(ms, 0, nil, nil, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	srv.handleSSE(rec, req)

	events := parseSSEEvents(rec.Body.String())
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0].IncidentID != "gh-1" || events[1].IncidentID != "sl-1" {
		t.Errorf("events = %+v, want gh-1 then sl-1", events)
	}
}

func TestHandleSSE_StreamsUpdates(t *testing.T) {
	ms := newMockStore()
	srv := NewServer(ms, 0, nil, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		srv.handleSSE(rec, req)
		close(done)
	}()

	// give handler time to subscribe
	time.Sleep(50 * time.Millisecond)
	ms.Add(incident("NewSource", "n-1"))
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not exit after context cancellation")
	}

	if body := rec.Body.String(); !strings.Contains(body, "NewSource") {
		t.Errorf("response should contain streamed update NewSource, got: %s", body)
	}
}

func TestHandleSSE_Headers(t *testing.T) {
	srv := NewServer(newMockStore(), 0, nil, nil, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	srv.handleSSE(rec, req)

	expectedHeaders := map[string]string{
		"Content-Type":                "text/event-stream",
		"Cache-Control":               "no-cache",
		"Connection":                  "keep-alive",
		"Access-Control-Allow-Origin": "*",
	}
	for key, expected := range expectedHeaders {
		if got := rec.Header().Get(key); got != expected {
			t.Errorf("header %s = %q, want %q", key, got, expected)
		}
	}
}

type nonFlushWriter struct {
	header     http.Header
	statusCode int
	body       []byte
}

func (n *nonFlushWriter) Header() http.Header { return n.header }

func (n *nonFlushWriter) Write(b []byte) (int, error) {
	n.body = append(n.body, b...)
	return len(b), nil
}

func (n *nonFlushWriter) WriteHeader(statusCode int) { n.statusCode = statusCode }

func TestHandleSSE_SSENotSupported(t *testing.T) {
	srv := NewServer(newMockStore(), 0, nil, nil, testLogger())

	w := &nonFlushWriter{header: make(http.Header)}
	srv.handleSSE(w, httptest.NewRequest(http.MethodGet, "/api/sse", nil))

	if w.statusCode != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.statusCode)
	}
}

func TestHandleSSE_NoGoroutineLeaks(t *testing.T) {
	runtime.GC()
	time.Sleep(100 * time.Millisecond)
	before := runtime.NumGoroutine()

	srv := NewServer(newMockStore(), 0, nil, nil, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()
			req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx)
			srv.handleSSE(httptest.NewRecorder(), req)
		}()
	}
	wg.Wait()

	runtime.GC()
	time.Sleep(200 * time.Millisecond)

	after := runtime.NumGoroutine()
	if after > before+2 { // small tolerance for runtime variance
		t.Errorf("potential goroutine leak: before=%d, after=%d", before, after)
	}
}

// TestHandleSSE_ServerShutdownIntegration checks SSE handlers exit when the
// server context is cancelled, over a real connection.
func TestHandleSSE_ServerShutdownIntegration(t *testing.T) {
	ms := newMockStore()
	ms.Add(incident("GitHub", "gh-1"))
	srv := NewServer(ms, 0, nil, nil, testLogger())

	serverCtx, serverCancel := context.WithCancel(context.Background())

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// simulates BaseContext
		srv.handleSSE(w, r.WithContext(serverCtx))
	})
	ts := httptest.NewServer(handler)
	defer ts.Close()

	connDone := make(chan error, 1)
	go func() {
		resp, err := ts.Client().Get(ts.URL)
		if err != nil {
			connDone <- err
			return
		}
		defer func() { _ = resp.Body.Close() }()
		_, _ = io.Copy(io.Discard, resp.Body)
		connDone <- nil
	}()

	time.Sleep(100 * time.Millisecond)
	serverCancel()

	select {
	case <-connDone:
	case <-time.After(3 * time.Second):
		t.Fatal("SSE connection did not close after server shutdown")
	}
}

func parseSSEEvents(body string) []store.Incident {
	var out []store.Incident
	for _, line := range strings.Split(body, "\n") {
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			var inc store.Incident
			if err := json.Unmarshal([]byte(data), &inc); err == nil {
				out = append(out, inc)
			}
		}
	}
	return out
}

func TestStart_ServesRoutes(t *testing.T) {
	ms := newMockStore()
	ms.Add(incident("GitHub", "gh-1"))
	srv := NewServer(ms, 0, nil, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	resp, err := http.Get("http://" + srv.Addr().String() + "/")
	if err != nil {
		t.Fatalf("GET / error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "gh-1") {
		t.Errorf("body = %q, want gh-1 line", body)
	}
}

func TestStart_PortInUse_ReturnsError(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	defer func() { _ = ln.Close() }()

	port := ln.Addr().(*net.TCPAddr).Port
	srv := NewServer(newMockStore(), port, nil, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = srv.Start(ctx)
	if err == nil {
		t.Fatal("Start() on occupied port should return error")
	}
	if !strings.Contains(err.Error(), "failed to bind") {
		t.Errorf("expected bind error, got: %v", err)
	}
}

func TestStart_InvalidPort_ReturnsError(t *testing.T) {
	srv := NewServer(newMockStore(), -1, nil, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err == nil {
		t.Fatal("Start() with invalid port should return error")
	}
}
