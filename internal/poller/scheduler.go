package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jpalmerr/statuswatch/internal/feed"
	"github.com/jpalmerr/statuswatch/internal/logging"
	"github.com/jpalmerr/statuswatch/internal/metrics"
	"github.com/jpalmerr/statuswatch/internal/registry"
	"github.com/jpalmerr/statuswatch/internal/state"
)

const (
	DefaultInterval       = 60 * time.Second
	DefaultTimeout        = 10 * time.Second
	DefaultMaxConcurrency = 20
	DefaultGracePeriod    = 5 * time.Second
)

// Registry yields the sources to poll. It is consulted once per cycle.
type Registry interface {
	Load() ([]registry.Source, error)
}

// Fetcher retrieves a feed body. *[Client] is the production implementation.
type Fetcher interface {
	Fetch(ctx context.Context, url string, timeout time.Duration) ([]byte, error)
}

// ParseFunc extracts the newest entry from a feed body.
type ParseFunc func(data []byte) (feed.Entry, error)

// Emitter receives every change, in registry order.
type Emitter interface {
	Emit(Change)
}

// Observer is called after the emitter for every change. Panics are
// recovered and logged.
type Observer func(Change)

// Options configures a [Scheduler]. Registry, Fetcher and State are required.
type Options struct {
	Registry  Registry
	Fetcher   Fetcher
	Parse     ParseFunc
	State     state.Store
	Emitter   Emitter
	Observers []Observer
	Metrics   *metrics.Metrics
	Logger    *slog.Logger

	// Wake, when set, returns a channel that ends the sleep between cycles
	// early when closed.
	Wake func() <-chan struct{}

	Interval       time.Duration
	Timeout        time.Duration
	MaxConcurrency int
	GracePeriod    time.Duration
	FirstSeen      FirstSeenPolicy

	// Now defaults to time.Now.
	Now func() time.Time
}

// Scheduler runs poll cycles: reload sources, fetch and parse every source
// concurrently under a bound, diff against the last seen incidents, emit
// changes and commit the new state once.
//
// The state mapping is owned by the scheduler and only touched between
// barriers, so units never share mutable state. RunCycle calls are
// serialized.
type Scheduler struct {
	registry  Registry
	fetcher   Fetcher
	parse     ParseFunc
	store     state.Store
	emitter   Emitter
	observers []Observer
	metrics   *metrics.Metrics
	logger    *slog.Logger
	wake      func() <-chan struct{}

	interval       time.Duration
	timeout        time.Duration
	maxConcurrency int
	grace          time.Duration
	firstSeen      FirstSeenPolicy
	now            func() time.Time

	lastCycle atomic.Int64 // unix nanos of the last completed cycle

	mu      sync.Mutex
	loaded  bool
	entries map[string]string
	sources []registry.Source // last known good
}

// NewScheduler validates opts and applies defaults.
func NewScheduler(opts Options) (*Scheduler, error) {
	if opts.Registry == nil {
		return nil, errors.New("poller: registry is required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("poller: fetcher is required")
	}
	if opts.State == nil {
		return nil, errors.New("poller: state store is required")
	}
	if opts.FirstSeen == "" {
		opts.FirstSeen = FirstSeenNotify
	}
	if !opts.FirstSeen.Valid() {
		return nil, fmt.Errorf("poller: unknown first seen policy %q", opts.FirstSeen)
	}

	s := &Scheduler{
		registry:       opts.Registry,
		fetcher:        opts.Fetcher,
		parse:          opts.Parse,
		store:          opts.State,
		emitter:        opts.Emitter,
		observers:      opts.Observers,
		metrics:        opts.Metrics,
		logger:         logging.Default(opts.Logger).With("component", "poller"),
		wake:           opts.Wake,
		interval:       opts.Interval,
		timeout:        opts.Timeout,
		maxConcurrency: opts.MaxConcurrency,
		grace:          opts.GracePeriod,
		firstSeen:      opts.FirstSeen,
		now:            opts.Now,
	}
	if s.parse == nil {
		s.parse = feed.Parse
	}
	if s.interval <= 0 {
		s.interval = DefaultInterval
	}
	if s.timeout <= 0 {
		s.timeout = DefaultTimeout
	}
	if s.maxConcurrency < 1 {
		s.maxConcurrency = DefaultMaxConcurrency
	}
	if s.grace < 0 {
		s.grace = 0
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// LoadState reads the persisted mapping. Run calls it once; an error here is
// a startup failure.
func (s *Scheduler) LoadState(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

func (s *Scheduler) loadLocked(ctx context.Context) error {
	if s.loaded {
		return nil
	}
	m, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	s.entries = state.Clone(m)
	s.loaded = true
	s.logger.Info("state loaded", "entries", len(s.entries))
	return nil
}

// Entries returns a copy of the in-memory mapping.
func (s *Scheduler) Entries() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return state.Clone(s.entries)
}

// LastCycle returns when the most recent cycle completed. ok is false until
// one has. Abandoned cycles do not count.
func (s *Scheduler) LastCycle() (t time.Time, ok bool) {
	n := s.lastCycle.Load()
	if n == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, n).UTC(), true
}

// Run loads state and then runs cycles until ctx is cancelled. A cycle's
// failures are logged and never stop the loop. Run returns nil on shutdown
// and an error only when state cannot be loaded.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.LoadState(ctx); err != nil {
		return err
	}

	s.logger.Info("poller started",
		"interval", s.interval,
		"timeout", s.timeout,
		"max_concurrency", s.maxConcurrency,
		"first_seen", string(s.firstSeen),
	)

	for {
		// grab the wake channel before the cycle so a sources edit made
		// while polling still shortens the next sleep
		var wake <-chan struct{}
		if s.wake != nil {
			wake = s.wake()
		}

		if _, err := s.safeCycle(ctx); err != nil {
			if errors.Is(err, ErrCycleAbandoned) {
				s.logger.Warn("poll cycle abandoned", "grace", s.grace)
			} else {
				s.logger.Error("poll cycle failed", "error", err)
			}
		}

		if ctx.Err() != nil {
			s.logger.Info("poller stopped")
			return nil
		}

		if !s.sleep(ctx, wake) {
			s.logger.Info("poller stopped")
			return nil
		}
	}
}

// safeCycle runs one cycle with panic recovery so a defect in one cycle
// does not take down the loop.
func (s *Scheduler) safeCycle(ctx context.Context) (report CycleReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			s.logger.Error("poll cycle panic",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("poll cycle panic (correlation_id: %s)", correlationID)
		}
	}()
	return s.RunCycle(ctx)
}

// sleep waits for the interval, an early wake-up, or cancellation. It
// reports whether the loop should continue.
func (s *Scheduler) sleep(ctx context.Context, wake <-chan struct{}) bool {
	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	case <-wake:
		s.logger.Info("sources changed, polling early")
		return true
	}
}

// RunCycle performs a single poll cycle. State is loaded first if Run has
// not done so. Cancelling ctx stops new fetches from starting and gives
// in-flight ones the grace period; past it the cycle is abandoned with
// [ErrCycleAbandoned].
func (s *Scheduler) RunCycle(ctx context.Context) (CycleReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.loadLocked(ctx); err != nil {
		return CycleReport{}, err
	}

	report := CycleReport{
		ID:        uuid.NewString(),
		StartedAt: s.now(),
	}
	logger := s.logger.With("cycle_id", report.ID)

	// RELOADING
	sources := s.reload(logger)
	report.Sources = len(sources)
	s.metrics.SetSources(len(sources))

	// FETCHING
	outcomes, abandoned := s.fetchAll(ctx, logger, sources)
	if abandoned {
		report.Duration = s.now().Sub(report.StartedAt)
		s.metrics.ObserveCycle(metrics.ResultAbandoned, report.Duration, s.now())
		return report, ErrCycleAbandoned
	}

	// DIFFING
	next := state.Clone(s.entries)
	for _, out := range outcomes {
		if out.Err != nil {
			f := Failure{
				Source: out.Source.Name,
				URL:    out.Source.URL,
				Kind:   failureKind(out.Err),
				Err:    out.Err,
			}
			report.Failures = append(report.Failures, f)
			s.metrics.FetchFailure(f.Kind)
			logger.Warn("source poll failed",
				"source", f.Source,
				"url", f.URL,
				"kind", f.Kind,
				"error", f.Err,
			)
			continue
		}
		report.Succeeded++

		snap := out.Snapshot
		if snap.IncidentID == "" {
			continue
		}

		prev, known := next[snap.SourceName]
		switch {
		case known && prev == snap.IncidentID:
			continue
		case !known && s.firstSeen == FirstSeenSeed:
			next[snap.SourceName] = snap.IncidentID
			report.Seeded = append(report.Seeded, snap.SourceName)
		default:
			next[snap.SourceName] = snap.IncidentID
			report.Changes = append(report.Changes, Change{
				Source:      snap.SourceName,
				URL:         out.Source.URL,
				IncidentID:  snap.IncidentID,
				PreviousID:  prev,
				Title:       snap.Title,
				Link:        snap.Link,
				Summary:     snap.Summary,
				PublishedAt: snap.PublishedAt,
				DetectedAt:  snap.FetchedAt,
				FirstSeen:   !known,
				CycleID:     report.ID,
			})
		}
	}

	for _, ch := range report.Changes {
		s.dispatch(logger, ch)
	}
	s.metrics.Changes(len(report.Changes))

	// PERSISTING: the commit must not be skipped because shutdown began
	// after the barrier
	result := metrics.ResultOK
	if err := s.store.Commit(context.WithoutCancel(ctx), next); err != nil {
		report.PersistErr = err
		result = metrics.ResultPersistFailed
		s.metrics.PersistFailure()
		logger.Error("state commit failed", "error", err, "entries", len(next))
	} else {
		report.Committed = true
	}
	// keep the updates in memory either way so a failed commit is retried
	// next cycle and changes are not emitted twice
	s.entries = next

	finished := s.now()
	report.Duration = finished.Sub(report.StartedAt)
	s.metrics.ObserveCycle(result, report.Duration, finished)
	s.lastCycle.Store(finished.UnixNano())

	logger.Info("poll cycle complete",
		"sources", report.Sources,
		"succeeded", report.Succeeded,
		"failed", len(report.Failures),
		"changes", len(report.Changes),
		"seeded", len(report.Seeded),
		"committed", report.Committed,
		"duration", report.Duration,
	)
	return report, nil
}

// reload re-reads the registry, falling back to the last good source list
// when it cannot be loaded.
func (s *Scheduler) reload(logger *slog.Logger) []registry.Source {
	sources, err := s.registry.Load()
	if err != nil {
		logger.Warn("sources reload failed, reusing last known good",
			"error", err,
			"sources", len(s.sources),
		)
		return s.sources
	}
	s.sources = sources
	return sources
}

// outcome is the result of polling one source. Exactly one of Snapshot and
// Err is set.
type outcome struct {
	Source   registry.Source
	Snapshot *Snapshot
	Err      error
}

// errNotStarted marks sources skipped because shutdown began before their
// unit could start.
var errNotStarted = errors.New("not polled: shutdown in progress")

// fetchAll polls every source with at most maxConcurrency units in flight
// and waits for all of them. Each unit writes only its own slot.
//
// Fetches run on a context detached from ctx. Once ctx is done no further
// units start, and the ones in flight get the grace period before being
// cancelled. abandoned reports that the grace period ran out.
func (s *Scheduler) fetchAll(ctx context.Context, logger *slog.Logger, sources []registry.Source) (outcomes []outcome, abandoned bool) {
	outcomes = make([]outcome, len(sources))
	if len(sources) == 0 {
		return outcomes, false
	}

	fetchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	var expired atomic.Bool
	done := make(chan struct{})
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		select {
		case <-done:
			return
		case <-ctx.Done():
		}

		logger.Info("shutdown requested, waiting for in-flight fetches", "grace", s.grace)
		timer := time.NewTimer(s.grace)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			expired.Store(true)
			cancel()
		}
	}()

	g := new(errgroup.Group)
	g.SetLimit(s.maxConcurrency)
	for i, src := range sources {
		if ctx.Err() != nil {
			outcomes[i] = outcome{Source: src, Err: errNotStarted}
			continue
		}
		g.Go(func() error {
			outcomes[i] = s.poll(fetchCtx, logger, src)
			return nil
		})
	}
	_ = g.Wait()
	close(done)
	<-watcherDone

	return outcomes, expired.Load()
}

// poll fetches and parses one source. Panics are recovered into a parse
// failure for this source only.
func (s *Scheduler) poll(ctx context.Context, logger *slog.Logger, src registry.Source) (out outcome) {
	out.Source = src

	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			logger.Error("poll unit panic",
				"correlation_id", correlationID,
				"source", src.Name,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			out.Snapshot = nil
			out.Err = &feed.ParseError{Reason: fmt.Sprintf("panic while polling (correlation_id: %s)", correlationID)}
		}
	}()

	if err := registry.ValidateURL(src.URL); err != nil {
		out.Err = &FetchError{Kind: KindNetwork, URL: src.URL, Err: err}
		return out
	}

	body, err := s.fetcher.Fetch(ctx, src.URL, s.timeout)
	if err != nil {
		out.Err = err
		return out
	}

	entry, err := s.parse(body)
	if err != nil {
		out.Err = err
		return out
	}
	if entry.Lenient {
		logger.Warn("malformed feed parsed leniently",
			"source", src.Name,
			"url", src.URL,
			"kind", kindMalformed,
			"error", entry.StrictErr,
		)
	}

	out.Snapshot = &Snapshot{
		SourceName:  src.Name,
		IncidentID:  entry.ID,
		Title:       entry.Title,
		Link:        entry.Link,
		Summary:     entry.Summary,
		PublishedAt: entry.Published,
		FetchedAt:   s.now(),
		Lenient:     entry.Lenient,
	}
	return out
}

// dispatch hands a change to the emitter and then every observer.
func (s *Scheduler) dispatch(logger *slog.Logger, ch Change) {
	if s.emitter != nil {
		s.emitter.Emit(ch)
	}
	for _, obs := range s.observers {
		invokeObserverSafe(logger, obs, ch)
	}
}

// invokeObserverSafe calls obs with panic recovery.
func invokeObserverSafe(logger *slog.Logger, obs Observer, ch Change) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("change observer panic",
				"source", ch.Source,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	obs(ch)
}

// kindMalformed is logged for feeds the strict parser rejected but the
// lenient parser recovered.
const kindMalformed = "malformed"

// failureKind maps a unit error to the kind recorded in logs and metrics.
func failureKind(err error) string {
	var fe *FetchError
	if errors.As(err, &fe) {
		return string(fe.Kind)
	}
	if errors.Is(err, errNotStarted) {
		return "cancelled"
	}
	if feed.IsParseError(err) {
		return "parse"
	}
	return string(KindNetwork)
}
