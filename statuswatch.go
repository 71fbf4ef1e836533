package statuswatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/jpalmerr/statuswatch/internal/emitter"
	"github.com/jpalmerr/statuswatch/internal/metrics"
	"github.com/jpalmerr/statuswatch/internal/notify"
	"github.com/jpalmerr/statuswatch/internal/poller"
	"github.com/jpalmerr/statuswatch/internal/registry"
	"github.com/jpalmerr/statuswatch/internal/server"
	"github.com/jpalmerr/statuswatch/internal/store"
	"github.com/jpalmerr/statuswatch/internal/watch"
)

// Version is the release version, set at build time via
// -ldflags "-X github.com/jpalmerr/statuswatch.Version=1.0.0".
var Version = "dev"

const defaultStateFile = "state.json"

// ErrCycleAbandoned is returned by [StatusWatch.RunOnce] when ctx was
// cancelled and in-flight fetches outlived the grace period. Nothing from
// the cycle was reported or persisted.
var ErrCycleAbandoned = poller.ErrCycleAbandoned

// StatusWatch polls status feeds and reports each source's new incidents.
//
// StatusWatch is created using [New] with functional options and run with
// [StatusWatch.Start], or one cycle at a time with [StatusWatch.RunOnce].
//
// The typical lifecycle is:
//
//	sw, err := statuswatch.New(statuswatch.WithSourcesFile("sources.json"))
//	if err != nil {
//	    slog.Error("failed to create statuswatch", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	sw.Start(ctx) // blocks until context cancelled
type StatusWatch struct {
	sourcesFile     string
	watchSources    bool
	pollingInterval time.Duration
	port            int
	logger          *slog.Logger

	client    *poller.Client
	scheduler *poller.Scheduler
	metrics   *metrics.Metrics
	recent    *store.MemoryStore
	wake      *notify.Signal

	// serializes Start and RunOnce
	mu sync.Mutex
}

// New creates a [StatusWatch] with the given options.
//
// Exactly one of [WithSourcesFile] and [WithSources] must be used. Other
// options have defaults:
//   - Polling interval: 60 seconds
//   - Request timeout: 10 seconds
//   - Max concurrency: 20
//   - Grace period: 5 seconds
//   - State: JSON file "state.json"
//   - Output: text lines on stdout
//
// Returns an error if an option is invalid or the sources are misconfigured.
func New(opts ...Option) (*StatusWatch, error) {
	cfg := &swConfig{
		pollingInterval: poller.DefaultInterval,
		timeout:         poller.DefaultTimeout,
		maxConcurrency:  poller.DefaultMaxConcurrency,
		gracePeriod:     poller.DefaultGracePeriod,
		firstSeen:       FirstSeenNotify,
		output:          os.Stdout,
		outputFormat:    OutputText,
		historySize:     store.DefaultCapacity,
		rateBurst:       1,
		userAgent:       "statuswatch/" + Version,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	var reg poller.Registry
	switch {
	case cfg.sourcesFile != "" && len(cfg.sources) > 0:
		return nil, errors.New("use either a sources file or explicit sources, not both")
	case cfg.sourcesFile != "":
		reg = registry.New(cfg.sourcesFile)
	case len(cfg.sources) > 0:
		static := toRegistrySources(cfg.sources)
		if err := registry.Validate(static); err != nil {
			return nil, err
		}
		reg = static
	default:
		return nil, errors.New("a sources file or at least one source is required")
	}
	if cfg.watchSources && cfg.sourcesFile == "" {
		return nil, errors.New("watching sources requires a sources file")
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	stateStore := cfg.stateStore
	if stateStore == nil {
		stateStore = FileState(defaultStateFile)
	}

	out, err := emitter.New(cfg.output, emitter.Format(cfg.outputFormat), logger)
	if err != nil {
		return nil, err
	}

	sw := &StatusWatch{
		sourcesFile:     cfg.sourcesFile,
		watchSources:    cfg.watchSources,
		pollingInterval: cfg.pollingInterval,
		port:            cfg.port,
		logger:          logger,
		client: poller.NewClient(
			poller.WithRateLimit(cfg.rateLimit, cfg.rateBurst),
			poller.WithUserAgent(cfg.userAgent),
		),
		metrics: metrics.New(),
		recent:  store.NewMemoryStore(cfg.historySize),
	}

	observers := []poller.Observer{sw.record}
	for _, cb := range cfg.changeCallbacks {
		observers = append(observers, func(ch poller.Change) { cb(toPublicChange(ch)) })
	}

	var wake func() <-chan struct{}
	if cfg.watchSources {
		sw.wake = notify.NewSignal()
		wake = sw.wake.C
	}

	sw.scheduler, err = poller.NewScheduler(poller.Options{
		Registry:       reg,
		Fetcher:        sw.client,
		State:          stateStore,
		Emitter:        out,
		Observers:      observers,
		Metrics:        sw.metrics,
		Logger:         logger,
		Wake:           wake,
		Interval:       cfg.pollingInterval,
		Timeout:        cfg.timeout,
		MaxConcurrency: cfg.maxConcurrency,
		GracePeriod:    cfg.gracePeriod,
		FirstSeen:      poller.FirstSeenPolicy(cfg.firstSeen),
	})
	if err != nil {
		return nil, err
	}
	return sw, nil
}

// Start loads the persisted state and polls until ctx is cancelled.
//
// Start is a blocking call. During execution:
//
//   - Sources are polled immediately, then after each polling interval
//   - Each change is written to the output and passed to callbacks
//   - State is persisted once per completed cycle
//   - With [WithPort], recent changes are served at http://localhost:<port>
//
// Failures of individual sources, and failed state commits, are logged and
// never stop the loop. Returns nil on graceful shutdown. Returns an error if
// the state cannot be loaded or the HTTP server or sources watcher cannot
// start.
func (sw *StatusWatch) Start(ctx context.Context) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.logger.Info("statuswatch starting",
		"version", Version,
		"interval", sw.pollingInterval.String(),
	)

	if ctx.Err() != nil {
		return nil
	}

	if err := sw.scheduler.LoadState(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
		sw.client.Close()
	}()

	if sw.watchSources {
		w, err := watch.New(sw.sourcesFile, sw.wake, watch.DefaultDebounce, sw.logger)
		if err != nil {
			return fmt.Errorf("failed to watch sources file: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Run(ctx); err != nil {
				sw.logger.Error("sources watcher stopped", "error", err)
			}
		}()
		sw.logger.Info("watching sources file", "path", w.Path())
	}

	if sw.port > 0 {
		httpServer := server.NewServer(sw.recent, sw.port, sw.metrics.Handler(), sw.scheduler.LastCycle, sw.logger)
		if err := httpServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		sw.logger.Info("http view available", "url", fmt.Sprintf("http://localhost:%d", sw.port))
	}

	if err := sw.scheduler.Run(ctx); err != nil {
		return err
	}
	sw.logger.Info("statuswatch stopped")
	return nil
}

// RunOnce runs a single poll cycle, loading the persisted state first if
// needed. A failed state commit is reported in [Report.PersistErr] rather
// than as an error. Returns [ErrCycleAbandoned] if ctx was cancelled and
// the grace period ran out.
func (sw *StatusWatch) RunOnce(ctx context.Context) (Report, error) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	report, err := sw.scheduler.RunCycle(ctx)
	if err != nil {
		return Report{}, err
	}
	return toPublicReport(report), nil
}

// Close releases idle network connections. Start does this itself on
// return; call Close after using only [StatusWatch.RunOnce].
func (sw *StatusWatch) Close() {
	if sw == nil {
		return
	}
	sw.client.Close()
}

// Entries returns a copy of the last seen incident id per source, as held
// in memory. It is empty until state has been loaded.
func (sw *StatusWatch) Entries() map[string]string {
	return sw.scheduler.Entries()
}

// Recent returns the most recent changes, newest first, bounded by
// [WithHistorySize].
func (sw *StatusWatch) Recent() []Change {
	incidents := sw.recent.Recent()
	out := make([]Change, len(incidents))
	for i, inc := range incidents {
		out[i] = Change{
			Source:      inc.Source,
			URL:         inc.URL,
			IncidentID:  inc.IncidentID,
			PreviousID:  inc.PreviousID,
			Title:       inc.Title,
			Link:        inc.Link,
			Summary:     inc.Summary,
			PublishedAt: inc.PublishedAt,
			DetectedAt:  inc.DetectedAt,
			FirstSeen:   inc.FirstSeen,
			CycleID:     inc.CycleID,
		}
	}
	return out
}

// Port returns the HTTP port, or 0 when the HTTP view is disabled.
func (sw *StatusWatch) Port() int {
	return sw.port
}

// PollingInterval returns the pause between poll cycles.
func (sw *StatusWatch) PollingInterval() time.Duration {
	return sw.pollingInterval
}

// record keeps a change for the HTTP view.
func (sw *StatusWatch) record(ch poller.Change) {
	sw.recent.Add(store.Incident{
		Source:      ch.Source,
		URL:         ch.URL,
		IncidentID:  ch.IncidentID,
		PreviousID:  ch.PreviousID,
		Title:       ch.Title,
		Link:        ch.Link,
		Summary:     ch.Summary,
		PublishedAt: ch.PublishedAt,
		DetectedAt:  ch.DetectedAt,
		FirstSeen:   ch.FirstSeen,
		CycleID:     ch.CycleID,
		Message:     emitter.FormatLine(ch),
	})
}
