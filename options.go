package statuswatch

import (
	"errors"
	"io"
	"log/slog"
	"time"
)

// swConfig holds mutable state during StatusWatch construction.
type swConfig struct {
	sourcesFile     string
	sources         []Source
	watchSources    bool
	stateStore      StateStore
	pollingInterval time.Duration
	timeout         time.Duration
	maxConcurrency  int
	gracePeriod     time.Duration
	firstSeen       FirstSeenPolicy
	output          io.Writer
	outputFormat    OutputFormat
	logger          *slog.Logger
	changeCallbacks []func(Change)
	port            int
	historySize     int
	rateLimit       float64
	rateBurst       int
	userAgent       string
}

// Option is a function that configures a [StatusWatch] instance during construction.
//
// Option implements the functional options pattern, allowing optional
// configuration to be passed to [New] in a type-safe, extensible way.
// Options return an error if validation fails.
type Option func(*swConfig) error

// WithSourcesFile reads sources from a JSON or YAML file mapping names to
// feed URLs. The file is re-read at the start of every poll cycle, so edits
// take effect without a restart.
//
// Example sources.json:
//
//	{
//	    "GitHub": "https://www.githubstatus.com/history.atom",
//	    "Slack": "https://slack-status.com/feed/atom"
//	}
func WithSourcesFile(path string) Option {
	return func(cfg *swConfig) error {
		if path == "" {
			return errors.New("sources file path cannot be empty")
		}
		cfg.sourcesFile = path
		return nil
	}
}

// WithSources adds a fixed list of sources to poll.
//
// Can be called multiple times. Cannot be combined with [WithSourcesFile].
func WithSources(sources ...Source) Option {
	return func(cfg *swConfig) error {
		cfg.sources = append(cfg.sources, sources...)
		return nil
	}
}

// WithWatchSources polls early whenever the sources file changes on disk
// instead of waiting for the next interval. Requires [WithSourcesFile].
func WithWatchSources(enabled bool) Option {
	return func(cfg *swConfig) error {
		cfg.watchSources = enabled
		return nil
	}
}

// WithStateStore sets where last seen incident ids are persisted.
// Defaults to [FileState]("state.json").
//
// Returns an error if the store is nil.
func WithStateStore(store StateStore) Option {
	return func(cfg *swConfig) error {
		if store == nil {
			return errors.New("state store cannot be nil")
		}
		cfg.stateStore = store
		return nil
	}
}

// WithPollingInterval sets the pause between poll cycles.
//
// The pause starts when a cycle finishes, so a slow cycle delays the next
// one rather than overlapping it. Defaults to 60 seconds.
//
// Returns an error if the duration is zero or negative.
func WithPollingInterval(d time.Duration) Option {
	return func(cfg *swConfig) error {
		if d <= 0 {
			return errors.New("polling interval must be positive")
		}
		cfg.pollingInterval = d
		return nil
	}
}

// WithTimeout bounds each feed request, including reading the body.
// Defaults to 10 seconds.
//
// Returns an error if the duration is zero or negative.
func WithTimeout(d time.Duration) Option {
	return func(cfg *swConfig) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		cfg.timeout = d
		return nil
	}
}

// WithMaxConcurrency sets how many feeds are fetched at once.
// Defaults to 20.
//
// Returns an error if the value is zero or negative.
func WithMaxConcurrency(n int) Option {
	return func(cfg *swConfig) error {
		if n <= 0 {
			return errors.New("max concurrency must be positive")
		}
		cfg.maxConcurrency = n
		return nil
	}
}

// WithGracePeriod sets how long in-flight fetches may run after shutdown is
// requested. Past it the cycle is abandoned without emitting or persisting
// anything. Defaults to 5 seconds; zero abandons immediately.
//
// Returns an error if the duration is negative.
func WithGracePeriod(d time.Duration) Option {
	return func(cfg *swConfig) error {
		if d < 0 {
			return errors.New("grace period cannot be negative")
		}
		cfg.gracePeriod = d
		return nil
	}
}

// WithFirstSeenPolicy sets how a source's first observed incident is
// handled. Defaults to [FirstSeenNotify].
func WithFirstSeenPolicy(p FirstSeenPolicy) Option {
	return func(cfg *swConfig) error {
		switch p {
		case FirstSeenNotify, FirstSeenSeed:
			cfg.firstSeen = p
			return nil
		default:
			return errors.New("first seen policy must be notify or seed")
		}
	}
}

// WithOutput sets where change lines are written. Defaults to os.Stdout.
// Only changes are written here; diagnostics go to the logger.
//
// Returns an error if w is nil.
func WithOutput(w io.Writer) Option {
	return func(cfg *swConfig) error {
		if w == nil {
			return errors.New("output cannot be nil")
		}
		cfg.output = w
		return nil
	}
}

// WithOutputFormat selects text or JSON change lines. Defaults to [OutputText].
func WithOutputFormat(f OutputFormat) Option {
	return func(cfg *swConfig) error {
		switch f {
		case OutputText, OutputJSON:
			cfg.outputFormat = f
			return nil
		default:
			return errors.New("output format must be text or json")
		}
	}
}

// WithLogger sets a custom [slog.Logger] for diagnostics. If not specified,
// [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *swConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithChangeCallback registers a function called for every change, after
// the change line is written.
//
// Callbacks run synchronously on the poll loop in registration order and
// must not block. Panics are recovered and logged. Nil callbacks are
// silently ignored.
//
// Example:
//
//	sw, err := statuswatch.New(
//	    statuswatch.WithSourcesFile("sources.json"),
//	    statuswatch.WithChangeCallback(func(ch statuswatch.Change) {
//	        pager.Notify(ch.Source, ch.Title)
//	    }),
//	)
func WithChangeCallback(cb func(Change)) Option {
	return func(cfg *swConfig) error {
		if cb == nil {
			return nil
		}
		cfg.changeCallbacks = append(cfg.changeCallbacks, cb)
		return nil
	}
}

// WithPort serves recent changes, metrics and health over HTTP on port.
// The HTTP view is disabled unless this option is given.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) Option {
	return func(cfg *swConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithHistorySize sets how many recent changes the HTTP view keeps.
// Defaults to 50.
//
// Returns an error if n is zero or negative.
func WithHistorySize(n int) Option {
	return func(cfg *swConfig) error {
		if n <= 0 {
			return errors.New("history size must be positive")
		}
		cfg.historySize = n
		return nil
	}
}

// WithRateLimit caps outgoing feed requests at rps per second with the given
// burst, across all sources. Zero rps disables the limit.
//
// Returns an error if rps is negative or burst is less than 1.
func WithRateLimit(rps float64, burst int) Option {
	return func(cfg *swConfig) error {
		if rps < 0 {
			return errors.New("rate limit cannot be negative")
		}
		if burst < 1 {
			return errors.New("rate limit burst must be at least 1")
		}
		cfg.rateLimit = rps
		cfg.rateBurst = burst
		return nil
	}
}

// WithUserAgent overrides the User-Agent sent with feed requests.
func WithUserAgent(ua string) Option {
	return func(cfg *swConfig) error {
		if ua == "" {
			return errors.New("user agent cannot be empty")
		}
		cfg.userAgent = ua
		return nil
	}
}
