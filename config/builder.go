package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jpalmerr/statuswatch"
	"github.com/jpalmerr/statuswatch/internal/logging"
)

// Runtime is everything [Build] opened for a run. Close releases the state
// store and any files opened for output or logs.
type Runtime struct {
	Options []statuswatch.Option
	Logger  *slog.Logger
	State   statuswatch.StateStore

	closers []io.Closer
}

// Close releases what Build opened, in reverse order.
func (r *Runtime) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// Build converts parsed configuration into SDK options.
//
// Diagnostics go to log.file if set, otherwise stderr. Change lines go to
// output.path if set, otherwise stdout. Files are opened for append.
func Build(cfg *Config, stdout, stderr io.Writer) (*Runtime, error) {
	rt := &Runtime{}

	logOut := stderr
	if cfg.Log.File != "" {
		f, err := openAppend(cfg.Log.File)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		rt.closers = append(rt.closers, f)
		logOut = f
	}
	logger, err := logging.New(logOut, logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	rt.Logger = logger

	out := stdout
	if cfg.Output.Path != "" {
		f, err := openAppend(cfg.Output.Path)
		if err != nil {
			_ = rt.Close()
			return nil, fmt.Errorf("open output file: %w", err)
		}
		rt.closers = append(rt.closers, f)
		out = f
	}

	st, err := statuswatch.OpenState(cfg.State.Driver, cfg.State.Path)
	if err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("open state: %w", err)
	}
	rt.closers = append(rt.closers, st)
	rt.State = st

	rt.Options = []statuswatch.Option{
		statuswatch.WithSourcesFile(cfg.SourcesFile),
		statuswatch.WithWatchSources(cfg.WatchSources),
		statuswatch.WithStateStore(st),
		statuswatch.WithPollingInterval(cfg.PollInterval.Duration()),
		statuswatch.WithTimeout(cfg.Timeout.Duration()),
		statuswatch.WithMaxConcurrency(cfg.MaxConcurrency),
		statuswatch.WithGracePeriod(cfg.Grace()),
		statuswatch.WithFirstSeenPolicy(statuswatch.FirstSeenPolicy(cfg.FirstSeen)),
		statuswatch.WithOutput(out),
		statuswatch.WithOutputFormat(statuswatch.OutputFormat(cfg.Output.Format)),
		statuswatch.WithLogger(logger),
		statuswatch.WithHistorySize(cfg.HTTP.HistorySize),
		statuswatch.WithRateLimit(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
	}
	if cfg.HTTP.Port > 0 {
		rt.Options = append(rt.Options, statuswatch.WithPort(cfg.HTTP.Port))
	}
	if cfg.UserAgent != "" {
		rt.Options = append(rt.Options, statuswatch.WithUserAgent(cfg.UserAgent))
	}

	return rt, nil
}

func openAppend(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
