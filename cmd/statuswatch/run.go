package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/statuswatch"
	"github.com/jpalmerr/statuswatch/config"
	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 10 * time.Second
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll status feeds and report new incidents",
	Long: `Poll every source in the sources file and print a line for each new
incident.

Without --once the command polls immediately and then once per poll
interval until interrupted (Ctrl+C) or it receives SIGTERM. With --once it
runs a single cycle and exits; the exit code is non-zero if the state could
not be saved.

Without -c, defaults and environment variables are used.

Example:
  statuswatch run
  statuswatch run -c /etc/statuswatch/statuswatch.yaml
  POLL_INTERVAL=30 statuswatch run --once`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("config", "c", "", "path to config file")
	runCmd.Flags().Bool("once", false, "run a single poll cycle and exit")
}

// loadConfig reads path, or builds the default configuration when path is
// empty. Environment overrides apply in both cases.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default()
	}
	return config.Load(path)
}

func runRun(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	once, _ := cmd.Flags().GetBool("once")

	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	rt, err := config.Build(cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("failed to set up: %w", err)
	}
	defer func() { _ = rt.Close() }()
	logger := rt.Logger

	logger.Info("config loaded",
		"sources_file", cfg.SourcesFile,
		"state_driver", cfg.State.Driver,
		"poll_interval", cfg.PollInterval.Duration().String(),
	)

	sw, err := statuswatch.New(rt.Options...)
	if err != nil {
		return fmt.Errorf("failed to create statuswatch: %w", err)
	}
	defer sw.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if once {
		report, err := sw.RunOnce(ctx)
		if err != nil {
			return fmt.Errorf("poll cycle failed: %w", err)
		}
		logger.Info("cycle complete",
			"cycle_id", report.ID,
			"sources", report.Sources,
			"changes", len(report.Changes),
			"failures", len(report.Failures),
		)
		if report.PersistErr != nil {
			return fmt.Errorf("failed to save state: %w", report.PersistErr)
		}
		return nil
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- sw.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("statuswatch error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("statuswatch error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
