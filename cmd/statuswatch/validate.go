package main

import (
	"fmt"

	"github.com/jpalmerr/statuswatch/internal/registry"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the config and sources files",
	Long: `Validate the configuration and the sources file it points at without
polling anything.

This command parses the YAML, applies environment overrides, expands
${VAR} references, validates every field and then loads the sources file.
It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config and sources are valid
  1 - Something is invalid (error details printed to stderr)

Example:
  statuswatch validate -c statuswatch.yaml
  SOURCES_FILE=sources.yaml statuswatch validate`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	sources, err := registry.New(cfg.SourcesFile).Load()
	if err != nil {
		return fmt.Errorf("invalid sources: %w", err)
	}
	for _, src := range sources {
		if err := registry.ValidateURL(src.URL); err != nil {
			return fmt.Errorf("invalid sources: source %q: %w", src.Name, err)
		}
	}

	httpView := "disabled"
	if cfg.HTTP.Port > 0 {
		httpView = fmt.Sprintf("port %d", cfg.HTTP.Port)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Sources:       %d (%s)\n", len(sources), cfg.SourcesFile)
	fmt.Fprintf(out, "  Poll interval: %s\n", cfg.PollInterval.Duration())
	fmt.Fprintf(out, "  State:         %s %s\n", cfg.State.Driver, cfg.State.Path)
	fmt.Fprintf(out, "  First seen:    %s\n", cfg.FirstSeen)
	fmt.Fprintf(out, "  HTTP view:     %s\n", httpView)

	return nil
}
