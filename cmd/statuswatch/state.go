package main

import (
	"fmt"
	"maps"
	"slices"
	"text/tabwriter"

	"github.com/jpalmerr/statuswatch"
	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print the persisted last seen incident per source",
	Long: `Open the configured state store and print the last seen incident id
for every source, sorted by name.

Example:
  statuswatch state -c statuswatch.yaml
  STATE_FILE=/var/lib/statuswatch/state.json statuswatch state`,
	RunE: runState,
}

func init() {
	rootCmd.AddCommand(stateCmd)

	stateCmd.Flags().StringP("config", "c", "", "path to config file")
}

func runState(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	st, err := statuswatch.OpenState(cfg.State.Driver, cfg.State.Path)
	if err != nil {
		return fmt.Errorf("failed to open state: %w", err)
	}
	defer func() { _ = st.Close() }()

	entries, err := st.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}

	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No incidents recorded yet.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tLAST INCIDENT")
	for _, name := range slices.Sorted(maps.Keys(entries)) {
		fmt.Fprintf(tw, "%s\t%s\n", name, entries[name])
	}
	return tw.Flush()
}
