package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/nvandessel/equilibria/internal/config"
	"github.com/nvandessel/equilibria/internal/logging"
	"github.com/nvandessel/equilibria/internal/store"
	"github.com/spf13/cobra"
)

// Set at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "equilibria",
		Short: "Learning agents playing repeated matrix games",
		Long: `equilibria simulates a population of simple reinforcement learners that
repeatedly play a two-player matrix game against each other.

Every session pairs each agent with every other agent once. After each game
an agent nudges its probability of repeating the choice it just made by how
much better or worse the payoff was than its running average.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.equilibria/config.yaml)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newValidateCmd(),
		newGamesCmd(),
		newRunsCmd(),
		newConfigCmd(),
		newMCPServerCmd(),
	)

	return rootCmd
}

// loadSettings loads the config file named by --config, or the user config.
func loadSettings(cmd *cobra.Command) (*config.EquilibriaConfig, error) {
	path, _ := cmd.Flags().GetString("config")

	var (
		settings *config.EquilibriaConfig
		err      error
	)
	if path != "" {
		settings, err = config.LoadFromFile(path)
	} else {
		settings, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return settings, nil
}

// newLogger logs at the configured level to the command's stderr.
func newLogger(cmd *cobra.Command, settings *config.EquilibriaConfig) *slog.Logger {
	return logging.NewLogger(settings.Logging.Level, cmd.ErrOrStderr())
}

// openStore opens the configured run store and returns it with the data
// directory it lives in.
func openStore(settings *config.EquilibriaConfig) (store.RunStore, string, error) {
	dataDir, err := settings.DataDir()
	if err != nil {
		return nil, "", err
	}
	runStore, err := store.Open(settings.StoreBackend(), dataDir)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open run store: %w", err)
	}
	return runStore, dataDir, nil
}

func jsonOutput(cmd *cobra.Command) bool {
	jsonOut, _ := cmd.Flags().GetBool("json")
	return jsonOut
}

func writeJSON(cmd *cobra.Command, v any) error {
	return json.NewEncoder(cmd.OutOrStdout()).Encode(v)
}
