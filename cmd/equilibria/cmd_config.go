package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/nvandessel/equilibria/internal/config"
	"github.com/spf13/cobra"
)

// configKeys lists every settable key in display order.
var configKeys = []string{
	"simulation.population",
	"simulation.sessions",
	"simulation.seed",
	"simulation.retain_outcomes",
	"rules.two_choice.step_divisor",
	"rules.two_choice.lower",
	"rules.two_choice.upper",
	"rules.n_choice.step_divisor",
	"rules.n_choice.lower",
	"rules.n_choice.upper",
	"logging.level",
	"store.backend",
	"store.dir",
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage equilibria configuration",
		Long: `View and modify equilibria configuration settings.

Configuration is stored in ~/.equilibria/config.yaml. Environment variables
(EQUILIBRIA_POPULATION, EQUILIBRIA_SESSIONS, EQUILIBRIA_SEED,
EQUILIBRIA_LOG_LEVEL, EQUILIBRIA_STORE, EQUILIBRIA_DIR) override the file.

Examples:
  equilibria config list
  equilibria config get simulation.population
  equilibria config set simulation.population 25
  equilibria config set rules.two_choice.step_divisor 20`,
	}

	cmd.AddCommand(
		newConfigListCmd(),
		newConfigGetCmd(),
		newConfigSetCmd(),
	)

	return cmd
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}

			if jsonOutput(cmd) {
				return writeJSON(cmd, settings)
			}

			w := cmd.OutOrStdout()
			for _, key := range configKeys {
				value, _ := getConfigValue(settings, key)
				if s, ok := value.(string); ok && s == "" {
					value = "(default)"
				}
				fmt.Fprintf(w, "  %-31s %v\n", key+":", value)
			}
			return nil
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]

			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}

			value, found := getConfigValue(settings, key)
			if !found {
				return fmt.Errorf("unknown configuration key: %s", key)
			}

			if jsonOutput(cmd) {
				return writeJSON(cmd, map[string]any{
					"key":   key,
					"value": value,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", key, value)
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]

			// Edit the file itself so environment overrides are not persisted.
			path, _ := cmd.Flags().GetString("config")
			if path == "" {
				var err error
				if path, err = config.Path(); err != nil {
					return err
				}
			}
			settings := config.Default()
			if _, err := os.Stat(path); err == nil {
				if settings, err = config.LoadFromFile(path); err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
			}

			if err := setConfigValue(settings, key, value); err != nil {
				return err
			}
			if err := settings.Validate(); err != nil {
				return fmt.Errorf("invalid value for %s: %w", key, err)
			}

			if err := config.SaveToFile(settings, path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}

			if jsonOutput(cmd) {
				return writeJSON(cmd, map[string]any{
					"status": "updated",
					"key":    key,
					"value":  value,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
			return nil
		},
	}
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.EquilibriaConfig, key string) (any, bool) {
	switch key {
	case "simulation.population":
		return cfg.Simulation.Population, true
	case "simulation.sessions":
		return cfg.Simulation.Sessions, true
	case "simulation.seed":
		return cfg.Simulation.Seed, true
	case "simulation.retain_outcomes":
		return cfg.Simulation.RetainOutcomes, true
	case "rules.two_choice.step_divisor":
		return cfg.Rules.TwoChoice.StepDivisor, true
	case "rules.two_choice.lower":
		return cfg.Rules.TwoChoice.Lower, true
	case "rules.two_choice.upper":
		return cfg.Rules.TwoChoice.Upper, true
	case "rules.n_choice.step_divisor":
		return cfg.Rules.NChoice.StepDivisor, true
	case "rules.n_choice.lower":
		return cfg.Rules.NChoice.Lower, true
	case "rules.n_choice.upper":
		return cfg.Rules.NChoice.Upper, true
	case "logging.level":
		return cfg.Logging.Level, true
	case "store.backend":
		return cfg.Store.Backend, true
	case "store.dir":
		return cfg.Store.Dir, true
	default:
		return nil, false
	}
}

// setConfigValue sets a configuration value by dot-notation key. Range checks
// are left to EquilibriaConfig.Validate.
func setConfigValue(cfg *config.EquilibriaConfig, key, value string) error {
	switch key {
	case "simulation.population":
		return setInt(&cfg.Simulation.Population, value)
	case "simulation.sessions":
		return setInt(&cfg.Simulation.Sessions, value)
	case "simulation.seed":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid seed: %s (must be a non-negative integer)", value)
		}
		cfg.Simulation.Seed = n
	case "simulation.retain_outcomes":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %s", value)
		}
		cfg.Simulation.RetainOutcomes = b
	case "rules.two_choice.step_divisor":
		return setFloat(&cfg.Rules.TwoChoice.StepDivisor, value)
	case "rules.two_choice.lower":
		return setFloat(&cfg.Rules.TwoChoice.Lower, value)
	case "rules.two_choice.upper":
		return setFloat(&cfg.Rules.TwoChoice.Upper, value)
	case "rules.n_choice.step_divisor":
		return setFloat(&cfg.Rules.NChoice.StepDivisor, value)
	case "rules.n_choice.lower":
		return setFloat(&cfg.Rules.NChoice.Lower, value)
	case "rules.n_choice.upper":
		return setFloat(&cfg.Rules.NChoice.Upper, value)
	case "logging.level":
		cfg.Logging.Level = value
	case "store.backend":
		cfg.Store.Backend = value
	case "store.dir":
		cfg.Store.Dir = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}

func setInt(dst *int, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid integer: %s", value)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid number: %s", value)
	}
	*dst = f
	return nil
}
