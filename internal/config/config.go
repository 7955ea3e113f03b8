// Package config provides unified configuration loading for equilibria.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nvandessel/equilibria/internal/agent"
	"github.com/nvandessel/equilibria/internal/constants"
	"github.com/nvandessel/equilibria/internal/simulation"
	"gopkg.in/yaml.v3"
)

// EquilibriaConfig contains all equilibria configuration settings.
type EquilibriaConfig struct {
	// Simulation contains the default run parameters.
	Simulation SimulationSettings `json:"simulation" yaml:"simulation"`

	// Rules holds the update rule used for each family of games.
	Rules RulesConfig `json:"rules" yaml:"rules"`

	// Logging contains settings for operational logging and game traces.
	Logging LoggingConfig `json:"logging" yaml:"logging"`

	// Store selects where saved runs live.
	Store StoreConfig `json:"store" yaml:"store"`
}

// SimulationSettings are the run parameters used when no flag overrides them.
type SimulationSettings struct {
	Population     int    `json:"population" yaml:"population"`
	Sessions       int    `json:"sessions" yaml:"sessions"`
	Seed           uint64 `json:"seed" yaml:"seed"`
	RetainOutcomes bool   `json:"retain_outcomes" yaml:"retain_outcomes"`
}

// RulesConfig keeps the two-choice and N-choice rules independently tunable.
type RulesConfig struct {
	TwoChoice agent.Rule `json:"two_choice" yaml:"two_choice"`
	NChoice   agent.Rule `json:"n_choice" yaml:"n_choice"`
}

// LoggingConfig configures equilibria's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables game tracing to games.jsonl in the data directory.
	Level string `json:"level" yaml:"level"`
}

// StoreConfig configures run persistence.
type StoreConfig struct {
	// Backend is "sqlite" (default) or "memory".
	Backend string `json:"backend" yaml:"backend"`

	// Dir is the data directory. Supports ${VAR} syntax. Empty means
	// ~/.equilibria.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
}

// Default returns an EquilibriaConfig with sensible defaults.
func Default() *EquilibriaConfig {
	return &EquilibriaConfig{
		Simulation: SimulationSettings{
			Population:     constants.DefaultPopulationSize,
			Sessions:       constants.DefaultSessions,
			Seed:           constants.DefaultSeed,
			RetainOutcomes: true,
		},
		Rules: RulesConfig{
			TwoChoice: agent.TwoChoiceRule(),
			NChoice:   agent.NChoiceRule(),
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Store: StoreConfig{
			Backend: constants.BackendSQLite.String(),
		},
	}
}

// Path returns the location of the user config file.
func Path() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(homeDir, constants.DataDirName, "config.yaml"), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.equilibria/config.yaml -> environment variables
func Load() (*EquilibriaConfig, error) {
	config := Default()

	if configPath, err := Path(); err == nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*EquilibriaConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Store.Dir = expandEnvVars(config.Store.Dir)

	return config, nil
}

// Save writes the configuration to ~/.equilibria/config.yaml.
func Save(config *EquilibriaConfig) error {
	configPath, err := Path()
	if err != nil {
		return err
	}
	return SaveToFile(config, configPath)
}

// SaveToFile writes the configuration as YAML, creating parent directories.
func SaveToFile(config *EquilibriaConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is valid.
func (c *EquilibriaConfig) Validate() error {
	if c.Simulation.Population < constants.MinPopulationSize {
		return fmt.Errorf("simulation.population must be at least %d, got %d", constants.MinPopulationSize, c.Simulation.Population)
	}

	if c.Simulation.Sessions < 1 {
		return fmt.Errorf("simulation.sessions must be at least 1, got %d", c.Simulation.Sessions)
	}

	if err := c.Rules.TwoChoice.ValidateFor(2); err != nil {
		return fmt.Errorf("rules.two_choice: %w", err)
	}

	if err := c.Rules.NChoice.Validate(); err != nil {
		return fmt.Errorf("rules.n_choice: %w", err)
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	if c.Store.Backend != "" && !constants.Backend(c.Store.Backend).Valid() {
		return fmt.Errorf("invalid store backend: %s (valid: sqlite, memory)", c.Store.Backend)
	}

	return nil
}

// RuleFor returns the configured rule for a game with n choices.
func (c *EquilibriaConfig) RuleFor(n int) agent.Rule {
	if n == 2 {
		return c.Rules.TwoChoice
	}
	return c.Rules.NChoice
}

// SimulationConfig maps the settings onto a run configuration for a game
// with choiceCount choices.
func (c *EquilibriaConfig) SimulationConfig(choiceCount int) simulation.Config {
	rule := c.RuleFor(choiceCount)
	return simulation.Config{
		PopulationSize: c.Simulation.Population,
		Sessions:       c.Simulation.Sessions,
		Seed:           c.Simulation.Seed,
		Rule:           &rule,
		RetainOutcomes: c.Simulation.RetainOutcomes,
	}
}

// DataDir resolves the directory holding the run database and game traces.
func (c *EquilibriaConfig) DataDir() (string, error) {
	if c.Store.Dir != "" {
		return c.Store.Dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(homeDir, constants.DataDirName), nil
}

// StoreBackend returns the configured backend, defaulting to sqlite.
func (c *EquilibriaConfig) StoreBackend() constants.Backend {
	if c.Store.Backend == "" {
		return constants.BackendSQLite
	}
	return constants.Backend(c.Store.Backend)
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *EquilibriaConfig) {
	if v := os.Getenv("EQUILIBRIA_POPULATION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Simulation.Population = n
		}
	}

	if v := os.Getenv("EQUILIBRIA_SESSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Simulation.Sessions = n
		}
	}

	if v := os.Getenv("EQUILIBRIA_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			config.Simulation.Seed = n
		}
	}

	if v := os.Getenv("EQUILIBRIA_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}

	if v := os.Getenv("EQUILIBRIA_STORE"); v != "" {
		config.Store.Backend = v
	}

	if v := os.Getenv("EQUILIBRIA_DIR"); v != "" {
		config.Store.Dir = v
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
