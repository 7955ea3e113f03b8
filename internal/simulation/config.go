package simulation

import (
	"github.com/nvandessel/equilibria/internal/agent"
	"github.com/nvandessel/equilibria/internal/constants"
	"github.com/nvandessel/equilibria/internal/game"
)

// Config defines a complete simulation run.
type Config struct {
	PopulationSize int    `json:"population_size" yaml:"population_size"`
	Sessions       int    `json:"sessions" yaml:"sessions"`
	Seed           uint64 `json:"seed" yaml:"seed"`

	// Rule overrides the update rule. When nil, agent.DefaultRule picks the
	// tuned rule for the game's choice count.
	Rule *agent.Rule `json:"rule,omitempty" yaml:"rule,omitempty"`

	// RetainOutcomes keeps every game outcome in the result. The matchup
	// table is always built.
	RetainOutcomes bool `json:"retain_outcomes" yaml:"retain_outcomes"`
}

// DefaultConfig returns the standard ten-agent, fifty-session run.
func DefaultConfig() Config {
	return Config{
		PopulationSize: constants.DefaultPopulationSize,
		Sessions:       constants.DefaultSessions,
		Seed:           constants.DefaultSeed,
		RetainOutcomes: true,
	}
}

// Validate reports the first invalid setting as a *game.ConfigurationError.
func (c Config) Validate() error {
	if c.PopulationSize < constants.MinPopulationSize {
		return game.Configf("population_size", "must be at least %d, got %d", constants.MinPopulationSize, c.PopulationSize)
	}
	if c.Sessions < 1 {
		return game.Configf("sessions", "must be at least 1, got %d", c.Sessions)
	}
	if c.Rule != nil {
		if err := c.Rule.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// RuleFor resolves the update rule for a game with n choices.
func (c Config) RuleFor(n int) agent.Rule {
	if c.Rule != nil {
		return *c.Rule
	}
	return agent.DefaultRule(n)
}

// GamesPerAgent is the number of games each agent plays over the run.
func (c Config) GamesPerAgent() int {
	return c.Sessions * (c.PopulationSize - 1)
}
