// Package constants provides named constants used throughout equilibria.
// This centralizes magic numbers for better maintainability and documentation.
package constants

// Simulation defaults
const (
	// DefaultPopulationSize is the number of agents in a population.
	DefaultPopulationSize = 10

	// DefaultSessions is the number of round-robin passes per run.
	// With the default population each agent plays 50 * 9 = 450 games.
	DefaultSessions = 50

	// DefaultSeed seeds the random source when none is configured.
	DefaultSeed = 1

	// MinPopulationSize is the smallest population that produces a pairing.
	MinPopulationSize = 2
)

// Update rule tuning. The two-choice and N-choice rules were tuned
// separately and are kept independently configurable.
const (
	// ClassicStepDivisor is the divisor of the untuned rule.
	ClassicStepDivisor = 100.0

	// TwoChoiceStepDivisor is the divisor for two-choice games.
	TwoChoiceStepDivisor = 15.0

	// NChoiceStepDivisor is the divisor for games with three or more choices.
	NChoiceStepDivisor = 40.0

	// DefaultEpsilon keeps strategy components away from the absorbing 0 (and,
	// for two choices, 1).
	DefaultEpsilon = 0.001
)

// Numeric tolerances
const (
	// NormalizationTolerance bounds how far a strategy may sum from 1.
	NormalizationTolerance = 1e-6
)

// SeedStream is mixed into the second PCG word so seed 0 still yields a
// well-distributed stream.
const SeedStream uint64 = 0x9e3779b97f4a7c15

// Storage
const (
	// DataDirName is the per-user directory holding config and run history.
	DataDirName = ".equilibria"

	// DatabaseFileName is the SQLite file inside the data directory.
	DatabaseFileName = "equilibria.db"

	// GameTraceFileName is the JSONL file game outcomes are traced to at
	// debug level.
	GameTraceFileName = "games.jsonl"
)

// MCP limits
const (
	// MaxToolGames caps the games a single equilibria_run call may simulate.
	MaxToolGames = 2_000_000

	// MaxToolPopulation caps the population of a single equilibria_run call.
	// One session of this many agents stays under MaxToolGames.
	MaxToolPopulation = 2000

	// MaxToolHistoryAgents caps how many agents equilibria_show returns full
	// strategy histories for.
	MaxToolHistoryAgents = 50
)
