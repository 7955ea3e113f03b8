package simulation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nvandessel/equilibria/internal/agent"
	"github.com/nvandessel/equilibria/internal/game"
	"github.com/nvandessel/equilibria/internal/logging"
)

// SessionSummary captures aggregate numbers for one session.
type SessionSummary struct {
	Index      int     `json:"index"`
	Games      int     `json:"games"`
	MeanPayoff float64 `json:"mean_payoff"` // mean over both sides of every game
}

// Result is the output of a completed run.
type Result struct {
	Agents   []*agent.Agent
	Outcomes []Outcome // empty unless Config.RetainOutcomes
	Matchups *MatchupTable
	Sessions []SessionSummary
}

// States returns a snapshot of every agent in population order.
func (r *Result) States() []agent.State {
	states := make([]agent.State, len(r.Agents))
	for i, a := range r.Agents {
		states[i] = a.Snapshot()
	}
	return states
}

// Runner executes one simulation. A Runner owns its population and random
// source and is not safe for concurrent use.
type Runner struct {
	spec   *game.Spec
	cfg    Config
	src    agent.RandomSource
	logger *slog.Logger
	tracer *logging.GameTracer
}

// NewRunner validates the configuration and prepares a run. The random
// source is seeded from cfg.Seed unless replaced with SetSource.
func NewRunner(spec *game.Spec, cfg Config) (*Runner, error) {
	if spec == nil {
		return nil, game.Configf("game", "no game given")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.RuleFor(spec.ChoiceCount()).ValidateFor(spec.ChoiceCount()); err != nil {
		return nil, err
	}
	return &Runner{
		spec: spec,
		cfg:  cfg,
		src:  agent.NewSource(cfg.Seed),
	}, nil
}

// SetLogger sets the structured logger and game tracer for observability.
// Either may be nil.
func (r *Runner) SetLogger(logger *slog.Logger, tracer *logging.GameTracer) {
	r.logger = logger
	r.tracer = tracer
}

// SetSource replaces the seeded random source, e.g. with a scripted one in
// tests.
func (r *Runner) SetSource(src agent.RandomSource) {
	r.src = src
}

// Population builds a fresh population P1..Pn with uniform strategies.
func (r *Runner) Population() ([]*agent.Agent, error) {
	n := r.spec.ChoiceCount()
	rule := r.cfg.RuleFor(n)
	agents := make([]*agent.Agent, r.cfg.PopulationSize)
	for i := range agents {
		a, err := agent.New(fmt.Sprintf("P%d", i+1), n, rule)
		if err != nil {
			return nil, err
		}
		agents[i] = a
	}
	return agents, nil
}

// Run plays every session in order and returns the final population.
// Any error aborts the run; there is no partial result.
func (r *Runner) Run() (*Result, error) {
	return r.RunContext(context.Background())
}

// RunContext is Run with cancellation, checked before each session.
func (r *Runner) RunContext(ctx context.Context) (*Result, error) {
	agents, err := r.Population()
	if err != nil {
		return nil, err
	}

	result := &Result{
		Agents:   agents,
		Matchups: NewMatchupTable(r.spec.ChoiceCount()),
	}

	if r.logger != nil {
		r.logger.Info("simulation starting",
			"game", r.spec.Title(),
			"choices", r.spec.ChoiceCount(),
			"population", r.cfg.PopulationSize,
			"sessions", r.cfg.Sessions,
			"seed", r.cfg.Seed,
			"rule", r.cfg.RuleFor(r.spec.ChoiceCount()).String())
	}

	for s := 0; s < r.cfg.Sessions; s++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("simulation stopped before session %d: %w", s, err)
		}
		outcomes, err := runSession(s, agents, r.spec, r.src, r.trace)
		if err != nil {
			return nil, err
		}

		total := 0
		for _, o := range outcomes {
			result.Matchups.Record(o)
			total += o.PayoffA + o.PayoffB
		}
		summary := SessionSummary{Index: s, Games: len(outcomes)}
		if len(outcomes) > 0 {
			summary.MeanPayoff = float64(total) / float64(2*len(outcomes))
		}
		result.Sessions = append(result.Sessions, summary)
		if r.cfg.RetainOutcomes {
			result.Outcomes = append(result.Outcomes, outcomes...)
		}

		if r.logger != nil {
			r.logger.Debug("session complete",
				"session", s,
				"games", summary.Games,
				"mean_payoff", summary.MeanPayoff)
		}
	}

	if r.logger != nil {
		r.logger.Info("simulation complete",
			"games_per_agent", r.cfg.GamesPerAgent(),
			"outcomes", len(result.Outcomes))
	}
	return result, nil
}

// trace records one game to the tracer at debug level. At trace level the
// players' strategies after the update are included.
func (r *Runner) trace(o Outcome, a, b *agent.Agent) {
	if r.tracer == nil {
		return
	}
	event := map[string]any{
		"event":    "game",
		"game":     r.spec.Title(),
		"session":  o.Session,
		"index":    o.Game,
		"agent_a":  o.AgentA,
		"agent_b":  o.AgentB,
		"choice_a": r.spec.ChoiceName(o.ChoiceA),
		"choice_b": r.spec.ChoiceName(o.ChoiceB),
		"payoff_a": o.PayoffA,
		"payoff_b": o.PayoffB,
	}
	if r.tracer.Verbose() {
		event["strategy_a"] = a.Strategy()
		event["strategy_b"] = b.Strategy()
	}
	r.tracer.Log(event)
}

// RunSimulation builds a population of cfg.PopulationSize agents and plays
// cfg.Sessions sessions with a source seeded from cfg.Seed.
func RunSimulation(spec *game.Spec, cfg Config) (*Result, error) {
	r, err := NewRunner(spec, cfg)
	if err != nil {
		return nil, err
	}
	return r.Run()
}
