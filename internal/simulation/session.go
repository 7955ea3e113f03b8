package simulation

import (
	"fmt"

	"github.com/nvandessel/equilibria/internal/agent"
	"github.com/nvandessel/equilibria/internal/game"
	"github.com/nvandessel/equilibria/internal/schedule"
)

// Outcome records one game. AgentA is the row player.
type Outcome struct {
	Session int    `json:"session"`
	Game    int    `json:"game"`
	AgentA  string `json:"agent_a"`
	AgentB  string `json:"agent_b"`
	ChoiceA int    `json:"choice_a"`
	ChoiceB int    `json:"choice_b"`
	PayoffA int    `json:"payoff_a"`
	PayoffB int    `json:"payoff_b"`
}

// PlayGame plays a single game between a (row) and b (column): both sample
// a choice, the payoff cell is looked up, and each agent is updated with its
// own choice and payoff. Both agents are mutated.
func PlayGame(a, b *agent.Agent, spec *game.Spec, src agent.RandomSource) (Outcome, error) {
	n := spec.ChoiceCount()
	for _, ag := range []*agent.Agent{a, b} {
		if ag.ChoiceCount() != n {
			return Outcome{}, game.Configf("choices", "agent %s has %d choices, game %q has %d", ag.ID(), ag.ChoiceCount(), spec.Title(), n)
		}
	}

	choiceA := a.Choose(src)
	choiceB := b.Choose(src)
	payoff := spec.Payoff(choiceA, choiceB)

	if err := a.Update(choiceA, float64(payoff.Row)); err != nil {
		return Outcome{}, fmt.Errorf("updating %s: %w", a.ID(), err)
	}
	if err := b.Update(choiceB, float64(payoff.Col)); err != nil {
		return Outcome{}, fmt.Errorf("updating %s: %w", b.ID(), err)
	}

	return Outcome{
		AgentA:  a.ID(),
		AgentB:  b.ID(),
		ChoiceA: choiceA,
		ChoiceB: choiceB,
		PayoffA: payoff.Row,
		PayoffB: payoff.Col,
	}, nil
}

// RunSession plays every pairing of agents exactly once, in schedule order,
// and returns the outcomes in play order.
func RunSession(agents []*agent.Agent, spec *game.Spec, src agent.RandomSource) ([]Outcome, error) {
	return runSession(0, agents, spec, src, nil)
}

// runSession is RunSession with a session index stamped on each outcome and
// an optional per-game callback that runs after both players have updated.
func runSession(session int, agents []*agent.Agent, spec *game.Spec, src agent.RandomSource, onGame func(o Outcome, a, b *agent.Agent)) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, schedule.Count(len(agents)))
	for p := range schedule.Pairings(len(agents)) {
		o, err := PlayGame(agents[p.I], agents[p.J], spec, src)
		if err != nil {
			return nil, fmt.Errorf("session %d, pairing %v: %w", session, p, err)
		}
		o.Session = session
		o.Game = len(outcomes)
		outcomes = append(outcomes, o)
		if onGame != nil {
			onGame(o, agents[p.I], agents[p.J])
		}
	}
	return outcomes, nil
}
