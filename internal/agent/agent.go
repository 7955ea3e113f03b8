// Package agent implements the adaptive player: a probability vector over
// the game's choices that is nudged after every game by how far the payoff
// landed from the player's running average.
//
// An Agent moves through three phases. It is created with a uniform
// strategy and no games, is updated once per game it plays, and once the
// simulation ends its state is read-only output. Agents are not safe for
// concurrent use; a population belongs to exactly one simulation.
package agent

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/nvandessel/equilibria/internal/constants"
	"github.com/nvandessel/equilibria/internal/game"
)

// RandomSource supplies uniform draws in [0, 1). *rand.Rand satisfies it.
type RandomSource interface {
	Float64() float64
}

// NewSource returns a seeded PCG generator. Two sources built from the same
// seed produce identical sequences.
func NewSource(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^constants.SeedStream))
}

// Agent is one member of the population.
type Agent struct {
	id       string
	rule     Rule
	strategy []float64

	gamesPlayed int
	totalPayoff float64
	average     float64

	history [][]float64
	choices []int
	counts  []int
}

// New creates an agent with a uniform strategy over n choices.
func New(id string, n int, rule Rule) (*Agent, error) {
	if n < 2 {
		return nil, game.Configf("choices", "agent %s needs at least 2 choices, got %d", id, n)
	}
	if err := rule.ValidateFor(n); err != nil {
		return nil, err
	}

	a := &Agent{
		id:       id,
		rule:     rule,
		strategy: uniform(n),
		counts:   make([]int, n),
	}
	a.snapshot()
	return a, nil
}

// ID returns the agent's identifier.
func (a *Agent) ID() string { return a.id }

// Rule returns the update rule the agent was built with.
func (a *Agent) Rule() Rule { return a.rule }

// ChoiceCount returns the dimension of the strategy vector.
func (a *Agent) ChoiceCount() int { return len(a.strategy) }

// GamesPlayed returns the number of updates applied so far.
func (a *Agent) GamesPlayed() int { return a.gamesPlayed }

// TotalPayoff returns the sum of all payoffs received.
func (a *Agent) TotalPayoff() float64 { return a.totalPayoff }

// AveragePayoff returns TotalPayoff / GamesPlayed, or 0 before the first game.
func (a *Agent) AveragePayoff() float64 { return a.average }

// Strategy returns a copy of the current probability vector.
func (a *Agent) Strategy() []float64 {
	return append([]float64(nil), a.strategy...)
}

// Probabilities returns (p0, p1) for a two-choice agent. ok is false for
// agents with more choices.
func (a *Agent) Probabilities() (p0, p1 float64, ok bool) {
	if len(a.strategy) != 2 {
		return 0, 0, false
	}
	return a.strategy[0], a.strategy[1], true
}

// Choose samples a choice index from the current strategy by inverse CDF.
// When rounding leaves the cumulative mass just short of the draw, the last
// index is returned. Choose does not modify the agent.
func (a *Agent) Choose(src RandomSource) int {
	r := src.Float64()
	running := 0.0
	for i, p := range a.strategy {
		running += p
		if running >= r {
			return i
		}
	}
	return len(a.strategy) - 1
}

// Update folds the result of one game into the agent.
//
// The surprise (payoff - average before this game) divided by the rule's
// step divisor is added to the chosen component only. Every component is
// then clamped to the rule's bounds and the vector renormalized, so the
// remaining mass is redistributed proportionally. The post-update strategy
// is appended to the history.
func (a *Agent) Update(chosen int, payoff float64) error {
	if chosen < 0 || chosen >= len(a.strategy) {
		return fmt.Errorf("agent %s: choice %d out of range [0, %d)", a.id, chosen, len(a.strategy))
	}

	oldAverage := a.average
	delta := (payoff - oldAverage) / a.rule.StepDivisor

	a.strategy[chosen] += delta
	for i := range a.strategy {
		a.strategy[i] = clamp(a.strategy[i], a.rule.Lower, a.rule.Upper)
	}
	normalize(a.strategy, a.rule.Lower, a.rule.Upper)

	a.gamesPlayed++
	a.totalPayoff += payoff
	a.average = a.totalPayoff / float64(a.gamesPlayed)
	a.choices = append(a.choices, chosen)
	a.counts[chosen]++

	a.snapshot()
	return nil
}

// History returns every strategy the agent has held, oldest first. It has
// GamesPlayed()+1 entries. The returned slices are copies.
func (a *Agent) History() [][]float64 {
	out := make([][]float64, len(a.history))
	for i, s := range a.history {
		out[i] = append([]float64(nil), s...)
	}
	return out
}

// ChoiceCounts returns how often each index has been played.
func (a *Agent) ChoiceCounts() []int {
	return append([]int(nil), a.counts...)
}

// Decision pairs the strategy an agent held going into a game with the
// choice it made in that game.
type Decision struct {
	Strategy []float64 `json:"strategy"`
	Choice   int       `json:"choice"`
}

// Decisions returns one entry per game played, in order.
func (a *Agent) Decisions() []Decision {
	out := make([]Decision, len(a.choices))
	for i, c := range a.choices {
		out[i] = Decision{
			Strategy: append([]float64(nil), a.history[i]...),
			Choice:   c,
		}
	}
	return out
}

// CheckNormalized reports whether the strategy sums to 1 within tol.
func (a *Agent) CheckNormalized(tol float64) bool {
	return math.Abs(sum(a.strategy)-1) < tol
}

func (a *Agent) snapshot() {
	a.history = append(a.history, append([]float64(nil), a.strategy...))
}

func uniform(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = 1 / float64(n)
	}
	return s
}

func sum(s []float64) float64 {
	total := 0.0
	for _, v := range s {
		total += v
	}
	return total
}

// normalize rescales s in place to sum to 1. A zero sum resets s to uniform.
// If rescaling pushes a component outside [lo, hi], that component is pinned
// to the bound and the rest are rescaled to fill the remainder; each pass
// pins at least one component, so this ends within len(s) passes.
func normalize(s []float64, lo, hi float64) {
	total := sum(s)
	if total == 0 {
		copy(s, uniform(len(s)))
		return
	}
	for i := range s {
		s[i] /= total
	}

	pinned := make([]bool, len(s))
	for pass := 0; pass < len(s); pass++ {
		moved := false
		for i, v := range s {
			if pinned[i] {
				continue
			}
			if v < lo {
				s[i], pinned[i], moved = lo, true, true
			} else if v > hi {
				s[i], pinned[i], moved = hi, true, true
			}
		}
		if !moved {
			return
		}

		fixed, free, nfree := 0.0, 0.0, 0
		for i, v := range s {
			if pinned[i] {
				fixed += v
			} else {
				free += v
				nfree++
			}
		}
		if nfree == 0 {
			return
		}
		target := 1 - fixed
		for i := range s {
			if pinned[i] {
				continue
			}
			if free > 0 {
				s[i] *= target / free
			} else {
				s[i] = target / float64(nfree)
			}
		}
	}
}
