package agent

import (
	"fmt"
	"math"

	"github.com/nvandessel/equilibria/internal/constants"
	"github.com/nvandessel/equilibria/internal/game"
)

// Rule configures the reinforcement update.
type Rule struct {
	// StepDivisor scales the payoff surprise into a probability step.
	// Larger values adapt more slowly.
	StepDivisor float64 `json:"step_divisor" yaml:"step_divisor"`

	// Lower is the floor every strategy component is clamped to.
	// A positive floor keeps a choice from becoming unreachable.
	Lower float64 `json:"lower" yaml:"lower"`

	// Upper is the ceiling every strategy component is clamped to.
	Upper float64 `json:"upper" yaml:"upper"`
}

// ClassicRule is the untuned rule: slow steps, bounds [0, 1].
func ClassicRule() Rule {
	return Rule{StepDivisor: constants.ClassicStepDivisor, Lower: 0, Upper: 1}
}

// TwoChoiceRule is tuned for two-choice games: faster steps and a symmetric
// epsilon band so neither choice is ever absorbed.
func TwoChoiceRule() Rule {
	return Rule{
		StepDivisor: constants.TwoChoiceStepDivisor,
		Lower:       constants.DefaultEpsilon,
		Upper:       1 - constants.DefaultEpsilon,
	}
}

// NChoiceRule is tuned for games with three or more choices.
func NChoiceRule() Rule {
	return Rule{
		StepDivisor: constants.NChoiceStepDivisor,
		Lower:       constants.DefaultEpsilon,
		Upper:       1,
	}
}

// DefaultRule picks the tuned rule for a game with n choices.
func DefaultRule(n int) Rule {
	if n == 2 {
		return TwoChoiceRule()
	}
	return NChoiceRule()
}

// Validate checks the rule on its own.
func (r Rule) Validate() error {
	if !(r.StepDivisor > 0) || math.IsInf(r.StepDivisor, 0) {
		return game.Configf("step_divisor", "must be a positive number, got %v", r.StepDivisor)
	}
	if math.IsNaN(r.Lower) || math.IsNaN(r.Upper) {
		return game.Configf("bounds", "must be numbers")
	}
	if r.Lower < 0 || r.Upper > 1 || r.Lower >= r.Upper {
		return game.Configf("bounds", "need 0 <= lower < upper <= 1, got [%v, %v]", r.Lower, r.Upper)
	}
	return nil
}

// ValidateFor checks that the bounds admit a probability vector of length n.
// With n components each in [Lower, Upper] the sum can only reach 1 when
// n*Lower <= 1 <= n*Upper.
func (r Rule) ValidateFor(n int) error {
	if err := r.Validate(); err != nil {
		return err
	}
	fn := float64(n)
	if fn*r.Lower > 1 || fn*r.Upper < 1 {
		return game.Configf("bounds", "[%v, %v] cannot hold a distribution over %d choices", r.Lower, r.Upper, n)
	}
	return nil
}

func (r Rule) String() string {
	return fmt.Sprintf("divisor=%g bounds=[%g, %g]", r.StepDivisor, r.Lower, r.Upper)
}

// clamp restricts v to [lo, hi]. NaN maps to lo.
func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
