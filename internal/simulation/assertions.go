package simulation

import (
	"math"
	"testing"

	"github.com/nvandessel/equilibria/internal/constants"
)

// AssertNormalized asserts that every history entry of every agent sums to 1
// within constants.NormalizationTolerance.
func AssertNormalized(t *testing.T, result *Result) {
	t.Helper()
	for _, a := range result.Agents {
		for step, s := range a.History() {
			total := 0.0
			for _, v := range s {
				total += v
			}
			if math.Abs(total-1) >= constants.NormalizationTolerance {
				t.Errorf("AssertNormalized: %s step %d sums to %.9f", a.ID(), step, total)
			}
		}
	}
}

// AssertWithinBounds asserts that every strategy component the agents ever
// held lies inside their rule's [Lower, Upper] band.
func AssertWithinBounds(t *testing.T, result *Result) {
	t.Helper()
	const slack = 1e-12
	for _, a := range result.Agents {
		rule := a.Rule()
		for step, s := range a.History() {
			for i, v := range s {
				if v < rule.Lower-slack || v > rule.Upper+slack {
					t.Errorf("AssertWithinBounds: %s step %d choice %d = %.9f not in [%g, %g]", a.ID(), step, i, v, rule.Lower, rule.Upper)
				}
			}
		}
	}
}

// AssertNeverAbsorbed asserts that no strategy component ever reached
// exactly 0 or 1.
func AssertNeverAbsorbed(t *testing.T, result *Result) {
	t.Helper()
	for _, a := range result.Agents {
		for step, s := range a.History() {
			for i, v := range s {
				if v <= 0 || v >= 1 {
					t.Errorf("AssertNeverAbsorbed: %s step %d choice %d = %v", a.ID(), step, i, v)
				}
			}
		}
	}
}

// AssertHistoryLength asserts that every agent played games games and holds
// games+1 history entries.
func AssertHistoryLength(t *testing.T, result *Result, games int) {
	t.Helper()
	for _, a := range result.Agents {
		if a.GamesPlayed() != games {
			t.Errorf("AssertHistoryLength: %s played %d games, want %d", a.ID(), a.GamesPlayed(), games)
		}
		if got := len(a.History()); got != games+1 {
			t.Errorf("AssertHistoryLength: %s history length %d, want %d", a.ID(), got, games+1)
		}
	}
}
