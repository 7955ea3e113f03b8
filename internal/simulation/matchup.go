package simulation

import (
	"sort"

	"github.com/nvandessel/equilibria/internal/schedule"
)

// MatchupCounts tallies the choices each side made across every game of one
// unordered pairing. A is the row player for the pairing.
type MatchupCounts struct {
	AgentA string `json:"agent_a"`
	AgentB string `json:"agent_b"`
	Games  int    `json:"games"`
	A      []int  `json:"a"` // A[i] = games in which AgentA chose i
	B      []int  `json:"b"`
}

// MatchupTable aggregates outcomes per pairing for downstream plotting.
type MatchupTable struct {
	choices int
	counts  map[string]*MatchupCounts
}

// NewMatchupTable creates an empty table for a game with the given number
// of choices.
func NewMatchupTable(choices int) *MatchupTable {
	return &MatchupTable{
		choices: choices,
		counts:  make(map[string]*MatchupCounts),
	}
}

// Record adds one outcome to the table.
func (t *MatchupTable) Record(o Outcome) {
	key := schedule.Key(o.AgentA, o.AgentB)
	mc, ok := t.counts[key]
	if !ok {
		mc = &MatchupCounts{
			AgentA: o.AgentA,
			AgentB: o.AgentB,
			A:      make([]int, t.choices),
			B:      make([]int, t.choices),
		}
		t.counts[key] = mc
	}

	choiceA, choiceB := o.ChoiceA, o.ChoiceB
	if mc.AgentA != o.AgentA {
		choiceA, choiceB = choiceB, choiceA
	}
	mc.Games++
	mc.A[choiceA]++
	mc.B[choiceB]++
}

// Get returns the counts for the pairing of a and b in either order.
func (t *MatchupTable) Get(a, b string) (MatchupCounts, bool) {
	mc, ok := t.counts[schedule.Key(a, b)]
	if !ok {
		return MatchupCounts{}, false
	}
	return mc.clone(), true
}

// Keys returns every recorded pairing key in sorted order.
func (t *MatchupTable) Keys() []string {
	keys := make([]string, 0, len(t.counts))
	for k := range t.counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of recorded pairings.
func (t *MatchupTable) Len() int { return len(t.counts) }

// All returns a copy of every entry keyed by pairing.
func (t *MatchupTable) All() map[string]MatchupCounts {
	out := make(map[string]MatchupCounts, len(t.counts))
	for k, mc := range t.counts {
		out[k] = mc.clone()
	}
	return out
}

func (mc *MatchupCounts) clone() MatchupCounts {
	c := *mc
	c.A = append([]int(nil), mc.A...)
	c.B = append([]int(nil), mc.B...)
	return c
}
