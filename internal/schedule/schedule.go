// Package schedule enumerates round-robin matchups for a fixed population.
//
// The order is part of the contract: agents change between games, so a
// different order produces a different simulation.
package schedule

import (
	"fmt"
	"iter"
)

// Pairing is an unordered matchup of agent indices with I < J. I plays as
// the row player.
type Pairing struct {
	I int `json:"i"`
	J int `json:"j"`
}

func (p Pairing) String() string {
	return fmt.Sprintf("(%d,%d)", p.I, p.J)
}

// Pairings yields every pairing for a population of n in lexicographic
// order: (0,1), (0,2), ..., (0,n-1), (1,2), ..., (n-2,n-1). The sequence is
// lazy and can be ranged over any number of times. It is empty for n < 2.
func Pairings(n int) iter.Seq[Pairing] {
	return func(yield func(Pairing) bool) {
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				if !yield(Pairing{I: i, J: j}) {
					return
				}
			}
		}
	}
}

// Count returns the number of pairings in one session, n(n-1)/2.
func Count(n int) int {
	if n < 2 {
		return 0
	}
	return n * (n - 1) / 2
}

// GamesPerAgent returns how many games each agent plays per session.
func GamesPerAgent(n int) int {
	if n < 2 {
		return 0
	}
	return n - 1
}

// Key returns a canonical key for the unordered matchup of two agent IDs.
func Key(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}
