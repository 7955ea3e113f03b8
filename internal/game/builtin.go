package game

import "sort"

var builtins = map[string]Definition{
	"prisoners-dilemma": {
		Title:   "Prisoner's Dilemma",
		Choices: []string{"quiet", "confess"},
		Payoffs: [][][2]int{
			{{3, 3}, {0, 5}},
			{{5, 0}, {1, 1}},
		},
	},
	"stag-hunt": {
		Title:   "Stag Hunt",
		Choices: []string{"stag", "hare"},
		Payoffs: [][][2]int{
			{{4, 4}, {0, 3}},
			{{3, 0}, {3, 3}},
		},
	},
	"matching-pennies": {
		Title:   "Matching Pennies",
		Choices: []string{"heads", "tails"},
		Payoffs: [][][2]int{
			{{1, -1}, {-1, 1}},
			{{-1, 1}, {1, -1}},
		},
	},
	"rock-paper-scissors": {
		Title:   "Rock Paper Scissors",
		Choices: []string{"rock", "paper", "scissors"},
		Payoffs: [][][2]int{
			{{0, 0}, {-1, 1}, {1, -1}},
			{{1, -1}, {0, 0}, {-1, 1}},
			{{-1, 1}, {1, -1}, {0, 0}},
		},
	},
}

// Builtin returns a ready-made game by name.
func Builtin(name string) (*Spec, bool) {
	def, ok := builtins[name]
	if !ok {
		return nil, false
	}
	spec, err := def.Spec()
	if err != nil {
		// built-in tables are checked by tests
		panic(err)
	}
	return spec, true
}

// BuiltinNames lists the built-in games in sorted order.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
