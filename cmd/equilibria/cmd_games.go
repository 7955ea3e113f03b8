package main

import (
	"fmt"

	"github.com/nvandessel/equilibria/internal/game"
	"github.com/spf13/cobra"
)

// gameListing is the JSON form of a built-in game.
type gameListing struct {
	Name string `json:"name"`
	game.Definition
}

func newGamesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "games [name]",
		Short: "List built-in games or show one payoff matrix",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			names := game.BuiltinNames()
			if len(args) == 1 {
				if _, ok := game.Builtin(args[0]); !ok {
					return fmt.Errorf("unknown game: %s (built-in games: %v)", args[0], names)
				}
				names = args
			}

			if jsonOutput(cmd) {
				listings := make([]gameListing, 0, len(names))
				for _, name := range names {
					spec, _ := game.Builtin(name)
					listings = append(listings, gameListing{Name: name, Definition: spec.Definition()})
				}
				return writeJSON(cmd, listings)
			}

			w := cmd.OutOrStdout()
			for i, name := range names {
				if i > 0 {
					fmt.Fprintln(w)
				}
				spec, _ := game.Builtin(name)
				fmt.Fprintf(w, "[%s] ", name)
				printGame(w, spec)
			}
			return nil
		},
	}

	return cmd
}
