package main

import (
	"fmt"

	"github.com/nvandessel/equilibria/internal/game"
	"github.com/nvandessel/equilibria/internal/store"
	"github.com/spf13/cobra"
)

// validationResult reports whether one game parsed.
type validationResult struct {
	Game    string `json:"game"`
	Valid   bool   `json:"valid"`
	Title   string `json:"title,omitempty"`
	Choices int    `json:"choices,omitempty"`
	Error   string `json:"error,omitempty"`
}

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [game...]",
		Short: "Check game files and the run store",
		Long: `Check that each game parses into a valid payoff matrix.

With --store, also run integrity checks on the run database.

Examples:
  equilibria validate chicken.txt battle.yaml
  equilibria validate --store`,
		RunE: func(cmd *cobra.Command, args []string) error {
			checkStore, _ := cmd.Flags().GetBool("store")
			if len(args) == 0 && !checkStore {
				return fmt.Errorf("nothing to validate: name a game or pass --store")
			}

			results := make([]validationResult, 0, len(args))
			invalid := 0
			for _, name := range args {
				res := validationResult{Game: name}
				spec, err := game.Resolve(name)
				if err != nil {
					res.Error = err.Error()
					invalid++
				} else {
					res.Valid = true
					res.Title = spec.Title()
					res.Choices = spec.ChoiceCount()
				}
				results = append(results, res)
			}

			storeStatus := ""
			if checkStore {
				settings, err := loadSettings(cmd)
				if err != nil {
					return err
				}
				runStore, _, err := openStore(settings)
				if err != nil {
					return err
				}
				defer runStore.Close()

				storeStatus = "ok"
				if checker, ok := runStore.(store.IntegrityChecker); ok {
					if err := checker.CheckIntegrity(cmd.Context()); err != nil {
						storeStatus = err.Error()
						invalid++
					}
				} else {
					storeStatus = "skipped (backend has no integrity check)"
				}
			}

			if jsonOutput(cmd) {
				out := map[string]any{"games": results, "valid": invalid == 0}
				if checkStore {
					out["store"] = storeStatus
				}
				if err := writeJSON(cmd, out); err != nil {
					return err
				}
			} else {
				w := cmd.OutOrStdout()
				for _, res := range results {
					if res.Valid {
						fmt.Fprintf(w, "ok    %s: %s (%d choices)\n", res.Game, res.Title, res.Choices)
					} else {
						fmt.Fprintf(w, "FAIL  %s: %s\n", res.Game, res.Error)
					}
				}
				if checkStore {
					fmt.Fprintf(w, "store %s\n", storeStatus)
				}
			}

			if invalid > 0 {
				return fmt.Errorf("%d check(s) failed", invalid)
			}
			return nil
		},
	}

	cmd.Flags().Bool("store", false, "Run integrity checks on the run store")

	return cmd
}
