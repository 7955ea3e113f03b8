// Package simulation drives repeated round-robin play across a population
// of adaptive agents.
//
// A run creates PopulationSize agents with uniform strategies and plays
// Sessions complete round robins. Within a session every unordered pair of
// agents meets exactly once, in schedule.Pairings order; each meeting is one
// game in which both agents sample a choice, receive their payoff from the
// game matrix, and update. Everything is sequential: an agent's next game
// depends on the state left by its previous one, so neither games nor
// sessions may be reordered or parallelized.
//
// Randomness comes from a single seeded agent.RandomSource per run, so two
// runs with the same game, config and seed produce identical histories.
// Independent runs may execute concurrently as long as they share nothing.
//
// Usage:
//
//	spec, _ := game.Resolve("prisoners-dilemma")
//	cfg := simulation.DefaultConfig()
//	cfg.Seed = 7
//	result, err := simulation.RunSimulation(spec, cfg)
//	if err != nil {
//	    return err
//	}
//	for _, a := range result.Agents {
//	    fmt.Println(a.ID(), a.Strategy())
//	}
package simulation
