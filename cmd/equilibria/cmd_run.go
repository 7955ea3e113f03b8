package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/nvandessel/equilibria/internal/agent"
	"github.com/nvandessel/equilibria/internal/game"
	"github.com/nvandessel/equilibria/internal/logging"
	"github.com/nvandessel/equilibria/internal/simulation"
	"github.com/nvandessel/equilibria/internal/store"
	"github.com/spf13/cobra"
)

// runOutput is the JSON form of a finished run.
type runOutput struct {
	RunID      string                              `json:"run_id,omitempty"`
	Game       game.Definition                     `json:"game"`
	Population int                                 `json:"population"`
	Sessions   int                                 `json:"sessions"`
	Seed       uint64                              `json:"seed"`
	Rule       agent.Rule                          `json:"rule"`
	Agents     []agent.State                       `json:"agents"`
	Matchups   map[string]simulation.MatchupCounts `json:"matchups,omitempty"`
	Exported   string                              `json:"exported,omitempty"`
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <game>",
		Short: "Simulate a population repeatedly playing a matrix game",
		Long: `Run a round-robin simulation and print each agent's final strategy.

<game> is a built-in game name (see 'equilibria games') or a game file:
either the plain-text format or YAML (.yaml/.yml).

Examples:
  equilibria run prisoners-dilemma
  equilibria run rock-paper-scissors --population 20 --sessions 200 --seed 2026
  equilibria run ./chicken.txt --save --export history.jsonl
  equilibria run stag-hunt --step-divisor 10 --lower 0.01 --upper 0.99`,
		Args: cobra.ExactArgs(1),
		RunE: runSimulationCmd,
	}

	cmd.Flags().Int("population", 0, "Number of agents (default from config)")
	cmd.Flags().Int("sessions", 0, "Number of round-robin sessions (default from config)")
	cmd.Flags().Uint64("seed", 0, "Random seed (default from config)")
	cmd.Flags().Float64("step-divisor", 0, "Divisor applied to each payoff surprise")
	cmd.Flags().Float64("lower", 0, "Lower bound for every strategy component")
	cmd.Flags().Float64("upper", 0, "Upper bound for every strategy component")
	cmd.Flags().Bool("save", false, "Store the run in the run history")
	cmd.Flags().String("export", "", "Write every agent's strategy history to a JSONL file")
	cmd.Flags().Bool("matchups", false, "Print choice counts for every pairing")

	return cmd
}

func runSimulationCmd(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	spec, err := game.Resolve(args[0])
	if err != nil {
		return err
	}

	cfg, err := runConfig(cmd, settings.SimulationConfig(spec.ChoiceCount()))
	if err != nil {
		return err
	}

	dataDir, err := settings.DataDir()
	if err != nil {
		return err
	}
	logger := newLogger(cmd, settings)
	tracer := logging.NewGameTracer(dataDir, settings.Logging.Level)
	defer tracer.Close()

	runner, err := simulation.NewRunner(spec, cfg)
	if err != nil {
		return err
	}
	runner.SetLogger(logger, tracer)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	result, err := runner.RunContext(ctx)
	if err != nil {
		return err
	}

	save, _ := cmd.Flags().GetBool("save")
	exportPath, _ := cmd.Flags().GetString("export")

	run := store.NewRun(spec, cfg, result)
	out := runOutput{
		Game:       run.Game,
		Population: cfg.PopulationSize,
		Sessions:   cfg.Sessions,
		Seed:       cfg.Seed,
		Rule:       *run.Config.Rule,
	}

	if save {
		runStore, _, err := openStore(settings)
		if err != nil {
			return err
		}
		defer runStore.Close()
		if err := runStore.SaveRun(ctx, run); err != nil {
			return fmt.Errorf("failed to save run: %w", err)
		}
		out.RunID = run.ID
	}

	if exportPath != "" {
		err := writeFile(exportPath, func(w io.Writer) error { return store.ExportHistoryJSONL(w, run) })
		if err != nil {
			return err
		}
		out.Exported = exportPath
	}

	showMatchups, _ := cmd.Flags().GetBool("matchups")

	if jsonOutput(cmd) {
		out.Agents = make([]agent.State, len(run.Agents))
		for i, st := range run.Agents {
			out.Agents[i] = st.Summary()
		}
		if showMatchups {
			out.Matchups = run.Matchups
		}
		return writeJSON(cmd, out)
	}

	w := cmd.OutOrStdout()
	printGame(w, spec)
	fmt.Fprintf(w, "\n%d agents, %d sessions, seed %d, rule %s\n\n", cfg.PopulationSize, cfg.Sessions, cfg.Seed, out.Rule)
	printPreferences(w, spec.ChoiceNames(), run.Agents)
	if showMatchups {
		fmt.Fprintln(w)
		printMatchups(w, spec.ChoiceNames(), result.Matchups)
	}
	if out.RunID != "" {
		fmt.Fprintf(w, "\nSaved run %s\n", out.RunID)
	}
	if out.Exported != "" {
		fmt.Fprintf(w, "Exported history to %s\n", out.Exported)
	}
	return nil
}

// runConfig applies command-line overrides to the configured run settings.
// Rule flags override individual fields of the configured rule.
func runConfig(cmd *cobra.Command, cfg simulation.Config) (simulation.Config, error) {
	flags := cmd.Flags()
	if flags.Changed("population") {
		cfg.PopulationSize, _ = flags.GetInt("population")
	}
	if flags.Changed("sessions") {
		cfg.Sessions, _ = flags.GetInt("sessions")
	}
	if flags.Changed("seed") {
		cfg.Seed, _ = flags.GetUint64("seed")
	}

	if cfg.Rule == nil {
		return cfg, fmt.Errorf("no update rule configured")
	}
	rule := *cfg.Rule
	if flags.Changed("step-divisor") {
		rule.StepDivisor, _ = flags.GetFloat64("step-divisor")
	}
	if flags.Changed("lower") {
		rule.Lower, _ = flags.GetFloat64("lower")
	}
	if flags.Changed("upper") {
		rule.Upper, _ = flags.GetFloat64("upper")
	}
	cfg.Rule = &rule

	return cfg, cfg.Validate()
}

// printGame writes the game title and its payoff matrix. Each cell reads
// "row,column".
func printGame(w io.Writer, spec *game.Spec) {
	names := spec.ChoiceNames()
	fmt.Fprintln(w, spec.Title())

	width := 0
	for _, n := range names {
		width = max(width, len(n))
	}
	for i := range names {
		for j := range names {
			p := spec.Payoff(i, j)
			width = max(width, len(fmt.Sprintf("%d,%d", p.Row, p.Col)))
		}
	}

	fmt.Fprintf(w, "  %-*s", width, "")
	for _, n := range names {
		fmt.Fprintf(w, "  %-*s", width, n)
	}
	fmt.Fprintln(w)
	for i, n := range names {
		fmt.Fprintf(w, "  %-*s", width, n)
		for j := range names {
			p := spec.Payoff(i, j)
			fmt.Fprintf(w, "  %-*s", width, fmt.Sprintf("%d,%d", p.Row, p.Col))
		}
		fmt.Fprintln(w)
	}
}

// printPreferences writes one line per agent with its final strategy.
func printPreferences(w io.Writer, names []string, states []agent.State) {
	for _, st := range states {
		parts := make([]string, len(names))
		for i, n := range names {
			parts[i] = fmt.Sprintf("%s=%.3f", n, st.Strategy[i])
		}
		fmt.Fprintf(w, "%-4s %s  avg=%.3f\n", st.ID, strings.Join(parts, " "), st.AveragePayoff)
	}
}

// printMatchups writes how often each agent picked each choice against each
// opponent.
func printMatchups(w io.Writer, names []string, table *simulation.MatchupTable) {
	fmt.Fprintln(w, "Matchups:")
	for _, key := range table.Keys() {
		a, b, _ := strings.Cut(key, "|")
		mc, _ := table.Get(a, b)
		fmt.Fprintf(w, "  %s vs %s (%d games)\n", mc.AgentA, mc.AgentB, mc.Games)
		fmt.Fprintf(w, "    %-4s %s\n", mc.AgentA, formatCounts(names, mc.A))
		fmt.Fprintf(w, "    %-4s %s\n", mc.AgentB, formatCounts(names, mc.B))
	}
}

func formatCounts(names []string, counts []int) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = fmt.Sprintf("%s=%d", n, counts[i])
	}
	return strings.Join(parts, " ")
}
