package simulation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nvandessel/equilibria/internal/agent"
	"github.com/nvandessel/equilibria/internal/game"
	"github.com/nvandessel/equilibria/internal/logging"
	"github.com/nvandessel/equilibria/internal/schedule"
)

func run(t *testing.T, spec *game.Spec, cfg Config) *Result {
	t.Helper()
	result, err := RunSimulation(spec, cfg)
	if err != nil {
		t.Fatalf("RunSimulation() error = %v", err)
	}
	return result
}

// Scenario B: 10 agents over 50 sessions play 450 games each.
func TestRunSimulation_HistoryLength(t *testing.T) {
	spec := mustBuiltin(t, "prisoners-dilemma")
	cfg := DefaultConfig()
	cfg.PopulationSize = 10
	cfg.Sessions = 50

	result := run(t, spec, cfg)

	if len(result.Agents) != 10 {
		t.Fatalf("len(Agents) = %d, want 10", len(result.Agents))
	}
	AssertHistoryLength(t, result, 450)
	AssertNormalized(t, result)
	AssertWithinBounds(t, result)

	if len(result.Outcomes) != 50*schedule.Count(10) {
		t.Errorf("len(Outcomes) = %d, want %d", len(result.Outcomes), 50*schedule.Count(10))
	}
	if len(result.Sessions) != 50 {
		t.Errorf("len(Sessions) = %d, want 50", len(result.Sessions))
	}
	for i, a := range result.Agents {
		want := "P" + string(rune('1'+i))
		if i == 9 {
			want = "P10"
		}
		if a.ID() != want {
			t.Errorf("agent %d ID = %q, want %q", i, a.ID(), want)
		}
	}
}

// Scenario C: rock-paper-scissors never pins a component to 0 or 1.
func TestRunSimulation_RockPaperScissorsStaysInterior(t *testing.T) {
	spec := mustBuiltin(t, "rock-paper-scissors")
	cfg := DefaultConfig()
	cfg.Sessions = 200
	cfg.Seed = 2026
	cfg.RetainOutcomes = false

	result := run(t, spec, cfg)

	AssertNeverAbsorbed(t, result)
	AssertWithinBounds(t, result)
	AssertNormalized(t, result)
	if len(result.Outcomes) != 0 {
		t.Errorf("outcomes retained despite RetainOutcomes=false: %d", len(result.Outcomes))
	}
}

func TestRunSimulation_Reproducible(t *testing.T) {
	for _, name := range []string{"prisoners-dilemma", "rock-paper-scissors"} {
		t.Run(name, func(t *testing.T) {
			spec := mustBuiltin(t, name)
			cfg := DefaultConfig()
			cfg.PopulationSize = 6
			cfg.Sessions = 20
			cfg.Seed = 99

			first := run(t, spec, cfg)
			second := run(t, spec, cfg)

			for i := range first.Agents {
				h1, h2 := first.Agents[i].History(), second.Agents[i].History()
				if len(h1) != len(h2) {
					t.Fatalf("agent %d history lengths differ", i)
				}
				for step := range h1 {
					for c := range h1[step] {
						if h1[step][c] != h2[step][c] {
							t.Fatalf("agent %d step %d choice %d: %v != %v", i, step, c, h1[step][c], h2[step][c])
						}
					}
				}
			}

			cfg.Seed = 100
			third := run(t, spec, cfg)
			if equalOutcomes(first.Outcomes, third.Outcomes) {
				t.Error("different seeds produced identical outcome logs")
			}
		})
	}
}

func equalOutcomes(a, b []Outcome) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRunSimulation_ConfigErrors(t *testing.T) {
	spec := mustBuiltin(t, "prisoners-dilemma")
	badRule := agent.Rule{StepDivisor: 0, Lower: 0, Upper: 1}
	tightRule := agent.Rule{StepDivisor: 10, Lower: 0.6, Upper: 0.9}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"population 1", func(c *Config) { c.PopulationSize = 1 }},
		{"population 0", func(c *Config) { c.PopulationSize = 0 }},
		{"sessions 0", func(c *Config) { c.Sessions = 0 }},
		{"sessions negative", func(c *Config) { c.Sessions = -3 }},
		{"bad rule", func(c *Config) { c.Rule = &badRule }},
		{"bounds too tight for game", func(c *Config) { c.Rule = &tightRule }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := RunSimulation(spec, cfg)
			if !game.IsConfigurationError(err) {
				t.Errorf("expected ConfigurationError, got %v", err)
			}
		})
	}

	if _, err := RunSimulation(nil, DefaultConfig()); !game.IsConfigurationError(err) {
		t.Errorf("nil game: expected ConfigurationError, got %v", err)
	}
}

func TestRunSimulation_CustomRule(t *testing.T) {
	spec := mustBuiltin(t, "stag-hunt")
	rule := agent.ClassicRule()
	cfg := DefaultConfig()
	cfg.Rule = &rule
	cfg.Sessions = 5

	result := run(t, spec, cfg)
	for _, a := range result.Agents {
		if a.Rule() != rule {
			t.Errorf("%s rule = %v, want %v", a.ID(), a.Rule(), rule)
		}
	}
	AssertNormalized(t, result)
}

func TestRunSimulation_Matchups(t *testing.T) {
	spec := mustBuiltin(t, "matching-pennies")
	cfg := DefaultConfig()
	cfg.PopulationSize = 4
	cfg.Sessions = 12

	result := run(t, spec, cfg)
	if result.Matchups.Len() != schedule.Count(4) {
		t.Fatalf("Matchups.Len() = %d, want %d", result.Matchups.Len(), schedule.Count(4))
	}

	for _, key := range result.Matchups.Keys() {
		parts := strings.Split(key, "|")
		mc, ok := result.Matchups.Get(parts[1], parts[0])
		if !ok {
			t.Fatalf("Get(%s) missing", key)
		}
		if mc.Games != 12 {
			t.Errorf("%s: Games = %d, want 12", key, mc.Games)
		}
		if mc.A[0]+mc.A[1] != 12 || mc.B[0]+mc.B[1] != 12 {
			t.Errorf("%s: counts A=%v B=%v do not total 12", key, mc.A, mc.B)
		}
	}

	// Recount from the outcome log.
	mc, _ := result.Matchups.Get("P1", "P2")
	var a0 int
	for _, o := range result.Outcomes {
		if o.AgentA == "P1" && o.AgentB == "P2" && o.ChoiceA == 0 {
			a0++
		}
	}
	if mc.A[0] != a0 {
		t.Errorf("P1 chose 0 against P2 %d times in the log, table says %d", a0, mc.A[0])
	}
}

func TestMatchupTable_Orientation(t *testing.T) {
	table := NewMatchupTable(2)
	table.Record(Outcome{AgentA: "P1", AgentB: "P2", ChoiceA: 1, ChoiceB: 0})
	table.Record(Outcome{AgentA: "P2", AgentB: "P1", ChoiceA: 1, ChoiceB: 1})

	mc, ok := table.Get("P2", "P1")
	if !ok {
		t.Fatal("pairing missing")
	}
	if mc.AgentA != "P1" {
		t.Errorf("AgentA = %q, want first-seen row player P1", mc.AgentA)
	}
	if mc.A[1] != 2 || mc.B[0] != 1 || mc.B[1] != 1 {
		t.Errorf("A=%v B=%v, want A=[0 2] B=[1 1]", mc.A, mc.B)
	}

	all := table.All()
	all["P1|P2"].A[0] = 99
	if again, _ := table.Get("P1", "P2"); again.A[0] == 99 {
		t.Error("All() exposed internal storage")
	}
}

func TestRunner_ScriptedSource(t *testing.T) {
	spec := mustBuiltin(t, "prisoners-dilemma")
	cfg := DefaultConfig()
	cfg.PopulationSize = 3
	cfg.Sessions = 2

	r, err := NewRunner(spec, cfg)
	if err != nil {
		t.Fatal(err)
	}
	r.SetSource(fixedSource(0))

	result, err := r.Run()
	if err != nil {
		t.Fatal(err)
	}
	for _, o := range result.Outcomes {
		if o.ChoiceA != 0 || o.ChoiceB != 0 {
			t.Errorf("outcome %+v: draw 0 should always pick index 0", o)
		}
	}
	if result.Sessions[1].MeanPayoff != 3 {
		t.Errorf("MeanPayoff = %v, want 3", result.Sessions[1].MeanPayoff)
	}
}

func TestRunner_LoggingAndTrace(t *testing.T) {
	spec := mustBuiltin(t, "prisoners-dilemma")
	cfg := DefaultConfig()
	cfg.PopulationSize = 3
	cfg.Sessions = 2

	dir := t.TempDir()
	var buf bytes.Buffer
	tracer := logging.NewGameTracer(dir, "debug")
	defer tracer.Close()

	r, err := NewRunner(spec, cfg)
	if err != nil {
		t.Fatal(err)
	}
	r.SetLogger(logging.NewLogger("debug", &buf), tracer)
	if _, err := r.Run(); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	for _, want := range []string{"simulation starting", "session complete", "simulation complete"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "games.jsonl"))
	if err != nil {
		t.Fatalf("reading trace: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2*schedule.Count(3) {
		t.Errorf("trace has %d lines, want %d", len(lines), 2*schedule.Count(3))
	}
	if !strings.Contains(lines[0], `"agent_a":"P1"`) {
		t.Errorf("first trace line = %s", lines[0])
	}
	if strings.Contains(lines[0], "strategy_a") {
		t.Errorf("debug trace should not carry strategies: %s", lines[0])
	}
}

func TestRunner_TraceLevelRecordsStrategies(t *testing.T) {
	spec := mustBuiltin(t, "prisoners-dilemma")
	cfg := DefaultConfig()
	cfg.PopulationSize = 2
	cfg.Sessions = 1

	dir := t.TempDir()
	tracer := logging.NewGameTracer(dir, "trace")
	defer tracer.Close()

	r, err := NewRunner(spec, cfg)
	if err != nil {
		t.Fatal(err)
	}
	r.SetLogger(nil, tracer)
	result, err := r.Run()
	if err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "games.jsonl"))
	if err != nil {
		t.Fatalf("reading trace: %v", err)
	}
	var event struct {
		StrategyA []float64 `json:"strategy_a"`
		StrategyB []float64 `json:"strategy_b"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(data), &event); err != nil {
		t.Fatalf("trace line is not JSON: %v", err)
	}

	// One game was played, so the traced strategies are the final ones.
	states := result.States()
	for i, p := range states[0].Strategy {
		if event.StrategyA[i] != p {
			t.Errorf("strategy_a = %v, want %v", event.StrategyA, states[0].Strategy)
			break
		}
	}
	for i, p := range states[1].Strategy {
		if event.StrategyB[i] != p {
			t.Errorf("strategy_b = %v, want %v", event.StrategyB, states[1].Strategy)
			break
		}
	}
}

func TestResult_States(t *testing.T) {
	spec := mustBuiltin(t, "stag-hunt")
	cfg := DefaultConfig()
	cfg.PopulationSize = 3
	cfg.Sessions = 4

	result := run(t, spec, cfg)
	states := result.States()
	if len(states) != 3 {
		t.Fatalf("len(States()) = %d", len(states))
	}
	for _, s := range states {
		if s.GamesPlayed != cfg.GamesPerAgent() {
			t.Errorf("%s GamesPlayed = %d, want %d", s.ID, s.GamesPlayed, cfg.GamesPerAgent())
		}
		if len(s.History) != cfg.GamesPerAgent()+1 {
			t.Errorf("%s history length = %d", s.ID, len(s.History))
		}
	}
}

func TestRunContext_Cancelled(t *testing.T) {
	spec, _ := game.Builtin("stag-hunt")
	runner, err := NewRunner(spec, DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := runner.RunContext(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("RunContext() error = %v, want context.Canceled", err)
	}
	if result != nil {
		t.Error("a stopped run should return no result")
	}
}

func TestRunContext_HugeSessionCountCancelled(t *testing.T) {
	spec, _ := game.Builtin("prisoners-dilemma")
	cfg := DefaultConfig()
	cfg.PopulationSize = 2
	cfg.Sessions = 1 << 62
	runner, err := NewRunner(spec, cfg)
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := runner.RunContext(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("RunContext() error = %v, want context.Canceled", err)
	}
	if result != nil {
		t.Error("a stopped run should return no result")
	}
}
