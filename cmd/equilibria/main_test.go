package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nvandessel/equilibria/internal/store"
)

// isolateHome points HOME and the data directory at a temp directory so tests
// never touch the real ~/.equilibria/. It returns the data directory.
func isolateHome(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	tmpHome := filepath.Join(tmpDir, "home")
	if err := os.MkdirAll(tmpHome, 0700); err != nil {
		t.Fatalf("Failed to create temp home: %v", err)
	}
	dataDir := filepath.Join(tmpDir, "data")

	t.Setenv("HOME", tmpHome)
	t.Setenv("EQUILIBRIA_DIR", dataDir)
	for _, v := range []string{"EQUILIBRIA_POPULATION", "EQUILIBRIA_SESSIONS", "EQUILIBRIA_SEED", "EQUILIBRIA_LOG_LEVEL", "EQUILIBRIA_STORE"} {
		t.Setenv(v, "")
	}
	return dataDir
}

// execute runs the root command with args and returns what it wrote to stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	rootCmd := newRootCmd()
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, args...)
	if err != nil {
		t.Fatalf("equilibria %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func decode[T any](t *testing.T, out string) T {
	t.Helper()
	var v T
	if err := json.Unmarshal([]byte(out), &v); err != nil {
		t.Fatalf("invalid JSON output %q: %v", out, err)
	}
	return v
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	n := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		n++
	}
	return n
}

func TestRootCmd_Subcommands(t *testing.T) {
	rootCmd := newRootCmd()
	want := []string{"version", "run", "validate", "games", "runs", "config", "mcp-server"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestVersionCmd(t *testing.T) {
	out := mustExecute(t, "version")
	if !strings.Contains(out, "equilibria version dev") {
		t.Errorf("output = %q", out)
	}

	got := decode[map[string]string](t, mustExecute(t, "version", "--json"))
	if got["version"] != version || got["commit"] != commit {
		t.Errorf("json = %v", got)
	}
}

func TestGamesCmd(t *testing.T) {
	out := mustExecute(t, "games")
	for _, name := range []string{"prisoners-dilemma", "stag-hunt", "matching-pennies", "rock-paper-scissors"} {
		if !strings.Contains(out, "["+name+"]") {
			t.Errorf("games output missing %s", name)
		}
	}

	out = mustExecute(t, "games", "stag-hunt")
	if !strings.Contains(out, "Stag Hunt") || strings.Contains(out, "Prisoner") {
		t.Errorf("single game output = %q", out)
	}

	listings := decode[[]gameListing](t, mustExecute(t, "games", "--json", "rock-paper-scissors"))
	if len(listings) != 1 || len(listings[0].Choices) != 3 {
		t.Errorf("json listings = %+v", listings)
	}

	if _, err := execute(t, "games", "poker"); err == nil {
		t.Error("expected error for unknown game")
	}
}

func TestRunCmd_Text(t *testing.T) {
	isolateHome(t)

	out := mustExecute(t, "run", "prisoners-dilemma", "--population", "3", "--sessions", "2", "--matchups")
	for _, want := range []string{"Prisoner's Dilemma", "3 agents, 2 sessions", "quiet=", "avg=", "Matchups:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRunCmd_JSON(t *testing.T) {
	isolateHome(t)

	args := []string{"run", "stag-hunt", "--json", "--population", "4", "--sessions", "3", "--seed", "11", "--step-divisor", "20"}
	got := decode[runOutput](t, mustExecute(t, args...))

	if got.Population != 4 || got.Sessions != 3 || got.Seed != 11 {
		t.Errorf("config = %d/%d/%d", got.Population, got.Sessions, got.Seed)
	}
	if got.Rule.StepDivisor != 20 {
		t.Errorf("step divisor = %v, want 20", got.Rule.StepDivisor)
	}
	if len(got.Agents) != 4 {
		t.Fatalf("agents = %d, want 4", len(got.Agents))
	}
	for _, a := range got.Agents {
		if a.GamesPlayed != 9 {
			t.Errorf("agent %s played %d games, want 9", a.ID, a.GamesPlayed)
		}
	}
	if got.RunID != "" {
		t.Error("run without --save should have no id")
	}

	again := decode[runOutput](t, mustExecute(t, args...))
	for i := range got.Agents {
		for j, p := range got.Agents[i].Strategy {
			if again.Agents[i].Strategy[j] != p {
				t.Fatalf("same seed gave different strategies for %s", got.Agents[i].ID)
			}
		}
	}
}

func TestRunCmd_Errors(t *testing.T) {
	isolateHome(t)

	tests := []struct {
		name string
		args []string
	}{
		{"unknown game", []string{"run", "no-such-game"}},
		{"population too small", []string{"run", "stag-hunt", "--population", "1"}},
		{"zero sessions", []string{"run", "stag-hunt", "--sessions", "0"}},
		{"inverted bounds", []string{"run", "stag-hunt", "--lower", "0.9", "--upper", "0.1"}},
		{"missing game", []string{"run"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, tt.args...); err == nil {
				t.Errorf("equilibria %s: expected error", strings.Join(tt.args, " "))
			}
		})
	}
}

func TestRunCmd_Export(t *testing.T) {
	isolateHome(t)
	path := filepath.Join(t.TempDir(), "history.jsonl")

	mustExecute(t, "run", "matching-pennies", "--population", "3", "--sessions", "2", "--export", path)

	// 3 agents, each with 2*2 games plus the initial strategy.
	if n := countLines(t, path); n != 15 {
		t.Errorf("history lines = %d, want 15", n)
	}
}

func TestRunsLifecycle(t *testing.T) {
	isolateHome(t)

	saved := decode[runOutput](t, mustExecute(t, "run", "prisoners-dilemma", "--json", "--save", "--population", "3", "--sessions", "2"))
	if saved.RunID == "" {
		t.Fatal("saved run has no id")
	}
	prefix := saved.RunID[:8]

	listed := decode[struct {
		Runs  []store.RunSummary `json:"runs"`
		Count int                `json:"count"`
	}](t, mustExecute(t, "runs", "list", "--json"))
	if listed.Count != 1 || listed.Runs[0].ID != saved.RunID {
		t.Fatalf("runs list = %+v", listed)
	}
	if listed.Runs[0].GameTitle != "Prisoner's Dilemma" {
		t.Errorf("game title = %q", listed.Runs[0].GameTitle)
	}

	shown := decode[store.Run](t, mustExecute(t, "runs", "show", prefix, "--json"))
	if shown.ID != saved.RunID || len(shown.Agents) != 3 {
		t.Errorf("runs show = %s with %d agents", shown.ID, len(shown.Agents))
	}

	text := mustExecute(t, "runs", "show", prefix, "--matchups")
	if !strings.Contains(text, saved.RunID) || !strings.Contains(text, "P1 vs P2") {
		t.Errorf("runs show text:\n%s", text)
	}

	dot := mustExecute(t, "runs", "graph", prefix)
	if !strings.Contains(dot, "graph equilibria {") || !strings.Contains(dot, `"P1" -- "P2"`) {
		t.Errorf("runs graph:\n%s", dot)
	}
	if _, err := execute(t, "runs", "graph", prefix, "--format", "svg"); err == nil {
		t.Error("expected error for unknown graph format")
	}

	outcomes := filepath.Join(t.TempDir(), "outcomes.jsonl")
	mustExecute(t, "runs", "export", prefix, "--outcomes", "--output", outcomes)
	// 3 pairings per session.
	if n := countLines(t, outcomes); n != 6 {
		t.Errorf("outcome lines = %d, want 6", n)
	}

	history := mustExecute(t, "runs", "export", prefix)
	if n := strings.Count(history, "\n"); n != 15 {
		t.Errorf("history lines = %d, want 15", n)
	}

	mustExecute(t, "runs", "delete", prefix)
	if _, err := execute(t, "runs", "show", prefix); err == nil {
		t.Error("expected error showing a deleted run")
	}
	if out := mustExecute(t, "runs", "list"); !strings.Contains(out, "No saved runs.") {
		t.Errorf("runs list after delete = %q", out)
	}
}

func TestRunsList_NegativeLimit(t *testing.T) {
	isolateHome(t)
	if _, err := execute(t, "runs", "list", "--limit", "-1"); err == nil {
		t.Error("expected error for negative limit")
	}
}

func TestRunsBackupRestore(t *testing.T) {
	dataDir := isolateHome(t)

	for range 2 {
		mustExecute(t, "run", "stag-hunt", "--save", "--population", "2", "--sessions", "1")
	}

	result := decode[map[string]any](t, mustExecute(t, "runs", "backup", "--json"))
	path, _ := result["path"].(string)
	if !strings.HasPrefix(path, filepath.Join(dataDir, "backups")) {
		t.Fatalf("backup path = %q", path)
	}
	if result["run_count"] != float64(2) {
		t.Errorf("run_count = %v", result["run_count"])
	}

	if out := mustExecute(t, "runs", "verify", path); !strings.Contains(out, "Backup OK: 2 runs") {
		t.Errorf("verify output = %q", out)
	}
	if out := mustExecute(t, "runs", "backup", "list"); !strings.Contains(out, "2 runs") {
		t.Errorf("backup list output = %q", out)
	}

	// Merge skips runs that are still present.
	if out := mustExecute(t, "runs", "restore", path); !strings.Contains(out, "Restored 0 runs (2 skipped") {
		t.Errorf("merge restore output = %q", out)
	}

	mustExecute(t, "run", "matching-pennies", "--save", "--population", "2", "--sessions", "1")
	out := mustExecute(t, "runs", "restore", path, "--replace")
	if !strings.Contains(out, "Restored 2 runs") || !strings.Contains(out, "3 deleted first") {
		t.Errorf("replace restore output = %q", out)
	}
}

func TestRunsVerify_Corrupt(t *testing.T) {
	isolateHome(t)
	path := filepath.Join(t.TempDir(), "bad.json.gz")
	if err := os.WriteFile(path, []byte("not a backup\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "runs", "verify", path); err == nil {
		t.Error("expected error verifying a corrupt file")
	}
}

func TestValidateCmd(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()

	good := filepath.Join(dir, "chicken.txt")
	goodText := "2\nChicken\nswerve 0 0 -1 1\nstraight 1 -1 -10 -10\n"
	if err := os.WriteFile(good, []byte(goodText), 0644); err != nil {
		t.Fatal(err)
	}
	bad := filepath.Join(dir, "bad.txt")
	if err := os.WriteFile(bad, []byte("3\nBroken\na 1 1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	out := mustExecute(t, "validate", good, "stag-hunt")
	if !strings.Contains(out, "ok    "+good+": Chicken (2 choices)") {
		t.Errorf("validate output = %q", out)
	}

	out, err := execute(t, "validate", good, bad)
	if err == nil {
		t.Error("expected error for an invalid game")
	}
	if !strings.Contains(out, "FAIL  "+bad) {
		t.Errorf("validate output = %q", out)
	}

	if _, err := execute(t, "validate"); err == nil {
		t.Error("expected error with nothing to validate")
	}
}

func TestValidateCmd_Store(t *testing.T) {
	isolateHome(t)
	mustExecute(t, "run", "stag-hunt", "--save", "--population", "2", "--sessions", "1")

	got := decode[map[string]any](t, mustExecute(t, "validate", "--store", "--json"))
	if got["store"] != "ok" || got["valid"] != true {
		t.Errorf("validate --store = %v", got)
	}
}

func TestConfigCmd(t *testing.T) {
	isolateHome(t)
	path := filepath.Join(t.TempDir(), "config.yaml")

	mustExecute(t, "--config", path, "config", "set", "simulation.population", "7")
	mustExecute(t, "--config", path, "config", "set", "rules.two_choice.step_divisor", "25")

	got := decode[map[string]any](t, mustExecute(t, "--config", path, "config", "get", "simulation.population", "--json"))
	if got["value"] != float64(7) {
		t.Errorf("simulation.population = %v, want 7", got["value"])
	}

	out := mustExecute(t, "--config", path, "config", "list")
	if !strings.Contains(out, "rules.two_choice.step_divisor:") || !strings.Contains(out, "25") {
		t.Errorf("config list = %q", out)
	}

	// The saved population is used by run.
	run := decode[runOutput](t, mustExecute(t, "--config", path, "run", "stag-hunt", "--json", "--sessions", "1"))
	if run.Population != 7 {
		t.Errorf("run population = %d, want 7", run.Population)
	}
}

func TestConfigSet_Errors(t *testing.T) {
	isolateHome(t)
	path := filepath.Join(t.TempDir(), "config.yaml")

	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown key", "llm.provider", "x"},
		{"not an integer", "simulation.sessions", "many"},
		{"below minimum", "simulation.population", "1"},
		{"bad level", "logging.level", "loud"},
		{"bad backend", "store.backend", "postgres"},
		{"bad bool", "simulation.retain_outcomes", "sometimes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := execute(t, "--config", path, "config", "set", tt.key, tt.value); err == nil {
				t.Errorf("config set %s %s: expected error", tt.key, tt.value)
			}
		})
	}

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("rejected values should not create the config file")
	}
}

func TestConfigGet_UnknownKey(t *testing.T) {
	isolateHome(t)
	if _, err := execute(t, "config", "get", "nope"); err == nil {
		t.Error("expected error for unknown key")
	}
}
