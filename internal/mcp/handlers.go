package mcp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/equilibria/internal/agent"
	"github.com/nvandessel/equilibria/internal/constants"
	"github.com/nvandessel/equilibria/internal/game"
	"github.com/nvandessel/equilibria/internal/pathutil"
	"github.com/nvandessel/equilibria/internal/ratelimit"
	"github.com/nvandessel/equilibria/internal/sanitize"
	"github.com/nvandessel/equilibria/internal/schedule"
	"github.com/nvandessel/equilibria/internal/simulation"
	"github.com/nvandessel/equilibria/internal/store"
)

const gamesURIPrefix = "equilibria://games/"

// registerTools registers all equilibria MCP tools with the server.
func (s *Server) registerTools() error {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "equilibria_run",
		Description: "Simulate a population of learning agents repeatedly playing a two-player matrix game",
	}, s.handleRun)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "equilibria_list",
		Description: "List stored simulation runs, newest first",
	}, s.handleList)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "equilibria_show",
		Description: "Show a stored run: final strategies, payoffs, and optionally full strategy histories",
	}, s.handleShow)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "equilibria_games",
		Description: "List the built-in games with their choices and payoff matrices",
	}, s.handleGames)

	return nil
}

// registerResources registers the built-in games as readable resources.
func (s *Server) registerResources() error {
	s.server.AddResource(&sdk.Resource{
		URI:         "equilibria://games",
		Name:        "equilibria-games",
		Description: "Every built-in game with its payoff matrix.",
		MIMEType:    "text/markdown",
	}, s.handleGamesResource)

	s.server.AddResourceTemplate(&sdk.ResourceTemplate{
		URITemplate: gamesURIPrefix + "{name}",
		Name:        "equilibria-game",
		Description: "Payoff matrix for one built-in game.",
		MIMEType:    "text/markdown",
	}, s.handleGameResource)

	return nil
}

// isRateLimited reports whether err came from a tool rate limiter.
func isRateLimited(err error) bool {
	var limitErr *ratelimit.LimitError
	return errors.As(err, &limitErr)
}

func (s *Server) handleRun(ctx context.Context, req *sdk.CallToolRequest, args RunInput) (_ *sdk.CallToolResult, _ RunOutput, retErr error) {
	start := time.Now()
	var runID string
	defer func() {
		params := map[string]any{
			"game": args.Game, "population": args.Population, "sessions": args.Sessions,
			"seed": args.Seed, "save": args.Save,
		}
		if args.Definition != nil {
			params["definition"] = true
		}
		s.auditTool("equilibria_run", start, retErr, runID, sanitizeToolParams(params))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "equilibria_run"); err != nil {
		return nil, RunOutput{}, err
	}

	spec, err := s.resolveGame(args)
	if err != nil {
		return nil, RunOutput{}, err
	}

	cfg := s.settings.SimulationConfig(spec.ChoiceCount())
	cfg.RetainOutcomes = false
	if args.Population != 0 {
		cfg.PopulationSize = args.Population
	}
	if args.Sessions != 0 {
		cfg.Sessions = args.Sessions
	}
	if args.Seed != 0 {
		cfg.Seed = args.Seed
	}
	if err := cfg.Validate(); err != nil {
		return nil, RunOutput{}, err
	}

	// Bound each factor before multiplying so the product cannot overflow.
	if cfg.PopulationSize > constants.MaxToolPopulation {
		return nil, RunOutput{}, fmt.Errorf("population %d exceeds the limit of %d", cfg.PopulationSize, constants.MaxToolPopulation)
	}
	perSession := schedule.Count(cfg.PopulationSize)
	if cfg.Sessions > constants.MaxToolGames/perSession {
		return nil, RunOutput{}, fmt.Errorf("run would play more than %d games (%d per session): lower population or sessions", constants.MaxToolGames, perSession)
	}
	total := perSession * cfg.Sessions

	runner, err := simulation.NewRunner(spec, cfg)
	if err != nil {
		return nil, RunOutput{}, err
	}
	runner.SetLogger(s.logger, nil)

	result, err := runner.RunContext(ctx)
	if err != nil {
		return nil, RunOutput{}, fmt.Errorf("simulation failed: %w", err)
	}

	names := spec.ChoiceNames()
	rule := cfg.RuleFor(spec.ChoiceCount())
	out := RunOutput{
		Game:       spec.Title(),
		Choices:    names,
		Population: cfg.PopulationSize,
		Sessions:   cfg.Sessions,
		Seed:       cfg.Seed,
		Rule:       rule.String(),
		Agents:     summarizeAgents(result.States(), names),
		Matchups:   result.Matchups.All(),
	}

	if args.Save {
		run := store.NewRun(spec, cfg, result)
		if err := s.store.SaveRun(ctx, run); err != nil {
			return nil, RunOutput{}, fmt.Errorf("failed to save run: %w", err)
		}
		runID = run.ID
		out.RunID = run.ID
	}

	out.Message = fmt.Sprintf("Played %d games of %s across %d agents", total, spec.Title(), cfg.PopulationSize)
	if runID != "" {
		out.Message += fmt.Sprintf(" (saved as %s)", runID)
	}

	s.logger.Info("mcp run complete", "game", spec.Title(), "games", total, "run_id", runID)

	return nil, out, nil
}

// resolveGame picks the game for a run: a built-in name, a file inside the
// allowed game directories, or an inline definition.
func (s *Server) resolveGame(args RunInput) (*game.Spec, error) {
	if args.Game != "" && args.Definition != nil {
		return nil, game.Configf("game", "set either game or definition, not both")
	}

	if args.Definition != nil {
		def := sanitize.Definition(*args.Definition)
		seen := make(map[string]bool, len(def.Choices))
		for i, name := range def.Choices {
			if name == "" {
				return nil, game.Configf("definition.choices", "choice %d has no usable name", i)
			}
			if seen[name] {
				return nil, game.Configf("definition.choices", "duplicate choice %q", name)
			}
			seen[name] = true
		}
		return def.Spec()
	}

	if args.Game == "" {
		return nil, game.Configf("game", "a game name or definition is required")
	}

	if spec, ok := game.Builtin(args.Game); ok {
		return spec, nil
	}

	wd, _ := os.Getwd()
	path := args.Game
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.dataDir, pathutil.GamesDirName, path)
		if _, err := os.Stat(path); err != nil && wd != "" {
			path = filepath.Join(wd, args.Game)
		}
	}
	if err := pathutil.ValidatePath(path, pathutil.AllowedGameDirs(s.dataDir, wd)); err != nil {
		return nil, err
	}
	spec, err := game.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading game %s: %w", pathutil.RedactPath(path), err)
	}
	return spec, nil
}

func (s *Server) handleList(ctx context.Context, req *sdk.CallToolRequest, args ListInput) (_ *sdk.CallToolResult, _ ListOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("equilibria_list", start, retErr, "", sanitizeToolParams(map[string]any{
			"limit": args.Limit,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "equilibria_list"); err != nil {
		return nil, ListOutput{}, err
	}

	if args.Limit < 0 {
		return nil, ListOutput{}, fmt.Errorf("limit must be non-negative, got %d", args.Limit)
	}

	summaries, err := s.store.ListRuns(ctx)
	if err != nil {
		return nil, ListOutput{}, fmt.Errorf("failed to list runs: %w", err)
	}
	if args.Limit > 0 && len(summaries) > args.Limit {
		summaries = summaries[:args.Limit]
	}

	runs := make([]RunListItem, 0, len(summaries))
	for _, sum := range summaries {
		runs = append(runs, listItem(sum))
	}

	return nil, ListOutput{
		Runs:  runs,
		Count: len(runs),
	}, nil
}

func (s *Server) handleShow(ctx context.Context, req *sdk.CallToolRequest, args ShowInput) (_ *sdk.CallToolResult, _ ShowOutput, retErr error) {
	start := time.Now()
	var runID string
	defer func() {
		s.auditTool("equilibria_show", start, retErr, runID, sanitizeToolParams(map[string]any{
			"id": args.ID, "history": args.History,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "equilibria_show"); err != nil {
		return nil, ShowOutput{}, err
	}

	if args.ID == "" {
		return nil, ShowOutput{}, fmt.Errorf("'id' parameter is required")
	}

	run, err := store.FindRun(ctx, s.store, args.ID)
	if err != nil {
		return nil, ShowOutput{}, err
	}
	runID = run.ID

	rule := run.Config.RuleFor(len(run.Game.Choices))
	out := ShowOutput{
		Run:      listItem(run.Summary()),
		Choices:  run.Game.Choices,
		Rule:     rule.String(),
		Agents:   summarizeAgents(run.Agents, run.Game.Choices),
		Matchups: run.Matchups,
		Sessions: run.Sessions,
	}

	if args.History {
		out.History = make(map[string][][]float64)
		for i, st := range run.Agents {
			if i >= constants.MaxToolHistoryAgents {
				break
			}
			out.History[st.ID] = st.History
		}
	}

	return nil, out, nil
}

func (s *Server) handleGames(ctx context.Context, req *sdk.CallToolRequest, args GamesInput) (_ *sdk.CallToolResult, _ GamesOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("equilibria_games", start, retErr, "", nil)
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "equilibria_games"); err != nil {
		return nil, GamesOutput{}, err
	}

	names := game.BuiltinNames()
	games := make([]GameItem, 0, len(names))
	for _, name := range names {
		spec, _ := game.Builtin(name)
		def := spec.Definition()
		games = append(games, GameItem{
			Name:    name,
			Title:   def.Title,
			Choices: def.Choices,
			Payoffs: def.Payoffs,
		})
	}

	return nil, GamesOutput{
		Games: games,
		Count: len(games),
	}, nil
}

// handleGamesResource renders every built-in game as markdown.
func (s *Server) handleGamesResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	var sb strings.Builder
	sb.WriteString("# Built-in games\n\n")
	for _, name := range game.BuiltinNames() {
		spec, _ := game.Builtin(name)
		sb.WriteString(formatGameMarkdown(name, spec))
		sb.WriteString("\n")
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      req.Params.URI,
				MIMEType: "text/markdown",
				Text:     sb.String(),
			},
		},
	}, nil
}

// handleGameResource renders one built-in game as markdown.
func (s *Server) handleGameResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	uri := req.Params.URI
	name := strings.TrimPrefix(uri, gamesURIPrefix)
	if name == "" || name == uri {
		return nil, fmt.Errorf("invalid game URI: %s", uri)
	}

	spec, ok := game.Builtin(name)
	if !ok {
		return nil, fmt.Errorf("game not found: %s", name)
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      uri,
				MIMEType: "text/markdown",
				Text:     formatGameMarkdown(name, spec),
			},
		},
	}, nil
}

// formatGameMarkdown renders a payoff matrix as a markdown table. Each cell
// reads "row, column".
func formatGameMarkdown(name string, spec *game.Spec) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s (`%s`)\n\n", spec.Title(), name)

	names := spec.ChoiceNames()
	sb.WriteString("|  |")
	for _, n := range names {
		fmt.Fprintf(&sb, " %s |", n)
	}
	sb.WriteString("\n|---|")
	for range names {
		sb.WriteString("---|")
	}
	sb.WriteString("\n")

	for i, n := range names {
		fmt.Fprintf(&sb, "| **%s** |", n)
		for j := range names {
			p := spec.Payoff(i, j)
			fmt.Fprintf(&sb, " %d, %d |", p.Row, p.Col)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func listItem(sum store.RunSummary) RunListItem {
	return RunListItem{
		ID:         sum.ID,
		CreatedAt:  sum.CreatedAt.Format(time.RFC3339),
		Game:       sum.GameTitle,
		Choices:    sum.Choices,
		Population: sum.Population,
		Sessions:   sum.Sessions,
		Seed:       sum.Seed,
	}
}

// summarizeAgents keys each agent's strategy and choice counts by choice name.
func summarizeAgents(states []agent.State, names []string) []AgentSummary {
	out := make([]AgentSummary, 0, len(states))
	for _, st := range states {
		strategy := make(map[string]float64, len(names))
		counts := make(map[string]int, len(names))
		for i, name := range names {
			if i < len(st.Strategy) {
				strategy[name] = st.Strategy[i]
			}
			if i < len(st.ChoiceCounts) {
				counts[name] = st.ChoiceCounts[i]
			}
		}
		out = append(out, AgentSummary{
			ID:            st.ID,
			Strategy:      strategy,
			GamesPlayed:   st.GamesPlayed,
			AveragePayoff: st.AveragePayoff,
			ChoiceCounts:  counts,
		})
	}
	return out
}
