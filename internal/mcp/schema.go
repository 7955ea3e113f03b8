// Package mcp provides an MCP (Model Context Protocol) server for equilibria.
package mcp

import (
	"github.com/nvandessel/equilibria/internal/game"
	"github.com/nvandessel/equilibria/internal/simulation"
)

// RunInput defines the input for the equilibria_run tool.
type RunInput struct {
	Game       string           `json:"game,omitempty" jsonschema:"Built-in game name (see equilibria_games) or path to a game file"`
	Definition *game.Definition `json:"definition,omitempty" jsonschema:"Inline game definition, used when game is empty"`
	Population int              `json:"population,omitempty" jsonschema:"Number of agents (default from config, at least 2)"`
	Sessions   int              `json:"sessions,omitempty" jsonschema:"Number of round-robin sessions (default from config)"`
	Seed       uint64           `json:"seed,omitempty" jsonschema:"Random seed; 0 uses the configured seed"`
	Save       bool             `json:"save,omitempty" jsonschema:"Store the run so it can be retrieved with equilibria_show"`
}

// RunOutput defines the output for the equilibria_run tool.
type RunOutput struct {
	RunID      string                              `json:"run_id,omitempty" jsonschema:"ID of the stored run (only when save is set)"`
	Game       string                              `json:"game" jsonschema:"Title of the game played"`
	Choices    []string                            `json:"choices" jsonschema:"Choice names in matrix order"`
	Population int                                 `json:"population" jsonschema:"Number of agents"`
	Sessions   int                                 `json:"sessions" jsonschema:"Number of sessions played"`
	Seed       uint64                              `json:"seed" jsonschema:"Seed used for the run"`
	Rule       string                              `json:"rule" jsonschema:"Update rule used"`
	Agents     []AgentSummary                      `json:"agents" jsonschema:"Final state of every agent"`
	Matchups   map[string]simulation.MatchupCounts `json:"matchups,omitempty" jsonschema:"Choice counts per pairing"`
	Message    string                              `json:"message" jsonschema:"Human-readable result message"`
}

// AgentSummary is the final state of one agent.
type AgentSummary struct {
	ID            string             `json:"id"`
	Strategy      map[string]float64 `json:"strategy"`
	GamesPlayed   int                `json:"games_played"`
	AveragePayoff float64            `json:"average_payoff"`
	ChoiceCounts  map[string]int     `json:"choice_counts"`
}

// ListInput defines the input for the equilibria_list tool.
type ListInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of runs to return, newest first (default: all)"`
}

// ListOutput defines the output for the equilibria_list tool.
type ListOutput struct {
	Runs  []RunListItem `json:"runs" jsonschema:"Stored runs, newest first"`
	Count int           `json:"count" jsonschema:"Number of runs returned"`
}

// RunListItem provides a list view of a stored run.
type RunListItem struct {
	ID         string `json:"id"`
	CreatedAt  string `json:"created_at"` // RFC 3339
	Game       string `json:"game"`
	Choices    int    `json:"choices"`
	Population int    `json:"population"`
	Sessions   int    `json:"sessions"`
	Seed       uint64 `json:"seed"`
}

// ShowInput defines the input for the equilibria_show tool.
type ShowInput struct {
	ID      string `json:"id" jsonschema:"Run ID or unique ID prefix"`
	History bool   `json:"history,omitempty" jsonschema:"Include each agent's full strategy history (default: false)"`
}

// ShowOutput defines the output for the equilibria_show tool.
type ShowOutput struct {
	Run      RunListItem                         `json:"run"`
	Choices  []string                            `json:"choice_names"`
	Rule     string                              `json:"rule"`
	Agents   []AgentSummary                      `json:"agents"`
	History  map[string][][]float64              `json:"history,omitempty"`
	Matchups map[string]simulation.MatchupCounts `json:"matchups,omitempty"`
	Sessions []simulation.SessionSummary         `json:"sessions,omitempty"`
}

// GamesInput defines the input for the equilibria_games tool.
type GamesInput struct{}

// GamesOutput defines the output for the equilibria_games tool.
type GamesOutput struct {
	Games []GameItem `json:"games" jsonschema:"Built-in games"`
	Count int        `json:"count" jsonschema:"Number of games"`
}

// GameItem describes a built-in game.
type GameItem struct {
	Name    string     `json:"name"`
	Title   string     `json:"title"`
	Choices []string   `json:"choices"`
	Payoffs [][][2]int `json:"payoffs"`
}
