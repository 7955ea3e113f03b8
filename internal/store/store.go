// Package store defines the RunStore interface for persisting completed
// simulation runs.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nvandessel/equilibria/internal/agent"
	"github.com/nvandessel/equilibria/internal/game"
	"github.com/nvandessel/equilibria/internal/simulation"
)

// ErrRunNotFound is returned when a run ID matches nothing.
var ErrRunNotFound = errors.New("run not found")

// ErrAmbiguousID is returned when an ID prefix matches more than one run.
var ErrAmbiguousID = errors.New("ambiguous run id")

// Run is a completed simulation with everything needed to reproduce or plot it.
type Run struct {
	ID        string                              `json:"id"`
	CreatedAt time.Time                           `json:"created_at"`
	Game      game.Definition                     `json:"game"`
	Config    simulation.Config                   `json:"config"`
	Agents    []agent.State                       `json:"agents"`
	Matchups  map[string]simulation.MatchupCounts `json:"matchups,omitempty"`
	Sessions  []simulation.SessionSummary         `json:"sessions,omitempty"`
	Outcomes  []simulation.Outcome                `json:"outcomes,omitempty"`
}

// RunSummary is the listing view of a run.
type RunSummary struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	GameTitle  string    `json:"game_title"`
	Choices    int       `json:"choices"`
	Population int       `json:"population"`
	Sessions   int       `json:"sessions"`
	Seed       uint64    `json:"seed"`
}

// NewRun captures a finished simulation under a fresh ID. The rule actually
// used is written into the stored config so the run can be replayed exactly.
func NewRun(spec *game.Spec, cfg simulation.Config, result *simulation.Result) *Run {
	rule := cfg.RuleFor(spec.ChoiceCount())
	cfg.Rule = &rule

	return &Run{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Game:      spec.Definition(),
		Config:    cfg,
		Agents:    result.States(),
		Matchups:  result.Matchups.All(),
		Sessions:  append([]simulation.SessionSummary(nil), result.Sessions...),
		Outcomes:  append([]simulation.Outcome(nil), result.Outcomes...),
	}
}

// Summary returns the listing view of the run.
func (r *Run) Summary() RunSummary {
	return RunSummary{
		ID:         r.ID,
		CreatedAt:  r.CreatedAt,
		GameTitle:  r.Game.Title,
		Choices:    len(r.Game.Choices),
		Population: r.Config.PopulationSize,
		Sessions:   r.Config.Sessions,
		Seed:       r.Config.Seed,
	}
}

// Validate checks that a run can be stored.
func (r *Run) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("run ID is required")
	}
	if r.CreatedAt.IsZero() {
		return fmt.Errorf("run CreatedAt must be set")
	}
	if len(r.Game.Choices) == 0 {
		return fmt.Errorf("run %s has no game", r.ID)
	}
	return nil
}

// RunStore defines the interface for storing and querying runs.
type RunStore interface {
	// SaveRun stores a run, replacing any run with the same ID.
	SaveRun(ctx context.Context, run *Run) error

	// GetRun retrieves a run by ID. Returns nil if not found.
	GetRun(ctx context.Context, id string) (*Run, error)

	// ListRuns returns every run, newest first.
	ListRuns(ctx context.Context) ([]RunSummary, error)

	// DeleteRun removes a run. Returns ErrRunNotFound if it does not exist.
	DeleteRun(ctx context.Context, id string) error

	Close() error
}

// IntegrityChecker is implemented by stores that can verify their backing
// storage.
type IntegrityChecker interface {
	CheckIntegrity(ctx context.Context) error
}

// FindRun resolves a full ID or a unique ID prefix to a run.
func FindRun(ctx context.Context, s RunStore, idOrPrefix string) (*Run, error) {
	if idOrPrefix == "" {
		return nil, fmt.Errorf("%w: empty id", ErrRunNotFound)
	}

	run, err := s.GetRun(ctx, idOrPrefix)
	if err != nil {
		return nil, err
	}
	if run != nil {
		return run, nil
	}

	summaries, err := s.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	var match string
	for _, sum := range summaries {
		if !strings.HasPrefix(sum.ID, idOrPrefix) {
			continue
		}
		if match != "" {
			return nil, fmt.Errorf("%w: %s", ErrAmbiguousID, idOrPrefix)
		}
		match = sum.ID
	}
	if match == "" {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, idOrPrefix)
	}
	return s.GetRun(ctx, match)
}
