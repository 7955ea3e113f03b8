package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nvandessel/equilibria/internal/agent"
	"github.com/nvandessel/equilibria/internal/simulation"
	_ "modernc.org/sqlite" // SQLite driver
)

// timeLayout is fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteRunStore implements RunStore using SQLite for persistence.
type SQLiteRunStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dir    string
	dbPath string
}

// NewSQLiteRunStore creates a new SQLiteRunStore with its database at
// dir/equilibria.db, creating dir if needed.
func NewSQLiteRunStore(dir string) (*SQLiteRunStore, error) {
	if err := EnsureDir(dir); err != nil {
		return nil, err
	}

	dbPath := DatabasePath(dir)

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteRunStore{
		db:     db,
		dir:    dir,
		dbPath: dbPath,
	}, nil
}

// Path returns the database file location.
func (s *SQLiteRunStore) Path() string {
	return s.dbPath
}

// CheckIntegrity runs the SQLite integrity and foreign key checks.
func (s *SQLiteRunStore) CheckIntegrity(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ValidateIntegrity(ctx, s.db)
}

// SaveRun stores a run with its agents and outcomes in one transaction.
// An existing run with the same ID is replaced.
func (s *SQLiteRunStore) SaveRun(ctx context.Context, run *Run) error {
	if err := run.Validate(); err != nil {
		return err
	}

	gameJSON, err := json.Marshal(run.Game)
	if err != nil {
		return fmt.Errorf("failed to marshal game: %w", err)
	}
	configJSON, err := json.Marshal(run.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	var matchupsJSON, sessionsJSON []byte
	if len(run.Matchups) > 0 {
		if matchupsJSON, err = json.Marshal(run.Matchups); err != nil {
			return fmt.Errorf("failed to marshal matchups: %w", err)
		}
	}
	if len(run.Sessions) > 0 {
		if sessionsJSON, err = json.Marshal(run.Sessions); err != nil {
			return fmt.Errorf("failed to marshal sessions: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Cascades to agents and outcomes.
	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, run.ID); err != nil {
		return fmt.Errorf("failed to replace run: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, created_at, game_title, choices, population, sessions, seed,
			game, config, matchups, session_summaries)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.CreatedAt.UTC().Format(timeLayout), run.Game.Title, len(run.Game.Choices),
		run.Config.PopulationSize, run.Config.Sessions, strconv.FormatUint(run.Config.Seed, 10),
		string(gameJSON), string(configJSON), nullBytes(matchupsJSON), nullBytes(sessionsJSON))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	if err := insertAgents(ctx, tx, run.ID, run.Agents); err != nil {
		return err
	}
	if err := insertOutcomes(ctx, tx, run.ID, run.Outcomes); err != nil {
		return err
	}

	return tx.Commit()
}

func insertAgents(ctx context.Context, tx *sql.Tx, runID string, agents []agent.State) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO agents (run_id, position, agent_id, strategy, games_played, total_payoff,
			average_payoff, choice_counts, history, choices)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare agent insert: %w", err)
	}
	defer stmt.Close()

	for i, a := range agents {
		strategy, err := json.Marshal(a.Strategy)
		if err != nil {
			return fmt.Errorf("failed to marshal strategy of agent %s: %w", a.ID, err)
		}
		counts, err := json.Marshal(a.ChoiceCounts)
		if err != nil {
			return fmt.Errorf("failed to marshal choice counts of agent %s: %w", a.ID, err)
		}
		var history, choices []byte
		if len(a.History) > 0 {
			if history, err = json.Marshal(a.History); err != nil {
				return fmt.Errorf("failed to marshal history of agent %s: %w", a.ID, err)
			}
		}
		if len(a.Choices) > 0 {
			if choices, err = json.Marshal(a.Choices); err != nil {
				return fmt.Errorf("failed to marshal choices of agent %s: %w", a.ID, err)
			}
		}
		if _, err := stmt.ExecContext(ctx, runID, i, a.ID, string(strategy), a.GamesPlayed,
			a.TotalPayoff, a.AveragePayoff, string(counts), nullBytes(history), nullBytes(choices)); err != nil {
			return fmt.Errorf("failed to insert agent %s: %w", a.ID, err)
		}
	}
	return nil
}

func insertOutcomes(ctx context.Context, tx *sql.Tx, runID string, outcomes []simulation.Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO outcomes (run_id, seq, session, game, agent_a, agent_b,
			choice_a, choice_b, payoff_a, payoff_b)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare outcome insert: %w", err)
	}
	defer stmt.Close()

	for i, o := range outcomes {
		if _, err := stmt.ExecContext(ctx, runID, i, o.Session, o.Game, o.AgentA, o.AgentB,
			o.ChoiceA, o.ChoiceB, o.PayoffA, o.PayoffB); err != nil {
			return fmt.Errorf("failed to insert outcome %d: %w", i, err)
		}
	}
	return nil
}

// GetRun retrieves a run by ID. Returns nil if not found.
func (s *SQLiteRunStore) GetRun(ctx context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		createdAt, seed, gameJSON, configJSON string
		matchupsJSON, sessionsJSON           sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT created_at, seed, game, config, matchups, session_summaries
		FROM runs WHERE id = ?
	`, id).Scan(&createdAt, &seed, &gameJSON, &configJSON, &matchupsJSON, &sessionsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	run := &Run{ID: id}
	if run.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if err := json.Unmarshal([]byte(gameJSON), &run.Game); err != nil {
		return nil, fmt.Errorf("failed to unmarshal game: %w", err)
	}
	if err := json.Unmarshal([]byte(configJSON), &run.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if matchupsJSON.Valid {
		if err := json.Unmarshal([]byte(matchupsJSON.String), &run.Matchups); err != nil {
			return nil, fmt.Errorf("failed to unmarshal matchups: %w", err)
		}
	}
	if sessionsJSON.Valid {
		if err := json.Unmarshal([]byte(sessionsJSON.String), &run.Sessions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal sessions: %w", err)
		}
	}

	if run.Agents, err = s.loadAgents(ctx, id); err != nil {
		return nil, err
	}
	if run.Outcomes, err = s.loadOutcomes(ctx, id); err != nil {
		return nil, err
	}

	return run, nil
}

func (s *SQLiteRunStore) loadAgents(ctx context.Context, runID string) ([]agent.State, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT agent_id, strategy, games_played, total_payoff, average_payoff,
			choice_counts, history, choices
		FROM agents WHERE run_id = ? ORDER BY position
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query agents: %w", err)
	}
	defer rows.Close()

	var agents []agent.State
	for rows.Next() {
		var (
			a                agent.State
			strategy, counts string
			history, choices sql.NullString
		)
		if err := rows.Scan(&a.ID, &strategy, &a.GamesPlayed, &a.TotalPayoff, &a.AveragePayoff,
			&counts, &history, &choices); err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		if err := json.Unmarshal([]byte(strategy), &a.Strategy); err != nil {
			return nil, fmt.Errorf("failed to unmarshal strategy for %s: %w", a.ID, err)
		}
		if err := json.Unmarshal([]byte(counts), &a.ChoiceCounts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal choice counts for %s: %w", a.ID, err)
		}
		if history.Valid {
			if err := json.Unmarshal([]byte(history.String), &a.History); err != nil {
				return nil, fmt.Errorf("failed to unmarshal history for %s: %w", a.ID, err)
			}
		}
		if choices.Valid {
			if err := json.Unmarshal([]byte(choices.String), &a.Choices); err != nil {
				return nil, fmt.Errorf("failed to unmarshal choices for %s: %w", a.ID, err)
			}
		}
		agents = append(agents, a)
	}
	return agents, rows.Err()
}

func (s *SQLiteRunStore) loadOutcomes(ctx context.Context, runID string) ([]simulation.Outcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session, game, agent_a, agent_b, choice_a, choice_b, payoff_a, payoff_b
		FROM outcomes WHERE run_id = ? ORDER BY seq
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []simulation.Outcome
	for rows.Next() {
		var o simulation.Outcome
		if err := rows.Scan(&o.Session, &o.Game, &o.AgentA, &o.AgentB,
			&o.ChoiceA, &o.ChoiceB, &o.PayoffA, &o.PayoffB); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// ListRuns returns every run, newest first.
func (s *SQLiteRunStore) ListRuns(ctx context.Context) ([]RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, game_title, choices, population, sessions, seed
		FROM runs ORDER BY created_at DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	summaries := make([]RunSummary, 0)
	for rows.Next() {
		var (
			sum             RunSummary
			createdAt, seed string
		)
		if err := rows.Scan(&sum.ID, &createdAt, &sum.GameTitle, &sum.Choices,
			&sum.Population, &sum.Sessions, &seed); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if sum.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("failed to parse created_at for %s: %w", sum.ID, err)
		}
		if sum.Seed, err = strconv.ParseUint(seed, 10, 64); err != nil {
			return nil, fmt.Errorf("failed to parse seed for %s: %w", sum.ID, err)
		}
		summaries = append(summaries, sum)
	}
	return summaries, rows.Err()
}

// DeleteRun removes a run with its agents and outcomes.
func (s *SQLiteRunStore) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to count deleted rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteRunStore) Close() error {
	return s.db.Close()
}

func nullBytes(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
