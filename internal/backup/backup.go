// Package backup archives stored simulation runs and restores them into a
// run store.
package backup

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/nvandessel/equilibria/internal/store"
)

// DirName is the backup directory inside the data directory.
const DirName = "backups"

// filePrefix starts every generated backup filename.
const filePrefix = "equilibria-backup-"

// Archive is the payload of a backup file.
type Archive struct {
	CreatedAt time.Time    `json:"created_at"`
	Runs      []*store.Run `json:"runs"`
}

// DefaultBackupDir returns <dataDir>/backups.
func DefaultBackupDir(dataDir string) string {
	return filepath.Join(dataDir, DirName)
}

// Backup writes every run in the store to outputPath.
func Backup(ctx context.Context, runStore store.RunStore, outputPath string) (*Archive, error) {
	summaries, err := runStore.ListRuns(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	archive := &Archive{
		CreatedAt: time.Now().UTC(),
		Runs:      make([]*store.Run, 0, len(summaries)),
	}
	for _, sum := range summaries {
		run, err := runStore.GetRun(ctx, sum.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load run %s: %w", sum.ID, err)
		}
		if run == nil {
			// deleted between list and get
			continue
		}
		archive.Runs = append(archive.Runs, run)
	}

	if err := Write(outputPath, archive); err != nil {
		return nil, err
	}
	return archive, nil
}

// RestoreMode controls how restore handles existing data.
type RestoreMode string

const (
	// RestoreMerge skips runs that already exist (default).
	RestoreMerge RestoreMode = "merge"
	// RestoreReplace deletes every stored run before restoring.
	RestoreReplace RestoreMode = "replace"
)

// RestoreResult contains statistics about the restore operation.
type RestoreResult struct {
	RunsRestored int `json:"runs_restored"`
	RunsSkipped  int `json:"runs_skipped"`
	RunsDeleted  int `json:"runs_deleted"`
}

// Restore imports the runs in a backup file into the store.
func Restore(ctx context.Context, runStore store.RunStore, inputPath string, mode RestoreMode) (*RestoreResult, error) {
	if mode == "" {
		mode = RestoreMerge
	}
	if mode != RestoreMerge && mode != RestoreReplace {
		return nil, fmt.Errorf("unknown restore mode: %s", mode)
	}

	archive, err := Read(inputPath)
	if err != nil {
		return nil, err
	}
	for _, run := range archive.Runs {
		if err := run.Validate(); err != nil {
			return nil, fmt.Errorf("invalid run in backup: %w", err)
		}
	}

	result := &RestoreResult{}

	if mode == RestoreReplace {
		existing, err := runStore.ListRuns(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list runs: %w", err)
		}
		for _, sum := range existing {
			if err := runStore.DeleteRun(ctx, sum.ID); err != nil {
				return nil, fmt.Errorf("failed to delete run %s: %w", sum.ID, err)
			}
			result.RunsDeleted++
		}
	}

	for _, run := range archive.Runs {
		if mode == RestoreMerge {
			existing, err := runStore.GetRun(ctx, run.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to check existing run %s: %w", run.ID, err)
			}
			if existing != nil {
				result.RunsSkipped++
				continue
			}
		}

		if err := runStore.SaveRun(ctx, run); err != nil {
			return nil, fmt.Errorf("failed to restore run %s: %w", run.ID, err)
		}
		result.RunsRestored++
	}

	return result, nil
}

// GenerateBackupPath creates a timestamped backup filename in the given directory.
func GenerateBackupPath(dir string) string {
	ts := time.Now().Format("20060102-150405")
	return filepath.Join(dir, fmt.Sprintf("%s%s%s", filePrefix, ts, fileExt))
}
