package main

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/nvandessel/equilibria/internal/backup"
	"github.com/nvandessel/equilibria/internal/store"
	"github.com/nvandessel/equilibria/internal/visualization"
	"github.com/spf13/cobra"
)

// defaultBackupKeep is the number of backups kept when no retention flag is set.
const defaultBackupKeep = 10

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect, export and back up saved runs",
		Long: `Manage runs saved with 'equilibria run --save'.

Run IDs may be abbreviated to any unique prefix.

Examples:
  equilibria runs list
  equilibria runs show 3f2a
  equilibria runs export 3f2a --outcomes --output outcomes.jsonl
  equilibria runs backup --keep 5
  equilibria runs restore ~/.equilibria/backups/equilibria-backup-20261019-120000.json.gz`,
	}

	cmd.AddCommand(
		newRunsListCmd(),
		newRunsShowCmd(),
		newRunsDeleteCmd(),
		newRunsExportCmd(),
		newRunsGraphCmd(),
		newRunsBackupCmd(),
		newRunsRestoreCmd(),
		newRunsVerifyCmd(),
	)

	return cmd
}

// withStore opens the configured run store for the duration of fn.
func withStore(cmd *cobra.Command, fn func(runStore store.RunStore, dataDir string) error) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	runStore, dataDir, err := openStore(settings)
	if err != nil {
		return err
	}
	defer runStore.Close()
	return fn(runStore, dataDir)
}

func newRunsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			if limit < 0 {
				return fmt.Errorf("limit must be non-negative, got %d", limit)
			}

			return withStore(cmd, func(runStore store.RunStore, _ string) error {
				runs, err := runStore.ListRuns(cmd.Context())
				if err != nil {
					return fmt.Errorf("failed to list runs: %w", err)
				}
				if limit > 0 && len(runs) > limit {
					runs = runs[:limit]
				}

				if jsonOutput(cmd) {
					return writeJSON(cmd, map[string]any{
						"runs":  runs,
						"count": len(runs),
					})
				}

				w := cmd.OutOrStdout()
				if len(runs) == 0 {
					fmt.Fprintln(w, "No saved runs.")
					return nil
				}
				for _, r := range runs {
					fmt.Fprintf(w, "%s  %s  %-24s %d agents x %d sessions, seed %d\n",
						r.ID[:8], humanize.Time(r.CreatedAt), r.GameTitle, r.Population, r.Sessions, r.Seed)
				}
				return nil
			})
		},
	}

	cmd.Flags().Int("limit", 0, "Maximum number of runs to list (0 for all)")

	return cmd
}

func newRunsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a saved run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			showMatchups, _ := cmd.Flags().GetBool("matchups")

			return withStore(cmd, func(runStore store.RunStore, _ string) error {
				run, err := store.FindRun(cmd.Context(), runStore, args[0])
				if err != nil {
					return err
				}

				if jsonOutput(cmd) {
					if !showMatchups {
						run.Matchups = nil
					}
					run.Outcomes = nil
					return writeJSON(cmd, run)
				}

				spec, err := run.Game.Spec()
				if err != nil {
					return fmt.Errorf("stored game is invalid: %w", err)
				}

				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "Run %s (%s)\n\n", run.ID, run.CreatedAt.Format("2006-01-02 15:04:05"))
				printGame(w, spec)
				fmt.Fprintf(w, "\n%d agents, %d sessions, seed %d, rule %s\n\n",
					run.Config.PopulationSize, run.Config.Sessions, run.Config.Seed, run.Config.Rule)
				printPreferences(w, spec.ChoiceNames(), run.Agents)
				if showMatchups {
					fmt.Fprintln(w, "\nMatchups:")
					for _, key := range slices.Sorted(maps.Keys(run.Matchups)) {
						mc := run.Matchups[key]
						fmt.Fprintf(w, "  %s vs %s (%d games)\n", mc.AgentA, mc.AgentB, mc.Games)
						fmt.Fprintf(w, "    %-4s %s\n", mc.AgentA, formatCounts(spec.ChoiceNames(), mc.A))
						fmt.Fprintf(w, "    %-4s %s\n", mc.AgentB, formatCounts(spec.ChoiceNames(), mc.B))
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().Bool("matchups", false, "Include choice counts for every pairing")

	return cmd
}

func newRunsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(runStore store.RunStore, _ string) error {
				run, err := store.FindRun(cmd.Context(), runStore, args[0])
				if err != nil {
					return err
				}
				if err := runStore.DeleteRun(cmd.Context(), run.ID); err != nil {
					return fmt.Errorf("failed to delete run: %w", err)
				}

				if jsonOutput(cmd) {
					return writeJSON(cmd, map[string]string{"status": "deleted", "id": run.ID})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", run.ID)
				return nil
			})
		},
	}
}

func newRunsExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a run's strategy history or game outcomes as JSONL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outcomes, _ := cmd.Flags().GetBool("outcomes")
			outputPath, _ := cmd.Flags().GetString("output")

			return withStore(cmd, func(runStore store.RunStore, _ string) error {
				run, err := store.FindRun(cmd.Context(), runStore, args[0])
				if err != nil {
					return err
				}
				if outcomes && len(run.Outcomes) == 0 {
					return fmt.Errorf("run %s has no recorded outcomes (simulation.retain_outcomes was off)", run.ID)
				}

				export := store.ExportHistoryJSONL
				if outcomes {
					export = store.ExportOutcomesJSONL
				}

				if outputPath == "" {
					return export(cmd.OutOrStdout(), run)
				}
				return writeFile(outputPath, func(w io.Writer) error { return export(w, run) })
			})
		},
	}

	cmd.Flags().Bool("outcomes", false, "Export individual game outcomes instead of strategy history")
	cmd.Flags().String("output", "", "Output file (default: stdout)")

	return cmd
}

func newRunsGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph <id>",
		Short: "Render a run's matchups as a graph",
		Long: `Render the agents of a saved run and the choices each pair settled on.

Examples:
  equilibria runs graph 3f2a | dot -Tsvg > run.svg
  equilibria runs graph 3f2a --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("format")
			if jsonOutput(cmd) {
				format = string(visualization.FormatJSON)
			}

			return withStore(cmd, func(runStore store.RunStore, _ string) error {
				run, err := store.FindRun(cmd.Context(), runStore, args[0])
				if err != nil {
					return err
				}

				switch visualization.Format(format) {
				case visualization.FormatDOT:
					dot, err := visualization.RenderDOT(run)
					if err != nil {
						return err
					}
					fmt.Fprint(cmd.OutOrStdout(), dot)
					return nil
				case visualization.FormatJSON:
					g, err := visualization.BuildGraph(run)
					if err != nil {
						return err
					}
					return writeJSON(cmd, g)
				default:
					return fmt.Errorf("unknown format: %s (valid: dot, json)", format)
				}
			})
		},
	}

	cmd.Flags().String("format", string(visualization.FormatDOT), "Output format: dot or json")

	return cmd
}

func newRunsBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Archive every saved run to a backup file",
		Long: `Write every saved run to a compressed backup file.

Default location: ~/.equilibria/backups/equilibria-backup-YYYYMMDD-HHMMSS.json.gz
Older backups in that directory are pruned by the retention flags.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			outputPath, _ := cmd.Flags().GetString("output")
			keep, _ := cmd.Flags().GetInt("keep")
			maxAge, _ := cmd.Flags().GetString("max-age")
			maxSize, _ := cmd.Flags().GetString("max-size")

			policy, err := backup.NewPolicy(keep, maxAge, maxSize)
			if err != nil {
				return err
			}

			return withStore(cmd, func(runStore store.RunStore, dataDir string) error {
				if outputPath == "" {
					outputPath = backup.GenerateBackupPath(backup.DefaultBackupDir(dataDir))
				}

				archive, err := backup.Backup(cmd.Context(), runStore, outputPath)
				if err != nil {
					return fmt.Errorf("backup failed: %w", err)
				}

				var pruned []string
				if policy != nil {
					pruned, err = backup.ApplyRetention(filepath.Dir(outputPath), policy)
					if err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "warning: failed to apply retention: %v\n", err)
					}
				}

				var size int64
				if info, err := os.Stat(outputPath); err == nil {
					size = info.Size()
				}

				if jsonOutput(cmd) {
					return writeJSON(cmd, map[string]any{
						"path":       outputPath,
						"run_count":  len(archive.Runs),
						"size_bytes": size,
						"pruned":     pruned,
					})
				}

				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "Backup created: %d runs (%s)\n", len(archive.Runs), humanize.Bytes(uint64(size)))
				fmt.Fprintf(w, "  Path: %s\n", outputPath)
				if len(pruned) > 0 {
					fmt.Fprintf(w, "  Pruned %d old backup(s)\n", len(pruned))
				}
				return nil
			})
		},
	}

	cmd.Flags().String("output", "", "Output file path (default: auto-generated in the backups directory)")
	cmd.Flags().Int("keep", defaultBackupKeep, "Number of backups to keep (0 disables the count limit)")
	cmd.Flags().String("max-age", "", "Delete backups older than this (e.g. 30d, 12h)")
	cmd.Flags().String("max-size", "", "Keep total backup size under this (e.g. 100MB)")

	cmd.AddCommand(newRunsBackupListCmd())

	return cmd
}

func newRunsBackupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List backups in the backups directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			dataDir, err := settings.DataDir()
			if err != nil {
				return err
			}
			dir := backup.DefaultBackupDir(dataDir)

			backups, err := backup.ListBackups(dir)
			if err != nil {
				return fmt.Errorf("failed to list backups: %w", err)
			}

			if jsonOutput(cmd) {
				return writeJSON(cmd, map[string]any{
					"backups":     backups,
					"total_count": len(backups),
					"directory":   dir,
				})
			}

			w := cmd.OutOrStdout()
			if len(backups) == 0 {
				fmt.Fprintf(w, "No backups found in %s\n", dir)
				return nil
			}

			fmt.Fprintf(w, "Backups in %s:\n", dir)
			var total int64
			for _, b := range backups {
				total += b.Size
				runs := fmt.Sprintf("%d runs", b.RunCount)
				if !b.Valid {
					runs = "unreadable header"
				}
				fmt.Fprintf(w, "  %s  %8s  %s  %s\n",
					filepath.Base(b.Path), humanize.Bytes(uint64(b.Size)), humanize.Time(b.CreatedAt), runs)
			}
			fmt.Fprintf(w, "\n%d backup(s), %s total\n", len(backups), humanize.Bytes(uint64(total)))
			return nil
		},
	}
}

func newRunsRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <file>",
		Short: "Restore runs from a backup file",
		Long: `Import the runs in a backup file into the run store.

By default runs that already exist are skipped. With --replace every stored
run is deleted first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			replace, _ := cmd.Flags().GetBool("replace")
			mode := backup.RestoreMerge
			if replace {
				mode = backup.RestoreReplace
			}

			return withStore(cmd, func(runStore store.RunStore, _ string) error {
				result, err := backup.Restore(cmd.Context(), runStore, args[0], mode)
				if err != nil {
					return fmt.Errorf("restore failed: %w", err)
				}

				if jsonOutput(cmd) {
					return writeJSON(cmd, result)
				}
				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "Restored %d runs (%d skipped", result.RunsRestored, result.RunsSkipped)
				if result.RunsDeleted > 0 {
					fmt.Fprintf(w, ", %d deleted first", result.RunsDeleted)
				}
				fmt.Fprintln(w, ")")
				return nil
			})
		},
	}

	cmd.Flags().Bool("replace", false, "Delete every stored run before restoring")

	return cmd
}

func newRunsVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file>",
		Short: "Verify a backup file's checksum",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			header, err := backup.ReadHeader(path)
			if err != nil {
				return fmt.Errorf("failed to read backup header: %w", err)
			}
			verifyErr := backup.VerifyChecksum(path)

			if jsonOutput(cmd) {
				out := map[string]any{
					"path":       path,
					"valid":      verifyErr == nil,
					"version":    header.Version,
					"run_count":  header.RunCount,
					"created_at": header.CreatedAt,
				}
				if verifyErr != nil {
					out["error"] = verifyErr.Error()
				}
				if err := writeJSON(cmd, out); err != nil {
					return err
				}
				return verifyErr
			}

			if verifyErr != nil {
				return fmt.Errorf("backup %s is corrupt: %w", path, verifyErr)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backup OK: %d runs, version %d, created %s\n",
				header.RunCount, header.Version, header.CreatedAt.Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}

// writeFile creates path and hands it to write, reporting the first error.
func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	return write(f)
}
