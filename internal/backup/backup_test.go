package backup

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/nvandessel/equilibria/internal/game"
	"github.com/nvandessel/equilibria/internal/simulation"
	"github.com/nvandessel/equilibria/internal/store"
)

func newTestRun(t *testing.T, name string, seed uint64) *store.Run {
	t.Helper()
	spec, ok := game.Builtin(name)
	if !ok {
		t.Fatalf("%s builtin missing", name)
	}
	cfg := simulation.DefaultConfig()
	cfg.PopulationSize = 3
	cfg.Sessions = 3
	cfg.Seed = seed

	result, err := simulation.RunSimulation(spec, cfg)
	if err != nil {
		t.Fatalf("RunSimulation() error = %v", err)
	}
	return store.NewRun(spec, cfg, result)
}

func createTestStore(t *testing.T) *store.SQLiteRunStore {
	t.Helper()
	s, err := store.NewSQLiteRunStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewSQLiteRunStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func addTestData(t *testing.T, s store.RunStore) []*store.Run {
	t.Helper()
	ctx := context.Background()
	runs := []*store.Run{
		newTestRun(t, "stag-hunt", 1),
		newTestRun(t, "rock-paper-scissors", 2),
	}
	for _, run := range runs {
		if err := s.SaveRun(ctx, run); err != nil {
			t.Fatalf("SaveRun() error = %v", err)
		}
	}
	return runs
}

func TestBackupRestore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src := createTestStore(t)
	runs := addTestData(t, src)

	path := filepath.Join(t.TempDir(), "backup.json.gz")
	archive, err := Backup(ctx, src, path)
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	if len(archive.Runs) != 2 {
		t.Fatalf("archived %d runs, want 2", len(archive.Runs))
	}

	dst := store.NewInMemoryRunStore()
	result, err := Restore(ctx, dst, path, RestoreMerge)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if result.RunsRestored != 2 || result.RunsSkipped != 0 {
		t.Errorf("result = %+v, want 2 restored", result)
	}

	for _, want := range runs {
		got, err := dst.GetRun(ctx, want.ID)
		if err != nil || got == nil {
			t.Fatalf("GetRun(%s) = %v, %v", want.ID, got, err)
		}
		if got.Game.Title != want.Game.Title {
			t.Errorf("title = %q, want %q", got.Game.Title, want.Game.Title)
		}
		if len(got.Agents) != len(want.Agents) {
			t.Fatalf("agents = %d, want %d", len(got.Agents), len(want.Agents))
		}
		for i := range want.Agents {
			if len(got.Agents[i].History) != len(want.Agents[i].History) {
				t.Errorf("agent %d history = %d, want %d", i, len(got.Agents[i].History), len(want.Agents[i].History))
			}
			if got.Agents[i].Strategy[0] != want.Agents[i].Strategy[0] {
				t.Errorf("agent %d strategy changed in the round trip", i)
			}
		}
		if len(got.Outcomes) != len(want.Outcomes) {
			t.Errorf("outcomes = %d, want %d", len(got.Outcomes), len(want.Outcomes))
		}
	}
}

func TestRestore_MergeMode(t *testing.T) {
	ctx := context.Background()
	src := createTestStore(t)
	runs := addTestData(t, src)

	path := filepath.Join(t.TempDir(), "backup.json.gz")
	if _, err := Backup(ctx, src, path); err != nil {
		t.Fatal(err)
	}

	dst := store.NewInMemoryRunStore()
	if err := dst.SaveRun(ctx, runs[0]); err != nil {
		t.Fatal(err)
	}

	result, err := Restore(ctx, dst, path, "")
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if result.RunsRestored != 1 || result.RunsSkipped != 1 {
		t.Errorf("result = %+v, want 1 restored and 1 skipped", result)
	}
}

func TestRestore_ReplaceMode(t *testing.T) {
	ctx := context.Background()
	src := createTestStore(t)
	addTestData(t, src)

	path := filepath.Join(t.TempDir(), "backup.json.gz")
	if _, err := Backup(ctx, src, path); err != nil {
		t.Fatal(err)
	}

	dst := store.NewInMemoryRunStore()
	extra := newTestRun(t, "matching-pennies", 9)
	if err := dst.SaveRun(ctx, extra); err != nil {
		t.Fatal(err)
	}

	result, err := Restore(ctx, dst, path, RestoreReplace)
	if err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if result.RunsDeleted != 1 || result.RunsRestored != 2 {
		t.Errorf("result = %+v, want 1 deleted and 2 restored", result)
	}
	if got, _ := dst.GetRun(ctx, extra.ID); got != nil {
		t.Error("replace mode kept a run that was not in the backup")
	}
}

func TestRestore_UnknownMode(t *testing.T) {
	_, err := Restore(context.Background(), store.NewInMemoryRunStore(), "unused", RestoreMode("append"))
	if err == nil || !strings.Contains(err.Error(), "unknown restore mode") {
		t.Errorf("Restore() error = %v, want unknown restore mode", err)
	}
}

func TestBackup_EmptyStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json.gz")
	archive, err := Backup(context.Background(), store.NewInMemoryRunStore(), path)
	if err != nil {
		t.Fatalf("Backup() error = %v", err)
	}
	if len(archive.Runs) != 0 {
		t.Errorf("archived %d runs, want 0", len(archive.Runs))
	}
	header, err := ReadHeader(path)
	if err != nil {
		t.Fatal(err)
	}
	if header.RunCount != 0 {
		t.Errorf("RunCount = %d, want 0", header.RunCount)
	}
}

func TestBackup_FilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not enforced on windows")
	}
	path := filepath.Join(t.TempDir(), "nested", "backup.json.gz")
	if _, err := Backup(context.Background(), store.NewInMemoryRunStore(), path); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions = %o, want 0600", perm)
	}
}

func TestGenerateBackupPath(t *testing.T) {
	dir := "/tmp/backups"
	path := GenerateBackupPath(dir)

	if filepath.Dir(path) != dir {
		t.Errorf("dir = %s, want %s", filepath.Dir(path), dir)
	}
	if !isBackupFile(filepath.Base(path)) {
		t.Errorf("%s is not recognized as a backup file", filepath.Base(path))
	}
}

func TestDefaultBackupDir(t *testing.T) {
	if got, want := DefaultBackupDir("/data"), filepath.Join("/data", DirName); got != want {
		t.Errorf("DefaultBackupDir() = %s, want %s", got, want)
	}
}
