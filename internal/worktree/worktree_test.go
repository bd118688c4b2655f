package worktree_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clawd-io/clawd/internal/store"
	"github.com/clawd-io/clawd/internal/worktree"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoErrorf(t, err, "git %v: %s", args, out)
	}
	run("init", "-q")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "test")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644))
	run("add", "README.md")
	run("commit", "-q", "-m", "initial")
	return dir
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "clawd.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBindTaskCreatesWorktreeOnNewBranch(t *testing.T) {
	repo := initRepo(t)
	st := openTestStore(t)
	m := worktree.New(filepath.Join(t.TempDir(), "worktrees"), st)

	w, err := m.BindTask(context.Background(), "task-1", "Fix the bug", repo)
	require.NoError(t, err)
	require.Equal(t, "claw/task-1-fixthe", w.Branch)
	require.DirExists(t, w.Path)

	again, err := m.BindTask(context.Background(), "task-1", "Fix the bug", repo)
	require.NoError(t, err)
	require.Equal(t, w.Path, again.Path, "bind_task must return the existing worktree on a second call")
}

func TestValidateWritePathsRejectsOutsideWorktree(t *testing.T) {
	repo := initRepo(t)
	st := openTestStore(t)
	m := worktree.New(filepath.Join(t.TempDir(), "worktrees"), st)

	w, err := m.BindTask(context.Background(), "task-1", "add feature", repo)
	require.NoError(t, err)

	require.NoError(t, m.ValidateWritePaths("task-1", []string{filepath.Join(w.Path, "main.go")}))

	err = m.ValidateWritePaths("task-1", []string{filepath.Join(repo, "main.go")})
	require.Error(t, err)
}

func TestIsInWorktreeFindsOwningTask(t *testing.T) {
	repo := initRepo(t)
	st := openTestStore(t)
	m := worktree.New(filepath.Join(t.TempDir(), "worktrees"), st)

	w, err := m.BindTask(context.Background(), "task-1", "add feature", repo)
	require.NoError(t, err)

	taskID, ok := m.IsInWorktree(filepath.Join(w.Path, "sub", "file.go"))
	require.True(t, ok)
	require.Equal(t, "task-1", taskID)

	_, ok = m.IsInWorktree(repo)
	require.False(t, ok)
}

func TestRemoveDeletesWorktreeDirectory(t *testing.T) {
	repo := initRepo(t)
	st := openTestStore(t)
	m := worktree.New(filepath.Join(t.TempDir(), "worktrees"), st)

	w, err := m.BindTask(context.Background(), "task-1", "add feature", repo)
	require.NoError(t, err)

	m.Remove(context.Background(), "task-1")
	require.NoDirExists(t, w.Path)

	_, ok := m.IsInWorktree(w.Path)
	require.False(t, ok)
}
