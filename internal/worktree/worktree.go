// Package worktree isolates every code-modifying task on its own git
// worktree and branch. It also provides CheckFileConflicts, which finds
// file-level overlap between active worktrees, and ValidateWritePaths,
// which checks that paths lie inside a task's own checkout; no tool-call
// path in this repository calls either.
//
// Grounded on internal/vcs/watcher.go's pattern for shelling out to git via
// os/exec and deriving repo/branch facts from its stdout; git subcommands
// here are short-lived so no SysProcAttr/process-group handling is needed
// (that belongs to internal/turn's long-lived provider CLI subprocess).
package worktree

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/clawd-io/clawd/internal/clawerr"
	"github.com/clawd-io/clawd/internal/event"
	"github.com/clawd-io/clawd/internal/logging"
	"github.com/clawd-io/clawd/internal/store"
	"github.com/clawd-io/clawd/pkg/types"
)

// Manager binds tasks to dedicated git worktrees under baseDir.
type Manager struct {
	baseDir string
	store   *store.Store

	mu       sync.RWMutex
	byTaskID map[string]*types.WorktreeInfo
	watchers map[string]*watcher
	bus      *event.Bus
}

// SetBus wires the event bus a branch watcher started for a worktree bound
// after this call publishes on. Optional: a Manager with no bus set simply
// never watches (worktree_test.go and other unit tests don't need it).
func (m *Manager) SetBus(bus *event.Bus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bus = bus
}

// New creates a manager rooted at baseDir (normally <data_dir>/.claw/worktrees).
func New(baseDir string, st *store.Store) *Manager {
	return &Manager{
		baseDir:  baseDir,
		store:    st,
		byTaskID: make(map[string]*types.WorktreeInfo),
		watchers: make(map[string]*watcher),
	}
}

// WatchAll starts a branch/dirty-state watcher for every currently bound
// worktree, publishing event.RepoStatusChanged through the bus set via
// SetBus on each change. Called once at daemon startup after Reconcile;
// BindTask starts a watcher for each new worktree as it's created, Remove
// stops it. A no-op if SetBus was never called.
func (m *Manager) WatchAll() {
	m.mu.RLock()
	bus := m.bus
	paths := make(map[string]string, len(m.byTaskID))
	for taskID, w := range m.byTaskID {
		paths[taskID] = w.Path
	}
	m.mu.RUnlock()
	if bus == nil {
		return
	}

	for taskID, path := range paths {
		m.startWatcher(taskID, path)
	}
}

func (m *Manager) startWatcher(taskID, path string) {
	m.mu.RLock()
	bus := m.bus
	m.mu.RUnlock()
	if bus == nil {
		return
	}

	w, err := newWatcher(bus, path)
	if err != nil {
		logging.Warn().Err(err).Str("taskId", taskID).Msg("worktree: starting branch watcher failed")
		return
	}
	m.mu.Lock()
	m.watchers[taskID] = w
	m.mu.Unlock()
	w.start()
}

func (m *Manager) stopWatcher(taskID string) {
	m.mu.Lock()
	w, ok := m.watchers[taskID]
	if ok {
		delete(m.watchers, taskID)
	}
	m.mu.Unlock()
	if ok {
		w.stop()
	}
}

// Reconcile loads every Active worktree row at startup so is_in_worktree and
// check_file_conflicts work without waiting for a bind_task call.
func (m *Manager) Reconcile(ctx context.Context) error {
	active, err := m.store.ListActiveWorktrees(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range active {
		m.byTaskID[w.TaskID] = w
	}
	return nil
}

// slug reduces title to a 6-character alphanumeric fragment for the branch
// name (claw/<task_id>-<slug6>); punctuation and spaces are dropped rather
// than rewritten to hyphens, since task_id already gives the branch its
// uniqueness.
func slug(title string) string {
	lower := strings.ToLower(title)
	var b strings.Builder
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			if b.Len() == 6 {
				break
			}
		}
	}
	out := b.String()
	if out == "" {
		out = "task"
	}
	return out
}

// BindTask returns the existing worktree for taskID, or creates one cloned
// from repo's HEAD on a new branch claw/<taskID>-<slug6>.
func (m *Manager) BindTask(ctx context.Context, taskID, title, repo string) (*types.WorktreeInfo, error) {
	m.mu.RLock()
	existing, ok := m.byTaskID[taskID]
	m.mu.RUnlock()
	if ok {
		return existing, nil
	}

	branch := fmt.Sprintf("claw/%s-%s", taskID, slug(title))
	path := filepath.Join(m.baseDir, taskID)

	if err := os.MkdirAll(m.baseDir, 0o755); err != nil {
		return nil, clawerr.ExternalFailuref("creating worktree base dir: %v", err)
	}

	cmd := exec.CommandContext(ctx, "git", "worktree", "add", "-b", branch, path, "HEAD")
	cmd.Dir = repo
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, clawerr.ExternalFailuref("git worktree add failed: %v: %s", err, strings.TrimSpace(string(out)))
	}

	w := &types.WorktreeInfo{
		TaskID:     taskID,
		Branch:     branch,
		Path:       path,
		OriginRepo: repo,
		CreatedAt:  time.Now().UnixMilli(),
		Status:     types.WorktreeActive,
	}
	if err := m.store.PutWorktree(ctx, w); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.byTaskID[taskID] = w
	m.mu.Unlock()
	m.startWatcher(taskID, path)

	logging.Info().Str("taskId", taskID).Str("branch", branch).Msg("worktree: bound task")
	return w, nil
}

// Remove prunes the git worktree and deletes its directory, best-effort:
// failures are logged, not returned, since a missing worktree is not a
// caller error once the task is done or abandoned.
func (m *Manager) Remove(ctx context.Context, taskID string) {
	m.stopWatcher(taskID)
	m.mu.Lock()
	w, ok := m.byTaskID[taskID]
	if ok {
		delete(m.byTaskID, taskID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	cmd := exec.CommandContext(ctx, "git", "worktree", "remove", "--force", w.Path)
	cmd.Dir = w.OriginRepo
	if out, err := cmd.CombinedOutput(); err != nil {
		logging.Warn().Err(err).Str("taskId", taskID).Str("output", string(out)).
			Msg("worktree: git worktree remove failed, attempting manual cleanup")
		_ = os.RemoveAll(w.Path)
	}

	w.Status = types.WorktreeDone
	if err := m.store.PutWorktree(ctx, w); err != nil {
		logging.Warn().Err(err).Str("taskId", taskID).Msg("worktree: failed to persist removal status")
	}
}

// IsInWorktree returns the owning task id if path falls inside any active
// worktree, and false if it does not (e.g. the main checkout).
func (m *Manager) IsInWorktree(path string) (string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for taskID, w := range m.byTaskID {
		if w.Status != types.WorktreeActive {
			continue
		}
		rel, err := filepath.Rel(w.Path, abs)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return taskID, true
		}
	}
	return "", false
}

// ValidateWritePaths fails with REPO_NOT_FOUND if any path in paths falls
// outside taskID's worktree.
func (m *Manager) ValidateWritePaths(taskID string, paths []string) error {
	m.mu.RLock()
	w, ok := m.byTaskID[taskID]
	m.mu.RUnlock()
	if !ok {
		return clawerr.TaskNotFound(taskID)
	}

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		rel, err := filepath.Rel(w.Path, abs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return clawerr.RepoNotFound(p)
		}
	}
	return nil
}

// CheckFileConflicts returns the ids of active worktrees (other than
// excludeTaskID) whose dirty files overlap with files, so a caller can warn
// before claiming overlapping work.
func (m *Manager) CheckFileConflicts(ctx context.Context, repo string, files []string, excludeTaskID string) ([]string, error) {
	wanted := make(map[string]bool, len(files))
	for _, f := range files {
		wanted[filepath.Clean(f)] = true
	}

	m.mu.RLock()
	candidates := make([]*types.WorktreeInfo, 0, len(m.byTaskID))
	for taskID, w := range m.byTaskID {
		if taskID == excludeTaskID || w.Status != types.WorktreeActive || w.OriginRepo != repo {
			continue
		}
		candidates = append(candidates, w)
	}
	m.mu.RUnlock()

	var conflicting []string
	for _, w := range candidates {
		dirty, err := dirtyFiles(ctx, w.Path)
		if err != nil {
			logging.Warn().Err(err).Str("taskId", w.TaskID).Msg("worktree: failed to read dirty files")
			continue
		}
		for _, f := range dirty {
			if wanted[filepath.Clean(f)] {
				conflicting = append(conflicting, w.TaskID)
				break
			}
		}
	}
	return conflicting, nil
}

func dirtyFiles(ctx context.Context, path string) ([]string, error) {
	cmd := exec.CommandContext(ctx, "git", "status", "--porcelain")
	cmd.Dir = path
	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}
	var files []string
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		if len(line) > 3 {
			files = append(files, strings.TrimSpace(line[3:]))
		}
	}
	return files, nil
}

// Head returns the current commit hash of a task's worktree, used when
// assembling the evidence pack.
func Head(ctx context.Context, path string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "HEAD")
	cmd.Dir = path
	out, err := cmd.Output()
	if err != nil {
		return "", clawerr.ExternalFailuref("git rev-parse HEAD failed: %v", err)
	}
	return strings.TrimSpace(string(out)), nil
}

// DiffStat returns the additions/deletions a worktree has accumulated
// relative to its origin branch point, used for the evidence pack.
func DiffStat(ctx context.Context, path, baseRef string) (additions, deletions int, err error) {
	cmd := exec.CommandContext(ctx, "git", "diff", "--numstat", baseRef)
	cmd.Dir = path
	out, runErr := cmd.Output()
	if runErr != nil {
		return 0, 0, clawerr.ExternalFailuref("git diff --numstat failed: %v", runErr)
	}
	for _, line := range strings.Split(strings.TrimRight(string(out), "\n"), "\n") {
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		var a, d int
		fmt.Sscanf(fields[0], "%d", &a)
		fmt.Sscanf(fields[1], "%d", &d)
		additions += a
		deletions += d
	}
	return additions, deletions, nil
}
