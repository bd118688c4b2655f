package worktree

import (
	"context"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/clawd-io/clawd/internal/event"
	"github.com/clawd-io/clawd/internal/logging"
)

// watcher watches one worktree's git dir and, when a HEAD write changes the
// checked-out branch, publishes event.RepoStatusChanged with the new branch
// and whether the worktree is dirty at that moment; a change in dirty state
// alone publishes nothing.
//
// Uses an fsnotify-on-.git-dir idiom, publishing through clawd's
// event.Bus.Publish(event.Event{Name, Payload}) rather than a single
// process-wide event bus.
type watcher struct {
	repoPath string
	bus      *event.Bus

	fsw    *fsnotify.Watcher
	stopCh chan struct{}
	doneCh chan struct{}

	mu     sync.Mutex
	branch string
}

func newWatcher(bus *event.Bus, repoPath string) (*watcher, error) {
	gitDir, err := findGitDir(repoPath)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(gitDir); err != nil {
		fsw.Close()
		return nil, err
	}

	branch, _ := currentBranch(context.Background(), repoPath)
	return &watcher{
		repoPath: repoPath,
		bus:      bus,
		fsw:      fsw,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		branch:   branch,
	}, nil
}

func (w *watcher) start() {
	go w.run()
}

func (w *watcher) run() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 && strings.Contains(ev.Name, "HEAD") {
				w.checkChanged()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logging.Warn().Err(err).Str("repo", w.repoPath).Msg("worktree watcher error")
		}
	}
}

func (w *watcher) checkChanged() {
	ctx := context.Background()
	branch, err := currentBranch(ctx, w.repoPath)
	if err != nil {
		return
	}

	w.mu.Lock()
	changed := branch != w.branch
	if changed {
		w.branch = branch
	}
	w.mu.Unlock()
	if !changed {
		return
	}

	dirty, _ := dirtyFiles(ctx, w.repoPath)
	w.bus.Publish(event.Event{
		Name: event.RepoStatusChanged,
		Payload: event.RepoStatusChangedPayload{
			RepoPath: w.repoPath,
			Branch:   branch,
			Dirty:    len(dirty) > 0,
		},
	})
}

func (w *watcher) stop() {
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
	<-w.doneCh
	w.fsw.Close()
}

func currentBranch(ctx context.Context, path string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = path
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// findGitDir resolves repoPath's real .git directory via git itself rather
// than assuming ".git" is a directory, since a `git worktree add` checkout
// has a .git *file* pointing elsewhere.
func findGitDir(repoPath string) (string, error) {
	cmd := exec.Command("git", "rev-parse", "--git-dir")
	cmd.Dir = repoPath
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	gitDir := strings.TrimSpace(string(out))
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(repoPath, gitDir)
	}
	return gitDir, nil
}
