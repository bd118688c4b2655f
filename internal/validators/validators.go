// Package validators runs a project's fixed per-language lint/test command
// list and persists the result as a run record.
//
// Subprocess spawn-with-timeout-and-capture is grounded on
// internal/tool/bash.go's exec.CommandContext + SIGKILL-on-deadline idiom,
// narrowed here to a fixed command table instead of an arbitrary
// user-supplied shell string.
package validators

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/clawd-io/clawd/internal/store"
	"github.com/clawd-io/clawd/pkg/types"
)

// WallClockCap is the hard execution ceiling for any single validation run.
const WallClockCap = 5 * time.Minute

// commandTable maps a detected project language to its fixed lint/test
// command list, run in order; the first non-zero exit still lets the rest
// run so a run record exists for every command.
var commandTable = map[string][][]string{
	"go":         {{"go", "vet", "./..."}, {"go", "test", "./..."}},
	"node":       {{"npm", "run", "lint", "--if-present"}, {"npm", "test"}},
	"python":     {{"ruff", "check", "."}, {"pytest"}},
	"rust":       {{"cargo", "clippy"}, {"cargo", "test"}},
}

// DetectLanguage inspects repoPath's root for the marker file that selects
// commandTable's entry. Returns "" if nothing recognized is present.
func DetectLanguage(repoPath string) string {
	markers := []struct {
		file string
		lang string
	}{
		{"go.mod", "go"},
		{"package.json", "node"},
		{"pyproject.toml", "python"},
		{"Cargo.toml", "rust"},
	}
	for _, m := range markers {
		if fileExists(filepath.Join(repoPath, m.file)) {
			return m.lang
		}
	}
	return ""
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Run executes every command for language against repoPath, capped at
// WallClockCap each, and persists a ValidationRun per command.
func Run(ctx context.Context, st *store.Store, repoPath, language string) ([]*types.ValidationRun, error) {
	cmds, ok := commandTable[language]
	if !ok {
		return nil, nil
	}

	var runs []*types.ValidationRun
	for _, cmd := range cmds {
		run, err := runOne(ctx, st, repoPath, cmd)
		if err != nil {
			return runs, err
		}
		runs = append(runs, run)
	}
	return runs, nil
}

func runOne(ctx context.Context, st *store.Store, repoPath string, cmd []string) (*types.ValidationRun, error) {
	runCtx, cancel := context.WithTimeout(ctx, WallClockCap)
	defer cancel()

	start := time.Now()
	c := exec.CommandContext(runCtx, cmd[0], cmd[1:]...)
	c.Dir = repoPath
	var out bytes.Buffer
	c.Stdout = &out
	c.Stderr = &out

	runErr := c.Run()
	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	run := &types.ValidationRun{
		ID:        ulid.Make().String(),
		RepoPath:  repoPath,
		Command:   joinCommand(cmd),
		ExitCode:  exitCode,
		Output:    out.String(),
		Duration:  time.Since(start).Milliseconds(),
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := st.InsertValidationRun(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

func joinCommand(cmd []string) string {
	out := cmd[0]
	for _, part := range cmd[1:] {
		out += " " + part
	}
	return out
}

// History returns the last limit validation runs for repoPath, most recent
// first.
func History(ctx context.Context, st *store.Store, repoPath string, limit int) ([]*types.ValidationRun, error) {
	return st.ListValidationRuns(ctx, repoPath, limit)
}
