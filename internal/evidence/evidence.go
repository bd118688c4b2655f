// Package evidence assembles the post-completion proof bundle for a task
// run: diff stats, last test results, the tool-call audit trail, review
// verdict, and worktree HEAD.
//
// Built on internal/worktree.DiffStat/Head for the VCS-facing half and
// internal/store.ListToolCalls for the audit half.
package evidence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/clawd-io/clawd/internal/store"
	"github.com/clawd-io/clawd/internal/worktree"
	"github.com/clawd-io/clawd/pkg/types"
)

// Assemble builds and persists one EvidencePack for taskID's completed run.
// sessionID names the session whose tool-call trace feeds the pack;
// worktreePath is the task's bound worktree, and the most recent validation
// run recorded for that path supplies the test result.
func Assemble(ctx context.Context, st *store.Store, taskID, sessionID, worktreePath, baseRef, reviewVerdict string) (*types.EvidencePack, error) {
	additions, deletions, err := worktree.DiffStat(ctx, worktreePath, baseRef)
	if err != nil {
		return nil, err
	}
	head, err := worktree.Head(ctx, worktreePath)
	if err != nil {
		return nil, err
	}

	calls, err := st.ListToolCalls(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	filesChanged := changedFiles(calls)

	testsPassed, testOutput := lastTestResult(ctx, st, worktreePath)

	pack := &types.EvidencePack{
		TaskID:        taskID,
		RunID:         ulid.Make().String(),
		DiffAdditions: additions,
		DiffDeletions: deletions,
		FilesChanged:  filesChanged,
		TestsPassed:   testsPassed,
		TestOutput:    testOutput,
		ReviewVerdict: reviewVerdict,
		WorktreeHead:  head,
		CreatedAt:     time.Now().UnixMilli(),
	}
	if err := st.PutEvidencePack(ctx, pack); err != nil {
		return nil, err
	}
	return pack, nil
}

func changedFiles(calls []*types.ToolCallRecord) []string {
	seen := make(map[string]bool)
	var files []string
	writeTools := map[string]bool{"edit": true, "write": true, "apply_patch": true}
	for _, c := range calls {
		if !writeTools[c.Name] {
			continue
		}
		path := argsPath(c.ArgsJSON)
		if path == "" || seen[path] {
			continue
		}
		seen[path] = true
		files = append(files, path)
	}
	return files
}

func argsPath(argsJSON string) string {
	var v struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal([]byte(argsJSON), &v); err != nil {
		return ""
	}
	return v.Path
}

func lastTestResult(ctx context.Context, st *store.Store, repoPath string) (bool, string) {
	runs, err := st.ListValidationRuns(ctx, repoPath, 1)
	if err != nil || len(runs) == 0 {
		return false, ""
	}
	return runs[0].ExitCode == 0, runs[0].Output
}

// List returns every evidence pack recorded for taskID, most recent first.
func List(ctx context.Context, st *store.Store, taskID string) ([]*types.EvidencePack, error) {
	return st.ListEvidencePacks(ctx, taskID)
}
