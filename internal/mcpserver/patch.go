package mcpserver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/clawd-io/clawd/internal/taskengine"
	"github.com/clawd-io/clawd/pkg/types"
)

// resolveInRepo joins rel onto root and rejects any result that escapes
// root, the same path-traversal defence the clawd://repo resource uses for
// reads.
func resolveInRepo(root, rel string) (string, error) {
	if root == "" {
		return "", fmt.Errorf("task has no repoPath")
	}
	cleanRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	full := filepath.Join(cleanRoot, rel)
	if full != cleanRoot && !strings.HasPrefix(full, cleanRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes repository root", rel)
	}
	return full, nil
}

func applyPatchHandler(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		taskID, err := argString(args, "taskId")
		if err != nil {
			return toolError("%s", err), nil
		}
		agentID, err := argString(args, "agentId")
		if err != nil {
			return toolError("%s", err), nil
		}
		relPath, err := argString(args, "path")
		if err != nil {
			return toolError("%s", err), nil
		}
		diffText, err := argString(args, "diff")
		if err != nil {
			return toolError("%s", err), nil
		}

		state, err := deps.Tasks.State(taskID)
		if err != nil {
			return toolError("loading task: %v", err), nil
		}

		fullPath, err := resolveInRepo(state.Spec.RepoPath, relPath)
		if err != nil {
			return toolError("%s", err), nil
		}

		before := ""
		if existing, err := os.ReadFile(fullPath); err == nil {
			before = string(existing)
		} else if !os.IsNotExist(err) {
			return toolError("reading %s: %v", relPath, err), nil
		}

		dmp := diffmatchpatch.New()
		patches, err := dmp.PatchFromText(diffText)
		if err != nil {
			return toolError("invalid diff: %v", err), nil
		}
		after, applied := dmp.PatchApply(patches, before)
		for _, ok := range applied {
			if !ok {
				return toolError("patch did not apply cleanly to %s", relPath), nil
			}
		}

		if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
			return toolError("creating directories for %s: %v", relPath, err), nil
		}
		if err := os.WriteFile(fullPath, []byte(after), 0o644); err != nil {
			return toolError("writing %s: %v", relPath, err), nil
		}

		if _, err := deps.Tasks.Append(ctx, taskID, taskengine.NewTaskEvent(taskID, agentID, types.EvToolCalled, map[string]any{
			"tool": "apply_patch",
			"path": relPath,
		})); err != nil {
			return toolError("recording tool call: %v", err), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("applied patch to %s", relPath)), nil
	}
}
