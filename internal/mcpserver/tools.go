package mcpserver

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/oklog/ulid/v2"

	"github.com/clawd-io/clawd/internal/clawerr"
	"github.com/clawd-io/clawd/internal/policy"
	"github.com/clawd-io/clawd/internal/taskengine"
	"github.com/clawd-io/clawd/pkg/types"
)

// registerTools declares the fixed catalog: create_task, claim_task,
// log_event, apply_patch, run_tests, request_approval, transition_task.
// Every handler is a closure over deps so it reads/writes the same
// taskengine.Engine, approval.Router and store.Store as internal/rpc.
func registerTools(s *server.MCPServer, deps Deps) {
	s.AddTool(mcp.NewTool("create_task",
		mcp.WithDescription("Create a new task in a repository"),
		mcp.WithString("title", mcp.Required(), mcp.Description("Short task title")),
		mcp.WithString("repoPath", mcp.Required(), mcp.Description("Absolute path to the repository")),
		mcp.WithString("taskType", mcp.Required(), mcp.Description("Task category, e.g. fix, feature, review")),
		mcp.WithString("phase", mcp.Description("Optional pipeline phase")),
		mcp.WithString("severity", mcp.Description("Optional severity label")),
		mcp.WithString("actor", mcp.Description("Identity recorded as the event actor")),
		mcp.WithArray("dependencies", mcp.Description("Task ids this task depends on"),
			mcp.Items(map[string]any{"type": "string"})),
		mcp.WithArray("ownedPaths", mcp.Description("Paths this task exclusively owns"),
			mcp.Items(map[string]any{"type": "string"})),
	), createTaskHandler(deps))

	s.AddTool(mcp.NewTool("claim_task",
		mcp.WithDescription("Claim a pending task for an agent; fails if already claimed"),
		mcp.WithString("taskId", mcp.Required()),
		mcp.WithString("agentId", mcp.Required()),
	), claimTaskHandler(deps))

	s.AddTool(mcp.NewTool("log_event",
		mcp.WithDescription("Append a free-form note to a task's event log"),
		mcp.WithString("taskId", mcp.Required()),
		mcp.WithString("actor", mcp.Required()),
		mcp.WithString("message", mcp.Required()),
	), logEventHandler(deps))

	s.AddTool(mcp.NewTool("apply_patch",
		mcp.WithDescription("Apply a diff-match-patch patch to a file inside a task's repository"),
		mcp.WithString("taskId", mcp.Required()),
		mcp.WithString("agentId", mcp.Required()),
		mcp.WithString("path", mcp.Required(), mcp.Description("File path relative to the task's repoPath")),
		mcp.WithString("diff", mcp.Required(), mcp.Description("Patch text in diff-match-patch patch_toText format, made against the current file contents")),
	), applyPatchHandler(deps))

	s.AddTool(mcp.NewTool("run_tests",
		mcp.WithDescription("Run a test command inside a task's repository, subject to policy gating"),
		mcp.WithString("taskId", mcp.Required()),
		mcp.WithString("agentId", mcp.Required()),
		mcp.WithArray("command", mcp.Required(), mcp.Description("Argv to execute, e.g. [\"go\",\"test\",\"./...\"]"),
			mcp.Items(map[string]any{"type": "string"})),
	), runTestsHandler(deps))

	s.AddTool(mcp.NewTool("request_approval",
		mcp.WithDescription("Raise a human-in-the-loop approval request for a gated tool call"),
		mcp.WithString("taskId", mcp.Required()),
		mcp.WithString("agentId", mcp.Required()),
		mcp.WithString("tool", mcp.Required()),
		mcp.WithString("summary", mcp.Required()),
		mcp.WithString("risk", mcp.Description("Low | Medium | High | Critical"), mcp.Enum("Low", "Medium", "High", "Critical")),
	), requestApprovalHandler(deps))

	s.AddTool(mcp.NewTool("transition_task",
		mcp.WithDescription("Move a task to active, blocked, done or abandoned"),
		mcp.WithString("taskId", mcp.Required()),
		mcp.WithString("actor", mcp.Required()),
		mcp.WithString("transition", mcp.Required(), mcp.Enum("active", "blocked", "done", "abandoned")),
		mcp.WithString("reason", mcp.Description("Required for blocked; recorded as blockedReason")),
		mcp.WithString("completionNotes", mcp.Description("Required for done; recorded as completionNotes")),
	), transitionTaskHandler(deps))
}

func createTaskHandler(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		title, err := argString(args, "title")
		if err != nil {
			return toolError("%s", err), nil
		}
		repoPath, err := argString(args, "repoPath")
		if err != nil {
			return toolError("%s", err), nil
		}
		taskType, err := argString(args, "taskType")
		if err != nil {
			return toolError("%s", err), nil
		}
		actor := argStringOpt(args, "actor")
		if actor == "" {
			actor = "mcp"
		}

		now := time.Now().UnixMilli()
		spec := types.TaskSpec{
			Title:        title,
			RepoPath:     repoPath,
			TaskType:     taskType,
			Phase:        argStringOpt(args, "phase"),
			Severity:     argStringOpt(args, "severity"),
			Dependencies: argStringSlice(args, "dependencies"),
			OwnedPaths:   argStringSlice(args, "ownedPaths"),
		}
		task := &types.Task{
			ID:         ulid.Make().String(),
			Spec:       spec,
			Status:     types.TaskPending,
			OwnedPaths: spec.OwnedPaths,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		task.DisplayID = task.ID[len(task.ID)-8:]

		if err := deps.Store.InsertTask(ctx, task); err != nil {
			return toolError("inserting task: %v", err), nil
		}
		if _, err := deps.Tasks.Append(ctx, task.ID, taskengine.NewTaskEvent(task.ID, actor, types.EvTaskCreated, map[string]any{
			"spec": spec,
		})); err != nil {
			return toolError("recording task creation: %v", err), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("created task %s (%s)", task.ID, task.DisplayID)), nil
	}
}

func claimTaskHandler(deps Deps) server.ToolHandlerFunc {
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

		state, err := deps.Tasks.Append(ctx, taskID, taskengine.NewTaskEvent(taskID, agentID, types.EvTaskClaimed, map[string]any{
			"agent_id": agentID,
		}))
		if _, ok := err.(*taskengine.InvalidTransitionError); ok {
			return toolError("%s", clawerr.TaskAlreadyClaimed(taskID)), nil
		}
		if err != nil {
			return toolError("claiming task: %v", err), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("task %s claimed by %s (state=%s)", taskID, agentID, state.State)), nil
	}
}

func logEventHandler(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		taskID, err := argString(args, "taskId")
		if err != nil {
			return toolError("%s", err), nil
		}
		actor, err := argString(args, "actor")
		if err != nil {
			return toolError("%s", err), nil
		}
		message, err := argString(args, "message")
		if err != nil {
			return toolError("%s", err), nil
		}

		if _, err := deps.Tasks.Append(ctx, taskID, taskengine.NewTaskEvent(taskID, actor, types.EvNoteAdded, map[string]any{
			"message": message,
		})); err != nil {
			return toolError("logging event: %v", err), nil
		}
		return mcp.NewToolResultText("logged"), nil
	}
}

func requestApprovalHandler(deps Deps) server.ToolHandlerFunc {
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
		tool, err := argString(args, "tool")
		if err != nil {
			return toolError("%s", err), nil
		}
		summary, err := argString(args, "summary")
		if err != nil {
			return toolError("%s", err), nil
		}
		risk := types.RiskLevel(argStringOpt(args, "risk"))
		if risk == "" {
			risk = types.RiskMedium
		}

		id, err := deps.Approvals.RequestApproval(ctx, taskID, agentID, tool, summary, risk)
		if err != nil {
			return toolError("requesting approval: %v", err), nil
		}
		return mcp.NewToolResultText(id), nil
	}
}

func transitionTaskHandler(deps Deps) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		taskID, err := argString(args, "taskId")
		if err != nil {
			return toolError("%s", err), nil
		}
		actor, err := argString(args, "actor")
		if err != nil {
			return toolError("%s", err), nil
		}
		transition, err := argString(args, "transition")
		if err != nil {
			return toolError("%s", err), nil
		}

		var kind types.TaskEventKind
		payload := map[string]any{}
		switch transition {
		case "active":
			kind = types.EvTaskActive
		case "blocked":
			kind = types.EvTaskBlocked
			reason := argStringOpt(args, "reason")
			if reason == "" {
				return toolError("reason is required to block a task"), nil
			}
			payload["reason"] = reason
		case "done":
			kind = types.EvTaskDone
			notes := argStringOpt(args, "completionNotes")
			if notes == "" {
				return toolError("completionNotes is required to complete a task"), nil
			}
			payload["completionNotes"] = notes
		case "abandoned":
			kind = types.EvTaskAbandoned
		default:
			return toolError("unknown transition %q", transition), nil
		}

		state, err := deps.Tasks.Append(ctx, taskID, taskengine.NewTaskEvent(taskID, actor, kind, payload))
		if _, ok := err.(*taskengine.InvalidTransitionError); ok {
			return toolError("%s", err), nil
		}
		if err != nil {
			return toolError("transitioning task: %v", err), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("task %s is now %s", taskID, state.State)), nil
	}
}

func runTestsHandler(deps Deps) server.ToolHandlerFunc {
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
		command := argStringSlice(args, "command")
		if len(command) == 0 {
			return toolError("command is required"), nil
		}

		state, err := deps.Tasks.State(taskID)
		if err != nil {
			return toolError("loading task: %v", err), nil
		}
		repoPath := state.Spec.RepoPath

		decision := policy.Classify(strings.Join(command, " "), policy.SourceUserInput, agentID)
		switch decision.Outcome {
		case policy.OutcomeDeny:
			return toolError("denied by policy rule %s: %s", decision.RuleID, decision.Reason), nil
		case policy.OutcomeNeedsApproval:
			id, err := deps.Approvals.RequestApproval(ctx, taskID, agentID, "run_tests", strings.Join(command, " "), decision.Risk)
			if err != nil {
				return toolError("requesting approval: %v", err), nil
			}
			status, err := deps.Approvals.WaitForDecision(ctx, id, deps.timeout())
			if err != nil {
				return toolError("waiting for approval: %v", err), nil
			}
			if status != types.ApprovalGranted {
				return toolError("run_tests denied (%s)", status), nil
			}
		}

		runCtx, cancel := context.WithTimeout(ctx, 10*time.Minute)
		defer cancel()
		cmd := exec.CommandContext(runCtx, command[0], command[1:]...)
		cmd.Dir = repoPath
		output, runErr := cmd.CombinedOutput()

		status := "done"
		if runErr != nil {
			status = "error"
		}
		if _, err := deps.Tasks.Append(ctx, taskID, taskengine.NewTaskEvent(taskID, agentID, types.EvToolCalled, map[string]any{
			"tool":    "run_tests",
			"command": command,
			"status":  status,
		})); err != nil {
			return toolError("recording tool call: %v", err), nil
		}

		if runErr != nil {
			return mcp.NewToolResultText(fmt.Sprintf("exit error: %v\n%s", runErr, output)), nil
		}
		return mcp.NewToolResultText(string(output)), nil
	}
}
