package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// registerResources declares the clawd:// namespace: sessions, tasks,
// per-session messages, per-task detail, and a path-traversal-defended
// per-repo file read, templated on a task id so the read is scoped to that
// task's repoPath.
func registerResources(s *server.MCPServer, deps Deps) {
	s.AddResource(mcp.NewResource("clawd://sessions", "sessions",
		mcp.WithResourceDescription("All sessions known to the daemon"),
		mcp.WithMIMEType("application/json"),
	), sessionsResourceHandler(deps))

	s.AddResource(mcp.NewResource("clawd://tasks", "tasks",
		mcp.WithResourceDescription("All tasks known to the daemon"),
		mcp.WithMIMEType("application/json"),
	), tasksResourceHandler(deps))

	s.AddResourceTemplate(mcp.NewResourceTemplate(
		"clawd://sessions/{sessionId}/messages", "session-messages",
		mcp.WithTemplateDescription("Messages for one session"),
		mcp.WithTemplateMIMEType("application/json"),
	), sessionMessagesResourceHandler(deps))

	s.AddResourceTemplate(mcp.NewResourceTemplate(
		"clawd://tasks/{taskId}", "task-detail",
		mcp.WithTemplateDescription("Full detail for one task"),
		mcp.WithTemplateMIMEType("application/json"),
	), taskDetailResourceHandler(deps))

	s.AddResourceTemplate(mcp.NewResourceTemplate(
		"clawd://repo/{taskId}/{+path}", "repo-file",
		mcp.WithTemplateDescription("Read a file inside a task's repository"),
		mcp.WithTemplateMIMEType("text/plain"),
	), repoFileResourceHandler(deps))
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: uri, MIMEType: "application/json", Text: string(b)},
	}, nil
}

func sessionsResourceHandler(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		sessions, err := deps.Store.ListSessions(ctx)
		if err != nil {
			return nil, err
		}
		return jsonContents(request.Params.URI, sessions)
	}
}

func tasksResourceHandler(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		tasks, err := deps.Store.ListTasks(ctx, "")
		if err != nil {
			return nil, err
		}
		return jsonContents(request.Params.URI, tasks)
	}
}

// matchTemplate extracts the path segments after prefix in a clawd:// URI,
// e.g. "clawd://sessions/abc/messages" with prefix "clawd://sessions/" and
// suffix "/messages" yields "abc".
func matchTemplate(uri, prefix, suffix string) (string, bool) {
	if !strings.HasPrefix(uri, prefix) || !strings.HasSuffix(uri, suffix) {
		return "", false
	}
	mid := strings.TrimSuffix(strings.TrimPrefix(uri, prefix), suffix)
	if mid == "" || strings.Contains(mid, "/") {
		return "", false
	}
	return mid, true
}

func sessionMessagesResourceHandler(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		sessionID, ok := matchTemplate(request.Params.URI, "clawd://sessions/", "/messages")
		if !ok {
			return nil, fmt.Errorf("malformed session-messages URI: %s", request.Params.URI)
		}
		msgs, err := deps.Store.ListMessages(ctx, sessionID, 0, 0)
		if err != nil {
			return nil, err
		}
		return jsonContents(request.Params.URI, msgs)
	}
}

func taskDetailResourceHandler(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		const prefix = "clawd://tasks/"
		if !strings.HasPrefix(request.Params.URI, prefix) {
			return nil, fmt.Errorf("malformed task-detail URI: %s", request.Params.URI)
		}
		taskID := strings.TrimPrefix(request.Params.URI, prefix)
		task, err := deps.Store.GetTask(ctx, taskID)
		if err != nil {
			return nil, err
		}
		return jsonContents(request.Params.URI, task)
	}
}

func repoFileResourceHandler(deps Deps) server.ResourceHandlerFunc {
	return func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		const prefix = "clawd://repo/"
		if !strings.HasPrefix(request.Params.URI, prefix) {
			return nil, fmt.Errorf("malformed repo-file URI: %s", request.Params.URI)
		}
		rest := strings.TrimPrefix(request.Params.URI, prefix)
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) != 2 || parts[1] == "" {
			return nil, fmt.Errorf("repo-file URI must be clawd://repo/{taskId}/{path}: %s", request.Params.URI)
		}
		taskID, relPath := parts[0], parts[1]

		state, err := deps.Tasks.State(taskID)
		if err != nil {
			return nil, err
		}
		fullPath, err := resolveInRepo(state.Spec.RepoPath, relPath)
		if err != nil {
			return nil, err
		}

		content, err := os.ReadFile(fullPath)
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: request.Params.URI, MIMEType: "text/plain", Text: string(content)},
		}, nil
	}
}
