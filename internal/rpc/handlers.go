package rpc

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/clawd-io/clawd/internal/clawerr"
	"github.com/clawd-io/clawd/internal/drift"
	"github.com/clawd-io/clawd/internal/evidence"
	"github.com/clawd-io/clawd/internal/health"
	"github.com/clawd-io/clawd/internal/metrics"
	"github.com/clawd-io/clawd/internal/taskengine"
	"github.com/clawd-io/clawd/internal/validators"
	"github.com/clawd-io/clawd/pkg/types"
)

// buildDispatchTable wires every implemented RPC method to its handler.
//
// The representative method catalog also names threads.*, ae.plan.*,
// instructions.*, pack.*, and topology.* — these have no backing module in
// this daemon (no thread-graph, AE-loop, instruction-pack, or topology
// component exists) and are intentionally left unimplemented; a client
// calling one gets MethodNotFound like any other unknown method.
func (s *Server) buildDispatchTable() map[string]handlerFunc {
	return map[string]handlerFunc{
		"daemon.status": s.handleDaemonStatus,

		"session.create":      s.handleSessionCreate,
		"session.list":        s.handleSessionList,
		"session.get":         s.handleSessionGet,
		"session.delete":      s.handleSessionDelete,
		"session.send":        s.handleSessionSend,
		"session.getMessages": s.handleSessionGetMessages,
		"session.pause":       s.handleSessionPause,
		"session.resume":      s.handleSessionResume,
		"session.cancel":      s.handleSessionCancel,
		"session.setProvider": s.handleSessionSetProvider,
		"session.setMode":     s.handleSessionSetMode,

		"task.add":          s.handleTaskAdd,
		"task.claim":        s.handleTaskClaim,
		"task.heartbeat":    s.handleTaskHeartbeat,
		"task.updateStatus": s.handleTaskUpdateStatus,
		"task.get":          s.handleTaskGet,
		"task.list":         s.handleTaskList,

		"approval.request":     s.handleApprovalRequest,
		"approval.grant":       s.handleApprovalGrant,
		"approval.deny":        s.handleApprovalDeny,
		"approval.get":         s.handleApprovalGet,
		"approval.listForTask": s.handleApprovalListForTask,

		"dead_letter.list":  s.handleDeadLetterList,
		"dead_letter.retry": s.handleDeadLetterRetry,

		"review.run": s.handleReviewRun,

		"evidence.assemble": s.handleEvidenceAssemble,
		"evidence.list":     s.handleEvidenceList,

		"metrics.dashboard": s.handleMetricsDashboard,

		"drift.scan": s.handleDriftScan,
		"drift.list": s.handleDriftList,

		"health.get": s.handleHealthGet,

		"recipe.get": s.handleRecipeGet,
		"recipe.put": s.handleRecipePut,

		"worktree.bind":   s.handleWorktreeBind,
		"worktree.remove": s.handleWorktreeRemove,
	}
}

func toRPCError(err error) *Error {
	if _, ok := err.(*taskengine.InvalidTransitionError); ok {
		return &Error{Code: CodeConflict, Message: err.Error()}
	}
	if ce, ok := clawerr.As(err); ok {
		code := InternalError
		switch ce.Tag {
		case clawerr.NotFound:
			code = CodeNotFound
		case clawerr.Conflict:
			code = CodeConflict
		case clawerr.PolicyDenied:
			code = CodePolicyDenied
		case clawerr.ExternalFailure:
			code = CodeExternalFailure
		case clawerr.ResourceExhausted:
			code = CodeResourceExhausted
		case clawerr.CorruptData:
			code = CodeCorruptData
		case clawerr.InvalidParams:
			code = InvalidParams
		}
		return &Error{Code: code, Message: ce.Error(), Data: ce.Code}
	}
	return &Error{Code: InternalError, Message: err.Error()}
}

// --- daemon ---

func (s *Server) handleDaemonStatus(ctx context.Context, c *connState, params []byte) (any, *Error) {
	pressure := "normal"
	maxActive := 0
	if s.governor != nil {
		pressure = string(s.governor.Current())
		maxActive = s.governor.MaxConcurrentActive()
	}
	monthlyCost, _ := s.store.SumMonthlyCost(ctx, monthStartMillis())
	return map[string]any{
		"pressure":            pressure,
		"maxConcurrentActive": maxActive,
		"monthlyCostUsd":      monthlyCost,
	}, nil
}

func monthStartMillis() int64 {
	now := time.Now().UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start.UnixMilli()
}

// --- session.* ---

type sessionCreateParams struct {
	Provider        types.Provider `json:"provider"`
	RepoPath        string         `json:"repoPath"`
	Title           string         `json:"title"`
	Permissions     []string       `json:"permissions"`
	InitialMessage  string         `json:"initialMessage"`
	InheritFrom     string         `json:"inheritFrom"`
}

func (s *Server) handleSessionCreate(ctx context.Context, c *connState, raw []byte) (any, *Error) {
	var p sessionCreateParams
	if err := unmarshalParams(raw, &p); err != nil {
		return nil, &Error{Code: InvalidParams, Message: "invalid params"}
	}
	if p.RepoPath == "" {
		return nil, &Error{Code: InvalidParams, Message: "repoPath is required"}
	}
	sess, err := s.sessions.Create(ctx, p.Provider, p.RepoPath, p.Title, p.Permissions, p.InitialMessage, p.InheritFrom)
	if err != nil {
		return nil, toRPCError(err)
	}
	return sess, nil
}

func (s *Server) handleSessionList(ctx context.Context, c *connState, raw []byte) (any, *Error) {
	sessions, err := s.sessions.List(ctx)
	if err != nil {
		return nil, toRPCError(err)
	}
	return sessions, nil
}

type idParams struct {
	ID string `json:"id"`
}

func (s *Server) handleSessionGet(ctx context.Context, c *connState, raw []byte) (any, *Error) {
	var p idParams
	if err := unmarshalParams(raw, &p); err != nil || p.ID == "" {
		return nil, &Error{Code: InvalidParams, Message: "id is required"}
	}
	sess, err := s.sessions.Get(ctx, p.ID)
	if err != nil {
		return nil, toRPCError(err)
	}
	return sess, nil
}

func (s *Server) handleSessionDelete(ctx context.Context, c *connState, raw []byte) (any, *Error) {
	var p idParams
	if err := unmarshalParams(raw, &p); err != nil || p.ID == "" {
		return nil, &Error{Code: InvalidParams, Message: "id is required"}
	}
	if err := s.sessions.Delete(ctx, p.ID); err != nil {
		return nil, toRPCError(err)
	}
	return map[string]any{"deleted": true}, nil
}

type sessionSendParams struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

func (s *Server) handleSessionSend(ctx context.Context, c *connState, raw []byte) (any, *Error) {
	var p sessionSendParams
	if err := unmarshalParams(raw, &p); err != nil || p.ID == "" || p.Content == "" {
		return nil, &Error{Code: InvalidParams, Message: "id and content are required"}
	}
	msg, err := s.sessions.SendMessage(ctx, p.ID, p.Content)
	if err != nil {
		return nil, toRPCError(err)
	}
	return msg, nil
}

type getMessagesParams struct {
	ID     string `json:"id"`
	Limit  int    `json:"limit"`
	Before int64  `json:"before"`
}

func (s *Server) handleSessionGetMessages(ctx context.Context, c *connState, raw []byte) (any, *Error) {
	var p getMessagesParams
	if err := unmarshalParams(raw, &p); err != nil || p.ID == "" {
		return nil, &Error{Code: InvalidParams, Message: "id is required"}
	}
	if p.Limit <= 0 {
		p.Limit = 100
	}
	msgs, err := s.store.ListMessages(ctx, p.ID, p.Limit, p.Before)
	if err != nil {
		return nil, toRPCError(err)
	}
	return msgs, nil
}

func (s *Server) handleSessionPause(ctx context.Context, c *connState, raw []byte) (any, *Error) {
	var p idParams
	if err := unmarshalParams(raw, &p); err != nil || p.ID == "" {
		return nil, &Error{Code: InvalidParams, Message: "id is required"}
	}
	sess, err := s.sessions.Pause(ctx, p.ID)
	if err != nil {
		return nil, toRPCError(err)
	}
	return sess, nil
}

func (s *Server) handleSessionResume(ctx context.Context, c *connState, raw []byte) (any, *Error) {
	var p idParams
	if err := unmarshalParams(raw, &p); err != nil || p.ID == "" {
		return nil, &Error{Code: InvalidParams, Message: "id is required"}
	}
	sess, err := s.sessions.Resume(ctx, p.ID)
	if err != nil {
		return nil, toRPCError(err)
	}
	return sess, nil
}

func (s *Server) handleSessionCancel(ctx context.Context, c *connState, raw []byte) (any, *Error) {
	var p idParams
	if err := unmarshalParams(raw, &p); err != nil || p.ID == "" {
		return nil, &Error{Code: InvalidParams, Message: "id is required"}
	}
	sess, err := s.sessions.Cancel(ctx, p.ID)
	if err != nil {
		return nil, toRPCError(err)
	}
	return sess, nil
}

type setProviderParams struct {
	ID       string         `json:"id"`
	Provider types.Provider `json:"provider"`
}

func (s *Server) handleSessionSetProvider(ctx context.Context, c *connState, raw []byte) (any, *Error) {
	var p setProviderParams
	if err := unmarshalParams(raw, &p); err != nil || p.ID == "" {
		return nil, &Error{Code: InvalidParams, Message: "id is required"}
	}
	sess, err := s.sessions.SetProvider(ctx, p.ID, p.Provider)
	if err != nil {
		return nil, toRPCError(err)
	}
	return sess, nil
}

type setModeParams struct {
	ID   string            `json:"id"`
	Mode types.SessionMode `json:"mode"`
}

func (s *Server) handleSessionSetMode(ctx context.Context, c *connState, raw []byte) (any, *Error) {
	var p setModeParams
	if err := unmarshalParams(raw, &p); err != nil || p.ID == "" {
		return nil, &Error{Code: InvalidParams, Message: "id is required"}
	}
	sess, err := s.sessions.SetMode(ctx, p.ID, p.Mode)
	if err != nil {
		return nil, toRPCError(err)
	}
	return sess, nil
}

// --- task.* ---
//
// task.add creates the SQL row directly via store.InsertTask (matching the
// pending-row-must-exist-first precondition taskengine.Engine.Append relies
// on for its store mirror-write) then appends EvTaskCreated so the event log
// and in-memory MaterializedTask agree with the row from the start. Every
// later transition -- claim, active, blocked, done, abandoned -- goes
// through Engine.Append alone: its per-task mutex plus the reducer's
// state-precondition check (EvTaskClaimed requires TaskPending) already give
// "exactly one concurrent claimer wins" without a second atomic SQL path.

type taskAddParams struct {
	Title        string   `json:"title"`
	RepoPath     string   `json:"repoPath"`
	TaskType     string   `json:"taskType"`
	Phase        string   `json:"phase"`
	Severity     string   `json:"severity"`
	Dependencies []string `json:"dependencies"`
	OwnedPaths   []string `json:"ownedPaths"`
}

func (s *Server) handleTaskAdd(ctx context.Context, c *connState, raw []byte) (any, *Error) {
	var p taskAddParams
	if err := unmarshalParams(raw, &p); err != nil || p.Title == "" || p.RepoPath == "" {
		return nil, &Error{Code: InvalidParams, Message: "title and repoPath are required"}
	}

	id := ulid.Make().String()
	now := time.Now().UnixMilli()
	spec := types.TaskSpec{
		Title: p.Title, RepoPath: p.RepoPath, TaskType: p.TaskType,
		Phase: p.Phase, Severity: p.Severity, Dependencies: p.Dependencies, OwnedPaths: p.OwnedPaths,
	}
	task := &types.Task{
		ID: id, DisplayID: id, Spec: spec, Status: types.TaskPending,
		OwnedPaths: p.OwnedPaths, CreatedAt: now, UpdatedAt: now,
	}
	if err := s.store.InsertTask(ctx, task); err != nil {
		return nil, toRPCError(err)
	}

	specPayload := map[string]any{
		"title": p.Title, "repoPath": p.RepoPath, "taskType": p.TaskType,
		"phase": p.Phase, "severity": p.Severity, "dependencies": p.Dependencies, "ownedPaths": p.OwnedPaths,
	}
	if _, err := s.tasks.Append(ctx, id, taskengine.NewTaskEvent(id, "operator", types.EvTaskCreated,
		map[string]any{"spec": specPayload})); err != nil {
		return nil, toRPCError(err)
	}
	return task, nil
}

type taskClaimParams struct {
	TaskID  string `json:"taskId"`
	AgentID string `json:"agentId"`
}

func (s *Server) handleTaskClaim(ctx context.Context, c *connState, raw []byte) (any, *Error) {
	var p taskClaimParams
	if err := unmarshalParams(raw, &p); err != nil || p.TaskID == "" || p.AgentID == "" {
		return nil, &Error{Code: InvalidParams, Message: "taskId and agentId are required"}
	}
	state, err := s.tasks.Append(ctx, p.TaskID, taskengine.NewTaskEvent(p.TaskID, p.AgentID, types.EvTaskClaimed,
		map[string]any{"agent_id": p.AgentID}))
	if err != nil {
		if _, ok := err.(*taskengine.InvalidTransitionError); ok {
			return nil, toRPCError(clawerr.TaskAlreadyClaimed(p.TaskID))
		}
		return nil, toRPCError(err)
	}
	return state, nil
}

type taskHeartbeatParams struct {
	TaskID string `json:"taskId"`
}

func (s *Server) handleTaskHeartbeat(ctx context.Context, c *connState, raw []byte) (any, *Error) {
	var p taskHeartbeatParams
	if err := unmarshalParams(raw, &p); err != nil || p.TaskID == "" {
		return nil, &Error{Code: InvalidParams, Message: "taskId is required"}
	}
	if err := s.store.Heartbeat(ctx, p.TaskID, time.Now().UnixMilli()); err != nil {
		return nil, toRPCError(err)
	}
	return map[string]any{"ok": true}, nil
}

type taskUpdateStatusParams struct {
	TaskID  string         `json:"taskId"`
	Actor   string         `json:"actor"`
	Kind    string         `json:"kind"`
	Payload map[string]any `json:"payload"`
}

func (s *Server) handleTaskUpdateStatus(ctx context.Context, c *connState, raw []byte) (any, *Error) {
	var p taskUpdateStatusParams
	if err := unmarshalParams(raw, &p); err != nil || p.TaskID == "" || p.Kind == "" {
		return nil, &Error{Code: InvalidParams, Message: "taskId and kind are required"}
	}
	kind := types.TaskEventKind(p.Kind)
	switch kind {
	case types.EvTaskCreated, types.EvTaskClaimed:
		return nil, &Error{Code: InvalidParams, Message: "use task.add / task.claim for this transition"}
	}
	state, err := s.tasks.Append(ctx, p.TaskID, taskengine.NewTaskEvent(p.TaskID, p.Actor, kind, p.Payload))
	if err != nil {
		return nil, toRPCError(err)
	}
	return state, nil
}

func (s *Server) handleTaskGet(ctx context.Context, c *connState, raw []byte) (any, *Error) {
	var p idParams
	if err := unmarshalParams(raw, &p); err != nil || p.ID == "" {
		return nil, &Error{Code: InvalidParams, Message: "id is required"}
	}
	task, err := s.store.GetTask(ctx, p.ID)
	if err != nil {
		return nil, toRPCError(err)
	}
	return task, nil
}

type taskListParams struct {
	RepoPath string `json:"repoPath"`
}

func (s *Server) handleTaskList(ctx context.Context, c *connState, raw []byte) (any, *Error) {
	var p taskListParams
	_ = unmarshalParams(raw, &p)
	tasks, err := s.store.ListTasks(ctx, p.RepoPath)
	if err != nil {
		return nil, toRPCError(err)
	}
	return tasks, nil
}

// --- approval.* ---

type approvalRequestParams struct {
	TaskID  string         `json:"taskId"`
	AgentID string         `json:"agentId"`
	Tool    string         `json:"tool"`
	Summary string         `json:"summary"`
	Risk    types.RiskLevel `json:"risk"`
}

func (s *Server) handleApprovalRequest(ctx context.Context, c *connState, raw []byte) (any, *Error) {
	var p approvalRequestParams
	if err := unmarshalParams(raw, &p); err != nil || p.TaskID == "" || p.Tool == "" {
		return nil, &Error{Code: InvalidParams, Message: "taskId and tool are required"}
	}
	id, err := s.approvals.RequestApproval(ctx, p.TaskID, p.AgentID, p.Tool, p.Summary, p.Risk)
	if err != nil {
		return nil, toRPCError(err)
	}
	return map[string]any{"id": id}, nil
}

func (s *Server) handleApprovalGrant(ctx context.Context, c *connState, raw []byte) (any, *Error) {
	var p idParams
	if err := unmarshalParams(raw, &p); err != nil || p.ID == "" {
		return nil, &Error{Code: InvalidParams, Message: "id is required"}
	}
	if err := s.approvals.Grant(ctx, p.ID); err != nil {
		return nil, toRPCError(err)
	}
	return map[string]any{"ok": true}, nil
}

type approvalDenyParams struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

func (s *Server) handleApprovalDeny(ctx context.Context, c *connState, raw []byte) (any, *Error) {
	var p approvalDenyParams
	if err := unmarshalParams(raw, &p); err != nil || p.ID == "" {
		return nil, &Error{Code: InvalidParams, Message: "id is required"}
	}
	if err := s.approvals.Deny(ctx, p.ID, p.Reason); err != nil {
		return nil, toRPCError(err)
	}
	return map[string]any{"ok": true}, nil
}

func (s *Server) handleApprovalGet(ctx context.Context, c *connState, raw []byte) (any, *Error) {
	var p idParams
	if err := unmarshalParams(raw, &p); err != nil || p.ID == "" {
		return nil, &Error{Code: InvalidParams, Message: "id is required"}
	}
	a, err := s.approvals.Get(ctx, p.ID)
	if err != nil {
		return nil, toRPCError(err)
	}
	return a, nil
}

type taskIDParams struct {
	TaskID string `json:"taskId"`
}

func (s *Server) handleApprovalListForTask(ctx context.Context, c *connState, raw []byte) (any, *Error) {
	var p taskIDParams
	if err := unmarshalParams(raw, &p); err != nil || p.TaskID == "" {
		return nil, &Error{Code: InvalidParams, Message: "taskId is required"}
	}
	list, err := s.approvals.ListForTask(ctx, p.TaskID)
	if err != nil {
		return nil, toRPCError(err)
	}
	return list, nil
}

// --- dead_letter.* ---

func (s *Server) handleDeadLetterList(ctx context.Context, c *connState, raw []byte) (any, *Error) {
	entries, err := s.store.ListDeadLetters(ctx)
	if err != nil {
		return nil, toRPCError(err)
	}
	return entries, nil
}

func (s *Server) handleDeadLetterRetry(ctx context.Context, c *connState, raw []byte) (any, *Error) {
	var p idParams
	if err := unmarshalParams(raw, &p); err != nil || p.ID == "" {
		return nil, &Error{Code: InvalidParams, Message: "id is required"}
	}
	entry, err := s.store.GetDeadLetter(ctx, p.ID)
	if err != nil {
		return nil, toRPCError(err)
	}
	if s.deadletters == nil {
		return nil, &Error{Code: InternalError, Message: "dead letter queue not wired"}
	}
	if err := s.deadletters.MarkForRetry(ctx, entry); err != nil {
		return nil, toRPCError(err)
	}
	s.deadletters.RetryPendingNow(ctx)
	return map[string]any{"ok": true}, nil
}

// --- review.run ---
//
// review.run is the one representative-catalog entry with no dedicated
// engine package: it is a thin composition of validators.Run (tests) and
// evidence.Assemble (pack), matching how a human reviewer would invoke both
// in sequence before approving a task.

type reviewRunParams struct {
	TaskID        string `json:"taskId"`
	SessionID     string `json:"sessionId"`
	RepoPath      string `json:"repoPath"`
	BaseRef       string `json:"baseRef"`
	ReviewVerdict string `json:"reviewVerdict"`
}

func (s *Server) handleReviewRun(ctx context.Context, c *connState, raw []byte) (any, *Error) {
	var p reviewRunParams
	if err := unmarshalParams(raw, &p); err != nil || p.TaskID == "" || p.RepoPath == "" {
		return nil, &Error{Code: InvalidParams, Message: "taskId and repoPath are required"}
	}
	lang := validators.DetectLanguage(p.RepoPath)
	if lang != "" {
		if _, err := validators.Run(ctx, s.store, p.RepoPath, lang); err != nil {
			return nil, toRPCError(err)
		}
	}
	pack, err := evidence.Assemble(ctx, s.store, p.TaskID, p.SessionID, p.RepoPath, p.BaseRef, p.ReviewVerdict)
	if err != nil {
		return nil, toRPCError(err)
	}
	return pack, nil
}

// --- evidence.* ---

func (s *Server) handleEvidenceAssemble(ctx context.Context, c *connState, raw []byte) (any, *Error) {
	var p reviewRunParams
	if err := unmarshalParams(raw, &p); err != nil || p.TaskID == "" || p.RepoPath == "" {
		return nil, &Error{Code: InvalidParams, Message: "taskId and repoPath are required"}
	}
	pack, err := evidence.Assemble(ctx, s.store, p.TaskID, p.SessionID, p.RepoPath, p.BaseRef, p.ReviewVerdict)
	if err != nil {
		return nil, toRPCError(err)
	}
	return pack, nil
}

func (s *Server) handleEvidenceList(ctx context.Context, c *connState, raw []byte) (any, *Error) {
	var p taskIDParams
	if err := unmarshalParams(raw, &p); err != nil || p.TaskID == "" {
		return nil, &Error{Code: InvalidParams, Message: "taskId is required"}
	}
	list, err := evidence.List(ctx, s.store, p.TaskID)
	if err != nil {
		return nil, toRPCError(err)
	}
	return list, nil
}

// --- metrics.* ---

type sessionIDParams struct {
	SessionID string `json:"sessionId"`
}

func (s *Server) handleMetricsDashboard(ctx context.Context, c *connState, raw []byte) (any, *Error) {
	var p sessionIDParams
	if err := unmarshalParams(raw, &p); err != nil || p.SessionID == "" {
		return nil, &Error{Code: InvalidParams, Message: "sessionId is required"}
	}
	dash, err := metrics.BuildDashboard(ctx, s.store, p.SessionID)
	if err != nil {
		return nil, toRPCError(err)
	}
	return dash, nil
}

// --- drift.* ---

type driftScanParams struct {
	RepoPath     string `json:"repoPath"`
	FeaturesPath string `json:"featuresPath"`
}

func (s *Server) handleDriftScan(ctx context.Context, c *connState, raw []byte) (any, *Error) {
	var p driftScanParams
	if err := unmarshalParams(raw, &p); err != nil || p.RepoPath == "" || p.FeaturesPath == "" {
		return nil, &Error{Code: InvalidParams, Message: "repoPath and featuresPath are required"}
	}
	items, err := drift.Scan(ctx, s.store, p.RepoPath, p.FeaturesPath)
	if err != nil {
		return nil, toRPCError(err)
	}
	return items, nil
}

type repoPathParams struct {
	RepoPath string `json:"repoPath"`
}

func (s *Server) handleDriftList(ctx context.Context, c *connState, raw []byte) (any, *Error) {
	var p repoPathParams
	if err := unmarshalParams(raw, &p); err != nil || p.RepoPath == "" {
		return nil, &Error{Code: InvalidParams, Message: "repoPath is required"}
	}
	items, err := drift.List(ctx, s.store, p.RepoPath)
	if err != nil {
		return nil, toRPCError(err)
	}
	return items, nil
}

// --- health.* ---

func (s *Server) handleHealthGet(ctx context.Context, c *connState, raw []byte) (any, *Error) {
	var p sessionIDParams
	if err := unmarshalParams(raw, &p); err != nil || p.SessionID == "" {
		return nil, &Error{Code: InvalidParams, Message: "sessionId is required"}
	}
	h, err := s.store.GetSessionHealth(ctx, p.SessionID)
	if err != nil {
		return nil, toRPCError(err)
	}
	needsRefresh, err := health.NeedsRefresh(ctx, s.store, p.SessionID)
	if err != nil {
		return nil, toRPCError(err)
	}
	return map[string]any{"health": h, "needsRefresh": needsRefresh}, nil
}

// --- recipe.* ---

type recipeNameParams struct {
	Name string `json:"name"`
}

func (s *Server) handleRecipeGet(ctx context.Context, c *connState, raw []byte) (any, *Error) {
	var p recipeNameParams
	if err := unmarshalParams(raw, &p); err != nil || p.Name == "" {
		return nil, &Error{Code: InvalidParams, Message: "name is required"}
	}
	r, err := s.store.GetLatestRecipe(ctx, p.Name)
	if err != nil {
		return nil, toRPCError(err)
	}
	return r, nil
}

func (s *Server) handleRecipePut(ctx context.Context, c *connState, raw []byte) (any, *Error) {
	var r types.Recipe
	if err := unmarshalParams(raw, &r); err != nil || r.Name == "" {
		return nil, &Error{Code: InvalidParams, Message: "name is required"}
	}
	if err := s.store.PutRecipe(ctx, &r); err != nil {
		return nil, toRPCError(err)
	}
	return &r, nil
}

// --- worktree.* ---

type worktreeBindParams struct {
	TaskID string `json:"taskId"`
	Title  string `json:"title"`
	Repo   string `json:"repo"`
}

func (s *Server) handleWorktreeBind(ctx context.Context, c *connState, raw []byte) (any, *Error) {
	var p worktreeBindParams
	if err := unmarshalParams(raw, &p); err != nil || p.TaskID == "" || p.Repo == "" {
		return nil, &Error{Code: InvalidParams, Message: "taskId and repo are required"}
	}
	info, err := s.worktrees.BindTask(ctx, p.TaskID, p.Title, p.Repo)
	if err != nil {
		return nil, toRPCError(err)
	}
	return info, nil
}

func (s *Server) handleWorktreeRemove(ctx context.Context, c *connState, raw []byte) (any, *Error) {
	var p taskIDParams
	if err := unmarshalParams(raw, &p); err != nil || p.TaskID == "" {
		return nil, &Error{Code: InvalidParams, Message: "taskId is required"}
	}
	s.worktrees.Remove(ctx, p.TaskID)
	return map[string]any{"ok": true}, nil
}
