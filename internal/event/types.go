package event

import "github.com/clawd-io/clawd/pkg/types"

// SessionStatusChangedPayload wraps a session for session.statusChanged.
// session.Manager publishes that event with the *types.Session itself as
// the payload, not this wrapper.
type SessionStatusChangedPayload struct {
	Info *types.Session `json:"info"`
}

// SessionMessagePayload is the payload for session.messageCreated and
// session.messageUpdated.
type SessionMessagePayload struct {
	Info *types.Message `json:"info"`
}

// SessionModeChangedPayload describes a session.modeChanged event.
// session.Manager.SetMode publishes a map with previousMode and mode
// instead of this struct.
type SessionModeChangedPayload struct {
	SessionID string            `json:"sessionId"`
	Mode      types.SessionMode `json:"mode"`
}

// SessionDriftWarningPayload is the payload for session.driftWarning: a
// feature tracked in the repo's drift ledger that no longer has a matching
// source token.
type SessionDriftWarningPayload struct {
	SessionID string           `json:"sessionId"`
	Item      types.DriftItem  `json:"item"`
}

// SessionToolCallPayload is the payload for session.tool_call.
type SessionToolCallPayload struct {
	Info *types.ToolCallRecord `json:"info"`
}

// ToolApprovalRequestedPayload is the payload for tool.approvalRequested.
type ToolApprovalRequestedPayload struct {
	Request *types.ApprovalRequest `json:"request"`
}

// TaskStatusChangedPayload is the payload for task.statusChanged.
type TaskStatusChangedPayload struct {
	Task *types.Task `json:"task"`
}

// TaskTestResultPayload is the payload for task.testResult.
type TaskTestResultPayload struct {
	TaskID   string `json:"taskId"`
	Passed   bool   `json:"passed"`
	Output   string `json:"output,omitempty"`
	Duration int64  `json:"durationMs"`
}

// AEPlanReadyPayload is the payload for ae.planReady (autonomous-engineer
// plan). No package in this repository publishes ae.planReady.
type AEPlanReadyPayload struct {
	TaskID string   `json:"taskId"`
	Steps  []string `json:"steps"`
}

// AEPlanApprovedPayload is the payload for ae.planApproved.
type AEPlanApprovedPayload struct {
	TaskID string `json:"taskId"`
}

// ContextWarningPayload describes warning.contextNearFull and
// warning.contextFull. The one publisher of warning.contextNearFull, the
// intelligence budget check, sends a map with kind, spent and budget
// instead; nothing publishes warning.contextFull.
type ContextWarningPayload struct {
	SessionID        string  `json:"sessionId"`
	UsedTokens       int     `json:"usedTokens"`
	LimitTokens      int     `json:"limitTokens"`
	UtilizationRatio float64 `json:"utilizationRatio"`
}

// AchievementUnlockedPayload wraps an achievement for achievement.unlocked.
// internal/metrics publishes that event with the *types.Achievement itself
// as the payload, not this wrapper.
type AchievementUnlockedPayload struct {
	Achievement *types.Achievement `json:"achievement"`
}

// RepoStatusChangedPayload is the payload for repo.statusChanged, emitted by
// the worktree/fsnotify watcher. The resource governor also publishes
// repo.statusChanged, with a map carrying kind "memoryPressure" and tier.
type RepoStatusChangedPayload struct {
	RepoPath string `json:"repoPath"`
	Branch   string `json:"branch"`
	Dirty    bool   `json:"dirty"`
}
