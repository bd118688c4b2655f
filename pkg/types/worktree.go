package types

// WorktreeStatus is the lifecycle of a per-task git worktree.
type WorktreeStatus string

const (
	WorktreeActive    WorktreeStatus = "Active"
	WorktreeDone      WorktreeStatus = "Done"
	WorktreeAbandoned WorktreeStatus = "Abandoned"
	WorktreeMerged    WorktreeStatus = "Merged"
)

// WorktreeInfo describes one task's isolated working copy.
type WorktreeInfo struct {
	TaskID    string         `json:"taskId"`
	Branch    string         `json:"branch"`
	Path      string         `json:"path"`
	OriginRepo string        `json:"originRepo"`
	CreatedAt int64          `json:"createdAt"`
	Status    WorktreeStatus `json:"status"`
}
