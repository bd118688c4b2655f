package types

// MetricsTick is a per-turn row fed to hourly rollups.
type MetricsTick struct {
	SessionID string `json:"sessionId"`
	Timestamp int64  `json:"timestamp"`
	TokensIn  int    `json:"tokensIn"`
	TokensOut int     `json:"tokensOut"`
	ToolCalls int     `json:"toolCalls"`
	Cost      float64 `json:"cost"`
}

// MetricsRollup is the hourly upsert target keyed by (session, hour bucket).
type MetricsRollup struct {
	SessionID  string  `json:"sessionId"`
	HourBucket int64   `json:"hourBucket"`
	TokensIn   int     `json:"tokensIn"`
	TokensOut  int     `json:"tokensOut"`
	ToolCalls  int     `json:"toolCalls"`
	Cost       float64 `json:"cost"`
}

// DriftItem is a feature from FEATURES.md with no matching source token.
type DriftItem struct {
	RepoPath    string `json:"repoPath"`
	FeatureName string `json:"featureName"`
	Candidate   string `json:"candidateIdentifier"`
	Missing     bool   `json:"missing"`
}

// SessionHealth is the rolling quality signal for a session.
type SessionHealth struct {
	SessionID           string `json:"sessionId"`
	Score               int    `json:"score"`
	ShortCount          int    `json:"shortCount"`
	ToolErrorCount      int    `json:"toolErrorCount"`
	TruncatedCount      int    `json:"truncatedCount"`
	GoodCount           int    `json:"goodCount"`
	ConsecutiveLowQuality int  `json:"consecutiveLowQuality"`
	UpdatedAt           int64  `json:"updatedAt"`
}

// EvidencePack is the post-completion bundle assembled for a task run.
type EvidencePack struct {
	TaskID        string   `json:"taskId"`
	RunID         string   `json:"runId"`
	DiffAdditions int      `json:"diffAdditions"`
	DiffDeletions int      `json:"diffDeletions"`
	FilesChanged  []string `json:"filesChanged"`
	TestsPassed   bool     `json:"testsPassed"`
	TestOutput    string   `json:"testOutput,omitempty"`
	ReviewVerdict string   `json:"reviewVerdict,omitempty"`
	WorktreeHead  string   `json:"worktreeHead"`
	CreatedAt     int64    `json:"createdAt"`
}

// ValidationRun is the persisted output of a lint/test command execution.
type ValidationRun struct {
	ID        string `json:"id"`
	RepoPath  string `json:"repoPath"`
	Command   string `json:"command"`
	ExitCode  int    `json:"exitCode"`
	Output    string `json:"output"`
	Duration  int64  `json:"durationMs"`
	CreatedAt int64  `json:"createdAt"`
}

// Recipe is a named, versioned step list consumed by the external CLI/TUI.
type Recipe struct {
	Name    string   `json:"name"`
	Version int      `json:"version"`
	Steps   []string `json:"steps"`
}

// Achievement is a per-session milestone derived from the metrics rollup.
type Achievement struct {
	SessionID string `json:"sessionId"`
	Key       string `json:"key"`
	Label     string `json:"label"`
	UnlockedAt int64 `json:"unlockedAt"`
}
