package types

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	SessionIdle    SessionStatus = "idle"
	SessionRunning SessionStatus = "running"
	SessionPaused  SessionStatus = "paused"
	SessionError   SessionStatus = "error"
)

// SessionTier reflects the resource governor's placement of a session.
type SessionTier string

const (
	TierActive SessionTier = "active"
	TierWarm   SessionTier = "warm"
	TierCold   SessionTier = "cold"
)

// SessionMode is the behavior mode a session is set to. The model
// intelligence pipeline does not read it, and no mode retries a turn with an
// upgraded model: intelligence.Upgrade has no caller outside its tests.
type SessionMode string

const (
	ModeNormal SessionMode = "NORMAL"
	ModeLearn  SessionMode = "LEARN"
	ModeStorm  SessionMode = "STORM"
	ModeForge  SessionMode = "FORGE"
	ModeCrunch SessionMode = "CRUNCH"
)

// Provider identifies an external provider CLI.
type Provider string

const (
	ProviderClaude Provider = "claude"
	ProviderCodex  Provider = "codex"
	ProviderCursor Provider = "cursor"
	ProviderAuto   Provider = "auto"
)

// Session is a live conversation with one provider in one repository.
// Mutated only by the session manager (internal/session).
type Session struct {
	ID             string        `json:"id"`
	Provider       Provider      `json:"provider"`
	RepoPath       string        `json:"repoPath"`
	Title          string        `json:"title"`
	Status         SessionStatus `json:"status"`
	Mode           SessionMode   `json:"mode"`
	Tier           SessionTier   `json:"tier"`
	CreatedAt      int64         `json:"createdAt"`
	UpdatedAt      int64         `json:"updatedAt"`
	MessageCount   int           `json:"messageCount"`
	Permissions    []string      `json:"permissions,omitempty"`
	ParentSession  *string       `json:"parentSessionId,omitempty"`
	ModelID        string        `json:"modelId,omitempty"`
	LastActivityAt int64         `json:"lastActivityAt"`
}

// IsBusy reports whether the session currently rejects session.send.
func (s *Session) IsBusy() bool {
	return s.Status == SessionRunning
}
