// Package session owns the in-memory registry of live conversations and
// the store-backed Session rows behind them.
//
// Keeps a registry of active sessions behind an RWMutex, with
// create/list/get/delete, pause and resume flipping status, and
// send_message's busy/paused gating before spawning work in the
// background. Sessions persist through internal/store rather than
// file-per-session JSON, and each turn runs through internal/turn's
// subprocess runner rather than a direct completion API call.
package session

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/clawd-io/clawd/internal/clawerr"
	"github.com/clawd-io/clawd/internal/event"
	"github.com/clawd-io/clawd/internal/governor"
	"github.com/clawd-io/clawd/internal/logging"
	"github.com/clawd-io/clawd/internal/store"
	"github.com/clawd-io/clawd/internal/turn"
	"github.com/clawd-io/clawd/pkg/types"
)

// idleGraceForDemotion is how long a session must sit untouched at a tier
// before the governor's next signal is allowed to push it down further.
const idleGraceForDemotion = 2 * time.Minute

// RunnerFactory builds a turn.Runner for a session; the real daemon wires
// internal/turn.New, tests can substitute a fake.
type RunnerFactory func(sessionID, repoPath string, provider types.Provider) *turn.Runner

// active is one live session's runtime handle alongside its persisted row.
type active struct {
	runner *turn.Runner
	cancel context.CancelFunc
}

// Manager is the daemon's single session registry.
type Manager struct {
	store   *store.Store
	bus     *event.Bus
	newRun  RunnerFactory

	mu     sync.RWMutex
	active map[string]*active
}

// New creates a Manager over the shared store, bus, and runner factory.
func New(st *store.Store, bus *event.Bus, newRun RunnerFactory) *Manager {
	return &Manager{store: st, bus: bus, newRun: newRun, active: make(map[string]*active)}
}

// Create persists a new session row, optionally priming it with a context
// -inheritance message summarizing inheritFrom's last turns, and returns
// the row. It starts no repo watcher, and neither does internal/rpc's
// session.create handler.
func (m *Manager) Create(ctx context.Context, provider types.Provider, repoPath, title string, permissions []string, initialMessage, inheritFrom string) (*types.Session, error) {
	now := time.Now().UnixMilli()
	sess := &types.Session{
		ID:             newSessionID(),
		Provider:       provider,
		RepoPath:       repoPath,
		Title:          title,
		Status:         types.SessionIdle,
		Mode:           types.ModeNormal,
		Tier:           types.TierActive,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastActivityAt: now,
		Permissions:    permissions,
	}
	if inheritFrom != "" {
		sess.ParentSession = &inheritFrom
	}
	if err := m.store.PutSession(ctx, sess); err != nil {
		return nil, err
	}

	if inheritFrom != "" {
		if primer, err := m.buildInheritancePrimer(ctx, inheritFrom); err == nil && primer != "" {
			m.persistUserMessage(ctx, sess.ID, primer)
		}
	}
	if initialMessage != "" {
		if _, err := m.SendMessage(ctx, sess.ID, initialMessage); err != nil {
			logging.Warn().Err(err).Str("session", sess.ID).Msg("session: initial message failed to send")
		}
	}

	m.broadcastStatus(sess)
	return sess, nil
}

// buildInheritancePrimer summarizes a prior session's last 3 assistant
// turns (trimmed to 400 chars each). It does not list the prior session's
// task ids.
func (m *Manager) buildInheritancePrimer(ctx context.Context, fromSessionID string) (string, error) {
	msgs, err := m.store.ListMessages(ctx, fromSessionID, 0, 0)
	if err != nil {
		return "", err
	}
	var assistantTurns []string
	for i := len(msgs) - 1; i >= 0 && len(assistantTurns) < 3; i-- {
		if msgs[i].Role != types.RoleAssistant {
			continue
		}
		content := msgs[i].Content
		if len(content) > 400 {
			content = content[:400]
		}
		assistantTurns = append(assistantTurns, content)
	}
	if len(assistantTurns) == 0 {
		return "", nil
	}
	// Restore chronological order (the loop above collected newest-first).
	for i, j := 0, len(assistantTurns)-1; i < j; i, j = i+1, j-1 {
		assistantTurns[i], assistantTurns[j] = assistantTurns[j], assistantTurns[i]
	}
	var b strings.Builder
	b.WriteString("[context inherited from a prior session]\n")
	for _, t := range assistantTurns {
		b.WriteString("- ")
		b.WriteString(t)
		b.WriteString("\n")
	}
	return b.String(), nil
}

func (m *Manager) persistUserMessage(ctx context.Context, sessionID, content string) {
	_ = m.store.PutMessage(ctx, &types.Message{
		ID:              newSessionID(),
		SessionID:       sessionID,
		Role:            types.RoleSystem,
		Content:         content,
		Status:          types.MessageDone,
		CreatedAt:       time.Now().UnixMilli(),
		EstimatedTokens: (len(content) + 3) / 4,
	})
}

// List returns every session, most recently active first.
func (m *Manager) List(ctx context.Context) ([]*types.Session, error) {
	sessions, err := m.store.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(sessions, func(i, j int) bool { return sessions[i].LastActivityAt > sessions[j].LastActivityAt })
	return sessions, nil
}

// Get returns one session by id, or SESSION_NOT_FOUND.
func (m *Manager) Get(ctx context.Context, id string) (*types.Session, error) {
	sess, err := m.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, clawerr.SessionNotFound(id)
	}
	return sess, nil
}

// Delete removes a session's row and history, stopping any live runner.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.stopRunner(id)
	return m.store.DeleteSession(ctx, id)
}

// Pause flips a session to paused.
func (m *Manager) Pause(ctx context.Context, id string) (*types.Session, error) {
	sess, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.Status = types.SessionPaused
	sess.UpdatedAt = time.Now().UnixMilli()
	if err := m.store.PutSession(ctx, sess); err != nil {
		return nil, err
	}
	m.broadcastStatus(sess)
	return sess, nil
}

// Resume flips a paused session back to running if a live runner exists,
// otherwise to idle.
func (m *Manager) Resume(ctx context.Context, id string) (*types.Session, error) {
	sess, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	_, hasRunner := m.active[id]
	m.mu.RUnlock()
	if hasRunner {
		sess.Status = types.SessionRunning
	} else {
		sess.Status = types.SessionIdle
	}
	sess.UpdatedAt = time.Now().UnixMilli()
	if err := m.store.PutSession(ctx, sess); err != nil {
		return nil, err
	}
	m.broadcastStatus(sess)
	return sess, nil
}

// Cancel kills the in-flight subprocess without deleting history.
func (m *Manager) Cancel(ctx context.Context, id string) (*types.Session, error) {
	m.stopRunner(id)
	sess, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.Status = types.SessionIdle
	sess.UpdatedAt = time.Now().UnixMilli()
	if err := m.store.PutSession(ctx, sess); err != nil {
		return nil, err
	}
	m.broadcastStatus(sess)
	return sess, nil
}

func (m *Manager) stopRunner(id string) {
	m.mu.Lock()
	a, ok := m.active[id]
	delete(m.active, id)
	m.mu.Unlock()
	if ok {
		a.cancel()
		a.runner.Cancel()
	}
}

// SendMessage rejects SESSION_BUSY/SESSION_PAUSED, persists the user
// message, gets-or-creates the runner, and spawns the turn in the
// background, returning the persisted message immediately.
func (m *Manager) SendMessage(ctx context.Context, id, content string) (*types.Message, error) {
	sess, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.Status == types.SessionPaused {
		return nil, clawerr.SessionPaused(id)
	}
	if sess.IsBusy() {
		return nil, clawerr.SessionBusy(id)
	}

	msg := &types.Message{
		ID:        newSessionID(),
		SessionID: id,
		Role:      types.RoleUser,
		Content:   content,
		Status:    types.MessageDone,
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := m.store.PutMessage(ctx, msg); err != nil {
		return nil, err
	}

	sess.MessageCount++
	sess.Status = types.SessionRunning
	sess.LastActivityAt = msg.CreatedAt
	sess.UpdatedAt = msg.CreatedAt
	if err := m.store.PutSession(ctx, sess); err != nil {
		return nil, err
	}
	m.broadcastStatus(sess)

	runner := m.getOrCreateRunner(sess)
	turnCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.active[id] = &active{runner: runner, cancel: cancel}
	m.mu.Unlock()

	go func() {
		defer cancel()
		_, runErr := runner.Run(turnCtx, content)
		if runErr != nil {
			logging.Warn().Err(runErr).Str("session", id).Msg("session: turn failed")
		}
		m.finishTurn(id)
	}()

	return msg, nil
}

func (m *Manager) finishTurn(id string) {
	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()

	ctx := context.Background()
	sess, err := m.Get(ctx, id)
	if err != nil {
		return
	}
	sess.Status = types.SessionIdle
	sess.UpdatedAt = time.Now().UnixMilli()
	_ = m.store.PutSession(ctx, sess)
	m.broadcastStatus(sess)
}

func (m *Manager) getOrCreateRunner(sess *types.Session) *turn.Runner {
	m.mu.RLock()
	a, ok := m.active[sess.ID]
	m.mu.RUnlock()
	if ok {
		return a.runner
	}
	return m.newRun(sess.ID, sess.RepoPath, sess.Provider)
}

// SetProvider persists a new provider for future turns.
func (m *Manager) SetProvider(ctx context.Context, id string, provider types.Provider) (*types.Session, error) {
	sess, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.Provider = provider
	sess.UpdatedAt = time.Now().UnixMilli()
	if err := m.store.PutSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// SetMode persists a new mode and broadcasts session.modeChanged.
func (m *Manager) SetMode(ctx context.Context, id string, mode types.SessionMode) (*types.Session, error) {
	sess, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := sess.Mode
	sess.Mode = mode
	sess.UpdatedAt = time.Now().UnixMilli()
	if err := m.store.PutSession(ctx, sess); err != nil {
		return nil, err
	}
	if m.bus != nil {
		m.bus.Publish(event.Event{
			Name:      event.SessionModeChanged,
			SessionID: id,
			Payload:   map[string]any{"previousMode": previous, "mode": mode},
		})
	}
	return sess, nil
}

// Drain stops every live runner and marks each session idle, called during
// daemon shutdown before the WAL checkpoint.
func (m *Manager) Drain(ctx context.Context) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.stopRunner(id)
		if sess, err := m.Get(ctx, id); err == nil {
			sess.Status = types.SessionIdle
			sess.UpdatedAt = time.Now().UnixMilli()
			_ = m.store.PutSession(ctx, sess)
			m.broadcastStatus(sess)
		}
	}
}

// Demote implements governor.Demoter: it pushes every idle session whose
// tier is eligible one step down (active -> warm -> cold) provided it has
// sat untouched for idleGraceForDemotion. Sessions with a live runner are
// never demoted out from under their turn.
func (m *Manager) Demote(signal governor.DemotionSignal) {
	ctx := context.Background()
	sessions, err := m.store.ListSessions(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("session: demotion scan failed to list sessions")
		return
	}

	from, to := types.TierActive, types.TierWarm
	if signal == governor.DemoteWarmToCold {
		from, to = types.TierWarm, types.TierCold
	}

	now := time.Now().UnixMilli()
	for _, sess := range sessions {
		if sess.Tier != from {
			continue
		}
		if now-sess.LastActivityAt < idleGraceForDemotion.Milliseconds() {
			continue
		}
		m.mu.RLock()
		_, running := m.active[sess.ID]
		m.mu.RUnlock()
		if running {
			continue
		}
		sess.Tier = to
		sess.UpdatedAt = now
		if err := m.store.PutSession(ctx, sess); err != nil {
			logging.Warn().Err(err).Str("session", sess.ID).Msg("session: demotion write failed")
			continue
		}
		m.broadcastStatus(sess)
	}
}

func (m *Manager) broadcastStatus(sess *types.Session) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(event.Event{
		Name:      event.SessionStatusChanged,
		SessionID: sess.ID,
		Payload:   sess,
	})
}

var sessionIDCounter uint64
var sessionIDMu sync.Mutex

func newSessionID() string {
	sessionIDMu.Lock()
	defer sessionIDMu.Unlock()
	sessionIDCounter++
	return fmt.Sprintf("sess-%d-%d", time.Now().UnixNano(), sessionIDCounter)
}
