// Package taskengine owns task state: an append-only per-task event log
// folded by a pure reducer into MaterializedTask, periodic checkpoints, and
// replay-on-restart. Engine is the orchestrator tying log + reducer +
// checkpoint + the SQL cache table in internal/store together.
package taskengine

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/clawd-io/clawd/internal/clawerr"
	"github.com/clawd-io/clawd/internal/event"
	"github.com/clawd-io/clawd/internal/logging"
	"github.com/clawd-io/clawd/internal/store"
	"github.com/clawd-io/clawd/pkg/types"
)

// taskHandle bundles one task's live log, in-memory state, and the lock
// that serializes appends to it.
type taskHandle struct {
	mu    sync.Mutex
	log   *EventLog
	state types.MaterializedTask

	eventsSinceCheckpoint int
}

// Engine serializes all event appends per task, keeps MaterializedTask in
// memory, and mirrors it into the SQL tasks table for cheap reads.
type Engine struct {
	dataDir string
	store   *store.Store
	bus     *event.Bus

	mu     sync.Mutex
	tasks  map[string]*taskHandle
}

// New creates an Engine rooted at <data_dir>/tasks.
func New(dataDir string, st *store.Store, bus *event.Bus) *Engine {
	return &Engine{dataDir: dataDir, store: st, bus: bus, tasks: make(map[string]*taskHandle)}
}

func (e *Engine) taskDir(taskID string) string {
	return filepath.Join(e.dataDir, "tasks", taskID)
}

// Open loads or creates the handle for taskID: replays the event log from
// the latest checkpoint (or from scratch) into memory.
func (e *Engine) Open(taskID string) (*taskHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if h, ok := e.tasks[taskID]; ok {
		return h, nil
	}

	dir := e.taskDir(taskID)
	log, err := OpenEventLog(dir)
	if err != nil {
		return nil, err
	}

	state := types.MaterializedTask{TaskID: taskID}
	fromSeq := int64(0)
	if cp, err := LoadLatestCheckpoint(dir); err != nil {
		return nil, err
	} else if cp != nil {
		state = cp.State
		fromSeq = cp.Seq + 1
	}

	events, err := log.ReadFrom(fromSeq)
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		next, err := Reduce(state, ev)
		if err != nil {
			logging.Warn().Err(err).Str("taskId", taskID).Str("kind", string(ev.Kind)).
				Msg("taskengine: skipping invalid transition during replay")
			continue
		}
		state = next
	}

	h := &taskHandle{log: log, state: state, eventsSinceCheckpoint: len(events)}
	e.tasks[taskID] = h
	return h, nil
}

// Append validates timestamp monotonicity, appends ev to the task's log,
// folds it through the reducer, mirrors the result into the SQL cache, and
// checkpoints when the policy calls for it.
func (e *Engine) Append(ctx context.Context, taskID string, ev types.TaskEvent) (types.MaterializedTask, error) {
	h, err := e.Open(taskID)
	if err != nil {
		return types.MaterializedTask{}, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if ev.Timestamp < h.state.UpdatedAt {
		return h.state, clawerr.InvalidParamsf("event timestamp %d precedes task's last update %d", ev.Timestamp, h.state.UpdatedAt)
	}
	ev.TaskID = taskID

	written, err := h.log.Append(ev)
	if err != nil {
		return h.state, err
	}

	next, err := Reduce(h.state, written)
	if err != nil {
		return h.state, err
	}
	h.state = next
	h.eventsSinceCheckpoint++

	if err := e.persist(ctx, &h.state); err != nil {
		logging.Warn().Err(err).Str("taskId", taskID).Msg("taskengine: failed mirroring state to store")
	}

	if ShouldCheckpoint(h.eventsSinceCheckpoint, written) {
		cp := types.Checkpoint{TaskID: taskID, Seq: written.Seq, State: h.state}
		if err := WriteCheckpoint(e.taskDir(taskID), cp); err != nil {
			logging.Warn().Err(err).Str("taskId", taskID).Msg("taskengine: checkpoint write failed")
		} else {
			h.eventsSinceCheckpoint = 0
		}
	}

	if e.bus != nil {
		e.bus.Publish(event.Event{
			Name:    event.TaskStatusChanged,
			Payload: event.TaskStatusChangedPayload{Task: toTask(h.state)},
			Durable: true,
		})
	}

	return h.state, nil
}

// State returns the in-memory materialized state for taskID, opening and
// replaying it first if this is the first access since startup.
func (e *Engine) State(taskID string) (types.MaterializedTask, error) {
	h, err := e.Open(taskID)
	if err != nil {
		return types.MaterializedTask{}, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state, nil
}

func (e *Engine) persist(ctx context.Context, m *types.MaterializedTask) error {
	return e.store.UpdateTaskFromMaterialized(ctx, m)
}

func toTask(m types.MaterializedTask) *types.Task {
	return &types.Task{
		ID:                m.TaskID,
		Spec:              m.Spec,
		Status:            m.State,
		ClaimedBy:         m.ClaimedBy,
		ClaimedAt:         m.ClaimedAt,
		OwnedPaths:        m.Spec.OwnedPaths,
		CompletionNotes:   m.CompletionNotes,
		BlockedReason:     m.BlockedReason,
		UpdatedAt:         m.UpdatedAt,
		EventSeq:          m.EventSeq,
	}
}

// NewTaskEvent stamps a TaskEvent with the current wall clock and a
// placeholder seq the log assigns on Append; callers only need to supply
// kind, actor and payload.
func NewTaskEvent(taskID, actor string, kind types.TaskEventKind, payload map[string]any) types.TaskEvent {
	return types.TaskEvent{
		TaskID:    taskID,
		Kind:      kind,
		Timestamp: time.Now().UnixMilli(),
		Actor:     actor,
		Payload:   payload,
	}
}
