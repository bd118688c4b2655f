package taskengine_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clawd-io/clawd/internal/event"
	"github.com/clawd-io/clawd/internal/store"
	"github.com/clawd-io/clawd/internal/taskengine"
	"github.com/clawd-io/clawd/pkg/types"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "clawd.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func insertPendingTask(t *testing.T, st *store.Store, id string) {
	t.Helper()
	err := st.InsertTask(context.Background(), &types.Task{
		ID:        id,
		DisplayID: id,
		Spec:      types.TaskSpec{Title: "test task", RepoPath: "/repo", TaskType: "fix"},
		Status:    types.TaskPending,
		CreatedAt: 1,
		UpdatedAt: 1,
	})
	require.NoError(t, err)
}

func TestReduceTransitionsPendingThroughDone(t *testing.T) {
	state := types.MaterializedTask{}

	created, err := taskengine.Reduce(state, types.TaskEvent{Seq: 0, Kind: types.EvTaskCreated, Timestamp: 1,
		Payload: map[string]any{"spec": map[string]any{"title": "fix bug", "repoPath": "/r", "taskType": "fix"}}})
	require.NoError(t, err)
	require.Equal(t, types.TaskPending, created.State)
	require.Equal(t, "fix bug", created.Spec.Title)

	claimed, err := taskengine.Reduce(created, types.TaskEvent{Seq: 1, Kind: types.EvTaskClaimed, Timestamp: 2,
		Payload: map[string]any{"agent_id": "agent-1"}})
	require.NoError(t, err)
	require.Equal(t, types.TaskClaimed, claimed.State)
	require.Equal(t, "agent-1", claimed.ClaimedBy)

	active, err := taskengine.Reduce(claimed, types.TaskEvent{Seq: 2, Kind: types.EvTaskActive, Timestamp: 3})
	require.NoError(t, err)
	require.Equal(t, types.TaskActive, active.State)

	done, err := taskengine.Reduce(active, types.TaskEvent{Seq: 3, Kind: types.EvTaskDone, Timestamp: 4,
		Payload: map[string]any{"notes": "shipped"}})
	require.NoError(t, err)
	require.Equal(t, types.TaskDone, done.State)
	require.Equal(t, "shipped", done.CompletionNotes)
}

func TestReduceTaskDoneRequiresNonEmptyNotes(t *testing.T) {
	active := types.MaterializedTask{State: types.TaskActive}
	_, err := taskengine.Reduce(active, types.TaskEvent{Kind: types.EvTaskDone, Payload: map[string]any{"notes": ""}})
	require.Error(t, err)
}

func TestReduceToolCalledDedupesIdempotencyKey(t *testing.T) {
	active := types.MaterializedTask{State: types.TaskActive}
	ev := types.TaskEvent{Kind: types.EvToolCalled, Payload: map[string]any{"idempotency_key": "k1"}}

	once, err := taskengine.Reduce(active, ev)
	require.NoError(t, err)
	require.Equal(t, []string{"k1"}, once.SeenIdempotencyKeys)

	twice, err := taskengine.Reduce(once, ev)
	require.NoError(t, err)
	require.Equal(t, []string{"k1"}, twice.SeenIdempotencyKeys, "repeated key must not be recorded twice")
}

func TestReduceTaskAbandonedFromAnyNonTerminalState(t *testing.T) {
	for _, s := range []types.TaskStatus{types.TaskPending, types.TaskClaimed, types.TaskActive, types.TaskNeedsAppr, types.TaskBlocked} {
		out, err := taskengine.Reduce(types.MaterializedTask{State: s}, types.TaskEvent{Kind: types.EvTaskAbandoned})
		require.NoError(t, err)
		require.Equal(t, types.TaskAbandoned, out.State)
	}

	_, err := taskengine.Reduce(types.MaterializedTask{State: types.TaskDone}, types.TaskEvent{Kind: types.EvTaskAbandoned})
	require.Error(t, err, "a task already Done cannot be abandoned")
}

func TestEngineAppendPersistsAndReplaysAfterCrash(t *testing.T) {
	dir := t.TempDir()
	st := openTestStore(t)
	insertPendingTask(t, st, "task-1")
	bus := event.New()
	t.Cleanup(func() { _ = bus.Close() })

	ctx := context.Background()
	eng := taskengine.New(dir, st, bus)

	_, err := eng.Append(ctx, "task-1", taskengine.NewTaskEvent("task-1", "operator", types.EvTaskCreated,
		map[string]any{"spec": map[string]any{"title": "fix bug", "repoPath": "/r", "taskType": "fix"}}))
	require.NoError(t, err)
	_, err = eng.Append(ctx, "task-1", taskengine.NewTaskEvent("task-1", "operator", types.EvTaskClaimed,
		map[string]any{"agent_id": "agent-1"}))
	require.NoError(t, err)
	_, err = eng.Append(ctx, "task-1", taskengine.NewTaskEvent("task-1", "agent-1", types.EvTaskActive, nil))
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		key := "key-" + string(rune('a'+i))
		_, err := eng.Append(ctx, "task-1", taskengine.NewTaskEvent("task-1", "agent-1", types.EvToolCalled,
			map[string]any{"idempotency_key": key}))
		require.NoError(t, err)
	}

	// Simulate a crash: build a fresh Engine over the same directory so no
	// in-memory state survives, then replay.
	freshEngine := taskengine.New(dir, st, bus)
	state, err := freshEngine.State("task-1")
	require.NoError(t, err)

	require.Equal(t, types.TaskActive, state.State)
	require.Len(t, state.SeenIdempotencyKeys, 20)
	require.EqualValues(t, 22, state.EventSeq)
}

func TestEngineRejectsNonMonotonicTimestamp(t *testing.T) {
	dir := t.TempDir()
	st := openTestStore(t)
	insertPendingTask(t, st, "task-1")
	eng := taskengine.New(dir, st, nil)
	ctx := context.Background()

	_, err := eng.Append(ctx, "task-1", types.TaskEvent{Kind: types.EvTaskCreated, Timestamp: 100,
		Payload: map[string]any{"spec": map[string]any{"title": "t", "repoPath": "/r", "taskType": "fix"}}})
	require.NoError(t, err)

	_, err = eng.Append(ctx, "task-1", types.TaskEvent{Kind: types.EvTaskClaimed, Timestamp: 50})
	require.Error(t, err, "an event timestamped before the task's last update must be rejected")
}
