package deadletter_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clawd-io/clawd/internal/deadletter"
	"github.com/clawd-io/clawd/internal/event"
	"github.com/clawd-io/clawd/internal/store"
	"github.com/clawd-io/clawd/pkg/types"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(context.Background(), filepath.Join(dir, "clawd.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestFailedPersistsEntry(t *testing.T) {
	st := openTestStore(t)
	q := deadletter.New(st, nil)

	q.Failed(event.Event{
		Name:      event.TaskStatusChanged,
		SessionID: "sess-1",
		Payload:   map[string]any{"status": "done"},
		Durable:   true,
	}, "subscriber gone")

	pending, err := st.ListPendingDeadLetters(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "sess-1", pending[0].SourceSessionID)
	require.Equal(t, string(event.TaskStatusChanged), pending[0].EventType)
}

func TestFailedDedupesByKey(t *testing.T) {
	st := openTestStore(t)
	q := deadletter.New(st, nil)

	ev := event.Event{Name: event.SessionStatusChanged, SessionID: "sess-1", Durable: true}
	q.Failed(ev, "first failure")
	q.Failed(ev, "second failure")

	pending, err := st.ListPendingDeadLetters(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "second failure", pending[0].FailureReason)
}

func TestRetryPermanentlyFailsAfterThreeAttempts(t *testing.T) {
	st := openTestStore(t)
	var attempts int32

	q := deadletter.New(st, func(ctx context.Context, e *types.DeadLetterEntry) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("still unreachable")
	})

	q.Failed(event.Event{Name: event.RepoStatusChanged, SessionID: "sess-2", Durable: true}, "initial")

	for i := 0; i < 3; i++ {
		q.RetryPendingNow(context.Background())
	}

	require.Equal(t, int32(3), atomic.LoadInt32(&attempts))

	pending, err := st.ListPendingDeadLetters(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 0, "entry should leave pending status once permanently_failed")
}

func TestRetrySucceedsRemovesEntry(t *testing.T) {
	st := openTestStore(t)
	q := deadletter.New(st, func(ctx context.Context, e *types.DeadLetterEntry) error {
		return nil
	})

	q.Failed(event.Event{Name: event.SessionDriftWarning, SessionID: "sess-3", Durable: true}, "initial")
	q.RetryPendingNow(context.Background())

	pending, err := st.ListPendingDeadLetters(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 0)
}
