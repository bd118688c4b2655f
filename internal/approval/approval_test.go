package approval_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clawd-io/clawd/internal/approval"
	"github.com/clawd-io/clawd/internal/store"
	"github.com/clawd-io/clawd/pkg/types"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "clawd.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRequestApprovalThenGrantUnblocksWaiter(t *testing.T) {
	st := openTestStore(t)
	r := approval.New(st, nil)
	ctx := context.Background()

	id, err := r.RequestApproval(ctx, "task-1", "agent-1", "bash", "rm temp file", types.RiskMedium)
	require.NoError(t, err)

	done := make(chan types.ApprovalStatus, 1)
	go func() {
		status, err := r.WaitForDecision(ctx, id, 2*time.Second)
		require.NoError(t, err)
		done <- status
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, r.Grant(ctx, id))

	select {
	case status := <-done:
		require.Equal(t, types.ApprovalGranted, status)
	case <-time.After(time.Second):
		t.Fatal("wait_for_decision did not unblock after grant")
	}
}

func TestDenyRecordsReason(t *testing.T) {
	st := openTestStore(t)
	r := approval.New(st, nil)
	ctx := context.Background()

	id, err := r.RequestApproval(ctx, "task-1", "agent-1", "bash", "rm -rf /tmp/x", types.RiskHigh)
	require.NoError(t, err)

	require.NoError(t, r.Deny(ctx, id, "too risky"))

	got, err := r.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, types.ApprovalDenied, got.Status)
	require.Equal(t, "too risky", got.DenyReason)
}

func TestSecondResolutionConflicts(t *testing.T) {
	st := openTestStore(t)
	r := approval.New(st, nil)
	ctx := context.Background()

	id, err := r.RequestApproval(ctx, "task-1", "agent-1", "bash", "ls", types.RiskLow)
	require.NoError(t, err)

	require.NoError(t, r.Grant(ctx, id))
	require.Error(t, r.Deny(ctx, id, "too late"), "a resolved approval must reject a second resolution")
}

func TestUnknownIDNotFound(t *testing.T) {
	st := openTestStore(t)
	r := approval.New(st, nil)
	_, err := r.Get(context.Background(), "does-not-exist")
	require.Error(t, err)
}

func TestWaitForDecisionTimesOutAndStamps(t *testing.T) {
	st := openTestStore(t)
	r := approval.New(st, nil)
	ctx := context.Background()

	id, err := r.RequestApproval(ctx, "task-1", "agent-1", "bash", "touch x", types.RiskLow)
	require.NoError(t, err)

	status, err := r.WaitForDecision(ctx, id, 30*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, types.ApprovalTimedOut, status)

	got, err := r.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, types.ApprovalTimedOut, got.Status)
}
