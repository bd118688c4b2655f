// Package approval serializes human-in-the-loop approval requests: submit,
// broadcast, wait, resolve. Grounded on internal/permission/checker.go's
// pending-map-of-channels pattern, generalized from a session-scoped
// allow/deny/ask cache to a task-scoped approval request with an explicit
// ApprovalStatus lifecycle and a store-backed audit trail.
package approval

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/clawd-io/clawd/internal/clawerr"
	"github.com/clawd-io/clawd/internal/event"
	"github.com/clawd-io/clawd/internal/store"
	"github.com/clawd-io/clawd/pkg/types"
)

// Router mediates every gated tool call: request_approval persists a
// Pending row and broadcasts it; grant/deny resolve it; wait_for_decision
// blocks a turn until a decision lands or the deadline elapses.
type Router struct {
	store *store.Store
	bus   *event.Bus

	mu      sync.Mutex
	waiters map[string][]chan types.ApprovalStatus
}

// New creates a Router backed by st and publishing through bus.
func New(st *store.Store, bus *event.Bus) *Router {
	return &Router{store: st, bus: bus, waiters: make(map[string][]chan types.ApprovalStatus)}
}

// RequestApproval inserts a Pending approval and broadcasts
// tool.approvalRequested, returning the new request's id.
func (r *Router) RequestApproval(ctx context.Context, taskID, agentID, tool, summary string, risk types.RiskLevel) (string, error) {
	req := &types.ApprovalRequest{
		ID:        ulid.Make().String(),
		TaskID:    taskID,
		AgentID:   agentID,
		Tool:      tool,
		Summary:   summary,
		Risk:      risk,
		CreatedAt: time.Now().UnixMilli(),
		Status:    types.ApprovalPending,
	}
	if err := r.store.InsertApproval(ctx, req); err != nil {
		return "", err
	}

	if r.bus != nil {
		r.bus.Publish(event.Event{
			Name:    event.ToolApprovalRequested,
			Payload: event.ToolApprovalRequestedPayload{Request: req},
			Durable: true,
		})
	}
	return req.ID, nil
}

// Grant resolves id as Granted. Unknown ids surface NotFound; an id already
// resolved surfaces Conflict, since only one grant/deny is accepted per
// request.
func (r *Router) Grant(ctx context.Context, id string) error {
	return r.resolve(ctx, id, types.ApprovalGranted, "")
}

// Deny resolves id as Denied with reason.
func (r *Router) Deny(ctx context.Context, id, reason string) error {
	return r.resolve(ctx, id, types.ApprovalDenied, reason)
}

func (r *Router) resolve(ctx context.Context, id string, status types.ApprovalStatus, reason string) error {
	existing, err := r.store.GetApproval(ctx, id)
	if err != nil {
		return err
	}
	if existing.Status != types.ApprovalPending {
		return clawerr.Conflictf("APPROVAL_ALREADY_RESOLVED", "approval %s is already %s", id, existing.Status)
	}

	now := time.Now().UnixMilli()
	if err := r.store.ResolveApproval(ctx, id, status, now, reason); err != nil {
		return err
	}
	r.notifyWaiters(id, status)
	return nil
}

// WaitForDecision blocks until id's status is no longer Pending or timeout
// elapses, stamping TimedOut atomically (via the store) in the latter case.
func (r *Router) WaitForDecision(ctx context.Context, id string, timeout time.Duration) (types.ApprovalStatus, error) {
	current, err := r.store.GetApproval(ctx, id)
	if err != nil {
		return "", err
	}
	if current.Status != types.ApprovalPending {
		return current.Status, nil
	}

	ch := make(chan types.ApprovalStatus, 1)
	r.mu.Lock()
	r.waiters[id] = append(r.waiters[id], ch)
	r.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case status := <-ch:
		return status, nil
	case <-timer.C:
		now := time.Now().UnixMilli()
		if err := r.store.ResolveApproval(ctx, id, types.ApprovalTimedOut, now, ""); err != nil {
			// Another caller may have resolved it in the race between the
			// timer firing and this update; re-read the authoritative row.
			final, getErr := r.store.GetApproval(ctx, id)
			if getErr == nil {
				return final.Status, nil
			}
			return "", err
		}
		return types.ApprovalTimedOut, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (r *Router) notifyWaiters(id string, status types.ApprovalStatus) {
	r.mu.Lock()
	chans := r.waiters[id]
	delete(r.waiters, id)
	r.mu.Unlock()

	for _, ch := range chans {
		ch <- status
	}
}

// Get returns the current state of an approval request.
func (r *Router) Get(ctx context.Context, id string) (*types.ApprovalRequest, error) {
	return r.store.GetApproval(ctx, id)
}

// ListForTask returns every approval request raised for taskID, in
// creation order.
func (r *Router) ListForTask(ctx context.Context, taskID string) ([]*types.ApprovalRequest, error) {
	return r.store.ListApprovalsForTask(ctx, taskID)
}
