package taskengine

import (
	"fmt"

	"github.com/clawd-io/clawd/pkg/types"
)

// MaxSeenIdempotencyKeys bounds seen_idempotency_keys; oldest entries are
// dropped past this cap.
const MaxSeenIdempotencyKeys = 500

// InvalidTransitionError reports an event that does not apply to the
// current state. Replay logs and skips these rather than aborting.
type InvalidTransitionError struct {
	State types.TaskStatus
	Kind  types.TaskEventKind
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("event %s is not valid from state %s", e.Kind, e.State)
}

// Reduce is the pure fold at the heart of the task engine: the same
// (state, event) pair always produces the same result, with no I/O.
func Reduce(state types.MaterializedTask, ev types.TaskEvent) (types.MaterializedTask, error) {
	next := state.Clone()
	next.EventSeq = ev.Seq
	next.UpdatedAt = ev.Timestamp

	switch ev.Kind {
	case types.EvTaskCreated:
		if state.State != "" {
			return state, &InvalidTransitionError{state.State, ev.Kind}
		}
		next.State = types.TaskPending
		next.TaskID = ev.TaskID
		if spec, ok := ev.Payload["spec"].(map[string]any); ok {
			next.Spec = decodeSpec(spec)
		}
		return next, nil

	case types.EvTaskClaimed:
		if state.State != types.TaskPending {
			return state, &InvalidTransitionError{state.State, ev.Kind}
		}
		next.State = types.TaskClaimed
		if agentID, ok := ev.Payload["agent_id"].(string); ok {
			next.ClaimedBy = agentID
		}
		next.ClaimedAt = ev.Timestamp
		return next, nil

	case types.EvTaskActive:
		if state.State != types.TaskClaimed && state.State != types.TaskNeedsAppr {
			return state, &InvalidTransitionError{state.State, ev.Kind}
		}
		next.State = types.TaskActive
		return next, nil

	case types.EvToolCalled:
		if state.State != types.TaskActive {
			return state, &InvalidTransitionError{state.State, ev.Kind}
		}
		key, _ := ev.Payload["idempotency_key"].(string)
		if key != "" && containsKey(state.SeenIdempotencyKeys, key) {
			// No-op: already applied. State advances seq/updated_at via the
			// defaults set above but records nothing new.
			return next, nil
		}
		if key != "" {
			next.SeenIdempotencyKeys = appendBounded(state.SeenIdempotencyKeys, key, MaxSeenIdempotencyKeys)
		}
		return next, nil

	case types.EvApprovalRequested:
		if state.State != types.TaskActive {
			return state, &InvalidTransitionError{state.State, ev.Kind}
		}
		next.State = types.TaskNeedsAppr
		if approvalID, ok := ev.Payload["approval_id"].(string); ok {
			next.PendingApprovalID = approvalID
		}
		return next, nil

	case types.EvApprovalGranted:
		if state.State != types.TaskNeedsAppr {
			return state, &InvalidTransitionError{state.State, ev.Kind}
		}
		next.State = types.TaskActive
		next.PendingApprovalID = ""
		return next, nil

	case types.EvApprovalDenied:
		if state.State != types.TaskNeedsAppr {
			return state, &InvalidTransitionError{state.State, ev.Kind}
		}
		next.State = types.TaskBlocked
		next.PendingApprovalID = ""
		if reason, ok := ev.Payload["reason"].(string); ok {
			next.BlockedReason = reason
		}
		return next, nil

	case types.EvTaskBlocked:
		if state.State != types.TaskActive && state.State != types.TaskNeedsAppr {
			return state, &InvalidTransitionError{state.State, ev.Kind}
		}
		next.State = types.TaskBlocked
		if reason, ok := ev.Payload["reason"].(string); ok {
			next.BlockedReason = reason
		}
		return next, nil

	case types.EvTaskDone:
		if state.State != types.TaskActive {
			return state, &InvalidTransitionError{state.State, ev.Kind}
		}
		notes, _ := ev.Payload["notes"].(string)
		if notes == "" {
			return state, &InvalidTransitionError{state.State, ev.Kind}
		}
		next.State = types.TaskDone
		next.CompletionNotes = notes
		return next, nil

	case types.EvTaskAbandoned:
		if isTerminal(state.State) {
			return state, &InvalidTransitionError{state.State, ev.Kind}
		}
		next.State = types.TaskAbandoned
		return next, nil

	case types.EvCheckpointWritten, types.EvNoteAdded:
		return next, nil

	default:
		return next, nil
	}
}

func isTerminal(s types.TaskStatus) bool {
	return s == types.TaskDone || s == types.TaskAbandoned
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

func appendBounded(keys []string, key string, cap int) []string {
	out := append(append([]string(nil), keys...), key)
	if len(out) > cap {
		out = out[len(out)-cap:]
	}
	return out
}

func decodeSpec(m map[string]any) types.TaskSpec {
	spec := types.TaskSpec{}
	if v, ok := m["title"].(string); ok {
		spec.Title = v
	}
	if v, ok := m["repoPath"].(string); ok {
		spec.RepoPath = v
	}
	if v, ok := m["taskType"].(string); ok {
		spec.TaskType = v
	}
	if v, ok := m["phase"].(string); ok {
		spec.Phase = v
	}
	if v, ok := m["severity"].(string); ok {
		spec.Severity = v
	}
	if v, ok := m["dependencies"].([]any); ok {
		for _, d := range v {
			if s, ok := d.(string); ok {
				spec.Dependencies = append(spec.Dependencies, s)
			}
		}
	}
	if v, ok := m["ownedPaths"].([]any); ok {
		for _, d := range v {
			if s, ok := d.(string); ok {
				spec.OwnedPaths = append(spec.OwnedPaths, s)
			}
		}
	}
	return spec
}
