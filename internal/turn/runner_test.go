package turn

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clawd-io/clawd/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(context.Background(), filepath.Join(dir, "clawd.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestStreamAccumulatesDeltasAndFinalizesOnEnd(t *testing.T) {
	r := New(openTestStore(t), nil, nil, "sess-1", "task-1", "/tmp", []string{"echo"})
	lines := []string{
		`{"type":"delta","content":"Hello, "}`,
		`{"type":"delta","content":"world"}`,
		`{"type":"end","tokensIn":10,"tokensOut":20}`,
	}
	out := r.stream(context.Background(), strings.NewReader(strings.Join(lines, "\n")+"\n"))
	require.Equal(t, "Hello, world", out.AssistantMessage)
	require.Equal(t, 10, out.TokensIn)
	require.Equal(t, 20, out.TokensOut)
}

func TestStreamSkipsUnparseableLineWithoutAborting(t *testing.T) {
	r := New(openTestStore(t), nil, nil, "sess-1", "task-1", "/tmp", []string{"echo"})
	lines := []string{
		`not json at all`,
		`{"type":"delta","content":"ok"}`,
		`{"type":"end"}`,
	}
	out := r.stream(context.Background(), strings.NewReader(strings.Join(lines, "\n")+"\n"))
	require.Equal(t, "ok", out.AssistantMessage)
}

func TestDispatchToolCallDeniedByPolicyWritesDenial(t *testing.T) {
	r := New(openTestStore(t), nil, nil, "sess-1", "task-1", "/tmp", []string{"echo"})
	var buf bytes.Buffer
	args, _ := json.Marshal(map[string]string{"command": "sudo rm -rf /etc"})
	r.dispatchToolCall(context.Background(), frame{Tool: "bash", Args: args}, "msg-1", &buf)

	var decision map[string]string
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &decision))
	require.Equal(t, "denied", decision["status"])
}

func TestDispatchToolCallDeniedByOwnershipOutsideOwnedPaths(t *testing.T) {
	r := New(openTestStore(t), nil, nil, "sess-1", "task-1", "/tmp", []string{"echo"})
	r.SetOwnedPaths([]string{"internal/store/**"})
	var buf bytes.Buffer
	args, _ := json.Marshal(map[string]string{"path": "internal/policy/policy.go"})
	r.dispatchToolCall(context.Background(), frame{Tool: "edit", Args: args}, "msg-1", &buf)

	var decision map[string]string
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &decision))
	require.Equal(t, "denied", decision["status"])
}

func TestDispatchToolCallAllowedWritesApproval(t *testing.T) {
	r := New(openTestStore(t), nil, nil, "sess-1", "task-1", "/tmp", []string{"echo"})
	r.SetOwnedPaths([]string{"internal/store/**"})
	var buf bytes.Buffer
	args, _ := json.Marshal(map[string]string{"path": "internal/store/tasks.go"})
	r.dispatchToolCall(context.Background(), frame{Tool: "edit", Args: args}, "msg-1", &buf)

	var decision map[string]string
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &decision))
	require.Equal(t, "approved", decision["status"])
}
