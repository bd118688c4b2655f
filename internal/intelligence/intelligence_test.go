package intelligence_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clawd-io/clawd/internal/event"
	"github.com/clawd-io/clawd/internal/intelligence"
	"github.com/clawd-io/clawd/internal/store"
	"github.com/clawd-io/clawd/pkg/types"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(context.Background(), filepath.Join(dir, "clawd.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestClassifyPromptSimpleForShortPlainText(t *testing.T) {
	require.Equal(t, types.ComplexitySimple, intelligence.ClassifyPrompt("fix the typo in README"))
}

func TestClassifyPromptDeepReasoningForStructuredDesignPrompt(t *testing.T) {
	prompt := "Redesign the architecture of internal/store.go and internal/worktree.go, " +
		"weighing the tradeoff of each option:\n1. single lock\n2. per-task lock\n" +
		"```go\nfunc X() {}\n```\nconsider the concurrency invariant carefully."
	require.Equal(t, types.ComplexityDeepReasoning, intelligence.ClassifyPrompt(prompt))
}

func TestSelectSessionPinOverridesEverything(t *testing.T) {
	r := intelligence.New(openTestStore(t), nil)
	cfg := types.DefaultConfig()
	sel := r.Select(context.Background(), cfg, types.ComplexitySimple, "claude-opus-4")
	require.Equal(t, "claude-opus-4", sel.ModelID)
	require.Equal(t, types.ProviderClaude, sel.Provider)
}

func TestSelectAutoSelectFalseUsesFloor(t *testing.T) {
	r := intelligence.New(openTestStore(t), nil)
	cfg := types.DefaultConfig()
	cfg.AutoSelect = false
	cfg.FloorModel = "claude-haiku-4"
	sel := r.Select(context.Background(), cfg, types.ComplexityDeepReasoning, "")
	require.Equal(t, "claude-haiku-4", sel.ModelID)
}

func TestSelectComplexityCappedAtMaxModel(t *testing.T) {
	r := intelligence.New(openTestStore(t), nil)
	cfg := types.DefaultConfig()
	cfg.MaxModel = "claude-haiku-4"
	sel := r.Select(context.Background(), cfg, types.ComplexityDeepReasoning, "")
	require.Equal(t, "claude-haiku-4", sel.ModelID)
}

func TestUpgradeMovesOneTierAndStopsAtCeiling(t *testing.T) {
	cur := types.ModelSelection{ModelID: "claude-haiku-4"}
	up := intelligence.Upgrade(cur, "")
	require.Equal(t, "claude-sonnet-4", up.ModelID)

	top := types.ModelSelection{ModelID: "claude-opus-4"}
	require.Equal(t, "claude-opus-4", intelligence.Upgrade(top, "").ModelID)
}

func TestUpgradeRespectsMaxModel(t *testing.T) {
	cur := types.ModelSelection{ModelID: "claude-haiku-4"}
	up := intelligence.Upgrade(cur, "claude-haiku-4")
	require.Equal(t, "claude-haiku-4", up.ModelID, "capped max_model should prevent any upgrade")
}

func TestEvaluateClassifiesPoorVariants(t *testing.T) {
	require.Equal(t, types.VerdictOk, intelligence.Evaluate("hello", false, false, false))
	require.Equal(t, types.VerdictEmptyResponse, intelligence.Evaluate("   ", false, false, false))
	require.Equal(t, types.VerdictModelRefusal, intelligence.Evaluate("I can't help with that", true, false, false))
	require.Equal(t, types.VerdictToolError, intelligence.Evaluate("ran tool", false, true, false))
	require.Equal(t, types.VerdictTruncated, intelligence.Evaluate("partial", false, false, true))
}

func TestSelectForcesFloorOnceBudgetExhausted(t *testing.T) {
	st := openTestStore(t)
	r := intelligence.New(st, event.New())
	cfg := types.DefaultConfig()
	cfg.MonthlyBudgetUSD = 1.0
	cfg.FloorModel = "claude-haiku-4"

	require.NoError(t, r.RecordUsage(context.Background(), "s1", "claude-opus-4", 1_000_000, 200_000, 1))

	sel := r.Select(context.Background(), cfg, types.ComplexityDeepReasoning, "")
	require.Equal(t, "claude-haiku-4", sel.ModelID)
	require.Contains(t, sel.Reason, "budget")
}

func TestCostUsesEmbeddedRateCard(t *testing.T) {
	cost := intelligence.Cost("claude-haiku-4", 1_000_000, 0)
	require.InDelta(t, 0.8, cost, 0.0001)
}
