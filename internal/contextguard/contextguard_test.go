package contextguard_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clawd-io/clawd/internal/contextguard"
	"github.com/clawd-io/clawd/pkg/types"
)

func TestLimitForMatchesLongestPrefix(t *testing.T) {
	require.Equal(t, 200_000, contextguard.LimitFor("claude-opus-4-1"))
	require.Equal(t, 128_000, contextguard.LimitFor("gpt-4o-mini"))
	require.Equal(t, 8_000, contextguard.LimitFor("gpt-4-turbo"))
	require.Equal(t, 16_000, contextguard.LimitFor("codex-mini"))
	require.Equal(t, contextguard.DefaultLimit, contextguard.LimitFor("llama-3"))
}

func TestEstimateTokensChargesOverheadPlusChars(t *testing.T) {
	require.Equal(t, 4, contextguard.EstimateTokens(""))
	require.Equal(t, 4+3, contextguard.EstimateTokens("abcdefghij")) // ceil(10/4)=3
}

func TestAssessLevels(t *testing.T) {
	msg := func(content string) *types.Message { return &types.Message{Content: content} }

	ok := contextguard.Assess([]*types.Message{msg("short")}, "claude-opus", 0)
	require.Equal(t, contextguard.LevelOk, ok.Level)

	big := strings.Repeat("x", 4*184_000)
	warning := contextguard.Assess([]*types.Message{msg(big)}, "", 200_000)
	require.Equal(t, contextguard.LevelWarning, warning.Level)

	bigger := strings.Repeat("x", 4*196_000)
	critical := contextguard.Assess([]*types.Message{msg(bigger)}, "", 200_000)
	require.Equal(t, contextguard.LevelCritical, critical.Level)
}

func TestCompressMessagesKeepsPinnedAndRecent(t *testing.T) {
	var messages []*types.Message
	messages = append(messages, &types.Message{Role: types.RoleSystem, Content: "system prompt"})
	messages = append(messages, &types.Message{Role: types.RoleUser, Content: "pinned note", Pinned: true})
	for i := 0; i < 10; i++ {
		messages = append(messages, &types.Message{Role: types.RoleUser, Content: "turn"})
	}

	out := contextguard.CompressMessages(messages, 3)
	require.Len(t, out, 2+1+3) // system + pinned + sentinel + 3 recent

	require.Equal(t, types.RoleSystem, out[0].Role)
	require.True(t, out[1].Pinned)
	require.Contains(t, out[2].Content, "earlier messages omitted")
}

func TestCompressMessagesNoOpUnderThreshold(t *testing.T) {
	var messages []*types.Message
	for i := 0; i < 3; i++ {
		messages = append(messages, &types.Message{Role: types.RoleUser, Content: "turn"})
	}
	out := contextguard.CompressMessages(messages, 5)
	require.Len(t, out, 3)
}
