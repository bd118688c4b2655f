// Package contextguard tracks a session's estimated token usage against
// its model's context window and compresses history before it overflows.
// Grounded on internal/session/loop.go's shouldCompact (which sums actual
// provider-reported Tokens.Input/Output against a single MaxContextTokens
// constant); generalized to a per-model limit table, an estimate usable
// before any provider response exists, and a two-tier Warning/Critical
// threshold that the session manager broadcasts rather than acting on
// unilaterally.
package contextguard

import (
	"fmt"

	"github.com/clawd-io/clawd/pkg/types"
)

// Level is the guard's assessment of a session's current usage.
type Level string

const (
	LevelOk       Level = "Ok"
	LevelWarning  Level = "Warning"
	LevelCritical Level = "Critical"
)

// modelLimits are per-model context window sizes in tokens, longest prefix
// first so "gpt-4o*" is checked before the shorter "gpt-4" prefix matches
// it too. DefaultLimit applies to any model not listed.
var modelLimits = []struct {
	prefix string
	limit  int
}{
	{"claude", 200_000},
	{"gpt-4o", 128_000},
	{"gpt-4", 8_000},
	{"codex", 16_000},
}

// DefaultLimit is used for models not present in modelLimits and not
// overridden by the caller.
const DefaultLimit = 64_000

// LimitFor returns the context window for modelID, matching by prefix
// (e.g. "claude-opus-4" -> the "claude" entry), or DefaultLimit.
func LimitFor(modelID string) int {
	for _, m := range modelLimits {
		if len(modelID) >= len(m.prefix) && modelID[:len(m.prefix)] == m.prefix {
			return m.limit
		}
	}
	return DefaultLimit
}

// EstimateTokens approximates a message's token cost: ceil(chars/4) plus a
// flat 4-token role/overhead charge.
func EstimateTokens(content string) int {
	chars := len([]rune(content))
	return (chars+3)/4 + 4
}

// EstimateTotal sums EstimateTokens across every message.
func EstimateTotal(messages []*types.Message) int {
	total := 0
	for _, m := range messages {
		total += EstimateTokens(m.Content)
	}
	return total
}

// Assessment is the guard's read on a session at a point in time.
type Assessment struct {
	UsedTokens       int
	LimitTokens      int
	UtilizationRatio float64
	Level            Level
}

// Assess estimates messages' total token usage against limitTokens (or
// LimitFor(modelID) if limitTokens <= 0) and classifies it Ok/Warning/Critical.
func Assess(messages []*types.Message, modelID string, limitTokens int) Assessment {
	if limitTokens <= 0 {
		limitTokens = LimitFor(modelID)
	}
	used := EstimateTotal(messages)
	ratio := float64(used) / float64(limitTokens)

	level := LevelOk
	switch {
	case ratio >= 0.95:
		level = LevelCritical
	case ratio >= 0.90:
		level = LevelWarning
	}

	return Assessment{UsedTokens: used, LimitTokens: limitTokens, UtilizationRatio: ratio, Level: level}
}

// CompressMessages partitions messages into (system ∪ pinned) and regular.
// If there are keepRecent or fewer regular messages, messages is returned
// unchanged. Otherwise the result is: system+pinned in original order, one
// sentinel system message noting how many were dropped, then the last
// keepRecent regular messages. Compression never runs mid-turn; callers
// invoke it only between turns.
func CompressMessages(messages []*types.Message, keepRecent int) []*types.Message {
	var kept, regular []*types.Message
	for _, m := range messages {
		if m.Role == types.RoleSystem || m.Pinned {
			kept = append(kept, m)
		} else {
			regular = append(regular, m)
		}
	}

	if len(regular) <= keepRecent {
		return messages
	}

	omitted := len(regular) - keepRecent
	sentinel := &types.Message{
		Role:    types.RoleSystem,
		Content: fmt.Sprintf("[%d earlier messages omitted to stay within context window]", omitted),
		Status:  types.MessageDone,
	}

	out := make([]*types.Message, 0, len(kept)+1+keepRecent)
	out = append(out, kept...)
	out = append(out, sentinel)
	out = append(out, regular[omitted:]...)
	return out
}
