// Package intelligence routes a turn to a concrete provider/model pair,
// watches its outcome, and enforces the monthly spend cap.
//
// Uses a tier-ordered capability table and model-id prefix inference to
// pick a provider CLI + model pair for internal/turn to spawn, rather than
// a direct API completion call. The classifier and upgrade-on-poor-response
// stages add complexity-based routing on top of that.
package intelligence

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/clawd-io/clawd/internal/contextguard"
	"github.com/clawd-io/clawd/internal/event"
	"github.com/clawd-io/clawd/internal/store"
	"github.com/clawd-io/clawd/pkg/types"
)

// tier orders models Haiku < Sonnet < Opus, keyed by clawd's provider-CLI
// model ids.
var tierOrder = []string{"claude-haiku-4", "claude-sonnet-4", "claude-opus-4"}

func tierIndex(modelID string) int {
	for i, m := range tierOrder {
		if m == modelID {
			return i
		}
	}
	return 0
}

// complexityFloor is the minimum tier each complexity routes to absent a
// pin or a budget cap.
var complexityFloor = map[types.TaskComplexity]string{
	types.ComplexitySimple:        "claude-haiku-4",
	types.ComplexityModerate:      "claude-sonnet-4",
	types.ComplexityComplex:       "claude-sonnet-4",
	types.ComplexityDeepReasoning: "claude-opus-4",
}

var (
	numberedListRe = regexp.MustCompile(`(?m)^\s*\d+[.)]\s`)
	codeBlockRe    = regexp.MustCompile("```")
	designWords    = []string{"architecture", "design", "tradeoff", "refactor", "migrate", "invariant", "concurrency"}
	fileExtRe      = regexp.MustCompile(`\.\w{1,5}\b`)
)

// ClassifyPrompt heuristically scores a user prompt's complexity from
// length and structural signals: numbered lists, code blocks, design
// vocabulary, and file-extension mentions each push it up a tier.
func ClassifyPrompt(prompt string) types.TaskComplexity {
	signals := 0
	if len(prompt) > 800 {
		signals++
	}
	if len(prompt) > 2000 {
		signals++
	}
	if numberedListRe.MatchString(prompt) {
		signals++
	}
	if codeBlockRe.MatchString(prompt) {
		signals++
	}
	if fileExtRe.MatchString(prompt) {
		signals++
	}
	lower := strings.ToLower(prompt)
	for _, w := range designWords {
		if strings.Contains(lower, w) {
			signals++
			break
		}
	}

	switch {
	case signals >= 4:
		return types.ComplexityDeepReasoning
	case signals >= 2:
		return types.ComplexityComplex
	case signals >= 1:
		return types.ComplexityModerate
	default:
		return types.ComplexitySimple
	}
}

// Router selects ModelSelections and tracks the monthly budget.
type Router struct {
	store *store.Store
	bus   *event.Bus

	warnedThisMonth bool
}

// New creates a Router over the shared store and event bus.
func New(st *store.Store, bus *event.Bus) *Router {
	return &Router{store: st, bus: bus}
}

func cap_(modelID, maxModel string) string {
	if maxModel == "" {
		return modelID
	}
	if tierIndex(modelID) > tierIndex(maxModel) {
		return maxModel
	}
	return modelID
}

// Select maps complexity x config x pin to a concrete ModelSelection. It
// never fails: any input it can't reason about falls back to the floor
// model, per spec.
func (r *Router) Select(ctx context.Context, cfg *types.Config, complexity types.TaskComplexity, sessionPin string) types.ModelSelection {
	if sessionPin != "" {
		return types.ModelSelection{ModelID: sessionPin, Provider: providerFor(sessionPin), Reason: "session pin"}
	}

	if r.overBudget(ctx, cfg) {
		floor := cfg.FloorModel
		if floor == "" {
			floor = tierOrder[0]
		}
		return types.ModelSelection{ModelID: floor, Provider: providerFor(floor), Reason: "monthly budget exhausted, forced to floor"}
	}

	if !cfg.AutoSelect {
		floor := cfg.FloorModel
		if floor == "" {
			floor = tierOrder[0]
		}
		return types.ModelSelection{ModelID: floor, Provider: providerFor(floor), Reason: "auto_select disabled, using floor model"}
	}

	preferred := complexityFloor[complexity]
	if preferred == "" {
		preferred = tierOrder[0]
	}
	modelID := cap_(preferred, cfg.MaxModel)
	return types.ModelSelection{ModelID: modelID, Provider: providerFor(modelID), Reason: "complexity " + string(complexity)}
}

// Upgrade returns the next tier above current, or current unchanged if
// already at or above the ceiling (Opus, or maxModel). Callers must not
// call Upgrade more than once per turn.
func Upgrade(current types.ModelSelection, maxModel string) types.ModelSelection {
	idx := tierIndex(current.ModelID)
	if idx >= len(tierOrder)-1 {
		return current
	}
	next := tierOrder[idx+1]
	next = cap_(next, maxModel)
	if next == current.ModelID {
		return current
	}
	return types.ModelSelection{ModelID: next, Provider: providerFor(next), Reason: "upgraded after poor response from " + current.ModelID}
}

func providerFor(modelID string) types.Provider {
	switch {
	case strings.HasPrefix(modelID, "claude"):
		return types.ProviderClaude
	case strings.HasPrefix(modelID, "gpt"), strings.HasPrefix(modelID, "o1"), strings.HasPrefix(modelID, "o3"):
		return types.ProviderCodex
	default:
		return types.ProviderAuto
	}
}

// rateCard prices provider responses per 1M tokens, embedded since no pack
// example fetches live pricing.
var rateCard = map[string]struct{ in, out float64 }{
	"claude-haiku-4":  {in: 0.8, out: 4},
	"claude-sonnet-4": {in: 3, out: 15},
	"claude-opus-4":   {in: 15, out: 75},
}

// Cost prices a turn's token usage against the embedded rate card.
func Cost(modelID string, tokensIn, tokensOut int) float64 {
	rc, ok := rateCard[modelID]
	if !ok {
		rc = rateCard["claude-sonnet-4"]
	}
	return float64(tokensIn)/1_000_000*rc.in + float64(tokensOut)/1_000_000*rc.out
}

// RecordUsage prices and persists a turn's usage tick, folding it into the
// hourly rollup the budget gate reads.
func (r *Router) RecordUsage(ctx context.Context, sessionID, modelID string, tokensIn, tokensOut, toolCalls int) error {
	cost := Cost(modelID, tokensIn, tokensOut)
	return r.store.InsertMetricsTick(ctx, &types.MetricsTick{
		SessionID: sessionID,
		Timestamp: time.Now().UnixMilli(),
		TokensIn:  tokensIn,
		TokensOut: tokensOut,
		ToolCalls: toolCalls,
		Cost:      cost,
	})
}

func (r *Router) overBudget(ctx context.Context, cfg *types.Config) bool {
	if cfg.MonthlyBudgetUSD <= 0 {
		return false
	}
	since := monthStartMs(time.Now())
	spent, err := r.store.SumMonthlyCost(ctx, since)
	if err != nil {
		return false
	}
	ratio := spent / cfg.MonthlyBudgetUSD
	if ratio >= 1 {
		return true
	}
	if ratio >= 0.8 && !r.warnedThisMonth {
		r.warnedThisMonth = true
		if r.bus != nil {
			r.bus.Publish(event.Event{Name: event.WarningContextNearFull, Payload: map[string]any{
				"kind": "budget", "spent": spent, "budget": cfg.MonthlyBudgetUSD,
			}})
		}
	}
	return false
}

func monthStartMs(t time.Time) int64 {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return start.UnixMilli()
}

// Evaluate classifies a completed turn's raw output as Ok or a Poor
// variant. emptyOutput/refused/toolErr/truncated are signals the turn
// runner derives from the provider's wire format.
func Evaluate(output string, refused, toolErr, truncated bool) types.ResponseVerdict {
	switch {
	case strings.TrimSpace(output) == "":
		return types.VerdictEmptyResponse
	case refused:
		return types.VerdictModelRefusal
	case toolErr:
		return types.VerdictToolError
	case truncated:
		return types.VerdictTruncated
	default:
		return types.VerdictOk
	}
}

// ConsultContextGuard is a thin wrapper kept so internal/turn consults the
// guard through the same Router call it uses for model selection, rather
// than importing internal/contextguard directly for this one call.
func ConsultContextGuard(messages []*types.Message, modelID string) contextguard.Assessment {
	return contextguard.Assess(messages, modelID, 0)
}
