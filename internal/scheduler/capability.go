package scheduler

import "github.com/clawd-io/clawd/pkg/types"

// Capability is a provider's trait set: fork/resume/sandbox/approval-gate
// support, context window, and per-1k token cost. CapabilityOf exposes it;
// the account selection and fallback logic in this package does not read it.
type Capability struct {
	SupportsFork          bool
	SupportsResume        bool
	SupportsSandbox       bool
	SupportsApprovalGates bool
	MaxContextTokens      int
	CostPer1kIn           float64
	CostPer1kOut          float64
}

// capabilities is embedded rather than fetched live, matching
// internal/intelligence's rateCard: no pack example calls out to a live
// capability-discovery endpoint.
var capabilities = map[types.Provider]Capability{
	types.ProviderClaude: {
		SupportsFork: true, SupportsResume: true, SupportsSandbox: true, SupportsApprovalGates: true,
		MaxContextTokens: 200000, CostPer1kIn: 0.003, CostPer1kOut: 0.015,
	},
	types.ProviderCodex: {
		SupportsFork: false, SupportsResume: true, SupportsSandbox: true, SupportsApprovalGates: true,
		MaxContextTokens: 128000, CostPer1kIn: 0.005, CostPer1kOut: 0.015,
	},
	types.ProviderCursor: {
		SupportsFork: false, SupportsResume: false, SupportsSandbox: false, SupportsApprovalGates: false,
		MaxContextTokens: 64000, CostPer1kIn: 0.002, CostPer1kOut: 0.01,
	},
}

// CapabilityOf returns the capability set for provider, or the zero value
// (every trait false/zero) for an unrecognized one.
func CapabilityOf(provider types.Provider) Capability {
	return capabilities[provider]
}
