package types

// TaskComplexity is the classifier's estimate of how hard a prompt is.
type TaskComplexity string

const (
	ComplexitySimple       TaskComplexity = "Simple"
	ComplexityModerate     TaskComplexity = "Moderate"
	ComplexityComplex      TaskComplexity = "Complex"
	ComplexityDeepReasoning TaskComplexity = "DeepReasoning"
)

// ModelSelection is the router's output: never fails, always names a model.
type ModelSelection struct {
	ModelID  string   `json:"modelId"`
	Provider Provider `json:"provider"`
	Reason   string   `json:"reason"`
}

// ResponseVerdict is what the response evaluator classifies a turn's output as.
type ResponseVerdict string

const (
	VerdictOk             ResponseVerdict = "Ok"
	VerdictEmptyResponse  ResponseVerdict = "PoorEmptyResponse"
	VerdictModelRefusal   ResponseVerdict = "PoorModelRefusal"
	VerdictToolError      ResponseVerdict = "PoorToolError"
	VerdictTruncated      ResponseVerdict = "PoorTruncated"
)

// IsPoor reports whether the verdict should trigger the upgrade pipeline.
func (v ResponseVerdict) IsPoor() bool {
	return v != VerdictOk
}

// ProviderCapabilities is the capability set the scheduler and router
// consult; modelled as a plain struct rather than an interface since every
// provider is data-driven (no per-provider Go type).
type ProviderCapabilities struct {
	Provider             Provider `json:"provider"`
	SupportsFork         bool     `json:"supportsFork"`
	SupportsResume       bool     `json:"supportsResume"`
	SupportsSandbox      bool     `json:"supportsSandbox"`
	SupportsApprovalGate bool     `json:"supportsApprovalGate"`
	MaxContextTokens     int      `json:"maxContextTokens"`
	CostPer1kIn          float64  `json:"costPer1kIn"`
	CostPer1kOut         float64  `json:"costPer1kOut"`
}
