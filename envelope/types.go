package envelope

import "time"

// Severity classifies how urgently an AgentIssue must be reacted to.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// IssueCategory is the closed set of problem shapes an agent can report.
type IssueCategory string

const (
	CategoryDataQuality      IssueCategory = "data_quality"
	CategoryMissingData      IssueCategory = "missing_data"
	CategoryLowConfidence    IssueCategory = "low_confidence"
	CategoryProcessingError  IssueCategory = "processing_error"
	CategoryTimeout          IssueCategory = "timeout"
	CategoryExternalService  IssueCategory = "external_service"
	CategoryValidation       IssueCategory = "validation"
	CategorySemanticMismatch IssueCategory = "semantic_mismatch"
)

// AgentIssue is a single problem surfaced by an agent during processing.
// It is immutable once emitted.
type AgentIssue struct {
	Severity          Severity       `json:"severity"`
	Category          IssueCategory  `json:"category"`
	Code              string         `json:"code"`
	Message           string         `json:"message"`
	AffectedEntities  []string       `json:"affectedEntities,omitempty"`
	SuggestedFix      string         `json:"suggestedFix,omitempty"`
	Retryable         bool           `json:"retryable"`
	Context           map[string]any `json:"context,omitempty"`
}

// AtLeastWarning reports whether the issue is warning-severity or worse,
// the threshold used when propagating issues through UpstreamContext.
func (i AgentIssue) AtLeastWarning() bool {
	return i.Severity == SeverityWarning || i.Severity == SeverityCritical
}

// ConfidenceWeights assigns a weight to each confidence factor. Weights for
// factors that are absent from a given ConfidenceBreakdown are excluded and
// the remaining weights are renormalized before computing the mean.
type ConfidenceWeights struct {
	DataCompleteness   float64 `json:"dataCompleteness"`
	SemanticCoherence  float64 `json:"semanticCoherence"`
	ExternalValidation float64 `json:"externalValidation"`
	UpstreamInfluence  float64 `json:"upstreamInfluence"`
	ProcessingQuality  float64 `json:"processingQuality"`
}

// DefaultConfidenceWeights mirrors the defaults from the base agent spec:
// dataCompleteness 0.25, semanticCoherence 0.25, externalValidation 0.1,
// upstreamInfluence 0.2, processingQuality 0.2.
func DefaultConfidenceWeights() ConfidenceWeights {
	return ConfidenceWeights{
		DataCompleteness:   0.25,
		SemanticCoherence:  0.25,
		ExternalValidation: 0.1,
		UpstreamInfluence:  0.2,
		ProcessingQuality:  0.2,
	}
}

// ConfidenceBreakdown decomposes an envelope's overall confidence into five
// factors, each in [0,1]. ExternalValidation is a pointer because it is
// optional: when nil, its weight is excluded and the remaining weights are
// renormalized (see Confidence()).
type ConfidenceBreakdown struct {
	DataCompleteness   float64  `json:"dataCompleteness"`
	SemanticCoherence  float64  `json:"semanticCoherence"`
	ExternalValidation *float64 `json:"externalValidation,omitempty"`
	UpstreamInfluence  float64  `json:"upstreamInfluence"`
	ProcessingQuality  float64  `json:"processingQuality"`
	Weights            ConfidenceWeights `json:"weights"`
}

// Confidence computes the weighted mean over present factors. A factor is
// "present" unless it is the optional ExternalValidation and it is nil.
func (b ConfidenceBreakdown) Confidence() float64 {
	type term struct {
		value  float64
		weight float64
	}
	terms := []term{
		{b.DataCompleteness, b.Weights.DataCompleteness},
		{b.SemanticCoherence, b.Weights.SemanticCoherence},
		{b.UpstreamInfluence, b.Weights.UpstreamInfluence},
		{b.ProcessingQuality, b.Weights.ProcessingQuality},
	}
	if b.ExternalValidation != nil {
		terms = append(terms, term{*b.ExternalValidation, b.Weights.ExternalValidation})
	}

	var weightSum float64
	for _, t := range terms {
		weightSum += t.weight
	}
	if weightSum <= 0 {
		return 0
	}

	var acc float64
	for _, t := range terms {
		acc += t.value * (t.weight / weightSum)
	}
	return acc
}

// RoutingAction is the set of decisions an agent can suggest to the
// orchestrator about what should happen next.
type RoutingAction string

const (
	ActionProceed  RoutingAction = "proceed"
	ActionRetry    RoutingAction = "retry"
	ActionSkip     RoutingAction = "skip"
	ActionEscalate RoutingAction = "escalate"
	ActionBranch   RoutingAction = "branch"
)

// RoutingSuggestion is one candidate next-step decision produced by an
// agent; the orchestrator is the sole consumer and decides whether to
// honor it.
type RoutingSuggestion struct {
	Action     RoutingAction `json:"action"`
	Targets    []string      `json:"targets,omitempty"`
	Reason     string        `json:"reason"`
	Confidence float64       `json:"confidence"`
	Priority   int           `json:"priority"`
}

// RetryRecommendation is emitted at most once per envelope.
type RetryRecommendation struct {
	ShouldRetry      bool              `json:"shouldRetry"`
	Reason           string            `json:"reason"`
	SuggestedChanges string            `json:"suggestedChanges,omitempty"`
	ParameterOverrides map[string]any  `json:"parameterOverrides,omitempty"`
	MaxRetries       int               `json:"maxRetries"`
}

// AgentRouting lives inside the envelope and carries every routing signal
// the agent wants to communicate to the orchestrator.
type AgentRouting struct {
	SuggestedNextSteps []string              `json:"suggestedNextSteps,omitempty"`
	SkipRecommendations []string             `json:"skipRecommendations,omitempty"`
	EscalationNeeded    bool                 `json:"escalationNeeded"`
	EscalationReason    string               `json:"escalationReason,omitempty"`
	RetryRecommendation *RetryRecommendation `json:"retryRecommendation,omitempty"`
	Suggestions         []RoutingSuggestion  `json:"suggestions,omitempty"`
}

// UpstreamContext is the subset of a completed predecessor envelope that is
// injected into a downstream agent's invocation context.
type UpstreamContext struct {
	SourceAgent     string              `json:"sourceAgent"`
	SourceStep      string              `json:"sourceStep"`
	Confidence      float64             `json:"confidence"`
	RelevantIssues  []AgentIssue        `json:"relevantIssues,omitempty"`
	Suggestions     []RoutingSuggestion `json:"suggestions,omitempty"`
	KeyInsights     []string            `json:"keyInsights,omitempty"`
}

// AgentMetadata lives inside the envelope.
type AgentMetadata struct {
	Confidence        float64             `json:"confidence"`
	Breakdown         ConfidenceBreakdown `json:"breakdown"`
	QualityScore      int                 `json:"qualityScore"`
	Issues            []AgentIssue        `json:"issues,omitempty"`
	Warnings          []string            `json:"warnings,omitempty"`
	ProcessingTimeMs  int64               `json:"processingTimeMs"`
	Model             string              `json:"model,omitempty"`
	TokensUsed        int                 `json:"tokensUsed,omitempty"`
	UpstreamContexts  []UpstreamContext   `json:"upstreamContexts,omitempty"`
}

// QualityScore rounds confidence*100 the way AgentMetadata.QualityScore
// must be assembled (Invariant 1 in spec §8).
func QualityScore(confidence float64) int {
	if confidence < 0 {
		confidence = 0
	}
	return int(confidence*100 + 0.5)
}

// Corrections records remediation an agent applied before returning,
// alongside the quality delta it produced.
type Corrections struct {
	OriginalIssueCodes []string `json:"originalIssueCodes"`
	QualityImprovement float64  `json:"qualityImprovement"`
}

// AgentResponse is the envelope: the single shape every agent returns from
// Execute, regardless of its concrete domain.
type AgentResponse struct {
	Data        any          `json:"data"`
	Metadata    AgentMetadata `json:"metadata"`
	Routing     AgentRouting  `json:"routing"`
	Corrections *Corrections  `json:"corrections,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
	AgentID     string        `json:"agentId"`
	Step        string        `json:"step"`
}
