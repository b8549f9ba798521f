package agent

import (
	"context"

	"github.com/fwornle/kg-orchestrator/envelope"
)

// InvocationContext is passed to every Process call. It carries the
// orchestration context a domain-specific agent needs but never a pointer
// into orchestrator state: the orchestrator derives this from completed
// envelopes and the active WorkflowDefinition step, not the reverse.
type InvocationContext struct {
	WorkflowID   string
	StepName     string
	RetryAttempt int // 0 on the first attempt, 1 after the first retry, ...
	Upstream     []envelope.UpstreamContext
	Parameters   map[string]any
}

// ConfidenceOverride lets a Processor override one or more of the default
// confidence factors computed by BaseAgent (spec §4.1 phase 2). Any field
// left nil keeps the base agent's default.
type ConfidenceOverride struct {
	DataCompleteness   *float64
	SemanticCoherence  *float64
	ExternalValidation *float64
	ProcessingQuality  *float64
}

// ProcessResult is what a concrete agent's Process method returns — the
// domain payload plus whatever the domain agent already knows about its
// own output quality. BaseAgent fills in everything it omits.
type ProcessResult struct {
	Data        any
	Confidence  ConfidenceOverride
	Issues      []envelope.AgentIssue
	Corrections *envelope.Corrections
	Model       string
	TokensUsed  int
}

// Processor is the one method a concrete agent must implement. It is never
// called directly by the orchestrator — only through a BaseAgent or
// LegacyAdapter's Execute, which enforces the envelope contract around it.
type Processor interface {
	Process(ctx context.Context, input any, ic *InvocationContext) (ProcessResult, error)
}

// ProcessorFunc adapts a plain function to a Processor.
type ProcessorFunc func(ctx context.Context, input any, ic *InvocationContext) (ProcessResult, error)

func (f ProcessorFunc) Process(ctx context.Context, input any, ic *InvocationContext) (ProcessResult, error) {
	return f(ctx, input, ic)
}

// Agent is the uniform, tagged-variant shape the orchestrator drives: a
// stable id plus one Execute entry point that always returns an envelope,
// never a Go error. Design notes §9: dynamic dispatch over heterogeneous
// agents is modeled as an agent-id registry plus this single signature —
// never inheritance.
type Agent interface {
	ID() string
	Execute(ctx context.Context, input any, ic *InvocationContext) envelope.AgentResponse
}
