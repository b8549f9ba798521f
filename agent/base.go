package agent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fwornle/kg-orchestrator/envelope"
	"github.com/fwornle/kg-orchestrator/internal/telemetry"
)

// Default thresholds from spec §4.1 phase 4.
const (
	defaultRetryThreshold    = 0.5
	defaultBlockingThreshold = 0.3
	maxRetryAttemptsForHint  = 3
)

// BaseAgent wraps a Processor with the fixed six-phase envelope contract.
// Subclasses (concrete domain agents) must not reorder these phases; the
// only thing they control is Process's return value.
type BaseAgent struct {
	id        string
	processor Processor
	logger    *zap.Logger

	weights           envelope.ConfidenceWeights
	retryThreshold    float64
	blockingThreshold float64

	// now is overridable in tests so processing-time assertions are exact.
	now func() time.Time
}

// Option configures a BaseAgent at construction time.
type Option func(*BaseAgent)

// WithLogger attaches a zap logger; a nop logger is used otherwise.
func WithLogger(logger *zap.Logger) Option {
	return func(b *BaseAgent) { b.logger = logger }
}

// WithConfidenceWeights overrides the default confidence weights.
func WithConfidenceWeights(w envelope.ConfidenceWeights) Option {
	return func(b *BaseAgent) { b.weights = w }
}

// WithThresholds overrides the retry/blocking confidence thresholds.
func WithThresholds(retry, blocking float64) Option {
	return func(b *BaseAgent) { b.retryThreshold, b.blockingThreshold = retry, blocking }
}

// NewBaseAgent constructs a BaseAgent delegating domain logic to processor.
func NewBaseAgent(id string, processor Processor, opts ...Option) (*BaseAgent, error) {
	if processor == nil {
		return nil, ErrNoProcessor
	}
	b := &BaseAgent{
		id:                id,
		processor:         processor,
		logger:            zap.NewNop(),
		weights:           envelope.DefaultConfidenceWeights(),
		retryThreshold:    defaultRetryThreshold,
		blockingThreshold: defaultBlockingThreshold,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With(zap.String("agent_id", id))
	return b, nil
}

func (b *BaseAgent) ID() string { return b.id }

// Execute runs the six phases and never lets a panic or error escape as a
// Go error — every outcome, including a crash inside Process, becomes an
// envelope.AgentResponse (spec §4.1, Design Notes §9).
func (b *BaseAgent) Execute(ctx context.Context, input any, ic *InvocationContext) (resp envelope.AgentResponse) {
	if ic == nil {
		ic = &InvocationContext{}
	}
	start := b.now()

	ctx, span := telemetry.StartStepSpan(ctx, ic.WorkflowID, ic.StepName, b.id)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("agent panicked", zap.String("step", ic.StepName), zap.Any("panic", r))
			resp = b.errorEnvelope(ic, start, fmt.Errorf("panic: %v", r))
			telemetry.RecordStepOutcome(span, 0, len(resp.Metadata.Issues), resp.NeedsRetry())
		}
	}()

	// Phase 1: invoke subclass process.
	result, err := b.processor.Process(ctx, input, ic)
	if err != nil {
		resp = b.errorEnvelope(ic, start, err)
		telemetry.RecordStepOutcome(span, 0, len(resp.Metadata.Issues), resp.NeedsRetry())
		return resp
	}

	// Phase 2: confidence.
	breakdown := b.computeBreakdown(result.Confidence, ic)
	confidence := breakdown.Confidence()

	// Phase 3: issue detection.
	issues := append([]envelope.AgentIssue{}, result.Issues...)
	for _, upstream := range ic.Upstream {
		for _, iss := range upstream.RelevantIssues {
			if iss.Severity == envelope.SeverityCritical {
				issues = append(issues, envelope.AgentIssue{
					Severity: envelope.SeverityWarning,
					Category: iss.Category,
					Code:     "UPSTREAM_CRITICAL_ISSUE",
					Message:  fmt.Sprintf("upstream step %q reported a critical issue: %s", upstream.SourceStep, iss.Message),
					Retryable: false,
				})
			}
		}
	}

	// Phase 4: routing suggestions.
	routing := b.buildRouting(confidence, issues, ic)

	// Phase 5: corrections (optional, pass-through).
	corrections := result.Corrections

	// Phase 6: metadata assembly and envelope construction.
	var warnings []string
	for _, iss := range issues {
		if iss.Severity == envelope.SeverityWarning {
			warnings = append(warnings, iss.Message)
		}
	}

	out := envelope.AgentResponse{
		Data: result.Data,
		Metadata: envelope.AgentMetadata{
			Confidence:       confidence,
			Breakdown:        breakdown,
			QualityScore:     envelope.QualityScore(confidence),
			Issues:           issues,
			Warnings:         warnings,
			ProcessingTimeMs: b.now().Sub(start).Milliseconds(),
			Model:            result.Model,
			TokensUsed:       result.TokensUsed,
			UpstreamContexts: ic.Upstream,
		},
		Routing:     routing,
		Corrections: corrections,
		Timestamp:   b.now(),
		AgentID:     b.id,
		Step:        ic.StepName,
	}
	telemetry.RecordStepOutcome(span, confidence, len(issues), routing.RetryRecommendation != nil)
	return out
}

func (b *BaseAgent) computeBreakdown(override ConfidenceOverride, ic *InvocationContext) envelope.ConfidenceBreakdown {
	breakdown := envelope.ConfidenceBreakdown{
		DataCompleteness:  0.8,
		SemanticCoherence: 0.8,
		ProcessingQuality: 0.8,
		UpstreamInfluence: envelope.ComputeUpstreamInfluence(ic.Upstream),
		Weights:           b.weights,
	}
	if override.DataCompleteness != nil {
		breakdown.DataCompleteness = *override.DataCompleteness
	}
	if override.SemanticCoherence != nil {
		breakdown.SemanticCoherence = *override.SemanticCoherence
	}
	if override.ProcessingQuality != nil {
		breakdown.ProcessingQuality = *override.ProcessingQuality
	}
	breakdown.ExternalValidation = override.ExternalValidation
	return breakdown
}

func (b *BaseAgent) buildRouting(confidence float64, issues []envelope.AgentIssue, ic *InvocationContext) envelope.AgentRouting {
	routing := envelope.AgentRouting{}

	var retryableIssues []envelope.AgentIssue
	var hasCriticalNonRetryable bool
	var escalationMessages []string
	for _, iss := range issues {
		if iss.Retryable {
			retryableIssues = append(retryableIssues, iss)
		}
		if iss.Severity == envelope.SeverityCritical {
			if !iss.Retryable {
				hasCriticalNonRetryable = true
				escalationMessages = append(escalationMessages, iss.Message)
			}
		}
	}

	if confidence < b.retryThreshold && len(retryableIssues) > 0 && ic.RetryAttempt < maxRetryAttemptsForHint {
		var fixes string
		for i, iss := range retryableIssues {
			if i > 0 {
				fixes += "; "
			}
			if iss.SuggestedFix != "" {
				fixes += iss.SuggestedFix
			} else {
				fixes += iss.Message
			}
		}
		routing.RetryRecommendation = &envelope.RetryRecommendation{
			ShouldRetry:      true,
			Reason:           "confidence below retry threshold with retryable issues present",
			SuggestedChanges: fixes,
			MaxRetries:       maxRetryAttemptsForHint,
		}
	}

	if hasCriticalNonRetryable {
		routing.EscalationNeeded = true
		reason := ""
		for i, m := range escalationMessages {
			if i > 0 {
				reason += "; "
			}
			reason += m
		}
		routing.EscalationReason = reason
	}

	if confidence < b.blockingThreshold {
		routing.Suggestions = append(routing.Suggestions, envelope.RoutingSuggestion{
			Action:     envelope.ActionSkip,
			Reason:     "confidence below blocking threshold",
			Confidence: 0.9,
		})
	}

	return routing
}

// errorEnvelope builds the fixed error shape spec §4.1 requires for any
// thrown exception: null data, confidence 0, a critical/processing_error
// issue, and a retry recommendation while attempts remain.
func (b *BaseAgent) errorEnvelope(ic *InvocationContext, start time.Time, cause error) envelope.AgentResponse {
	issue := envelope.AgentIssue{
		Severity:  envelope.SeverityCritical,
		Category:  envelope.CategoryProcessingError,
		Code:      "AGENT_EXECUTION_ERROR",
		Message:   cause.Error(),
		Retryable: true,
	}
	routing := envelope.AgentRouting{}
	if ic.RetryAttempt < maxRetryAttemptsForHint {
		routing.RetryRecommendation = &envelope.RetryRecommendation{
			ShouldRetry: true,
			Reason:      "agent execution failed",
			MaxRetries:  maxRetryAttemptsForHint,
		}
	}
	return envelope.AgentResponse{
		Data: nil,
		Metadata: envelope.AgentMetadata{
			Confidence:       0,
			Breakdown:        envelope.ConfidenceBreakdown{Weights: b.weights},
			QualityScore:     0,
			Issues:           []envelope.AgentIssue{issue},
			ProcessingTimeMs: b.now().Sub(start).Milliseconds(),
			UpstreamContexts: ic.Upstream,
		},
		Routing:   routing,
		Timestamp: b.now(),
		AgentID:   b.id,
		Step:      ic.StepName,
	}
}
