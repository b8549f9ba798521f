package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fwornle/kg-orchestrator/envelope"
)

// ErrRetryRejected is returned by smartRetry when a step has exhausted its
// retry budget or carries no retryable issue.
var ErrRetryRejected = errors.New("orchestrator: retry rejected")

// RetryExample is one good/bad pair drawn from the step-specific catalogue
// attached to retry guidance.
type RetryExample struct {
	Good string
	Bad  string
}

// RetryGuidance is the semantic payload attached to enhanced retry
// parameters under "_retryGuidance" (spec §4.4 smartRetry).
type RetryGuidance struct {
	Issues         []envelope.AgentIssue      `json:"issues"`
	Instructions   string                     `json:"instructions"`
	Examples       []RetryExample             `json:"examples,omitempty"`
	UpstreamContext []envelope.UpstreamContext `json:"upstreamContext,omitempty"`
	Attempt        int                        `json:"attempt"`
}

// retryExampleCatalogue maps (stepName, issueCode) to a worked example pair.
var retryExampleCatalogue = map[string]map[string]RetryExample{
	"semantic_analysis": {
		"LOW_CONFIDENCE":  {Good: "Concrete: \"refactors the retry backoff to use jitter\"", Bad: "Vague: \"changes some code\""},
		"SHORT_INSIGHTS":  {Good: "Multi-sentence insight grounded in the diff", Bad: "One-word insight"},
	},
	"insight_generation": {
		"LOW_CONFIDENCE": {Good: "Cites specific files/functions touched", Bad: "Generic summary with no specifics"},
	},
}

func retryExampleFor(stepName string, issues []envelope.AgentIssue) []RetryExample {
	byCode, ok := retryExampleCatalogue[stepName]
	if !ok {
		return nil
	}
	var examples []RetryExample
	seen := make(map[string]bool)
	for _, iss := range issues {
		if ex, ok := byCode[iss.Code]; ok && !seen[iss.Code] {
			examples = append(examples, ex)
			seen[iss.Code] = true
		}
	}
	return examples
}

// smartRetry produces a concrete next-attempt parameter set plus semantic
// guidance for stepName, given its previous StepResult and original
// parameters (spec §4.4).
func (o *Orchestrator) smartRetry(state *WorkflowState, stepName string, previous *StepResult, originalParameters map[string]any) (map[string]any, error) {
	if previous.RetryCount >= o.config.MaxRetries {
		return nil, fmt.Errorf("%w: step %s has exhausted maxRetries (%d)", ErrRetryRejected, stepName, o.config.MaxRetries)
	}

	var retryable []envelope.AgentIssue
	if previous.Envelope != nil {
		for _, iss := range previous.Envelope.Metadata.Issues {
			if iss.Retryable {
				retryable = append(retryable, iss)
			}
		}
	}
	if len(retryable) == 0 {
		return nil, fmt.Errorf("%w: step %s carries no retryable issue", ErrRetryRejected, stepName)
	}

	attempt := previous.RetryCount + 1

	instructions := buildRetryInstructions(attempt, retryable)
	examples := retryExampleFor(stepName, retryable)
	upstreamContexts := o.upstreamContextsFromCompleted(state)

	params := make(map[string]any, len(originalParameters)+1)
	for k, v := range originalParameters {
		params[k] = v
	}
	applyProgressiveEnhancement(params, stepName, attempt)
	applyIssueOverlays(params, retryable)

	params["_retryGuidance"] = RetryGuidance{
		Issues:          retryable,
		Instructions:    instructions,
		Examples:        examples,
		UpstreamContext: upstreamContexts,
		Attempt:         attempt,
	}

	return params, nil
}

func buildRetryInstructions(attempt int, retryable []envelope.AgentIssue) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Attempt %d: ", attempt)
	parts := make([]string, 0, len(retryable)*2)
	for _, iss := range retryable {
		parts = append(parts, iss.Message)
		if iss.SuggestedFix != "" {
			parts = append(parts, iss.SuggestedFix)
		}
	}
	b.WriteString(strings.Join(parts, "; "))
	return b.String()
}

// upstreamContextsFromCompleted builds UpstreamContext entries from every
// completed step's envelope, carrying issues at warning severity or worse.
func (o *Orchestrator) upstreamContextsFromCompleted(state *WorkflowState) []envelope.UpstreamContext {
	var contexts []envelope.UpstreamContext
	for name, r := range state.Steps {
		if r.Status != StepCompleted || r.Envelope == nil {
			continue
		}
		var relevant []envelope.AgentIssue
		for _, iss := range r.Envelope.Metadata.Issues {
			if iss.AtLeastWarning() {
				relevant = append(relevant, iss)
			}
		}
		contexts = append(contexts, envelope.UpstreamContext{
			SourceAgent:    r.Envelope.AgentID,
			SourceStep:     name,
			Confidence:     r.Confidence,
			RelevantIssues: relevant,
			Suggestions:    r.Envelope.Routing.Suggestions,
		})
	}
	return contexts
}

// applyProgressiveEnhancement mutates params in place per spec §4.4's
// per-stepName progressive-enhancement table.
func applyProgressiveEnhancement(params map[string]any, stepName string, attempt int) {
	switch stepName {
	case "semantic_analysis", "batch_semantic_analysis":
		params["semanticValueThreshold"] = 0.6 + 0.1*float64(attempt)
		if attempt >= 2 {
			params["rejectGenericPatterns"] = true
		}
		if attempt >= 3 {
			params["requireConcreteEvidence"] = true
			params["analysisDepth"] = "comprehensive"
		}

	case "insight_generation", "generate_insights":
		params["minInsightLength"] = int(100 * (1 + 0.1*float64(attempt)))
		if attempt >= 2 {
			params["requireSpecificExamples"] = true
			params["tier"] = "premium"
		}
		if attempt >= 3 {
			params["validateAgainstCode"] = true
		}

	case "observation_generation":
		params["minObservationsPerEntity"] = 2 + attempt
		if attempt >= 2 {
			params["rejectVague"] = true
		}

	case "ontology_classification":
		params["minConfidence"] = 0.6 + 0.1*float64(attempt)
		if attempt >= 3 {
			params["strictMatching"] = true
		}

	default:
		if attempt >= 2 {
			params["strictMode"] = true
		}
		if attempt >= 3 {
			params["enhancedValidation"] = true
		}
	}
}

// applyIssueOverlays layers category-driven parameter overrides on top of
// the progressive-enhancement table.
func applyIssueOverlays(params map[string]any, retryable []envelope.AgentIssue) {
	for _, iss := range retryable {
		switch iss.Category {
		case envelope.CategoryLowConfidence:
			params["tier"] = "premium"
		case envelope.CategoryDataQuality:
			params["validateOutput"] = true
		case envelope.CategorySemanticMismatch:
			params["semanticValidation"] = true
		}
	}
}
