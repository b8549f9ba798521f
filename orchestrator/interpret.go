package orchestrator

import (
	"time"

	"github.com/fwornle/kg-orchestrator/envelope"
	"go.uber.org/zap"
)

// interpretResult is the decision gate run after every step attempt (spec
// §4.4). It mutates state in place and returns the resulting RoutingDecision,
// which is also appended to state.RoutingHistory.
func (o *Orchestrator) interpretResult(state *WorkflowState, stepName string, resp envelope.AgentResponse) RoutingDecision {
	now := time.Now()

	// 1. Store the StepResult and per-step confidence.
	result, ok := state.Steps[stepName]
	if !ok {
		result = &StepResult{StepName: stepName, StartedAt: now}
		state.Steps[stepName] = result
	}
	result.Envelope = &resp
	result.Confidence = resp.Metadata.Confidence
	result.Issues = resp.Metadata.Issues
	result.CompletedAt = now

	decision := RoutingDecision{
		AffectedSteps: []string{stepName},
		Confidence:    resp.Metadata.Confidence,
		Timestamp:     now,
	}

	// 2. Critical non-retryable issue terminates the workflow.
	if msg, ok := firstCriticalNonRetryable(resp.Metadata.Issues); ok {
		result.Status = StepFailed
		state.Status = WorkflowTerminated
		decision.Action = ActionTerminate
		decision.Reason = msg
		state.RoutingHistory = append(state.RoutingHistory, decision)
		return decision
	}

	// 3. Retry recommendation, if the budget allows it.
	if rec := resp.Routing.RetryRecommendation; rec != nil && rec.ShouldRetry && result.RetryCount < o.config.MaxRetries {
		result.Status = StepRetrying
		result.RetryCount++
		o.recordRetryHistory(state, stepName, rec.Reason, result.Confidence, resp.Metadata.Issues)
		decision.Action = ActionRetry
		decision.Reason = rec.Reason
		state.RoutingHistory = append(state.RoutingHistory, decision)
		return decision
	}

	result.Status = StepCompleted

	// 4. Apply skip recommendations.
	modified := false
	for _, skipName := range resp.Routing.SkipRecommendations {
		state.SkippedSteps[skipName] = true
		state.Modifications = append(state.Modifications, WorkflowModification{
			Kind: ModSkip, StepName: skipName, Source: stepName,
			Reason: "skip recommended by " + stepName, Timestamp: now,
		})
		modified = true
	}

	// 5. Suggested next steps are logged, not yet applied to the DAG.
	if len(resp.Routing.SuggestedNextSteps) > 0 {
		o.logger.Info("step suggested next steps",
			zap.String("step", stepName), zap.Strings("suggested", resp.Routing.SuggestedNextSteps))
	}

	// 6. Escalation is logged, never fatal on its own.
	if resp.Routing.EscalationNeeded {
		o.logger.Warn("step flagged escalation",
			zap.String("step", stepName), zap.String("reason", resp.Routing.EscalationReason))
	}

	// 7. proceed, unless this pass modified the workflow.
	if modified {
		decision.Action = ActionSkipDownstream
		decision.Reason = "skip recommendations applied"
	} else {
		decision.Action = ActionProceed
	}
	state.RoutingHistory = append(state.RoutingHistory, decision)
	return decision
}

func firstCriticalNonRetryable(issues []envelope.AgentIssue) (string, bool) {
	for _, iss := range issues {
		if iss.Severity == envelope.SeverityCritical && !iss.Retryable {
			return iss.Message, true
		}
	}
	return "", false
}

func (o *Orchestrator) recordRetryHistory(state *WorkflowState, stepName, reason string, confidence float64, issues []envelope.AgentIssue) {
	entry, ok := state.RetryHistory[stepName]
	if !ok {
		entry = &RetryHistoryEntry{}
		state.RetryHistory[stepName] = entry
	}
	entry.Count++
	entry.LastReason = reason
	entry.ConfidenceProgression = append(entry.ConfidenceProgression, confidence)
	entry.AccumulatedIssues = append(entry.AccumulatedIssues, issues...)

	state.Modifications = append(state.Modifications, WorkflowModification{
		Kind: ModRetry, StepName: stepName, Source: stepName,
		Reason: reason, Timestamp: time.Now(),
	})
}
