package envelope

// HasCritical reports whether the envelope carries any critical issue.
func (r AgentResponse) HasCritical() bool {
	for _, iss := range r.Metadata.Issues {
		if iss.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// HasCriticalNonRetryable reports whether the envelope carries a critical
// issue that is not retryable — the condition that forces a workflow
// termination (spec §4.4 interpretResult, step 2).
func (r AgentResponse) HasCriticalNonRetryable() bool {
	for _, iss := range r.Metadata.Issues {
		if iss.Severity == SeverityCritical && !iss.Retryable {
			return true
		}
	}
	return false
}

// HasRetryable reports whether any issue on the envelope is retryable.
func (r AgentResponse) HasRetryable() bool {
	for _, iss := range r.Metadata.Issues {
		if iss.Retryable {
			return true
		}
	}
	return false
}

// NeedsRetry reports whether the envelope's own routing asked for a retry.
func (r AgentResponse) NeedsRetry() bool {
	return r.Routing.RetryRecommendation != nil && r.Routing.RetryRecommendation.ShouldRetry
}

// NeedsEscalation reports whether the envelope flagged escalation.
func (r AgentResponse) NeedsEscalation() bool {
	return r.Routing.EscalationNeeded
}

// IsSuccess implements the type guard from spec §4.1:
//
//	isSuccess(r) ⟺ data ≠ ∅ ∧ confidence > 0 ∧ no critical-non-retryable issue
func (r AgentResponse) IsSuccess() bool {
	return r.Data != nil && r.Metadata.Confidence > 0 && !r.HasCriticalNonRetryable()
}
