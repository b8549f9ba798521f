package envelope

// AttenuationFor returns the weight multiplier predecessor issues impose on
// a single upstream contribution, per spec §8 Invariant 6: a critical issue
// attenuates to 0.5x baseline, a warning to 0.8x, both present to 0.4x
// (0.5 * 0.8), no issues at or above warning severity leaves it at 1.0x.
func AttenuationFor(issues []AgentIssue) float64 {
	weight := 1.0
	hasCritical := false
	hasWarning := false
	for _, iss := range issues {
		switch iss.Severity {
		case SeverityCritical:
			hasCritical = true
		case SeverityWarning:
			hasWarning = true
		}
	}
	if hasCritical {
		weight *= 0.5
	}
	if hasWarning {
		weight *= 0.8
	}
	return weight
}

// ComputeUpstreamInfluence folds a set of predecessor UpstreamContexts into
// the single [0,1] upstreamInfluence factor feeding a downstream step's own
// ConfidenceBreakdown. With no predecessors it returns 1.0 ("no evidence"),
// matching the boundary behavior in spec §8 ("all predecessors skipped").
func ComputeUpstreamInfluence(contexts []UpstreamContext) float64 {
	if len(contexts) == 0 {
		return 1.0
	}

	var weightedSum, weightSum float64
	for _, ctx := range contexts {
		w := AttenuationFor(ctx.RelevantIssues)
		weightedSum += ctx.Confidence * w
		weightSum += w
	}
	if weightSum <= 0 {
		return 1.0
	}
	return weightedSum / weightSum
}
