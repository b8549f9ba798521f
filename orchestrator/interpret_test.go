package orchestrator

import (
	"testing"

	"github.com/fwornle/kg-orchestrator/envelope"
	"go.uber.org/zap"
)

func TestInterpretResult_CriticalNonRetryableTerminatesWorkflow(t *testing.T) {
	o := New(DefaultConfig(), nil, 100, 10, zap.NewNop())
	state := NewWorkflowState("wf-1", "test")

	resp := envelope.AgentResponse{
		AgentID: "a", Step: "ontology_classification",
		Metadata: envelope.AgentMetadata{Issues: []envelope.AgentIssue{
			{Severity: envelope.SeverityCritical, Retryable: false, Message: "unrecoverable schema mismatch"},
		}},
	}

	decision := o.interpretResult(state, "ontology_classification", resp)
	if decision.Action != ActionTerminate {
		t.Fatalf("expected ActionTerminate, got %v", decision.Action)
	}
	if state.Status != WorkflowTerminated {
		t.Fatalf("expected workflow terminated, got %v", state.Status)
	}
	if decision.Reason != "unrecoverable schema mismatch" {
		t.Fatalf("expected the critical issue message propagated, got %q", decision.Reason)
	}
}

func TestInterpretResult_RetryRecommendationWithinBudget(t *testing.T) {
	o := New(DefaultConfig(), nil, 100, 10, zap.NewNop())
	state := NewWorkflowState("wf-1", "test")

	resp := envelope.AgentResponse{
		AgentID: "a", Step: "semantic_analysis",
		Metadata: envelope.AgentMetadata{Confidence: 0.3},
		Routing: envelope.AgentRouting{
			RetryRecommendation: &envelope.RetryRecommendation{ShouldRetry: true, Reason: "confidence below threshold"},
		},
	}

	decision := o.interpretResult(state, "semantic_analysis", resp)
	if decision.Action != ActionRetry {
		t.Fatalf("expected ActionRetry, got %v", decision.Action)
	}
	if state.Steps["semantic_analysis"].RetryCount != 1 {
		t.Fatalf("expected retry count incremented to 1, got %d", state.Steps["semantic_analysis"].RetryCount)
	}
	if state.RetryHistory["semantic_analysis"] == nil || state.RetryHistory["semantic_analysis"].Count != 1 {
		t.Fatal("expected retry history recorded")
	}
}

func TestInterpretResult_RetryRejectedOnceBudgetExhausted(t *testing.T) {
	config := DefaultConfig()
	config.MaxRetries = 1
	o := New(config, nil, 100, 10, zap.NewNop())
	state := NewWorkflowState("wf-1", "test")
	state.Steps["semantic_analysis"] = &StepResult{StepName: "semantic_analysis", RetryCount: 1}

	resp := envelope.AgentResponse{
		AgentID: "a", Step: "semantic_analysis",
		Routing: envelope.AgentRouting{
			RetryRecommendation: &envelope.RetryRecommendation{ShouldRetry: true, Reason: "still low"},
		},
	}

	decision := o.interpretResult(state, "semantic_analysis", resp)
	if decision.Action == ActionRetry {
		t.Fatal("expected retry to be rejected once MaxRetries is reached")
	}
	if state.Steps["semantic_analysis"].Status != StepCompleted {
		t.Fatalf("expected step marked completed once retry budget exhausted, got %v", state.Steps["semantic_analysis"].Status)
	}
}

func TestInterpretResult_SkipRecommendationsMarkDownstreamSkipped(t *testing.T) {
	o := New(DefaultConfig(), nil, 100, 10, zap.NewNop())
	state := NewWorkflowState("wf-1", "test")

	resp := envelope.AgentResponse{
		AgentID: "a", Step: "semantic_analysis",
		Metadata: envelope.AgentMetadata{Confidence: 0.9},
		Routing:  envelope.AgentRouting{SkipRecommendations: []string{"insight_generation"}},
	}

	decision := o.interpretResult(state, "semantic_analysis", resp)
	if decision.Action != ActionSkipDownstream {
		t.Fatalf("expected ActionSkipDownstream, got %v", decision.Action)
	}
	if !state.SkippedSteps["insight_generation"] {
		t.Fatal("expected insight_generation marked skipped")
	}
	if len(state.Modifications) != 1 || state.Modifications[0].Kind != ModSkip {
		t.Fatalf("expected one skip modification recorded, got %v", state.Modifications)
	}
}

func TestInterpretResult_ProceedsWhenNothingSpecial(t *testing.T) {
	o := New(DefaultConfig(), nil, 100, 10, zap.NewNop())
	state := NewWorkflowState("wf-1", "test")

	resp := envelope.AgentResponse{
		AgentID: "a", Step: "semantic_analysis",
		Metadata: envelope.AgentMetadata{Confidence: 0.9},
	}

	decision := o.interpretResult(state, "semantic_analysis", resp)
	if decision.Action != ActionProceed {
		t.Fatalf("expected ActionProceed, got %v", decision.Action)
	}
	if state.Steps["semantic_analysis"].Status != StepCompleted {
		t.Fatalf("expected step completed, got %v", state.Steps["semantic_analysis"].Status)
	}
}
