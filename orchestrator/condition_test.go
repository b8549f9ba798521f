package orchestrator

import "testing"

func newStateWithStep(name string, status StepStatus, confidence float64) *WorkflowState {
	state := NewWorkflowState("wf-1", "test")
	state.Steps[name] = &StepResult{StepName: name, Status: status, Confidence: confidence}
	return state
}

func TestConditionEvaluator_EmptyExpressionIsTrue(t *testing.T) {
	ok, err := NewConditionEvaluator().Evaluate("", NewWorkflowState("wf-1", "test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected empty condition to evaluate true")
	}
}

func TestConditionEvaluator_ConfidenceComparison(t *testing.T) {
	state := newStateWithStep("semantic_analysis", StepCompleted, 0.82)

	ok, err := NewConditionEvaluator().Evaluate(`confidence(semantic_analysis) > 0.5`, state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected confidence 0.82 > 0.5 to be true")
	}

	ok, err = NewConditionEvaluator().Evaluate(`confidence(semantic_analysis) > 0.9`, state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected confidence 0.82 > 0.9 to be false")
	}
}

func TestConditionEvaluator_StatusEquality(t *testing.T) {
	state := newStateWithStep("ontology_classification", StepSkipped, 0)

	ok, err := NewConditionEvaluator().Evaluate(`status(ontology_classification) == "skipped"`, state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected status comparison to be true")
	}
}

func TestConditionEvaluator_UnknownStepDefaultsToZeroAndPending(t *testing.T) {
	state := NewWorkflowState("wf-1", "test")

	ok, err := NewConditionEvaluator().Evaluate(`confidence(never_ran) == 0 && status(never_ran) == "pending"`, state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected unknown step to default to confidence 0 and status pending")
	}
}

func TestConditionEvaluator_BooleanOperators(t *testing.T) {
	state := newStateWithStep("a", StepCompleted, 0.9)
	state.Steps["b"] = &StepResult{StepName: "b", Status: StepFailed, Confidence: 0.1}

	ok, err := NewConditionEvaluator().Evaluate(`confidence(a) > 0.5 && !(status(b) == "completed")`, state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected combined && and ! expression to be true")
	}

	ok, err = NewConditionEvaluator().Evaluate(`confidence(a) < 0.5 || confidence(b) < 0.5`, state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected || expression to be true")
	}
}

func TestConditionEvaluator_RejectsUnknownIdentifier(t *testing.T) {
	state := NewWorkflowState("wf-1", "test")
	_, err := NewConditionEvaluator().Evaluate(`foo(bar)`, state)
	if err == nil {
		t.Fatal("expected an error for an unknown function identifier")
	}
}

func TestConditionEvaluator_RejectsMalformedExpression(t *testing.T) {
	state := NewWorkflowState("wf-1", "test")
	_, err := NewConditionEvaluator().Evaluate(`confidence(a) >`, state)
	if err == nil {
		t.Fatal("expected an error for a dangling comparison operator")
	}
}

func TestConditionEvaluator_StringLiteralComparison(t *testing.T) {
	state := NewWorkflowState("wf-1", "test")
	ok, err := NewConditionEvaluator().Evaluate(`"a" != "b"`, state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected string literal inequality to be true")
	}
}
