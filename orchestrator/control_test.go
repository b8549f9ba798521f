package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/fwornle/kg-orchestrator/agent"
	"github.com/fwornle/kg-orchestrator/envelope"
	"go.uber.org/zap"
)

func TestRunControl_PauseBlocksThenResumeReleases(t *testing.T) {
	c := newRunControl()
	c.pause()

	released := make(chan struct{})
	go func() {
		_ = c.waitUnlessCancelled(context.Background())
		close(released)
	}()

	select {
	case <-released:
		t.Fatal("expected waitUnlessCancelled to block while paused")
	case <-time.After(50 * time.Millisecond):
	}

	c.resume()
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("expected waitUnlessCancelled to unblock after resume")
	}
}

func TestRunControl_CancelForceOpensGate(t *testing.T) {
	c := newRunControl()
	c.pause()
	c.cancel("operator abort")

	if err := c.waitUnlessCancelled(context.Background()); err != nil {
		t.Fatalf("expected cancel to force-open the pause gate, got %v", err)
	}
	cancelled, reason := c.isCancelled()
	if !cancelled || reason != "operator abort" {
		t.Fatalf("expected cancelled with reason, got %v %q", cancelled, reason)
	}
}

func TestRunControl_AdvanceDoesNotQueueExtras(t *testing.T) {
	c := newRunControl()
	c.advance()
	c.advance() // dropped, not queued

	if err := c.waitForAdvance(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.waitForAdvance(ctx); err == nil {
		t.Fatal("expected the second advance to have been dropped, not queued")
	}
}

func TestRunControl_ShouldWalkSubstepsHonorsStepIntoOnce(t *testing.T) {
	c := newRunControl()
	if c.shouldWalkSubsteps() {
		t.Fatal("expected no substep walk by default")
	}
	c.forceSubstepsNextStep()
	if !c.shouldWalkSubsteps() {
		t.Fatal("expected a forced substep walk once STEP_INTO is requested")
	}
	if c.shouldWalkSubsteps() {
		t.Fatal("expected the forced walk to be one-shot")
	}
	c.setStepIntoSubsteps(true)
	if !c.shouldWalkSubsteps() || !c.shouldWalkSubsteps() {
		t.Fatal("expected every step to walk substeps once stepIntoSubsteps mode is on")
	}
}

func TestOrchestrator_PauseSuspendsRunUntilResume(t *testing.T) {
	o := New(DefaultConfig(), nil, 100, 10, zap.NewNop())
	o.RegisterAgent("fetch", succeedingAgent("fetch", 0.9))

	def := &WorkflowDefinition{
		Name:  "pausable",
		Steps: []StepDefinition{{Name: "fetch_step", AgentID: "fetch"}},
	}
	state := o.InitializeWorkflow("wf-pause-1", "pausable")

	if err := o.Pause(state.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Status != WorkflowPaused {
		t.Fatalf("expected paused, got %v", state.Status)
	}

	done := make(chan error, 1)
	go func() { done <- o.RunWorkflow(context.Background(), state, def) }()

	select {
	case <-done:
		t.Fatal("expected RunWorkflow to block while paused")
	case <-time.After(50 * time.Millisecond):
	}

	if err := o.Resume(state.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("expected RunWorkflow to complete after resume")
	}
	if state.Status != WorkflowCompleted {
		t.Fatalf("expected completed, got %v", state.Status)
	}
}

func TestOrchestrator_CancelTerminatesRun(t *testing.T) {
	o := New(DefaultConfig(), nil, 100, 10, zap.NewNop())
	o.RegisterAgent("fetch", succeedingAgent("fetch", 0.9))

	def := &WorkflowDefinition{
		Name:  "cancellable",
		Steps: []StepDefinition{{Name: "fetch_step", AgentID: "fetch"}},
	}
	state := o.InitializeWorkflow("wf-cancel-1", "cancellable")

	if err := o.Cancel(state.ID, "user requested abort"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := o.RunWorkflow(context.Background(), state, def); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Status != WorkflowTerminated || state.TerminationReason != "user requested abort" {
		t.Fatalf("expected terminated with reason, got status=%v reason=%q", state.Status, state.TerminationReason)
	}
}

func TestOrchestrator_SingleStepModeSuspendsUntilAdvance(t *testing.T) {
	o := New(DefaultConfig(), nil, 100, 10, zap.NewNop())
	o.RegisterAgent("fetch", succeedingAgent("fetch", 0.9))

	def := &WorkflowDefinition{
		Name:  "stepping",
		Steps: []StepDefinition{{Name: "fetch_step", AgentID: "fetch"}},
	}
	state := o.InitializeWorkflow("wf-step-1", "stepping")
	if err := o.SetSingleStepMode(state.ID, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- o.RunWorkflow(context.Background(), state, def) }()

	select {
	case <-done:
		t.Fatal("expected single-step mode to suspend after the first pass")
	case <-time.After(100 * time.Millisecond):
	}
	if state.Steps["fetch_step"] == nil || state.Steps["fetch_step"].Status != StepCompleted {
		t.Fatalf("expected fetch_step to have completed before suspension, got %+v", state.Steps["fetch_step"])
	}

	if err := o.Advance(state.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("expected RunWorkflow to complete after Advance")
	}
	if state.Status != WorkflowCompleted {
		t.Fatalf("expected completed, got %v", state.Status)
	}
}

type mockToggleRouter struct {
	enabled bool
	delay   time.Duration
}

func (r *mockToggleRouter) Route(ctx context.Context, prompt string) (string, error) {
	return `{"stepsToRun":[],"reasoning":"mock"}`, nil
}

func (r *mockToggleRouter) SetMock(enabled bool, delay time.Duration) {
	r.enabled = enabled
	r.delay = delay
}

func TestOrchestrator_SetMockLLMTogglesMockToggleableRouter(t *testing.T) {
	router := &mockToggleRouter{}
	o := New(DefaultConfig(), router, 100, 10, zap.NewNop())
	state := o.InitializeWorkflow("wf-mock-1", "noop")

	if err := o.SetMockLLM(state.ID, true, 250*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !router.enabled || router.delay != 250*time.Millisecond {
		t.Fatalf("expected the router's mock mode to be toggled, got enabled=%v delay=%v", router.enabled, router.delay)
	}
}

func TestOrchestrator_ExecuteWithTimeoutSynthesizesTimeoutIssue(t *testing.T) {
	o := New(DefaultConfig(), nil, 100, 10, zap.NewNop())
	slow := &fakeAgent{
		id: "slow",
		execute: func(ctx context.Context, input any, ic *agent.InvocationContext) envelope.AgentResponse {
			<-ctx.Done()
			return envelope.AgentResponse{AgentID: "slow", Step: ic.StepName}
		},
	}
	stepDef := &StepDefinition{Name: "slow_step", AgentID: "slow", Timeout: 20 * time.Millisecond}
	ic := &agent.InvocationContext{WorkflowID: "wf-timeout-1", StepName: "slow_step"}

	resp := o.executeWithTimeout(context.Background(), slow, stepDef, ic)

	if len(resp.Metadata.Issues) != 1 || resp.Metadata.Issues[0].Code != "STEP_TIMEOUT" {
		t.Fatalf("expected a single STEP_TIMEOUT issue, got %+v", resp.Metadata.Issues)
	}
	if resp.Metadata.Issues[0].Category != envelope.CategoryTimeout {
		t.Fatalf("expected timeout category, got %v", resp.Metadata.Issues[0].Category)
	}
}

func TestOrchestrator_WalkSubstepsNotifiesStartedAndCompleted(t *testing.T) {
	o := New(DefaultConfig(), nil, 100, 10, zap.NewNop())
	o.RegisterAgent("sub-agent", succeedingAgent("sub-agent", 0.8))

	var events []string
	o.OnSubstep(func(workflowID, stepName, substepName string, completed bool) {
		suffix := "started"
		if completed {
			suffix = "completed"
		}
		events = append(events, stepName+"/"+substepName+":"+suffix)
	})

	stepDef := &StepDefinition{
		Name: "parent_step",
		Substeps: []StepDefinition{
			{Name: "sub_one", AgentID: "sub-agent"},
			{Name: "sub_two"},
		},
	}
	state := NewWorkflowState("wf-substep-1", "substeps")

	o.walkSubsteps(context.Background(), state, stepDef)

	want := []string{
		"parent_step/sub_one:started", "parent_step/sub_one:completed",
		"parent_step/sub_two:started", "parent_step/sub_two:completed",
	}
	if len(events) != len(want) {
		t.Fatalf("expected %v, got %v", want, events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, events)
		}
	}
}
