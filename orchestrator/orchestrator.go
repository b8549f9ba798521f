package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/fwornle/kg-orchestrator/agent"
	"github.com/fwornle/kg-orchestrator/envelope"
)

// StateChangeListener is notified after every WorkflowState transition, so
// the event relay can translate it into an outbound event without the
// orchestrator importing that package.
type StateChangeListener func(*WorkflowState)

// SubstepListener is notified when a step is walked substep-by-substep
// (STEP_INTO / stepIntoSubsteps mode, spec §4.5).
type SubstepListener func(workflowID, stepName, substepName string, completed bool)

// PreferenceListener is notified when a command changes a run's observation
// preferences (single-step mode, step-into-substeps, mock LLM) rather than
// its WorkflowState, so the relay can emit PREFERENCES_UPDATED.
type PreferenceListener func(workflowID string, preferences map[string]any)

// MockToggleable is implemented by an LLMRouter that supports a mock mode;
// SetMockLLM calls it when present, and is a no-op on routers that don't.
type MockToggleable interface {
	SetMock(enabled bool, delay time.Duration)
}

// Orchestrator owns one WorkflowState for one workflow run and drives its
// steps through decideNextSteps -> execute -> interpretResult.
type Orchestrator struct {
	config     Config
	logger     *zap.Logger
	llmRouter  LLMRouter
	llmLimiter rateLimiterWaiter

	mu               sync.RWMutex
	agents           map[string]agent.Agent
	listeners        []StateChangeListener
	substepListeners []SubstepListener
	prefListeners    []PreferenceListener
	states           map[string]*WorkflowState
	controls         map[string]*RunControl
}

// rateLimiterWaiter is the narrow Wait(ctx) contract schedule.go's
// llmAssistedRouting needs from golang.org/x/time/rate.Limiter.
type rateLimiterWaiter interface {
	Wait(ctx context.Context) error
}

// New constructs an Orchestrator. llmRouter may be nil, in which case
// decideNextSteps always falls back to the rule-based schedule.
func New(config Config, llmRouter LLMRouter, llmRatePerSecond float64, llmBurst int, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		config:     config,
		logger:     logger.With(zap.String("component", "orchestrator")),
		llmRouter:  llmRouter,
		llmLimiter: newLLMLimiter(llmRatePerSecond, llmBurst),
		agents:     make(map[string]agent.Agent),
		states:     make(map[string]*WorkflowState),
		controls:   make(map[string]*RunControl),
	}
}

// RegisterAgent binds an agent.Agent to the step agentID a WorkflowDefinition
// step names.
func (o *Orchestrator) RegisterAgent(agentID string, a agent.Agent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.agents[agentID] = a
}

// OnStateChange registers a listener invoked after every WorkflowState
// transition (step completion, retry, skip, termination).
func (o *Orchestrator) OnStateChange(listener StateChangeListener) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, listener)
}

// OnSubstep registers a listener invoked as a step's substeps are walked.
func (o *Orchestrator) OnSubstep(listener SubstepListener) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.substepListeners = append(o.substepListeners, listener)
}

// OnPreferenceChange registers a listener invoked when an observation
// preference command is applied.
func (o *Orchestrator) OnPreferenceChange(listener PreferenceListener) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prefListeners = append(o.prefListeners, listener)
}

func (o *Orchestrator) notify(state *WorkflowState) {
	o.mu.RLock()
	listeners := append([]StateChangeListener(nil), o.listeners...)
	o.mu.RUnlock()
	for _, l := range listeners {
		l(state)
	}
}

func (o *Orchestrator) notifySubstep(workflowID, stepName, substepName string, completed bool) {
	o.mu.RLock()
	listeners := append([]SubstepListener(nil), o.substepListeners...)
	o.mu.RUnlock()
	for _, l := range listeners {
		l(workflowID, stepName, substepName, completed)
	}
}

func (o *Orchestrator) notifyPreferenceChange(workflowID string, preferences map[string]any) {
	o.mu.RLock()
	listeners := append([]PreferenceListener(nil), o.prefListeners...)
	o.mu.RUnlock()
	for _, l := range listeners {
		l(workflowID, preferences)
	}
}

// InitializeWorkflow creates an empty WorkflowState for a new run and
// registers its RunControl so commands can address it before RunWorkflow is
// even called.
func (o *Orchestrator) InitializeWorkflow(id, name string) *WorkflowState {
	state := NewWorkflowState(id, name)
	o.mu.Lock()
	o.states[id] = state
	o.controls[id] = newRunControl()
	o.mu.Unlock()
	o.notify(state)
	return state
}

func (o *Orchestrator) lookup(workflowID string) (*WorkflowState, *RunControl, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	state, ok := o.states[workflowID]
	if !ok {
		return nil, nil, false
	}
	return state, o.controls[workflowID], true
}

// Pause transitions a running workflow to paused; RunWorkflow blocks at its
// next pass boundary until Resume or Cancel.
func (o *Orchestrator) Pause(workflowID string) error {
	state, ctrl, ok := o.lookup(workflowID)
	if !ok {
		return fmt.Errorf("orchestrator: unknown workflow %q", workflowID)
	}
	o.mu.Lock()
	if state.Status == WorkflowRunning {
		state.Status = WorkflowPaused
	}
	o.mu.Unlock()
	ctrl.pause()
	o.notify(state)
	return nil
}

// Resume un-pauses a workflow paused via Pause.
func (o *Orchestrator) Resume(workflowID string) error {
	state, ctrl, ok := o.lookup(workflowID)
	if !ok {
		return fmt.Errorf("orchestrator: unknown workflow %q", workflowID)
	}
	o.mu.Lock()
	if state.Status == WorkflowPaused {
		state.Status = WorkflowRunning
	}
	o.mu.Unlock()
	ctrl.resume()
	o.notify(state)
	return nil
}

// Cancel terminates a workflow: state.Status becomes terminated and
// RunWorkflow stops at its next pass boundary. No context is cancelled, so
// steps already running are not interrupted and run to completion.
func (o *Orchestrator) Cancel(workflowID, reason string) error {
	state, ctrl, ok := o.lookup(workflowID)
	if !ok {
		return fmt.Errorf("orchestrator: unknown workflow %q", workflowID)
	}
	ctrl.cancel(reason)
	o.mu.Lock()
	state.Status = WorkflowTerminated
	state.TerminationReason = reason
	o.mu.Unlock()
	o.notify(state)
	return nil
}

// Advance delivers one STEP_ADVANCE token, releasing a single-step-mode run
// suspended after its last STEP_COMPLETED.
func (o *Orchestrator) Advance(workflowID string) error {
	_, ctrl, ok := o.lookup(workflowID)
	if !ok {
		return fmt.Errorf("orchestrator: unknown workflow %q", workflowID)
	}
	ctrl.advance()
	return nil
}

// StepInto behaves like Advance but forces the next step to be walked
// substep-by-substep even if stepIntoSubsteps mode is off.
func (o *Orchestrator) StepInto(workflowID string) error {
	_, ctrl, ok := o.lookup(workflowID)
	if !ok {
		return fmt.Errorf("orchestrator: unknown workflow %q", workflowID)
	}
	ctrl.forceSubstepsNextStep()
	ctrl.advance()
	return nil
}

// SetSingleStepMode toggles suspension after every STEP_COMPLETED.
func (o *Orchestrator) SetSingleStepMode(workflowID string, enabled bool) error {
	_, ctrl, ok := o.lookup(workflowID)
	if !ok {
		return fmt.Errorf("orchestrator: unknown workflow %q", workflowID)
	}
	ctrl.setSingleStep(enabled)
	o.notifyPreferenceChange(workflowID, map[string]any{"singleStepMode": enabled})
	return nil
}

// SetStepIntoSubsteps toggles whether every step (not just the next one) is
// walked substep-by-substep.
func (o *Orchestrator) SetStepIntoSubsteps(workflowID string, enabled bool) error {
	_, ctrl, ok := o.lookup(workflowID)
	if !ok {
		return fmt.Errorf("orchestrator: unknown workflow %q", workflowID)
	}
	ctrl.setStepIntoSubsteps(enabled)
	o.notifyPreferenceChange(workflowID, map[string]any{"stepIntoSubsteps": enabled})
	return nil
}

// SetMockLLM toggles mock mode on the LLM routing layer, when the
// configured LLMRouter supports it.
func (o *Orchestrator) SetMockLLM(workflowID string, enabled bool, delay time.Duration) error {
	_, ctrl, ok := o.lookup(workflowID)
	if !ok {
		return fmt.Errorf("orchestrator: unknown workflow %q", workflowID)
	}
	ctrl.setMockLLM(enabled, delay)
	if toggleable, ok := o.llmRouter.(MockToggleable); ok {
		toggleable.SetMock(enabled, delay)
	}
	o.notifyPreferenceChange(workflowID, map[string]any{"mockLLM": enabled, "mockLLMDelay": delay.String()})
	return nil
}

// dependencyMap derives a stepName -> []dependencyNames map from a
// WorkflowDefinition.
func dependencyMap(def *WorkflowDefinition) map[string][]string {
	deps := make(map[string][]string, len(def.Steps))
	for _, s := range def.Steps {
		deps[s.Name] = s.Dependencies
	}
	return deps
}

// RunWorkflow drives state through def to completion or termination,
// scheduling ready steps one pass at a time subject to the concurrency cap
// (spec §4.4 Ordering and concurrency: the orchestrator never starts a step
// outside the slate decideNextSteps returned for that pass). Pause/Cancel
// commands take effect at the pass boundary; single-step mode suspends after
// every completed pass until Advance/StepInto is called.
func (o *Orchestrator) RunWorkflow(ctx context.Context, state *WorkflowState, def *WorkflowDefinition) error {
	deps := dependencyMap(def)
	_, ctrl, ok := o.lookup(state.ID)
	if !ok {
		// Allow RunWorkflow to be called directly against a state that
		// wasn't created through InitializeWorkflow (e.g. in tests).
		o.mu.Lock()
		o.states[state.ID] = state
		ctrl = newRunControl()
		o.controls[state.ID] = ctrl
		o.mu.Unlock()
	}

	for {
		if cancelled, reason := ctrl.isCancelled(); cancelled {
			o.mu.Lock()
			state.Status = WorkflowTerminated
			state.TerminationReason = reason
			o.mu.Unlock()
			o.notify(state)
			return nil
		}

		if err := ctrl.waitUnlessCancelled(ctx); err != nil {
			return fmt.Errorf("wait while paused: %w", err)
		}
		if state.Status != WorkflowRunning {
			return nil
		}

		available := o.pendingStepNames(state, def)
		if len(available) == 0 {
			if o.allTerminal(state, def) {
				o.mu.Lock()
				state.Status = WorkflowCompleted
				o.mu.Unlock()
				o.notify(state)
				return nil
			}
			return nil
		}

		decision, err := o.decideNextSteps(ctx, state, available, deps)
		if err != nil {
			return fmt.Errorf("decide next steps: %w", err)
		}
		if len(decision.StepsToRun) == 0 {
			// Nothing schedulable this pass (e.g. everything left was
			// skipped): avoid spinning forever.
			return nil
		}

		if err := o.runPass(ctx, state, def, decision.StepsToRun); err != nil {
			return err
		}
		if state.Status != WorkflowRunning {
			o.notify(state)
			return nil
		}

		if ctrl.isSingleStep() {
			if err := ctrl.waitForAdvance(ctx); err != nil {
				return fmt.Errorf("wait for step advance: %w", err)
			}
		}
	}
}

// pendingStepNames returns every defined step not yet completed or skipped.
func (o *Orchestrator) pendingStepNames(state *WorkflowState, def *WorkflowDefinition) []string {
	var names []string
	for _, s := range def.Steps {
		if state.SkippedSteps[s.Name] {
			continue
		}
		if r, ok := state.Steps[s.Name]; ok && r.Status == StepCompleted {
			continue
		}
		names = append(names, s.Name)
	}
	return names
}

func (o *Orchestrator) allTerminal(state *WorkflowState, def *WorkflowDefinition) bool {
	for _, s := range def.Steps {
		if state.SkippedSteps[s.Name] {
			continue
		}
		r, ok := state.Steps[s.Name]
		if !ok || r.Status != StepCompleted {
			return false
		}
	}
	return true
}

// runPass executes one scheduling pass's steps concurrently, bounded by
// maxConcurrentSteps, via errgroup+semaphore rather than a hand-rolled
// worker pool.
func (o *Orchestrator) runPass(ctx context.Context, state *WorkflowState, def *WorkflowDefinition, stepNames []string) error {
	sem := semaphore.NewWeighted(int64(o.config.MaxConcurrentSteps))
	g, gctx := errgroup.WithContext(ctx)

	for _, name := range stepNames {
		name := name
		stepDef := def.StepByName(name)
		if stepDef == nil {
			continue
		}

		if ok, err := o.conditionSatisfied(stepDef, state); err != nil || !ok {
			if err != nil {
				o.logger.Warn("condition evaluation failed, skipping step", zap.String("step", name), zap.Error(err))
			}
			o.mu.Lock()
			state.SkippedSteps[name] = true
			state.Modifications = append(state.Modifications, WorkflowModification{
				Kind: ModSkip, StepName: name, Source: "orchestrator",
				Reason: "step condition not satisfied", Timestamp: time.Now(),
			})
			o.mu.Unlock()
			continue
		}

		if err := sem.Acquire(gctx, 1); err != nil {
			return fmt.Errorf("acquire step concurrency slot: %w", err)
		}

		g.Go(func() error {
			defer sem.Release(1)
			o.runStep(gctx, state, stepDef)
			return nil
		})
	}

	return g.Wait()
}

func (o *Orchestrator) conditionSatisfied(stepDef *StepDefinition, state *WorkflowState) (bool, error) {
	return NewConditionEvaluator().Evaluate(stepDef.Condition, state)
}

// runStep executes one step's agent, marks it running beforehand, then
// drives its envelope through interpretResult. Any step-level fault is
// captured inside the envelope, never as a Go error escaping here (spec
// §4.4 Failure semantics). A step with a configured timeout is abandoned at
// its deadline and reported as a timeout-category issue.
func (o *Orchestrator) runStep(ctx context.Context, state *WorkflowState, stepDef *StepDefinition) {
	o.mu.RLock()
	a, ok := o.agents[stepDef.AgentID]
	ctrl := o.controls[state.ID]
	o.mu.RUnlock()

	o.mu.Lock()
	result, exists := state.Steps[stepDef.Name]
	if !exists {
		result = &StepResult{StepName: stepDef.Name, StartedAt: time.Now()}
		state.Steps[stepDef.Name] = result
	}
	result.Status = StepRunning
	attempt := result.RetryCount
	o.mu.Unlock()
	o.notify(state)

	if !ok {
		resp := envelope.AgentResponse{
			AgentID: stepDef.AgentID,
			Step:    stepDef.Name,
			Metadata: envelope.AgentMetadata{
				Issues: []envelope.AgentIssue{{
					Severity: envelope.SeverityCritical,
					Category: envelope.CategoryProcessingError,
					Code:     "AGENT_NOT_REGISTERED",
					Message:  fmt.Sprintf("no agent registered for id %q", stepDef.AgentID),
				}},
			},
		}
		o.mu.Lock()
		o.interpretResult(state, stepDef.Name, resp)
		o.mu.Unlock()
		o.notify(state)
		return
	}

	if ctrl != nil && ctrl.shouldWalkSubsteps() && len(stepDef.Substeps) > 0 {
		o.walkSubsteps(ctx, state, stepDef)
	}

	ic := &agent.InvocationContext{
		WorkflowID:   state.ID,
		StepName:     stepDef.Name,
		RetryAttempt: attempt,
		Upstream:     o.upstreamContextsFromCompleted(state),
		Parameters:   stepDef.Parameters,
	}

	resp := o.executeWithTimeout(ctx, a, stepDef, ic)

	o.mu.Lock()
	o.interpretResult(state, stepDef.Name, resp)
	o.mu.Unlock()
	o.notify(state)
}

// executeWithTimeout bounds one agent invocation to stepDef.Timeout (falling
// back to the workflow default). On expiry it synthesizes a timeout-category
// envelope rather than blocking RunWorkflow indefinitely; the abandoned
// invocation's goroutine is left to return on its own once its ctx is done.
func (o *Orchestrator) executeWithTimeout(ctx context.Context, a agent.Agent, stepDef *StepDefinition, ic *agent.InvocationContext) envelope.AgentResponse {
	timeout := stepDef.Timeout
	if timeout <= 0 {
		timeout = o.config.DefaultStepTimeout
	}
	if timeout <= 0 {
		return a.Execute(ctx, stepDef.Parameters, ic)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan envelope.AgentResponse, 1)
	go func() {
		done <- a.Execute(timeoutCtx, stepDef.Parameters, ic)
	}()

	select {
	case resp := <-done:
		return resp
	case <-timeoutCtx.Done():
		return envelope.AgentResponse{
			AgentID: stepDef.AgentID,
			Step:    stepDef.Name,
			Metadata: envelope.AgentMetadata{
				Issues: []envelope.AgentIssue{{
					Severity:  envelope.SeverityWarning,
					Category:  envelope.CategoryTimeout,
					Code:      "STEP_TIMEOUT",
					Message:   fmt.Sprintf("step %s exceeded its %s timeout", stepDef.Name, timeout),
					Retryable: true,
				}},
			},
			Routing: envelope.AgentRouting{
				RetryRecommendation: &envelope.RetryRecommendation{ShouldRetry: true, Reason: "step timed out"},
			},
		}
	}
}

// walkSubsteps emits SUBSTEP_STARTED/SUBSTEP_COMPLETED around each defined
// substep. A substep with its own AgentID is actually invoked; one without
// is a pure progress marker.
func (o *Orchestrator) walkSubsteps(ctx context.Context, state *WorkflowState, stepDef *StepDefinition) {
	for i := range stepDef.Substeps {
		sub := stepDef.Substeps[i]
		o.notifySubstep(state.ID, stepDef.Name, sub.Name, false)

		if sub.AgentID != "" {
			o.mu.RLock()
			subAgent, ok := o.agents[sub.AgentID]
			o.mu.RUnlock()
			if ok {
				ic := &agent.InvocationContext{
					WorkflowID: state.ID,
					StepName:   stepDef.Name + "/" + sub.Name,
					Upstream:   o.upstreamContextsFromCompleted(state),
					Parameters: sub.Parameters,
				}
				subAgent.Execute(ctx, sub.Parameters, ic)
			}
		}

		o.notifySubstep(state.ID, stepDef.Name, sub.Name, true)
	}
}
