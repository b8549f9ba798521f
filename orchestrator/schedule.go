package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// SchedulingDecision is decideNextSteps' return shape (spec §4.4).
type SchedulingDecision struct {
	StepsToRun  []string
	StepsToSkip []string
	StepsToAdd  []StepDefinition
	Reasoning   string
	LLMAssisted bool
}

// LLMRouter is the minimal contract the scheduler needs from the
// (out-of-scope) LLM routing layer: a prompt in, a JSON routing decision
// out. Which provider answers it is a black box; Orchestrator wraps a
// concrete LLMRouter with its own rate limiter so the scheduler never
// bursts that layer regardless of what limit the layer itself enforces.
type LLMRouter interface {
	Route(ctx context.Context, prompt string) (string, error)
}

// llmRoutingResponse is the JSON shape step 5's LLM call is asked to
// return; any parse failure falls back to the rule-based list.
type llmRoutingResponse struct {
	StepsToRun []string `json:"stepsToRun"`
	Reasoning  string   `json:"reasoning"`
}

// decideNextSteps is the pure(-ish) scheduling function described in spec
// §4.4. dependencies maps a step name to the names of steps it depends on.
func (o *Orchestrator) decideNextSteps(ctx context.Context, state *WorkflowState, available []string, dependencies map[string][]string) (SchedulingDecision, error) {
	decision := SchedulingDecision{}

	// 1. Discard completed and already-skipped steps.
	var candidates []string
	for _, name := range available {
		if r, ok := state.Steps[name]; ok && (r.Status == StepCompleted || r.Status == StepSkipped) {
			continue
		}
		if state.SkippedSteps[name] {
			continue
		}
		candidates = append(candidates, name)
	}

	// 2. A step is ready iff every dependency is completed or skipped.
	var ready []string
	for _, name := range candidates {
		if o.dependenciesSatisfied(state, dependencies[name]) {
			ready = append(ready, name)
		}
	}

	// 3. Preemptively skip steps whose upstream confidence is too low.
	var survivors []string
	for _, name := range ready {
		upstream := o.upstreamConfidence(state, dependencies[name])
		if upstream < o.config.SkipThreshold {
			state.SkippedSteps[name] = true
			state.Modifications = append(state.Modifications, WorkflowModification{
				Kind: ModSkip, StepName: name, Source: "orchestrator",
				Reason:    fmt.Sprintf("upstream confidence %.2f below skip threshold %.2f", upstream, o.config.SkipThreshold),
				Timestamp: time.Now(),
			})
			decision.StepsToSkip = append(decision.StepsToSkip, name)
			continue
		}
		survivors = append(survivors, name)
	}

	// 4. Cap to maxConcurrentSteps.
	capped := survivors
	if len(capped) > o.config.MaxConcurrentSteps {
		capped = capped[:o.config.MaxConcurrentSteps]
	}

	// 5. LLM assist if still over cap, or state is "complex".
	if (len(survivors) > o.config.MaxConcurrentSteps || o.isComplex(state)) && o.config.UseLLMRouting && o.llmRouter != nil {
		llmSteps, reasoning, err := o.llmAssistedRouting(ctx, state, survivors)
		if err == nil {
			decision.StepsToRun = llmSteps
			decision.Reasoning = reasoning
			decision.LLMAssisted = true
			return decision, nil
		}
		o.logger.Sugar().Warnw("LLM routing decision failed, falling back to rule-based schedule", "error", err)
	}

	decision.StepsToRun = capped
	decision.Reasoning = "rule-based: ready steps capped to maxConcurrentSteps"
	return decision, nil
}

func (o *Orchestrator) dependenciesSatisfied(state *WorkflowState, deps []string) bool {
	for _, dep := range deps {
		if state.SkippedSteps[dep] {
			continue
		}
		r, ok := state.Steps[dep]
		if !ok || r.Status != StepCompleted {
			return false
		}
	}
	return true
}

// upstreamConfidence is the arithmetic mean of predecessor overall
// confidences, or 1.0 if there are no predecessors (spec §4.4 step 3).
func (o *Orchestrator) upstreamConfidence(state *WorkflowState, deps []string) float64 {
	if len(deps) == 0 {
		return 1.0
	}
	var sum float64
	var counted int
	for _, dep := range deps {
		if state.SkippedSteps[dep] {
			continue
		}
		if r, ok := state.Steps[dep]; ok {
			sum += r.Confidence
			counted++
		}
	}
	if counted == 0 {
		return 1.0
	}
	return sum / float64(counted)
}

// isComplex reports the "state is complex" trigger for LLM-assisted routing:
// any retry count > 0, any skipped step, or >= 3 steps below retryThreshold.
func (o *Orchestrator) isComplex(state *WorkflowState) bool {
	if len(state.SkippedSteps) > 0 {
		return true
	}
	belowThreshold := 0
	for _, r := range state.Steps {
		if r.RetryCount > 0 {
			return true
		}
		if r.Confidence < o.config.RetryThreshold {
			belowThreshold++
		}
	}
	return belowThreshold >= 3
}

// llmAssistedRouting calls the rate-limited LLM router with a summary of the
// ready steps and current state, and parses its JSON routing decision.
func (o *Orchestrator) llmAssistedRouting(ctx context.Context, state *WorkflowState, ready []string) ([]string, string, error) {
	if err := o.llmLimiter.Wait(ctx); err != nil {
		return nil, "", fmt.Errorf("llm rate limiter: %w", err)
	}

	prompt := buildRoutingPrompt(state, ready)
	reply, err := o.llmRouter.Route(ctx, prompt)
	if err != nil {
		return nil, "", fmt.Errorf("llm routing call: %w", err)
	}

	var parsed llmRoutingResponse
	if err := json.Unmarshal([]byte(reply), &parsed); err != nil {
		return nil, "", fmt.Errorf("parse llm routing response: %w", err)
	}
	if len(parsed.StepsToRun) == 0 {
		return nil, "", fmt.Errorf("llm routing response named no steps")
	}
	return parsed.StepsToRun, parsed.Reasoning, nil
}

func buildRoutingPrompt(state *WorkflowState, ready []string) string {
	var b strings.Builder
	b.WriteString("Workflow ")
	b.WriteString(state.Name)
	b.WriteString(" has more ready steps than the concurrency cap allows. ")
	b.WriteString("Ready steps: ")
	b.WriteString(strings.Join(ready, ", "))
	b.WriteString(". Respond with JSON {\"stepsToRun\": [...], \"reasoning\": \"...\"} naming which to run now.")
	return b.String()
}

// newLLMLimiter builds the rate limiter fronting the LLM routing call
// (spec §4.4, "never bursts the provider layer").
func newLLMLimiter(ratePerSecond float64, burst int) *rate.Limiter {
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(ratePerSecond), burst)
}
