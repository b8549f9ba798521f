package orchestrator

import (
	"context"
	"sync"
	"time"
)

// RunControl is the out-of-band control surface for one workflow run: pause,
// resume, cancel, single-step gating, and the mock-LLM toggle all live here
// so the events package can drive a run without reaching into WorkflowState
// directly (spec §4.5 command handling).
type RunControl struct {
	mu           sync.Mutex
	paused       bool
	pauseGate    chan struct{}
	cancelled    bool
	cancelReason string

	singleStep          bool
	stepIntoSubsteps    bool
	forceSubstepsOnce   bool
	advanceCh           chan struct{}

	mockLLM      bool
	mockLLMDelay time.Duration
}

func newRunControl() *RunControl {
	gate := make(chan struct{})
	close(gate) // unpaused: gate already satisfied
	return &RunControl{pauseGate: gate, advanceCh: make(chan struct{}, 1)}
}

func (c *RunControl) pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused || c.cancelled {
		return
	}
	c.paused = true
	c.pauseGate = make(chan struct{})
}

func (c *RunControl) resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return
	}
	c.paused = false
	close(c.pauseGate)
}

func (c *RunControl) cancel(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelled {
		return
	}
	c.cancelled = true
	c.cancelReason = reason
	if c.paused {
		c.paused = false
		close(c.pauseGate)
	}
}

func (c *RunControl) isCancelled() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled, c.cancelReason
}

// waitUnlessCancelled blocks while paused, returning immediately once
// resumed, cancelled (the gate is force-opened), or ctx is done.
func (c *RunControl) waitUnlessCancelled(ctx context.Context) error {
	c.mu.Lock()
	gate := c.pauseGate
	c.mu.Unlock()
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *RunControl) setSingleStep(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.singleStep = enabled
}

func (c *RunControl) isSingleStep() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.singleStep
}

func (c *RunControl) setStepIntoSubsteps(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stepIntoSubsteps = enabled
}

func (c *RunControl) shouldWalkSubsteps() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stepIntoSubsteps {
		return true
	}
	if c.forceSubstepsOnce {
		c.forceSubstepsOnce = false
		return true
	}
	return false
}

func (c *RunControl) forceSubstepsNextStep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forceSubstepsOnce = true
}

// advance delivers a single STEP_ADVANCE token; extra advances while one is
// already pending are dropped rather than queued.
func (c *RunControl) advance() {
	select {
	case c.advanceCh <- struct{}{}:
	default:
	}
}

func (c *RunControl) waitForAdvance(ctx context.Context) error {
	select {
	case <-c.advanceCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *RunControl) setMockLLM(enabled bool, delay time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mockLLM = enabled
	c.mockLLMDelay = delay
}

func (c *RunControl) mockLLMState() (bool, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mockLLM, c.mockLLMDelay
}
