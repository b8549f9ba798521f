package events

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fwornle/kg-orchestrator/internal/ctxkeys"
	"github.com/fwornle/kg-orchestrator/internal/metrics"
	"github.com/fwornle/kg-orchestrator/orchestrator"
)

// RelayConfig tunes the heartbeat cadence.
type RelayConfig struct {
	HeartbeatInterval time.Duration
}

// DefaultRelayConfig returns sensible defaults.
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{HeartbeatInterval: 15 * time.Second}
}

// snapshot is the relay's last-seen view of one workflow, used to diff
// incoming WorkflowState transitions into concrete events and to source
// HEARTBEAT frames between transitions.
type snapshot struct {
	status     orchestrator.WorkflowStatus
	stepStatus map[string]orchestrator.StepStatus
}

// Relay observes an orchestrator.Orchestrator and turns every WorkflowState
// transition, substep walk, and preference change into an Event broadcast
// on a Hub (spec §4.5's contract: every transition produces exactly one
// event). Relay handles only this outbound direction; Commands are turned
// into Orchestrator method calls by the package-level Dispatch.
type Relay struct {
	hub     *Hub
	orch    *orchestrator.Orchestrator
	config  RelayConfig
	metrics *metrics.Collector
	logger  *zap.Logger

	mu        sync.Mutex
	snapshots map[string]*snapshot
	stop      chan struct{}
	stopOnce  sync.Once
}

// NewRelay constructs a Relay and subscribes it to orch's listener hooks.
// metricsCollector may be nil to disable metrics recording.
func NewRelay(hub *Hub, orch *orchestrator.Orchestrator, config RelayConfig, metricsCollector *metrics.Collector, logger *zap.Logger) *Relay {
	r := &Relay{
		hub:       hub,
		orch:      orch,
		config:    config,
		metrics:   metricsCollector,
		logger:    logger.With(zap.String("component", "events_relay")),
		snapshots: make(map[string]*snapshot),
		stop:      make(chan struct{}),
	}
	orch.OnStateChange(r.handleStateChange)
	orch.OnSubstep(r.handleSubstep)
	orch.OnPreferenceChange(r.handlePreferenceChange)
	go r.heartbeatLoop()
	return r
}

// Close stops the heartbeat loop. It does not close the underlying Hub.
func (r *Relay) Close() {
	r.stopOnce.Do(func() { close(r.stop) })
}

func (r *Relay) broadcast(workflowID string, ev Event) {
	ev.WorkflowID = workflowID
	ev.Timestamp = time.Now()
	ctx := ctxkeys.WithRunID(context.Background(), workflowID)
	r.hub.Broadcast(ctx, ev)
}

func (r *Relay) handleStateChange(state *orchestrator.WorkflowState) {
	r.mu.Lock()
	snap, known := r.snapshots[state.ID]
	if !known {
		snap = &snapshot{stepStatus: make(map[string]orchestrator.StepStatus)}
		r.snapshots[state.ID] = snap
	}
	prevStatus := snap.status
	r.mu.Unlock()

	if !known {
		r.broadcast(state.ID, Event{Type: WorkflowStarted, Status: string(state.Status)})
	}

	for name, step := range state.Steps {
		r.mu.Lock()
		prev, seen := snap.stepStatus[name]
		snap.stepStatus[name] = step.Status
		r.mu.Unlock()

		if seen && prev == step.Status {
			continue
		}
		switch step.Status {
		case orchestrator.StepRunning:
			r.broadcast(state.ID, Event{Type: StepStarted, StepName: name})
		case orchestrator.StepCompleted:
			r.broadcast(state.ID, Event{Type: StepCompleted, StepName: name, Confidence: step.Confidence})
			if r.metrics != nil {
				r.metrics.RecordAgentExecution(name, "step", "completed", step.CompletedAt.Sub(step.StartedAt))
			}
		case orchestrator.StepFailed:
			r.broadcast(state.ID, Event{Type: StepFailed, StepName: name, Issues: step.Issues})
			if r.metrics != nil {
				r.metrics.RecordAgentExecution(name, "step", "failed", step.CompletedAt.Sub(step.StartedAt))
			}
		}
	}

	if prevStatus != state.Status {
		r.mu.Lock()
		snap.status = state.Status
		r.mu.Unlock()

		switch state.Status {
		case orchestrator.WorkflowPaused:
			r.broadcast(state.ID, Event{Type: WorkflowPaused})
		case orchestrator.WorkflowRunning:
			if known && prevStatus == orchestrator.WorkflowPaused {
				r.broadcast(state.ID, Event{Type: WorkflowResumed})
			}
		case orchestrator.WorkflowCompleted:
			r.broadcast(state.ID, Event{Type: WorkflowCompleted, Status: string(state.Status)})
		case orchestrator.WorkflowFailed, orchestrator.WorkflowTerminated:
			r.broadcast(state.ID, Event{Type: WorkflowFailed, Status: string(state.Status), Reason: state.TerminationReason})
		}
	}
}

func (r *Relay) handleSubstep(workflowID, stepName, substepName string, completed bool) {
	if completed {
		r.broadcast(workflowID, Event{Type: SubstepCompleted, StepName: stepName, SubstepName: substepName})
		return
	}
	r.broadcast(workflowID, Event{Type: SubstepStarted, StepName: stepName, SubstepName: substepName})
}

func (r *Relay) handlePreferenceChange(workflowID string, preferences map[string]any) {
	r.broadcast(workflowID, Event{Type: PreferencesUpdated, Preferences: preferences})
}

// heartbeatLoop emits a HEARTBEAT for every workflow the relay has seen, on
// an interval, independent of whether that workflow is producing
// transitions right now (spec §4.5: heartbeats fire regardless).
func (r *Relay) heartbeatLoop() {
	ticker := time.NewTicker(r.config.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.mu.Lock()
			ids := make([]string, 0, len(r.snapshots))
			for id := range r.snapshots {
				ids = append(ids, id)
			}
			r.mu.Unlock()
			for _, id := range ids {
				r.broadcast(id, Event{Type: Heartbeat})
			}
		}
	}
}
