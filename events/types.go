// Package events implements the spec's observer protocol (spec §4.5): a
// closed set of tagged-union events describing WorkflowState transitions,
// a closed set of commands an observer may send back, and a relay that
// wires the two to an orchestrator.Orchestrator without that package ever
// importing this one.
package events

import (
	"fmt"
	"time"

	"github.com/fwornle/kg-orchestrator/envelope"
)

// Type is the closed set of outbound event tags. Anything outside this set
// fails the type guard in Validate.
type Type string

const (
	WorkflowStarted   Type = "WORKFLOW_STARTED"
	StepStarted       Type = "STEP_STARTED"
	StepCompleted     Type = "STEP_COMPLETED"
	StepFailed        Type = "STEP_FAILED"
	SubstepStarted    Type = "SUBSTEP_STARTED"
	SubstepCompleted  Type = "SUBSTEP_COMPLETED"
	BatchStarted      Type = "BATCH_STARTED"
	BatchCompleted    Type = "BATCH_COMPLETED"
	WorkflowPaused    Type = "WORKFLOW_PAUSED"
	WorkflowResumed   Type = "WORKFLOW_RESUMED"
	WorkflowCompleted Type = "WORKFLOW_COMPLETED"
	WorkflowFailed    Type = "WORKFLOW_FAILED"
	PreferencesUpdated Type = "PREFERENCES_UPDATED"
	Heartbeat         Type = "HEARTBEAT"
)

var validTypes = map[Type]bool{
	WorkflowStarted: true, StepStarted: true, StepCompleted: true, StepFailed: true,
	SubstepStarted: true, SubstepCompleted: true, BatchStarted: true, BatchCompleted: true,
	WorkflowPaused: true, WorkflowResumed: true, WorkflowCompleted: true, WorkflowFailed: true,
	PreferencesUpdated: true, Heartbeat: true,
}

// Event is the flat tagged union every observer receives. Fields irrelevant
// to Type are left zero; consumers switch on Type, never on which optional
// fields are populated.
type Event struct {
	Type        Type                `json:"type"`
	WorkflowID  string              `json:"workflowId"`
	Timestamp   time.Time           `json:"timestamp"`
	StepName    string              `json:"stepName,omitempty"`
	SubstepName string              `json:"substepName,omitempty"`
	BatchIndex  int                 `json:"batchIndex,omitempty"`
	BatchTotal  int                 `json:"batchTotal,omitempty"`
	Status      string              `json:"status,omitempty"`
	Confidence  float64             `json:"confidence,omitempty"`
	Reason      string              `json:"reason,omitempty"`
	Issues      []envelope.AgentIssue `json:"issues,omitempty"`
	Preferences map[string]any      `json:"preferences,omitempty"`
}

// Validate rejects an Event whose Type falls outside the closed set (the
// type guard the relay and transport both apply before a frame is trusted).
func (e Event) Validate() error {
	if !validTypes[e.Type] {
		return fmt.Errorf("events: unknown event type %q", e.Type)
	}
	if e.WorkflowID == "" {
		return fmt.Errorf("events: event %q missing workflowId", e.Type)
	}
	return nil
}
