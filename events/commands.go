package events

import (
	"fmt"
	"time"
)

// CommandType is the closed set of inbound commands an observer may send.
type CommandType string

const (
	StepAdvance         CommandType = "STEP_ADVANCE"
	StepInto            CommandType = "STEP_INTO"
	SetSingleStepMode   CommandType = "SET_SINGLE_STEP_MODE"
	SetStepIntoSubsteps CommandType = "SET_STEP_INTO_SUBSTEPS"
	SetMockLLM          CommandType = "SET_MOCK_LLM"
	CancelWorkflow      CommandType = "CANCEL_WORKFLOW"
	PauseWorkflow       CommandType = "PAUSE_WORKFLOW"
	ResumeWorkflow      CommandType = "RESUME_WORKFLOW"
)

var validCommands = map[CommandType]bool{
	StepAdvance: true, StepInto: true, SetSingleStepMode: true, SetStepIntoSubsteps: true,
	SetMockLLM: true, CancelWorkflow: true, PauseWorkflow: true, ResumeWorkflow: true,
}

// authRequired lists the commands spec §4.5 gates behind an authenticated
// observer. Everything else is readable/drivable without a bearer token.
var authRequired = map[CommandType]bool{
	CancelWorkflow: true,
	SetMockLLM:     true,
}

// Command is the flat shape every inbound JSON frame decodes into.
type Command struct {
	Type       CommandType    `json:"type"`
	WorkflowID string         `json:"workflowId"`
	Enabled    bool           `json:"enabled,omitempty"`
	Delay      *time.Duration `json:"delay,omitempty"`
	Reason     string         `json:"reason,omitempty"`
}

// Validate rejects a Command whose Type falls outside the closed set (the
// command-side type guard).
func (c Command) Validate() error {
	if !validCommands[c.Type] {
		return fmt.Errorf("events: unknown command type %q", c.Type)
	}
	if c.WorkflowID == "" {
		return fmt.Errorf("events: command %q missing workflowId", c.Type)
	}
	return nil
}

// RequiresAuth reports whether c may only be dispatched on behalf of an
// authenticated observer.
func (c Command) RequiresAuth() bool {
	return authRequired[c.Type]
}
