package events

import (
	"fmt"
	"time"

	"github.com/fwornle/kg-orchestrator/orchestrator"
)

// Dispatch translates a validated Command into the matching Orchestrator
// call. Callers are expected to have already run Command.Validate and, for
// commands RequiresAuth reports true, Authenticator.Authorize.
func Dispatch(orch *orchestrator.Orchestrator, cmd Command) error {
	switch cmd.Type {
	case StepAdvance:
		return orch.Advance(cmd.WorkflowID)
	case StepInto:
		return orch.StepInto(cmd.WorkflowID)
	case SetSingleStepMode:
		return orch.SetSingleStepMode(cmd.WorkflowID, cmd.Enabled)
	case SetStepIntoSubsteps:
		return orch.SetStepIntoSubsteps(cmd.WorkflowID, cmd.Enabled)
	case SetMockLLM:
		delay := time.Duration(0)
		if cmd.Delay != nil {
			delay = *cmd.Delay
		}
		return orch.SetMockLLM(cmd.WorkflowID, cmd.Enabled, delay)
	case CancelWorkflow:
		return orch.Cancel(cmd.WorkflowID, cmd.Reason)
	case PauseWorkflow:
		return orch.Pause(cmd.WorkflowID)
	case ResumeWorkflow:
		return orch.Resume(cmd.WorkflowID)
	default:
		return fmt.Errorf("events: no dispatch rule for command type %q", cmd.Type)
	}
}
