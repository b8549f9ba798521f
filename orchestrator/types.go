// Package orchestrator owns one workflow run: it tracks per-step state,
// executes ready steps subject to a concurrency cap, decides which steps run
// next (rule-based with optional LLM assist), interprets each envelope to
// pick a next action, and builds semantically-guided retry parameters
// (smartRetry). RunWorkflow re-runs a retried step with its original
// parameters; it does not call smartRetry.
package orchestrator

import (
	"time"

	"github.com/fwornle/kg-orchestrator/envelope"
)

// StepStatus is the lifecycle state of one step within a WorkflowState.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
	StepRetrying  StepStatus = "retrying"
)

// WorkflowStatus is the overall status of a workflow run.
type WorkflowStatus string

const (
	WorkflowRunning    WorkflowStatus = "running"
	WorkflowPaused     WorkflowStatus = "paused"
	WorkflowCompleted  WorkflowStatus = "completed"
	WorkflowFailed     WorkflowStatus = "failed"
	WorkflowTerminated WorkflowStatus = "terminated"
)

// StepPhase groups a step within a run for display/ordering purposes.
type StepPhase string

const (
	PhaseInitialization StepPhase = "initialization"
	PhaseBatch          StepPhase = "batch"
	PhaseFinalization   StepPhase = "finalization"
)

// StepTier names the cost/quality tier a step runs at.
type StepTier string

const (
	TierFast     StepTier = "fast"
	TierStandard StepTier = "standard"
	TierPremium  StepTier = "premium"
)

// StepDefinition is one step of a WorkflowDefinition.
type StepDefinition struct {
	Name         string
	AgentID      string
	Action       string
	Parameters   map[string]any
	Dependencies []string
	Timeout      time.Duration
	Condition    string
	Phase        StepPhase
	Tier         StepTier
	Substeps     []StepDefinition
}

// WorkflowDefinition is the immutable-for-the-run shape loaded from YAML
// (spec §4.2's loader produces this).
type WorkflowDefinition struct {
	Name        string
	Version     string
	Description string
	Type        string // "standard" | "iterative"
	Steps       []StepDefinition
}

// StepByName returns the step definition with the given name, or nil.
func (d *WorkflowDefinition) StepByName(name string) *StepDefinition {
	for i := range d.Steps {
		if d.Steps[i].Name == name {
			return &d.Steps[i]
		}
	}
	return nil
}

// StepResult is the per-step state kept in a WorkflowState, keyed by step
// name.
type StepResult struct {
	StepName    string
	Status      StepStatus
	Payload     any
	Envelope    *envelope.AgentResponse
	Confidence  float64
	Issues      []envelope.AgentIssue
	RetryCount  int
	StartedAt   time.Time
	CompletedAt time.Time
	Routing     *RoutingDecision
}

// ModificationKind names the kind of mutation a WorkflowState underwent.
type ModificationKind string

const (
	ModSkip    ModificationKind = "skip"
	ModAdd     ModificationKind = "add"
	ModReorder ModificationKind = "reorder"
	ModRetry   ModificationKind = "retry"
)

// WorkflowModification is one entry in WorkflowState's modification log.
type WorkflowModification struct {
	Kind      ModificationKind
	StepName  string
	Source    string // the step name, LLM decision, or "orchestrator" that triggered this
	Reason    string
	Timestamp time.Time
}

// RetryHistoryEntry tracks one step's accumulated retry trajectory.
type RetryHistoryEntry struct {
	Count                  int
	LastReason             string
	ConfidenceProgression  []float64
	AccumulatedIssues      []envelope.AgentIssue
}

// RoutingAction is the decision interpretResult or decideNextSteps reaches.
type RoutingAction string

const (
	ActionProceed        RoutingAction = "proceed"
	ActionRetry          RoutingAction = "retry"
	ActionSkipDownstream RoutingAction = "skip_downstream"
	ActionEscalate       RoutingAction = "escalate"
	ActionTerminate      RoutingAction = "terminate"
)

// RoutingDecision is appended to WorkflowState's routing history; entries
// are never rewritten once appended.
type RoutingDecision struct {
	Action        RoutingAction
	AffectedSteps []string
	Reason        string
	RetryGuidance *RetryGuidance
	Confidence    float64
	LLMAssisted   bool
	Timestamp     time.Time
}

// WorkflowState is the orchestrator's mutable record of one workflow run. It
// is owned exclusively by the Orchestrator instance that created it; agents
// never mutate it directly.
type WorkflowState struct {
	ID                string
	Name              string
	StartTime         time.Time
	Status            WorkflowStatus
	Steps             map[string]*StepResult
	RoutingHistory    []RoutingDecision
	Modifications     []WorkflowModification
	RetryHistory      map[string]*RetryHistoryEntry
	SkippedSteps      map[string]bool
	AddedSteps        []StepDefinition
	TerminationReason string
}

// NewWorkflowState creates an empty WorkflowState for a new run
// (initializeWorkflow in spec terms).
func NewWorkflowState(id, name string) *WorkflowState {
	return &WorkflowState{
		ID:           id,
		Name:         name,
		StartTime:    time.Now(),
		Status:       WorkflowRunning,
		Steps:        make(map[string]*StepResult),
		RetryHistory: make(map[string]*RetryHistoryEntry),
		SkippedSteps: make(map[string]bool),
	}
}

// Config holds the orchestrator's tunables (spec §4.4 Initialization
// defaults).
type Config struct {
	MaxRetries         int
	RetryThreshold     float64
	SkipThreshold      float64
	UseLLMRouting      bool
	MaxConcurrentSteps int
	DefaultStepTimeout time.Duration
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:         3,
		RetryThreshold:     0.5,
		SkipThreshold:      0.3,
		UseLLMRouting:      true,
		MaxConcurrentSteps: 3,
		DefaultStepTimeout: 120 * time.Second,
	}
}
