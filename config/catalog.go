// =============================================================================
// 📦 Agent catalog and workflow definition loader
// =============================================================================
// The single source of truth shared by the orchestrator, any dashboard, and
// any diagram generator: agents.yaml (catalog + step mappings) and
// workflows/<name>.yaml (workflow metadata, global config, steps, edges).
// =============================================================================
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AgentCatalogEntry describes one agent as the dashboard needs to render it.
type AgentCatalogEntry struct {
	ID             string   `yaml:"id"`
	DisplayName    string   `yaml:"display_name"`
	Icon           string   `yaml:"icon"`
	Description    string   `yaml:"description"`
	UsesLLM        bool     `yaml:"uses_llm"`
	DefaultModel   string   `yaml:"default_model"`
	TechStack      []string `yaml:"tech_stack"`
	LifecyclePhase string   `yaml:"lifecycle_phase"`
	Row            int      `yaml:"row"`
	Col            int      `yaml:"col"`
}

// OrchestratorNode is the catalog's dedicated entry for the orchestrator
// itself, rendered alongside the agents it drives.
type OrchestratorNode struct {
	ID          string `yaml:"id"`
	DisplayName string `yaml:"display_name"`
	Icon        string `yaml:"icon"`
	Row         int    `yaml:"row"`
	Col         int    `yaml:"col"`
}

// AgentCatalog is the parsed form of agents.yaml.
type AgentCatalog struct {
	Orchestrator OrchestratorNode    `yaml:"orchestrator"`
	Agents       []AgentCatalogEntry `yaml:"agents"`
	StepMappings map[string]string  `yaml:"step_mappings"`
}

// HasAgent reports whether id names a declared agent or the orchestrator node.
func (c *AgentCatalog) HasAgent(id string) bool {
	if id == c.Orchestrator.ID {
		return true
	}
	for _, a := range c.Agents {
		if a.ID == id {
			return true
		}
	}
	return false
}

// LoadAgentCatalog parses agents.yaml from path.
func LoadAgentCatalog(path string) (*AgentCatalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agent catalog: %w", err)
	}
	var cat AgentCatalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse agent catalog: %w", err)
	}
	return &cat, nil
}

// WorkflowType distinguishes a straight-line run from one that loops over
// batches (spec §4.2: type ∈ {standard, iterative}).
type WorkflowType string

const (
	WorkflowStandard  WorkflowType = "standard"
	WorkflowIterative WorkflowType = "iterative"
)

// WorkflowMetadata is workflows/<name>.yaml's descriptive header.
type WorkflowMetadata struct {
	Name        string       `yaml:"name"`
	Version     string       `yaml:"version"`
	Description string       `yaml:"description"`
	Type        WorkflowType `yaml:"type"`
}

// WorkflowGlobalConfig is the workflow-wide portion of global config.
type WorkflowGlobalConfig struct {
	MaxConcurrentSteps int           `yaml:"max_concurrent_steps"`
	Timeout            time.Duration `yaml:"timeout"`
	QualityValidation  bool          `yaml:"quality_validation"`
}

// WorkflowStepSpec is one declared step.
type WorkflowStepSpec struct {
	Name      string        `yaml:"name"`
	AgentID   string        `yaml:"agent_id"`
	DependsOn []string      `yaml:"depends_on"`
	Timeout   time.Duration `yaml:"timeout"`
}

// VisualEdge is a dashboard edge between two catalog node ids (agent ids or
// the orchestrator node id), independent of step dependsOn edges.
type VisualEdge struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// WorkflowFile is the parsed form of workflows/<name>.yaml, before validation.
type WorkflowFile struct {
	Metadata WorkflowMetadata     `yaml:"metadata"`
	Global   WorkflowGlobalConfig `yaml:"global"`
	Steps    []WorkflowStepSpec   `yaml:"steps"`
	Edges    []VisualEdge         `yaml:"edges"`
}

// WorkflowDefinition is the validated form the orchestrator consumes.
// Loader code must never hand one back that failed validation.
type WorkflowDefinition struct {
	Metadata WorkflowMetadata
	Global   WorkflowGlobalConfig
	Steps    []WorkflowStepSpec
	Edges    []VisualEdge
}

// LoadWorkflowDefinition parses and validates workflows/<name>.yaml against
// catalog. Every step must reference a known agent id, every edge endpoint
// must be a known agent id, and every step dependency must name a declared
// step. Validation failures are returned as one aggregated error; a partial
// WorkflowDefinition is never returned (spec §4.2).
func LoadWorkflowDefinition(path string, catalog *AgentCatalog) (*WorkflowDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow file: %w", err)
	}
	var wf WorkflowFile
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("parse workflow file: %w", err)
	}

	if errs := validateWorkflowFile(&wf, catalog); len(errs) > 0 {
		return nil, fmt.Errorf("workflow definition invalid: %s", strings.Join(errs, "; "))
	}

	return &WorkflowDefinition{
		Metadata: wf.Metadata,
		Global:   wf.Global,
		Steps:    wf.Steps,
		Edges:    wf.Edges,
	}, nil
}

func validateWorkflowFile(wf *WorkflowFile, catalog *AgentCatalog) []string {
	var errs []string

	stepNames := make(map[string]bool, len(wf.Steps))
	for _, s := range wf.Steps {
		stepNames[s.Name] = true
	}

	for _, s := range wf.Steps {
		if !catalog.HasAgent(s.AgentID) {
			errs = append(errs, fmt.Sprintf("step %q references unknown agent id %q", s.Name, s.AgentID))
		}
		for _, dep := range s.DependsOn {
			if !stepNames[dep] {
				errs = append(errs, fmt.Sprintf("step %q depends on undeclared step %q", s.Name, dep))
			}
		}
	}

	for _, e := range wf.Edges {
		if !catalog.HasAgent(e.From) {
			errs = append(errs, fmt.Sprintf("edge references unknown agent id %q", e.From))
		}
		if !catalog.HasAgent(e.To) {
			errs = append(errs, fmt.Sprintf("edge references unknown agent id %q", e.To))
		}
	}

	return errs
}
