// =============================================================================
// 📦 Tuning config cache
// =============================================================================
// orchestrator.yaml, workflow-runner.yaml and agent-tuning.yaml are read
// through the same YAML mechanism as the main Config, but cached per path
// until an explicit ClearCache (spec §4.2).
// =============================================================================
package config

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// AgentTuning carries per-agent knobs read from agent-tuning.yaml, keyed by
// agent id.
type AgentTuning struct {
	RetryThreshold   *float64      `yaml:"retry_threshold"`
	BlockingThreshold *float64     `yaml:"blocking_threshold"`
	MockDelayMillis  int           `yaml:"mock_delay_millis"`
	Extra            map[string]any `yaml:"extra"`
}

// WorkflowRunnerTuning carries the runner-level knobs read from
// workflow-runner.yaml.
type WorkflowRunnerTuning struct {
	HeartbeatInterval string `yaml:"heartbeat_interval"`
	SingleStepDefault bool   `yaml:"single_step_default"`
	MockLLM           bool   `yaml:"mock_llm"`
	MockLLMDelayMs    int    `yaml:"mock_llm_delay_ms"`
}

// TuningCache loads and caches the three tuning config files by path. A
// Loader's OrchestratorConfig remains the process-wide defaults; TuningCache
// is for the per-file knobs the dashboard and orchestrator both poll, which
// must not re-parse YAML on every read.
type TuningCache struct {
	mu               sync.RWMutex
	orchestrator     map[string]OrchestratorConfig
	workflowRunner   map[string]WorkflowRunnerTuning
	agentTuning      map[string]map[string]AgentTuning
}

// NewTuningCache creates an empty cache.
func NewTuningCache() *TuningCache {
	return &TuningCache{
		orchestrator:   make(map[string]OrchestratorConfig),
		workflowRunner: make(map[string]WorkflowRunnerTuning),
		agentTuning:    make(map[string]map[string]AgentTuning),
	}
}

// LoadOrchestratorTuning returns the cached OrchestratorConfig for path,
// parsing orchestrator.yaml on first access.
func (c *TuningCache) LoadOrchestratorTuning(path string) (OrchestratorConfig, error) {
	c.mu.RLock()
	if v, ok := c.orchestrator[path]; ok {
		c.mu.RUnlock()
		return v, nil
	}
	c.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return OrchestratorConfig{}, fmt.Errorf("read orchestrator tuning: %w", err)
	}
	cfg := DefaultOrchestratorConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return OrchestratorConfig{}, fmt.Errorf("parse orchestrator tuning: %w", err)
	}

	c.mu.Lock()
	c.orchestrator[path] = cfg
	c.mu.Unlock()
	return cfg, nil
}

// LoadWorkflowRunnerTuning returns the cached tuning for path, parsing
// workflow-runner.yaml on first access.
func (c *TuningCache) LoadWorkflowRunnerTuning(path string) (WorkflowRunnerTuning, error) {
	c.mu.RLock()
	if v, ok := c.workflowRunner[path]; ok {
		c.mu.RUnlock()
		return v, nil
	}
	c.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return WorkflowRunnerTuning{}, fmt.Errorf("read workflow runner tuning: %w", err)
	}
	var cfg WorkflowRunnerTuning
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return WorkflowRunnerTuning{}, fmt.Errorf("parse workflow runner tuning: %w", err)
	}

	c.mu.Lock()
	c.workflowRunner[path] = cfg
	c.mu.Unlock()
	return cfg, nil
}

// LoadAgentTuning returns the cached per-agent-id tuning map for path,
// parsing agent-tuning.yaml on first access.
func (c *TuningCache) LoadAgentTuning(path string) (map[string]AgentTuning, error) {
	c.mu.RLock()
	if v, ok := c.agentTuning[path]; ok {
		c.mu.RUnlock()
		return v, nil
	}
	c.mu.RUnlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agent tuning: %w", err)
	}
	var cfg map[string]AgentTuning
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse agent tuning: %w", err)
	}

	c.mu.Lock()
	c.agentTuning[path] = cfg
	c.mu.Unlock()
	return cfg, nil
}

// ClearCache discards every cached tuning file, forcing the next Load* call
// to re-read from disk.
func (c *TuningCache) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orchestrator = make(map[string]OrchestratorConfig)
	c.workflowRunner = make(map[string]WorkflowRunnerTuning)
	c.agentTuning = make(map[string]map[string]AgentTuning)
}
