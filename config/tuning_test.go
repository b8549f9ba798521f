package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTuningCache_LoadOrchestratorTuning_CachesAcrossCalls(t *testing.T) {
	path := writeTemp(t, "orchestrator.yaml", `
max_retries: 5
retry_threshold: 0.7
max_concurrent_steps: 4
`)

	c := NewTuningCache()
	first, err := c.LoadOrchestratorTuning(path)
	require.NoError(t, err)
	require.Equal(t, 5, first.MaxRetries)
	require.Equal(t, 4, first.MaxConcurrentSteps)

	// Mutate the file on disk; cached value should not change until ClearCache.
	require.NoError(t, os.WriteFile(path, []byte("max_retries: 99\n"), 0644))

	second, err := c.LoadOrchestratorTuning(path)
	require.NoError(t, err)
	require.Equal(t, 5, second.MaxRetries, "expected cached value, not re-read from disk")

	c.ClearCache()

	third, err := c.LoadOrchestratorTuning(path)
	require.NoError(t, err)
	require.Equal(t, 99, third.MaxRetries, "expected fresh read after ClearCache")
}

func TestTuningCache_LoadAgentTuning(t *testing.T) {
	path := writeTemp(t, "agent-tuning.yaml", `
semantic_analyzer:
  mock_delay_millis: 250
insight_generator:
  mock_delay_millis: 100
`)

	c := NewTuningCache()
	tuning, err := c.LoadAgentTuning(path)
	require.NoError(t, err)
	require.Equal(t, 250, tuning["semantic_analyzer"].MockDelayMillis)
	require.Equal(t, 100, tuning["insight_generator"].MockDelayMillis)
}

func TestTuningCache_LoadWorkflowRunnerTuning(t *testing.T) {
	path := writeTemp(t, "workflow-runner.yaml", `
heartbeat_interval: 10s
single_step_default: true
mock_llm: true
mock_llm_delay_ms: 50
`)

	c := NewTuningCache()
	tuning, err := c.LoadWorkflowRunnerTuning(path)
	require.NoError(t, err)
	require.Equal(t, "10s", tuning.HeartbeatInterval)
	require.True(t, tuning.SingleStepDefault)
	require.True(t, tuning.MockLLM)
	require.Equal(t, 50, tuning.MockLLMDelayMs)
}
