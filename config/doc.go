/*
Package config manages the orchestrator's full configuration lifecycle:
multi-source loading, runtime hot reload, change auditing, and an HTTP
management API. Configuration merges in priority order:
defaults -> YAML file -> environment variables.

# Core types

  - Config: top-level aggregate covering Server, Orchestrator, Batch,
    Events, Redis, Database, Mongo, LLM, Log, and Telemetry.
  - Loader: builder-style loader for the file path, environment prefix,
    and custom validators.
  - AgentCatalog / WorkflowDefinition: the agents.yaml and
    workflows/<name>.yaml data model shared by the orchestrator, any
    dashboard, and any diagram generator (see LoadAgentCatalog,
    LoadWorkflowDefinition).
  - TuningCache: caches orchestrator.yaml, workflow-runner.yaml and
    agent-tuning.yaml until an explicit ClearCache.
  - HotReloadManager: file-watch driven hot reload with partial field
    updates, change callbacks, and a change history.
  - FileWatcher: poll-plus-debounce file change detector that triggers
    reload callbacks.
  - ConfigAPIHandler: HTTP endpoints for querying configuration,
    triggering hot reload, and inspecting change history.

# Capabilities

  - Multi-source loading: YAML file, environment variables (KGORCH_
    prefix by default), and defaults.
  - Hot reload: file-watch driven automatic reload plus manual API
    trigger, with field-level granularity.
  - Safe exposure: sensitive field masking, API keys accepted via the
    X-API-Key header or the api_key query parameter, CORS control.
  - Change auditing: an append-only change log; applying a full
    configuration trims it to the most recent 1000 entries. There is no version tracking and no
    rollback.
  - Validation: baseline checks plus custom ValidateFunc hooks; workflow
    definitions are validated against the agent catalog before being
    handed to the orchestrator.

# Example

	cfg, err := config.NewLoader().
		WithConfigPath("config.yaml").
		WithEnvPrefix("KGORCH").
		Load()
*/
package config
