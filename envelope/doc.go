// Package envelope defines the agent response contract shared by every
// agent in the knowledge-graph pipeline: a uniform (data, confidence,
// issues, routing) wrapper that lets the orchestrator reason about
// heterogeneous agents without knowing their concrete implementation.
//
// Nothing in this package talks to an agent directly — it is a passive
// data contract, consumed by agent.BaseAgent on the producing side and by
// orchestrator.Orchestrator on the consuming side.
package envelope
