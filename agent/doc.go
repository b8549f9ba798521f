// Package agent provides the base agent template every concrete agent in
// the knowledge-graph pipeline embeds or adapts into. It enforces the
// six-phase envelope contract from spec §4.1 — process, confidence,
// issue detection, routing suggestions, corrections, metadata assembly —
// so that a concrete agent (git reader, conversation reader, semantic
// analyzer, ontology classifier, deduplicator, persistence writer — all
// external collaborators to this core) need only implement Process and
// never has to hand-assemble an envelope.
//
// Agents are registered by id in a Registry the orchestrator consults by
// name; agents hold no pointer back into orchestrator state, breaking the
// cyclic reference design notes §9 calls out.
package agent
