// Package scheduler divides a repository's commit history into chronological
// fixed-size batches, persists the resulting plan with checkpoints, and
// exposes the nextBatch/completeBatch/failBatch/resetFromBatch surface the
// orchestrator drives one batch at a time (spec §4.3).
package scheduler

import (
	"fmt"
	"time"
)

// BatchStatus is the lifecycle state of a BatchWindow. Transitions are
// monotonic (pending -> processing -> completed|failed) except for an
// explicit ResetFromBatch, which reverts a range back to pending.
type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
)

// OperatorStatus is the per-operator sub-status published in the progress
// snapshot. The set of operator keys is intentionally an open string map
// (spec §10 Open Question) so later operators don't require a schema change.
type OperatorStatus string

const (
	OperatorPending   OperatorStatus = "pending"
	OperatorRunning   OperatorStatus = "running"
	OperatorCompleted OperatorStatus = "completed"
	OperatorFailed    OperatorStatus = "failed"
)

// BatchStats is attached to a BatchWindow on completion.
type BatchStats struct {
	Commits          int            `json:"commits"`
	Sessions         int            `json:"sessions"`
	TokensUsed       int            `json:"tokens_used"`
	EntitiesCreated  int            `json:"entities_created"`
	EntitiesUpdated  int            `json:"entities_updated"`
	RelationsAdded   int            `json:"relations_added"`
	OperatorStats    map[string]any `json:"operator_stats,omitempty"`
	DurationMs       int64          `json:"duration_ms"`
}

// Add accumulates another batch's counters (commits, sessions, tokens,
// entities created/updated, relations) into the receiver, used to build
// the plan's running total for the progress snapshot. DurationMs and
// OperatorStats are not summed.
func (s *BatchStats) Add(other BatchStats) {
	s.Commits += other.Commits
	s.Sessions += other.Sessions
	s.TokensUsed += other.TokensUsed
	s.EntitiesCreated += other.EntitiesCreated
	s.EntitiesUpdated += other.EntitiesUpdated
	s.RelationsAdded += other.RelationsAdded
}

// BatchWindow is a contiguous, chronologically-ordered slice of commit
// history of fixed count — the scheduler's unit of work.
type BatchWindow struct {
	ID           string      `json:"id"` // "batch-NNN"
	Number       int         `json:"number"`
	StartCommit  string      `json:"start_commit"`
	EndCommit    string      `json:"end_commit"`
	StartDate    time.Time   `json:"start_date"`
	EndDate      time.Time   `json:"end_date"`
	CommitCount  int         `json:"commit_count"`
	Status       BatchStatus `json:"status"`
	Stats        *BatchStats `json:"stats,omitempty"`
	FailedReason string      `json:"failed_reason,omitempty"`
}

// batchID formats the 1-based batch number into the "batch-NNN" id spec'd
// for BatchWindow.ID.
func batchID(number int) string {
	return fmt.Sprintf("batch-%03d", number)
}

// Plan is the full chronological slicing of one repository's commit history
// for one (repository, team) pair. Exactly one plan is active per
// (repository, team) — enforced by Registry, not by Plan itself.
type Plan struct {
	Repository string        `json:"repository"`
	Team       string        `json:"team"`
	BatchSize  int           `json:"batch_size"`
	Batches    []BatchWindow `json:"batches"`
}

// NextPending returns the lowest-numbered pending batch, or nil if none
// remain.
func (p *Plan) NextPending() *BatchWindow {
	for i := range p.Batches {
		if p.Batches[i].Status == BatchPending {
			return &p.Batches[i]
		}
	}
	return nil
}

// ByNumber returns the batch with the given 1-based number, or nil.
func (p *Plan) ByNumber(number int) *BatchWindow {
	for i := range p.Batches {
		if p.Batches[i].Number == number {
			return &p.Batches[i]
		}
	}
	return nil
}

// ByID returns the batch with the given id, or nil.
func (p *Plan) ByID(id string) *BatchWindow {
	for i := range p.Batches {
		if p.Batches[i].ID == id {
			return &p.Batches[i]
		}
	}
	return nil
}

// Commit is the minimal shape the scheduler needs from a repository's
// commit history. Reading the repository itself is out of scope here — the
// concrete VCS reader is specified only by its envelope contract (spec §2
// Non-goals) — CommitSource is the seam a caller plugs that reader into.
type Commit struct {
	Hash      string
	Timestamp time.Time
}

// CommitSource supplies commits oldest-first for a repository path. A
// caller backs this with whatever git-reading agent or library it already
// has; the scheduler only ever slices the result into windows.
type CommitSource interface {
	Commits(repoPath string) ([]Commit, error)
}

// PlanOptions configures BuildPlan.
type PlanOptions struct {
	RepoPath             string
	Repository           string // logical repository identifier for the plan/registry key
	Team                 string
	BatchSize            int  // falls back to DefaultBatchCommitCount when <= 0
	MaxBatches           int  // caps the number of *pending* batches produced; 0 = unbounded
	FromCommit           string
	ResumeFromCheckpoint *Checkpoint // batches with Number <= LastCompletedBatch are marked completed
}

// DefaultBatchCommitCount is BATCH_COMMIT_COUNT's documented default.
const DefaultBatchCommitCount = 50

// BuildPlan slices a repository's commit history into contiguous,
// chronologically-ordered BatchWindows (spec §4.3 Planning).
//
// Commit-acquisition failure returns an empty plan and the error, logged by
// the caller — never a partial plan (spec §4.3 Failure semantics).
func BuildPlan(source CommitSource, opts PlanOptions) (*Plan, error) {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchCommitCount
	}

	commits, err := source.Commits(opts.RepoPath)
	if err != nil {
		return &Plan{Repository: opts.Repository, Team: opts.Team, BatchSize: batchSize}, fmt.Errorf("acquire commits: %w", err)
	}

	if opts.FromCommit != "" {
		commits = commitsFrom(commits, opts.FromCommit)
	}

	plan := &Plan{Repository: opts.Repository, Team: opts.Team, BatchSize: batchSize}

	lastCompleted := 0
	if opts.ResumeFromCheckpoint != nil {
		lastCompleted = opts.ResumeFromCheckpoint.LastCompletedBatch
	}

	number := 0
	pendingProduced := 0
	for start := 0; start < len(commits); start += batchSize {
		end := start + batchSize
		if end > len(commits) {
			end = len(commits)
		}
		number++

		status := BatchPending
		if number <= lastCompleted {
			status = BatchCompleted
		} else {
			if opts.MaxBatches > 0 && pendingProduced >= opts.MaxBatches {
				break
			}
			pendingProduced++
		}

		window := BatchWindow{
			ID:          batchID(number),
			Number:      number,
			StartCommit: commits[start].Hash,
			EndCommit:   commits[end-1].Hash,
			StartDate:   commits[start].Timestamp,
			EndDate:     commits[end-1].Timestamp,
			CommitCount: end - start,
			Status:      status,
		}
		plan.Batches = append(plan.Batches, window)
	}

	return plan, nil
}

// commitsFrom drops every commit strictly before hash, keeping chronological
// (oldest-first) order of the remainder. If hash isn't found, the slice is
// returned unchanged.
func commitsFrom(commits []Commit, hash string) []Commit {
	for i, c := range commits {
		if c.Hash == hash {
			return commits[i:]
		}
	}
	return commits
}
