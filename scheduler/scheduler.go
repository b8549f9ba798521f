package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler drives one repository+team's Plan through
// nextBatch/completeBatch/failBatch/resetFromBatch, persisting a checkpoint
// and a live progress snapshot after every transition (spec §4.3).
type Scheduler struct {
	checkpoints CheckpointStore
	progress    *ProgressWriter
	registry    *Registry
	lock        *Lock
	archiver    *Archiver // optional; nil disables archiving
	logger      *zap.Logger

	mu    sync.Mutex
	plans map[planKey]*Plan
}

type planKey struct {
	repository string
	team       string
}

// New constructs a Scheduler. archiver may be nil.
func New(checkpoints CheckpointStore, progress *ProgressWriter, registry *Registry, lock *Lock, archiver *Archiver, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		checkpoints: checkpoints,
		progress:    progress,
		registry:    registry,
		lock:        lock,
		archiver:    archiver,
		logger:      logger.With(zap.String("component", "scheduler")),
		plans:       make(map[planKey]*Plan),
	}
}

// PlanBatches builds a plan for (opts.Repository, opts.Team), serialized
// against concurrent orchestrator replicas via the redis lock and recorded
// in the sqlite registry so "exactly one plan active per (repository,
// team)" holds across process restarts too.
//
// If resumeFromCheckpoint is true, the stored checkpoint (if any) marks
// batches up to lastCompletedBatch as already completed.
func (s *Scheduler) PlanBatches(ctx context.Context, source CommitSource, opts PlanOptions, resumeFromCheckpoint bool) (*Plan, error) {
	token, ok, err := s.lock.TryAcquire(ctx, opts.Repository, opts.Team)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("scheduler: another replica is already planning %s/%s", opts.Repository, opts.Team)
	}
	defer s.lock.Release(ctx, opts.Repository, opts.Team, token)

	if resumeFromCheckpoint {
		cp, err := s.checkpoints.Load(opts.Repository, opts.Team)
		if err != nil {
			s.logger.Warn("checkpoint load failed, planning from scratch", zap.Error(err))
		} else {
			opts.ResumeFromCheckpoint = cp
		}
	}

	plan, err := BuildPlan(source, opts)
	if err != nil {
		s.logger.Error("commit acquisition failed, returning empty plan", zap.Error(err))
		return plan, err
	}

	if err := s.registry.Acquire(opts.Repository, opts.Team, plan.BatchSize); err != nil {
		if err != ErrPlanAlreadyActive {
			return nil, err
		}
		s.logger.Warn("plan already registered, reusing existing registration",
			zap.String("repository", opts.Repository), zap.String("team", opts.Team))
	}

	s.mu.Lock()
	s.plans[planKey{opts.Repository, opts.Team}] = plan
	s.mu.Unlock()

	s.writeProgress(plan)
	return plan, nil
}

// planFor returns the in-memory plan for (repository, team), or an error if
// none has been built via PlanBatches in this process.
func (s *Scheduler) planFor(repository, team string) (*Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	plan, ok := s.plans[planKey{repository, team}]
	if !ok {
		return nil, fmt.Errorf("scheduler: no plan loaded for %s/%s", repository, team)
	}
	return plan, nil
}

// NextBatch atomically picks the lowest-numbered pending batch and flips it
// to processing, persisting progress. Returns nil, nil if no batch is
// pending.
func (s *Scheduler) NextBatch(repository, team string) (*BatchWindow, error) {
	plan, err := s.planFor(repository, team)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := plan.NextPending()
	if next == nil {
		return nil, nil
	}
	next.Status = BatchProcessing
	s.writeProgressLocked(plan, next)
	return next, nil
}

// CompleteBatch marks a batch completed, appends it to the checkpoint file,
// and updates the progress snapshot. Checkpoint/progress persistence
// failures are logged, never returned as fatal (spec §4.3 Failure
// semantics): checkpoint and archive write errors are logged here and
// CompleteBatch returns nil for them. The batch's in-memory status
// transition always takes effect first. Only an unknown plan or batch ID
// is returned as an error.
func (s *Scheduler) CompleteBatch(ctx context.Context, repository, team, batchID string, stats BatchStats) error {
	plan, err := s.planFor(repository, team)
	if err != nil {
		return err
	}

	s.mu.Lock()
	window := plan.ByID(batchID)
	if window == nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler: unknown batch %q", batchID)
	}
	window.Status = BatchCompleted
	window.Stats = &stats
	s.writeProgressLocked(plan, nil)
	s.mu.Unlock()

	cp, err := s.checkpoints.Load(repository, team)
	if err != nil {
		s.logger.Warn("checkpoint load failed before append", zap.Error(err))
		cp = &Checkpoint{}
	}
	if window.Number > cp.LastCompletedBatch {
		cp.LastCompletedBatch = window.Number
	}
	cp.LastCompletedAt = time.Now()
	cp.CompletedBatches = append(cp.CompletedBatches, CompletedBatch{
		BatchID:     window.ID,
		CompletedAt: cp.LastCompletedAt,
		Stats:       window.Stats,
	})
	if err := s.checkpoints.Save(repository, team, cp); err != nil {
		s.logger.Warn("checkpoint save failed", zap.Error(err))
	}

	if s.archiver != nil {
		if err := s.archiver.Append(ctx, repository, team, *window); err != nil {
			s.logger.Warn("batch archive write failed", zap.Error(err))
		}
	}

	return nil
}

// FailBatch marks a batch failed with the given reason.
func (s *Scheduler) FailBatch(repository, team, batchID string, cause error) error {
	plan, err := s.planFor(repository, team)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	window := plan.ByID(batchID)
	if window == nil {
		return fmt.Errorf("scheduler: unknown batch %q", batchID)
	}
	window.Status = BatchFailed
	if cause != nil {
		window.FailedReason = cause.Error()
	}
	s.writeProgressLocked(plan, nil)
	return nil
}

// ResetFromBatch reverts every batch with number >= from back to pending,
// discards their stats, and rolls the checkpoint's lastCompletedBatch back
// to from-1.
func (s *Scheduler) ResetFromBatch(repository, team string, from int) error {
	plan, err := s.planFor(repository, team)
	if err != nil {
		return err
	}

	s.mu.Lock()
	for i := range plan.Batches {
		if plan.Batches[i].Number >= from {
			plan.Batches[i].Status = BatchPending
			plan.Batches[i].Stats = nil
			plan.Batches[i].FailedReason = ""
		}
	}
	s.writeProgressLocked(plan, nil)
	s.mu.Unlock()

	cp, err := s.checkpoints.Load(repository, team)
	if err != nil {
		s.logger.Warn("checkpoint load failed before reset", zap.Error(err))
		return nil
	}
	if cp.LastCompletedBatch >= from {
		cp.LastCompletedBatch = from - 1
	}
	kept := cp.CompletedBatches[:0]
	for _, cb := range cp.CompletedBatches {
		if window := plan.ByID(cb.BatchID); window == nil || window.Number < from {
			kept = append(kept, cb)
		}
	}
	cp.CompletedBatches = kept
	if err := s.checkpoints.Save(repository, team, cp); err != nil {
		s.logger.Warn("checkpoint save failed during reset", zap.Error(err))
	}
	return nil
}

// Release drops this (repository, team)'s registry row, allowing a future
// PlanBatches call to start a new plan for the same pair.
func (s *Scheduler) Release(repository, team string) error {
	s.mu.Lock()
	delete(s.plans, planKey{repository, team})
	s.mu.Unlock()
	return s.registry.Release(repository, team)
}

func (s *Scheduler) writeProgress(plan *Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeProgressLocked(plan, nil)
}

// writeProgressLocked must be called with s.mu held. current, if non-nil,
// overrides the current-batch lookup (used right after NextBatch flips a
// window, before the caller releases the lock).
func (s *Scheduler) writeProgressLocked(plan *Plan, current *BatchWindow) {
	completed := 0
	var accumulated BatchStats
	var currentInfo *CurrentBatchInfo

	for i := range plan.Batches {
		b := &plan.Batches[i]
		if b.Status == BatchCompleted {
			completed++
			if b.Stats != nil {
				accumulated.Add(*b.Stats)
			}
		}
		if b.Status == BatchProcessing && currentInfo == nil {
			currentInfo = &CurrentBatchInfo{
				ID: b.ID, Number: b.Number,
				ShortStartCommit: shortHash(b.StartCommit),
				ShortEndCommit:   shortHash(b.EndCommit),
				Status:           string(b.Status),
			}
		}
	}
	if current != nil {
		currentInfo = &CurrentBatchInfo{
			ID: current.ID, Number: current.Number,
			ShortStartCommit: shortHash(current.StartCommit),
			ShortEndCommit:   shortHash(current.EndCommit),
			Status:           string(current.Status),
		}
	}

	p := &Progress{
		Repository:       plan.Repository,
		Team:             plan.Team,
		CurrentBatch:     currentInfo,
		CompletedCount:   completed,
		TotalCount:       len(plan.Batches),
		AccumulatedStats: accumulated,
		OperatorStatus:   defaultOperators(),
	}
	if err := s.progress.Write(p); err != nil {
		s.logger.Warn("progress write failed", zap.Error(err))
	}
}
