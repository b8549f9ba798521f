package scheduler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CompletedBatch is one entry in a Checkpoint's completed-batches log.
type CompletedBatch struct {
	BatchID     string      `json:"batchId"`
	CompletedAt time.Time   `json:"completedAt"`
	Stats       *BatchStats `json:"stats,omitempty"`
}

// Checkpoint is the on-disk shape of batch-checkpoints.json (spec §6):
// lastCompletedBatch, lastCompletedAt, completedBatches[], lastUpdated.
type Checkpoint struct {
	LastCompletedBatch int              `json:"lastCompletedBatch"`
	LastCompletedAt    time.Time        `json:"lastCompletedAt"`
	CompletedBatches   []CompletedBatch `json:"completedBatches"`
	LastUpdated        time.Time        `json:"lastUpdated"`
}

// CheckpointStore persists and loads a single repository+team's Checkpoint.
// Writes are best-effort: a failure is logged by the caller and never
// aborts a batch transition (spec §4.3 Failure semantics).
type CheckpointStore interface {
	Load(repository, team string) (*Checkpoint, error) // returns a zero-value Checkpoint, no error, if none exists yet
	Save(repository, team string, cp *Checkpoint) error
}

// FileCheckpointStore writes one checkpoint file per (repository, team)
// under baseDir, atomically (temp file + rename) so a reader never observes
// a half-written file.
type FileCheckpointStore struct {
	baseDir string
	logger  *zap.Logger
	mu      sync.Mutex
}

// NewFileCheckpointStore creates the checkpoint directory if needed.
func NewFileCheckpointStore(baseDir string, logger *zap.Logger) (*FileCheckpointStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create checkpoint directory: %w", err)
	}
	return &FileCheckpointStore{
		baseDir: baseDir,
		logger:  logger.With(zap.String("component", "checkpoint_store")),
	}, nil
}

func (s *FileCheckpointStore) path(repository, team string) string {
	return filepath.Join(s.baseDir, checkpointFileName(repository, team))
}

func checkpointFileName(repository, team string) string {
	return fmt.Sprintf("%s__%s-batch-checkpoints.json", sanitizeKey(repository), sanitizeKey(team))
}

// Load returns the stored checkpoint, or a zero-value one if no checkpoint
// file exists yet (a fresh plan has nothing to resume from).
func (s *FileCheckpointStore) Load(repository, team string) (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(repository, team))
	if os.IsNotExist(err) {
		return &Checkpoint{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parse checkpoint: %w", err)
	}
	return &cp, nil
}

// Save atomically overwrites the checkpoint file for (repository, team).
func (s *FileCheckpointStore) Save(repository, team string, cp *Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp.LastUpdated = time.Now()

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	dest := s.path(repository, team)
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write checkpoint temp file: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("rename checkpoint file: %w", err)
	}

	s.logger.Debug("checkpoint saved",
		zap.String("repository", repository),
		zap.String("team", team),
		zap.Int("last_completed_batch", cp.LastCompletedBatch),
	)
	return nil
}

// sanitizeKey replaces path separators so a repository/team pair can be
// embedded in a single file name.
func sanitizeKey(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch r {
		case '/', '\\', ' ':
			out = append(out, '-')
		default:
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return "default"
	}
	return string(out)
}
