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

// CurrentBatchInfo is the current-batch summary published in a progress
// snapshot, with commit hashes shortened for display.
type CurrentBatchInfo struct {
	ID               string `json:"id"`
	Number           int    `json:"number"`
	ShortStartCommit string `json:"shortStartCommit"`
	ShortEndCommit   string `json:"shortEndCommit"`
	Status           string `json:"status"`
}

// Progress is the live batch-progress.json snapshot read by the dashboard
// (spec §4.3, §6). It is eventually consistent and best-effort: a write
// failure is logged, never fatal.
type Progress struct {
	Repository       string                    `json:"repository"`
	Team             string                    `json:"team"`
	CurrentBatch     *CurrentBatchInfo         `json:"currentBatch,omitempty"`
	CompletedCount   int                       `json:"completedCount"`
	TotalCount       int                       `json:"totalCount"`
	PercentComplete  float64                   `json:"percentComplete"`
	AccumulatedStats BatchStats                `json:"accumulatedStats"`
	OperatorStatus   map[string]OperatorStatus `json:"operatorStatus"`
	LastUpdated      time.Time                 `json:"lastUpdated"`
}

// defaultOperators seeds the progress snapshot's operator map with the
// operators named in spec §4.3; callers may add further keys since the map
// is intentionally open-ended (spec §10 Open Question).
func defaultOperators() map[string]OperatorStatus {
	return map[string]OperatorStatus{
		"conv":  OperatorPending,
		"aggr":  OperatorPending,
		"embed": OperatorPending,
		"dedup": OperatorPending,
		"pred":  OperatorPending,
		"merge": OperatorPending,
	}
}

// ProgressWriter overwrites a single progress file after every plan state
// change.
type ProgressWriter struct {
	baseDir string
	logger  *zap.Logger
	mu      sync.Mutex
}

// NewProgressWriter creates the progress directory if needed.
func NewProgressWriter(baseDir string, logger *zap.Logger) (*ProgressWriter, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create progress directory: %w", err)
	}
	return &ProgressWriter{
		baseDir: baseDir,
		logger:  logger.With(zap.String("component", "progress_writer")),
	}, nil
}

func (w *ProgressWriter) path(repository, team string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s__%s-batch-progress.json", sanitizeKey(repository), sanitizeKey(team)))
}

// Write overwrites the progress file. Failure is logged and swallowed by
// the caller via the returned error; the scheduler never treats a progress
// write failure as fatal to a batch transition.
func (w *ProgressWriter) Write(p *Progress) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	p.LastUpdated = time.Now()
	if p.TotalCount > 0 {
		p.PercentComplete = 100 * float64(p.CompletedCount) / float64(p.TotalCount)
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}

	dest := w.path(p.Repository, p.Team)
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write progress temp file: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("rename progress file: %w", err)
	}
	return nil
}

// shortHash truncates a commit hash for display, matching git's
// conventional 7-character abbreviation.
func shortHash(hash string) string {
	if len(hash) <= 7 {
		return hash
	}
	return hash[:7]
}
