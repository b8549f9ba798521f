package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrPlanAlreadyActive is returned by Registry.Acquire when another plan is
// already registered for the same (repository, team) pair.
var ErrPlanAlreadyActive = errors.New("scheduler: a plan is already active for this repository and team")

// activePlanRow is the gorm model backing the single-row-per-(repository,
// team) registry that enforces "exactly one plan active per (repository,
// team)" (spec §3 Invariant) independent of process restarts.
type activePlanRow struct {
	ID         uint `gorm:"primaryKey"`
	Repository string `gorm:"uniqueIndex:idx_repo_team"`
	Team       string `gorm:"uniqueIndex:idx_repo_team"`
	BatchSize  int
	CreatedAt  time.Time
}

func (activePlanRow) TableName() string { return "scheduler_active_plans" }

// Registry is a gorm-backed single-row-per-(repository,team) table
// enforcing the one-active-plan invariant across process restarts.
type Registry struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewRegistry auto-migrates the registry table and returns a Registry.
func NewRegistry(db *gorm.DB, logger *zap.Logger) (*Registry, error) {
	if err := db.AutoMigrate(&activePlanRow{}); err != nil {
		return nil, fmt.Errorf("migrate scheduler registry: %w", err)
	}
	return &Registry{db: db, logger: logger.With(zap.String("component", "plan_registry"))}, nil
}

// Acquire registers (repository, team) as having an active plan. Returns
// ErrPlanAlreadyActive if one is already registered.
func (r *Registry) Acquire(repository, team string, batchSize int) error {
	row := activePlanRow{Repository: repository, Team: team, BatchSize: batchSize, CreatedAt: time.Now()}
	err := r.db.Create(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueConstraintErr(err) {
			return ErrPlanAlreadyActive
		}
		return fmt.Errorf("acquire plan registry row: %w", err)
	}
	return nil
}

// Release removes the (repository, team) row, allowing a new plan to be
// acquired for the same pair.
func (r *Registry) Release(repository, team string) error {
	return r.db.Where("repository = ? AND team = ?", repository, team).Delete(&activePlanRow{}).Error
}

// IsActive reports whether (repository, team) currently has a registered
// plan.
func (r *Registry) IsActive(repository, team string) (bool, error) {
	var count int64
	err := r.db.Model(&activePlanRow{}).Where("repository = ? AND team = ?", repository, team).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check plan registry: %w", err)
	}
	return count > 0, nil
}

// isUniqueConstraintErr matches the sqlite/postgres/mysql driver error text
// for a unique-constraint violation, since gorm does not normalize this
// across dialects the way it does ErrDuplicatedKey for some drivers.
func isUniqueConstraintErr(err error) bool {
	msg := err.Error()
	for _, sub := range []string{"UNIQUE constraint failed", "duplicate key value", "Duplicate entry"} {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}
