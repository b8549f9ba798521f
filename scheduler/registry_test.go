package scheduler

import (
	"testing"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	registry, err := NewRegistry(db, zap.NewNop())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return registry
}

func TestRegistry_AcquireThenIsActive(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Acquire("repo", "team", 50); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	active, err := r.IsActive("repo", "team")
	if err != nil {
		t.Fatalf("IsActive: %v", err)
	}
	if !active {
		t.Fatal("expected plan to be active after Acquire")
	}
}

func TestRegistry_AcquireTwiceReturnsErrPlanAlreadyActive(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Acquire("repo", "team", 50); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	err := r.Acquire("repo", "team", 50)
	if err != ErrPlanAlreadyActive {
		t.Fatalf("expected ErrPlanAlreadyActive, got %v", err)
	}
}

func TestRegistry_DifferentTeamsCanCoexist(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Acquire("repo", "team-a", 50); err != nil {
		t.Fatalf("Acquire team-a: %v", err)
	}
	if err := r.Acquire("repo", "team-b", 50); err != nil {
		t.Fatalf("Acquire team-b should succeed for a different team: %v", err)
	}
}

func TestRegistry_ReleaseAllowsReacquire(t *testing.T) {
	r := newTestRegistry(t)
	if err := r.Acquire("repo", "team", 50); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := r.Release("repo", "team"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	active, err := r.IsActive("repo", "team")
	if err != nil {
		t.Fatalf("IsActive: %v", err)
	}
	if active {
		t.Fatal("expected plan to be inactive after Release")
	}
	if err := r.Acquire("repo", "team", 50); err != nil {
		t.Fatalf("expected reacquire to succeed after Release: %v", err)
	}
}

func TestIsUniqueConstraintErr(t *testing.T) {
	cases := map[string]bool{
		"UNIQUE constraint failed: scheduler_active_plans.repository": true,
		"duplicate key value violates unique constraint":              true,
		"Duplicate entry 'repo-team' for key 'idx_repo_team'":         true,
		"connection refused":                                          false,
	}
	for msg, want := range cases {
		if got := isUniqueConstraintErr(errFromString(msg)); got != want {
			t.Errorf("isUniqueConstraintErr(%q) = %v, want %v", msg, got, want)
		}
	}
}

type stringError string

func (e stringError) Error() string { return string(e) }

func errFromString(s string) error { return stringError(s) }
