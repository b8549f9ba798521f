package scheduler

import (
	"context"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" database/sql driver internal/migration opens
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	appconfig "github.com/fwornle/kg-orchestrator/config"
	"github.com/fwornle/kg-orchestrator/internal/database"
	"github.com/fwornle/kg-orchestrator/internal/migration"
)

// OpenDB opens the plan registry's database per cfg, applies cfg's
// connection-pool tuning through internal/database's PoolManager, and runs
// pending schema migrations through internal/migration before handing the
// *gorm.DB to NewRegistry. This is the production counterpart to the
// tests' direct gorm.Open(sqlite.Open(...)) calls.
func OpenDB(ctx context.Context, cfg appconfig.DatabaseConfig, logger *zap.Logger) (*gorm.DB, *database.PoolManager, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, nil, fmt.Errorf("open plan registry database: %w", err)
	}

	poolConfig := database.DefaultPoolConfig()
	if cfg.MaxIdleConns > 0 {
		poolConfig.MaxIdleConns = cfg.MaxIdleConns
	}
	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxOpenConns = cfg.MaxOpenConns
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.ConnMaxLifetime = cfg.ConnMaxLifetime
	}

	pool, err := database.NewPoolManager(db, poolConfig, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("wrap plan registry pool: %w", err)
	}

	if err := runMigrations(cfg, logger); err != nil {
		logger.Warn("schema migration skipped", zap.Error(err))
	}

	return db, pool, nil
}

func dialectorFor(cfg appconfig.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "", "sqlite":
		return sqlite.Open(cfg.Name), nil
	case "postgres":
		return postgres.Open(cfg.DSN()), nil
	case "mysql":
		return mysql.Open(cfg.DSN()), nil
	default:
		return nil, fmt.Errorf("scheduler: unsupported database driver %q", cfg.Driver)
	}
}

// runMigrations applies pending golang-migrate migrations for cfg's
// database, in addition to the registry's own gorm.AutoMigrate of its one
// table (both run: migrate for versioned schema history, AutoMigrate as a
// belt-and-braces guard for the row shape gorm expects).
func runMigrations(cfg appconfig.DatabaseConfig, logger *zap.Logger) error {
	m, err := migration.NewMigratorFromDatabaseConfig(cfg)
	if err != nil {
		return fmt.Errorf("build migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(context.Background()); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	logger.Info("plan registry schema migrations applied")
	return nil
}
