package migrations

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/uptrace/bun"

	"ms-checkin/internal/logger"
)

//go:embed sql/*.sql
var migrationFiles embed.FS

// LatestVersion is the schema version the service is built against.
const LatestVersion uint = 2

// Runner handles database migrations. It works over one connection taken
// from the pool and hands it back on Close; the pool itself stays open.
type Runner struct {
	bunDB    *bun.DB
	logger   *logger.Logger
	migrator *migrate.Migrate
}

// NewRunner creates a new migration runner
func NewRunner(bunDB *bun.DB, log *logger.Logger) *Runner {
	return &Runner{
		bunDB:  bunDB,
		logger: log,
	}
}

// Initialize prepares the migration system
func (r *Runner) Initialize() error {
	ctx := context.Background()
	conn, err := r.bunDB.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to reserve a migration connection: %w", err)
	}

	// WithConnection, unlike WithInstance, never closes the shared *sql.DB.
	driver, err := postgres.WithConnection(ctx, conn, &postgres.Config{})
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create postgres migration driver: %w", err)
	}

	source, err := iofs.New(migrationFiles, "sql")
	if err != nil {
		driver.Close()
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		driver.Close()
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	r.migrator = migrator
	return nil
}

func (r *Runner) ensure() error {
	if r.migrator != nil {
		return nil
	}
	return r.Initialize()
}

// RunMigrations brings the schema to LatestVersion, repairing a dirty
// state left behind by an interrupted run first.
func (r *Runner) RunMigrations() error {
	if err := r.ensure(); err != nil {
		return err
	}

	version, dirty, err := r.migrator.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	if dirty {
		// Every migration is idempotent, so replaying the dirty one is safe.
		r.logger.Warn("MIGRATE", fmt.Sprintf("Detected dirty migration at version %d, replaying it", version))
		previous := int(version) - 1
		if previous < 1 {
			previous = -1 // no version applied
		}
		if err := r.migrator.Force(previous); err != nil {
			return fmt.Errorf("failed to fix dirty migration: %w", err)
		}
	}

	if err := r.migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, err = r.Version()
	if err != nil {
		return err
	}
	r.logger.Info("MIGRATE", fmt.Sprintf("Current schema version: %d", version))
	return nil
}

// MigrateDown rolls back all migrations
func (r *Runner) MigrateDown() error {
	if err := r.ensure(); err != nil {
		return err
	}

	if err := r.migrator.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

// MigrateTo migrates up or down to a specific version
func (r *Runner) MigrateTo(version uint) error {
	if err := r.ensure(); err != nil {
		return err
	}

	if err := r.migrator.Migrate(version); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration to version %d failed: %w", version, err)
	}
	return nil
}

// Version returns the applied schema version, zero when none is.
func (r *Runner) Version() (uint, error) {
	if err := r.ensure(); err != nil {
		return 0, err
	}

	version, _, err := r.migrator.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get migration version: %w", err)
	}
	return version, nil
}

// Close returns the migration connection to the pool. The runner can be
// used again afterwards.
func (r *Runner) Close() error {
	if r.migrator == nil {
		return nil
	}
	sourceErr, databaseErr := r.migrator.Close()
	r.migrator = nil
	if sourceErr != nil {
		return fmt.Errorf("error closing migrator source: %w", sourceErr)
	}
	if databaseErr != nil {
		return fmt.Errorf("error closing migrator database: %w", databaseErr)
	}
	return nil
}
