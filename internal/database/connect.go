package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-checkin/internal/config"
	"ms-checkin/internal/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Connect opens the configured database and pings it, retrying while the
// server comes up.
func Connect(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*bun.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("no DSN configured for driver %q", cfg.Driver)
	}

	var (
		sqldb *sql.DB
		err   error
	)
	retries := cfg.ConnectRetries
	if retries < 1 {
		retries = 1
	}

	for i := 0; i < retries; i++ {
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to %s (attempt %d/%d)", cfg.Driver, i+1, retries))
		sqldb, err = open(cfg)
		if err == nil {
			err = sqldb.PingContext(ctx)
			if err == nil {
				break
			}
			sqldb.Close()
		}

		log.Error("DATABASE", fmt.Sprintf("Failed to connect to %s: %v", cfg.Driver, err))
		if i < retries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(cfg.RetryDelay):
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s after %d attempts: %w", cfg.Driver, retries, err)
	}

	log.Info("DATABASE", fmt.Sprintf("%s connection successful", cfg.Driver))

	if cfg.Driver == DriverSQLite {
		return bun.NewDB(sqldb, sqlitedialect.New()), nil
	}
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

func open(cfg config.DatabaseConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case DriverPostgres:
		sqldb, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return nil, err
		}
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
		sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
		sqldb.SetConnMaxLifetime(cfg.MaxLifetime)
		return sqldb, nil
	case DriverSQLite:
		sqldb, err := sql.Open(sqliteshim.ShimName, cfg.DSN)
		if err != nil {
			return nil, err
		}
		// SQLite has a single writer; one connection also keeps ":memory:" shared.
		sqldb.SetMaxOpenConns(1)
		return sqldb, nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
}
