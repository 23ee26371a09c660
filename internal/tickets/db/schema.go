package db

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"ms-checkin/internal/models"
)

// SchemaCaps records which optional columns the live schema carries.
// Deployments created before scan counting have no tickets.scan_count; the
// store then runs a reduced path that never reads or writes it.
type SchemaCaps struct {
	ScanCount bool
}

// FullSchema is what CreateSchema and the latest migration produce.
var FullSchema = SchemaCaps{ScanCount: true}

// DetectSchema probes the tickets table. A missing tickets table is an
// error; a missing optional column is not.
func DetectSchema(ctx context.Context, bunDB *bun.DB) (SchemaCaps, error) {
	if err := probe(ctx, bunDB, "SELECT id, event_id, scanned, scanned_at FROM tickets WHERE 1 = 0"); err != nil {
		return SchemaCaps{}, fmt.Errorf("tickets table unusable: %w", classify(err))
	}

	caps := SchemaCaps{}
	err := probe(ctx, bunDB, "SELECT scan_count FROM tickets WHERE 1 = 0")
	switch {
	case err == nil:
		caps.ScanCount = true
	case isUnavailable(err):
		return SchemaCaps{}, classify(err)
	}
	return caps, nil
}

func probe(ctx context.Context, bunDB *bun.DB, query string) error {
	rows, err := bunDB.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	return rows.Err()
}

// CreateSchema creates the full schema from the bun models. Used for SQLite
// deployments and tests; Postgres goes through the migrations package.
func CreateSchema(ctx context.Context, bunDB *bun.DB) error {
	for _, model := range []interface{}{(*models.Event)(nil), (*models.Ticket)(nil)} {
		if _, err := bunDB.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table for %T: %w", model, err)
		}
	}
	_, err := bunDB.NewCreateIndex().
		Model((*models.Ticket)(nil)).
		Index("tickets_event_id_idx").
		Column("event_id").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create tickets index: %w", err)
	}
	return nil
}
