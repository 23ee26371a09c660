package analytics

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// DB handles analytics database operations
type DB struct {
	bun *bun.DB
	// scanCount is false on schemas that predate tickets.scan_count.
	scanCount bool
}

// NewDB creates a new analytics DB handler
func NewDB(db *bun.DB, scanCount bool) *DB {
	return &DB{bun: db, scanCount: scanCount}
}

// TicketTotals represents raw per-event ticket counters from the database
type TicketTotals struct {
	Issued      int `bun:"issued"`
	Scanned     int `bun:"scanned"`
	RepeatScans int `bun:"repeat_scans"`
}

// GetTicketTotals counts issued and scanned tickets and repeat scans for an event
func (db *DB) GetTicketTotals(ctx context.Context, eventID string) (TicketTotals, error) {
	repeat := "0"
	if db.scanCount {
		repeat = "COALESCE(SUM(CASE WHEN scan_count > 1 THEN scan_count - 1 ELSE 0 END), 0)"
	}

	var totals TicketTotals
	err := db.bun.NewRaw(`
		SELECT
			COUNT(*) AS issued,
			COALESCE(SUM(CASE WHEN scanned THEN 1 ELSE 0 END), 0) AS scanned,
			`+repeat+` AS repeat_scans
		FROM
			tickets
		WHERE
			event_id = ?
	`, eventID).Scan(ctx, &totals)

	return totals, err
}

// GetScanTimes returns the scan time of every redeemed ticket of an event
func (db *DB) GetScanTimes(ctx context.Context, eventID string) ([]time.Time, error) {
	var times []time.Time
	err := db.bun.NewSelect().
		Table("tickets").
		Column("scanned_at").
		Where("event_id = ?", eventID).
		Where("scanned = ?", true).
		Where("scanned_at IS NOT NULL").
		Order("scanned_at").
		Scan(ctx, &times)

	return times, err
}
