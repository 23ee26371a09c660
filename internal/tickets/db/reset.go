package db

import (
	"context"

	"github.com/uptrace/bun"

	"ms-checkin/internal/models"
)

// ResetEvent sets attended_count back to zero and clears every bound
// ticket in one transaction, gated by the same ownership check as Redeem.
// On Postgres it takes the event row lock first, the same lock Redeem
// takes, so a reset and an in-flight redemption never interleave.
func (d *DB) ResetEvent(ctx context.Context, eventID, actorID string) (*models.ResetResult, error) {
	var result *models.ResetResult

	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		event, err := d.eventByID(ctx, tx, eventID, true)
		if err != nil {
			return err
		}
		if actorID == "" || event.OwnerID != actorID {
			return models.ErrForbidden
		}

		clearTickets := tx.NewUpdate().
			Model((*models.Ticket)(nil)).
			Set("scanned = ?", false).
			Set("scanned_at = NULL").
			Where("event_id = ?", eventID)
		if d.Caps.ScanCount {
			clearTickets = clearTickets.Set("scan_count = 0")
		}
		res, err := clearTickets.Exec(ctx)
		if err != nil {
			return err
		}
		cleared, err := res.RowsAffected()
		if err != nil {
			return err
		}

		_, err = tx.NewUpdate().
			Model((*models.Event)(nil)).
			Set("attended_count = 0").
			Where("id = ?", eventID).
			Exec(ctx)
		if err != nil {
			return err
		}

		result = &models.ResetResult{
			EventID:        eventID,
			TicketsCleared: int(cleared),
			AttendedCount:  0,
			CapacityMax:    event.CapacityMax,
		}
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return result, nil
}
