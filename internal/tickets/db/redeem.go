package db

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"ms-checkin/internal/models"
)

// errCapacityReached aborts the redemption transaction so the ticket flip
// is rolled back together with the refused increment.
var errCapacityReached = errors.New("capacity reached")

// Redeem is the atomic check-and-increment primitive. Ownership, ticket
// binding, the scanned flag and the capacity predicate are all evaluated
// inside one transaction:
//
//  1. the event row is read (and locked on Postgres); missing -> ErrEventNotFound
//  2. owner mismatch or empty actor -> ErrForbidden
//  3. the ticket bound to the event is read; missing -> ErrTicketNotFound
//  4. scanned is flipped with a conditional UPDATE guarded by scanned = false;
//     zero rows means another scan won, the verdict is already-redeemed
//  5. attended_count is incremented with a conditional UPDATE guarded by
//     attended_count < capacity_max; zero rows rolls back step 4, verdict full
//
// Either both the ticket flag and the event counter change, or neither does.
func (d *DB) Redeem(ctx context.Context, eventID, ticketID, actorID string) (*models.Verdict, error) {
	var verdict *models.Verdict

	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		v, err := d.redeemTx(ctx, tx, eventID, ticketID, actorID)
		verdict = v
		return err
	})
	if errors.Is(err, errCapacityReached) {
		return verdict, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	return verdict, nil
}

func (d *DB) redeemTx(ctx context.Context, tx bun.Tx, eventID, ticketID, actorID string) (*models.Verdict, error) {
	event, err := d.eventByID(ctx, tx, eventID, true)
	if err != nil {
		return nil, err
	}
	if actorID == "" || event.OwnerID != actorID {
		return nil, models.ErrForbidden
	}

	ticket, err := d.ticketForEvent(ctx, tx, eventID, ticketID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	flip := tx.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("scanned = ?", true).
		Set("scanned_at = ?", now).
		Where("id = ?", ticketID).
		Where("event_id = ?", eventID).
		Where("scanned = ?", false)
	if d.Caps.ScanCount {
		flip = flip.Set("scan_count = scan_count + 1")
	}
	res, err := flip.Exec(ctx)
	if err != nil {
		return nil, err
	}
	flipped, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	if flipped == 0 {
		return d.alreadyRedeemed(ctx, tx, eventID, ticketID)
	}

	res, err = tx.NewUpdate().
		Model((*models.Event)(nil)).
		Set("attended_count = attended_count + 1").
		Where("id = ?", eventID).
		Where("attended_count < capacity_max").
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	incremented, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	if incremented == 0 {
		current, err := d.eventByID(ctx, tx, eventID, false)
		if err != nil {
			return nil, err
		}
		return &models.Verdict{
			Status:        models.VerdictFull,
			EventID:       eventID,
			TicketID:      ticketID,
			AttendedCount: current.AttendedCount,
			CapacityMax:   current.CapacityMax,
			ScanCount:     ticket.ScanCount,
		}, errCapacityReached
	}

	current, err := d.eventByID(ctx, tx, eventID, false)
	if err != nil {
		return nil, err
	}
	scanCount := 0
	if d.Caps.ScanCount {
		scanCount = ticket.ScanCount + 1
	}
	return &models.Verdict{
		Status:        models.VerdictOK,
		EventID:       eventID,
		TicketID:      ticketID,
		AttendedCount: current.AttendedCount,
		CapacityMax:   current.CapacityMax,
		ScanCount:     scanCount,
		ScannedAt:     &now,
	}, nil
}

// alreadyRedeemed reports the current counters of a ticket that lost the
// flip. Only scan_count may change here, and only when repeat scans count.
func (d *DB) alreadyRedeemed(ctx context.Context, tx bun.Tx, eventID, ticketID string) (*models.Verdict, error) {
	if d.Caps.ScanCount && d.CountRepeatScans {
		_, err := tx.NewUpdate().
			Model((*models.Ticket)(nil)).
			Set("scan_count = scan_count + 1").
			Where("id = ?", ticketID).
			Where("event_id = ?", eventID).
			Exec(ctx)
		if err != nil {
			return nil, err
		}
	}

	ticket, err := d.ticketForEvent(ctx, tx, eventID, ticketID)
	if err != nil {
		return nil, err
	}
	event, err := d.eventByID(ctx, tx, eventID, false)
	if err != nil {
		return nil, err
	}

	return &models.Verdict{
		Status:        models.VerdictAlreadyRedeemed,
		EventID:       eventID,
		TicketID:      ticketID,
		AttendedCount: event.AttendedCount,
		CapacityMax:   event.CapacityMax,
		ScanCount:     ticket.ScanCount,
		ScannedAt:     ticket.ScannedAt,
	}, nil
}
