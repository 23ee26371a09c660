package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"ms-checkin/internal/models"
)

// ---------------- EVENTS ----------------

func (d *DB) CreateEvent(ctx context.Context, event *models.Event) error {
	if event.OwnerID == "" {
		return fmt.Errorf("%w: event needs an owner", models.ErrInvalidInput)
	}
	if event.CapacityMax <= 0 {
		return fmt.Errorf("%w: capacity must be positive, got %d", models.ErrInvalidInput, event.CapacityMax)
	}
	if event.AttendedCount < 0 || event.AttendedCount > event.CapacityMax {
		return fmt.Errorf("%w: attended count %d outside [0, %d]", models.ErrInvalidInput, event.AttendedCount, event.CapacityMax)
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	if _, err := d.Bun.NewInsert().Model(event).Exec(ctx); err != nil {
		return classify(err)
	}
	return nil
}

func (d *DB) GetEventByID(ctx context.Context, id string) (*models.Event, error) {
	event, err := d.eventByID(ctx, d.Bun, id, false)
	if err != nil {
		return nil, classify(err)
	}
	return event, nil
}

// eventByID optionally takes a row lock so that every redemption and reset
// of one event is serialized on the event row.
func (d *DB) eventByID(ctx context.Context, idb bun.IDB, id string, forUpdate bool) (*models.Event, error) {
	event := new(models.Event)
	q := idb.NewSelect().
		Model(event).
		Where("id = ?", id).
		Limit(1)
	if forUpdate && d.lockRows() {
		q = q.For("UPDATE")
	}
	err := q.Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return event, nil
}
