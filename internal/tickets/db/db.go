package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"ms-checkin/internal/models"
)

// DB is the bun-backed ticket and event store. Every method takes the
// caller's context; a cancelled context rolls back whatever was in flight.
type DB struct {
	Bun  *bun.DB
	Caps SchemaCaps
	// CountRepeatScans bumps scan_count when an already-redeemed ticket is
	// scanned again. attended_count and scanned are never touched by it.
	CountRepeatScans bool
}

func New(bunDB *bun.DB, caps SchemaCaps, countRepeatScans bool) *DB {
	return &DB{Bun: bunDB, Caps: caps, CountRepeatScans: countRepeatScans}
}

// ticketColumns lists the physical columns the current schema carries.
func (d *DB) ticketColumns() []string {
	cols := []string{"id", "event_id", "scanned", "scanned_at", "created_at"}
	if d.Caps.ScanCount {
		cols = append(cols, "scan_count")
	}
	return cols
}

func (d *DB) lockRows() bool {
	return d.Bun.Dialect().Name() == dialect.PG
}

// ---------------- TICKETS ----------------

func (d *DB) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	if ticket.EventID == "" {
		return fmt.Errorf("%w: ticket needs an event", models.ErrInvalidInput)
	}
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = time.Now().UTC()
	}

	q := d.Bun.NewInsert().Model(ticket)
	if !d.Caps.ScanCount {
		q = q.ExcludeColumn("scan_count")
	}
	if _, err := q.Exec(ctx); err != nil {
		return classify(err)
	}
	return nil
}

func (d *DB) GetTicketByID(ctx context.Context, id string) (*models.Ticket, error) {
	ticket := new(models.Ticket)
	err := d.Bun.NewSelect().
		Model(ticket).
		Column(d.ticketColumns()...).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrTicketNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	return ticket, nil
}

// GetTicketForEvent only returns the ticket when it is bound to eventID.
func (d *DB) GetTicketForEvent(ctx context.Context, eventID, ticketID string) (*models.Ticket, error) {
	ticket, err := d.ticketForEvent(ctx, d.Bun, eventID, ticketID)
	if err != nil {
		return nil, classify(err)
	}
	return ticket, nil
}

func (d *DB) ticketForEvent(ctx context.Context, idb bun.IDB, eventID, ticketID string) (*models.Ticket, error) {
	ticket := new(models.Ticket)
	err := idb.NewSelect().
		Model(ticket).
		Column(d.ticketColumns()...).
		Where("id = ?", ticketID).
		Where("event_id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func (d *DB) GetTicketsByEvent(ctx context.Context, eventID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Column(d.ticketColumns()...).
		Where("event_id = ?", eventID).
		Order("created_at").
		Scan(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return tickets, nil
}

// Ping is used by the health endpoint.
func (d *DB) Ping(ctx context.Context) error {
	if err := d.Bun.PingContext(ctx); err != nil {
		return classify(err)
	}
	return nil
}
