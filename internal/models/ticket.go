package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	ID        string     `bun:"id,pk" json:"id"`
	EventID   string     `bun:"event_id,notnull" json:"eventId"`
	Scanned   bool       `bun:"scanned,notnull,default:false" json:"scanned"`
	ScannedAt *time.Time `bun:"scanned_at,nullzero" json:"scannedAt,omitempty"`
	ScanCount int        `bun:"scan_count,notnull,default:0" json:"scanCount"`
	CreatedAt time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
}

// TicketStatus is what a guest polls while waiting at the door.
type TicketStatus struct {
	TicketID  string     `json:"ticketId"`
	EventID   string     `json:"eventId"`
	Scanned   bool       `json:"scanned"`
	ScanCount int        `json:"scanCount"`
	ScannedAt *time.Time `json:"scannedAt,omitempty"`
}

func (t *Ticket) Status() TicketStatus {
	return TicketStatus{
		TicketID:  t.ID,
		EventID:   t.EventID,
		Scanned:   t.Scanned,
		ScanCount: t.ScanCount,
		ScannedAt: t.ScannedAt,
	}
}

// GuestTicket is the response of the ensure endpoint.
type GuestTicket struct {
	Event   EventSummary `json:"event"`
	Ticket  TicketStatus `json:"ticket"`
	Created bool         `json:"created"`
}
