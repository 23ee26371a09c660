package models

import (
	"time"

	"github.com/uptrace/bun"
)

type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID            string    `bun:"id,pk" json:"id"`
	OwnerID       string    `bun:"owner_id,notnull" json:"ownerId"`
	Name          string    `bun:"name,notnull,default:''" json:"name"`
	CapacityMax   int       `bun:"capacity_max,notnull" json:"capacityMax"`
	AttendedCount int       `bun:"attended_count,notnull,default:0" json:"attendedCount"`
	StartAt       time.Time `bun:"start_at,nullzero" json:"startAt"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
}

// Remaining is the number of admissions left before the event is full.
func (e *Event) Remaining() int {
	if e.AttendedCount >= e.CapacityMax {
		return 0
	}
	return e.CapacityMax - e.AttendedCount
}

// EventSummary is the public view handed to guests; it omits nothing secret
// but keeps the owner id out of guest responses.
type EventSummary struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	StartAt       time.Time `json:"startAt"`
	CapacityMax   int       `json:"capacityMax"`
	AttendedCount int       `json:"attendedCount"`
}

func (e *Event) Summary() EventSummary {
	return EventSummary{
		ID:            e.ID,
		Name:          e.Name,
		StartAt:       e.StartAt,
		CapacityMax:   e.CapacityMax,
		AttendedCount: e.AttendedCount,
	}
}
