package models

import "time"

const (
	ScanEventType  = "ticket.scanned"
	ResetEventType = "event.reset"
)

// AttendanceEvent is published after every verdict and every reset. It feeds
// live dashboards only; nothing reads it back to make admission decisions.
type AttendanceEvent struct {
	Type          string        `json:"type"`
	EventID       string        `json:"eventId"`
	TicketID      string        `json:"ticketId,omitempty"`
	ActorID       string        `json:"actorId"`
	Status        VerdictStatus `json:"status,omitempty"`
	AttendedCount int           `json:"attendedCount"`
	CapacityMax   int           `json:"capacityMax"`
	ScanCount     int           `json:"scanCount,omitempty"`
	OccurredAt    time.Time     `json:"occurredAt"`
}

func NewScanEvent(v *Verdict, actorID string) AttendanceEvent {
	return AttendanceEvent{
		Type:          ScanEventType,
		EventID:       v.EventID,
		TicketID:      v.TicketID,
		ActorID:       actorID,
		Status:        v.Status,
		AttendedCount: v.AttendedCount,
		CapacityMax:   v.CapacityMax,
		ScanCount:     v.ScanCount,
		OccurredAt:    time.Now().UTC(),
	}
}

func NewResetEvent(r *ResetResult, actorID string) AttendanceEvent {
	return AttendanceEvent{
		Type:          ResetEventType,
		EventID:       r.EventID,
		ActorID:       actorID,
		AttendedCount: r.AttendedCount,
		CapacityMax:   r.CapacityMax,
		OccurredAt:    time.Now().UTC(),
	}
}
