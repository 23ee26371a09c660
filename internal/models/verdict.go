package models

import "time"

type VerdictStatus string

const (
	// VerdictOK means this call performed the UNSCANNED -> SCANNED transition.
	VerdictOK VerdictStatus = "ok"
	// VerdictAlreadyRedeemed means the ticket was scanned before; counters unchanged.
	VerdictAlreadyRedeemed VerdictStatus = "already"
	// VerdictFull means the ticket is unscanned but the event has no capacity left.
	VerdictFull VerdictStatus = "full"
)

// Verdict is the outcome of one redemption attempt. Failures (not found,
// forbidden, store unavailable) are errors, never verdicts.
type Verdict struct {
	Status        VerdictStatus `json:"status"`
	EventID       string        `json:"eventId"`
	TicketID      string        `json:"ticketId"`
	AttendedCount int           `json:"attendedCount"`
	CapacityMax   int           `json:"capacityMax"`
	ScanCount     int           `json:"scanCount"`
	ScannedAt     *time.Time    `json:"scannedAt,omitempty"`
}

type ResetResult struct {
	EventID        string `json:"eventId"`
	TicketsCleared int    `json:"ticketsCleared"`
	AttendedCount  int    `json:"attendedCount"`
	CapacityMax    int    `json:"capacityMax"`
}
