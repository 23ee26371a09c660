package models

import "time"

// AttendanceStats is the organizer dashboard view of one event. It is a
// display value; admission decisions never read it.
type AttendanceStats struct {
	EventID        string           `json:"eventId"`
	Name           string           `json:"name"`
	AttendedCount  int              `json:"attendedCount"`
	CapacityMax    int              `json:"capacityMax"`
	Remaining      int              `json:"remaining"`
	TicketsIssued  int              `json:"ticketsIssued"`
	TicketsScanned int              `json:"ticketsScanned"`
	RepeatScans    int              `json:"repeatScans"`
	ArrivalsByHour []HourlyArrivals `json:"arrivalsByHour"`
	GeneratedAt    time.Time        `json:"generatedAt"`
}

type HourlyArrivals struct {
	Hour  time.Time `json:"hour"`
	Count int       `json:"count"`
}
