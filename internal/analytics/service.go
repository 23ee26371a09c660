package analytics

import (
	"context"
	"fmt"
	"time"

	"ms-checkin/internal/models"
	"ms-checkin/internal/tickets/db"
)

// Service handles analytics operations
type Service struct {
	db *DB
}

// NewService creates a new analytics service
func NewService(db *DB) *Service {
	return &Service{db: db}
}

// EventStats builds the attendance dashboard for an event the caller has
// already loaded and authorized.
func (s *Service) EventStats(ctx context.Context, event *models.Event) (*models.AttendanceStats, error) {
	totals, err := s.db.GetTicketTotals(ctx, event.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count tickets for event %s: %w", event.ID, db.Classify(err))
	}

	scanTimes, err := s.db.GetScanTimes(ctx, event.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load scan times for event %s: %w", event.ID, db.Classify(err))
	}

	return &models.AttendanceStats{
		EventID:        event.ID,
		Name:           event.Name,
		AttendedCount:  event.AttendedCount,
		CapacityMax:    event.CapacityMax,
		Remaining:      event.Remaining(),
		TicketsIssued:  totals.Issued,
		TicketsScanned: totals.Scanned,
		RepeatScans:    totals.RepeatScans,
		ArrivalsByHour: arrivalsByHour(scanTimes),
		GeneratedAt:    time.Now().UTC(),
	}, nil
}

// arrivalsByHour buckets sorted scan times into UTC hours.
func arrivalsByHour(times []time.Time) []models.HourlyArrivals {
	buckets := []models.HourlyArrivals{}
	for _, t := range times {
		hour := t.UTC().Truncate(time.Hour)
		if n := len(buckets); n > 0 && buckets[n-1].Hour.Equal(hour) {
			buckets[n-1].Count++
			continue
		}
		buckets = append(buckets, models.HourlyArrivals{Hour: hour, Count: 1})
	}
	return buckets
}
