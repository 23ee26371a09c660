package tickets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
)

type TicketDBLayer interface {
	Redeem(ctx context.Context, eventID, ticketID, actorID string) (*models.Verdict, error)
	ResetEvent(ctx context.Context, eventID, actorID string) (*models.ResetResult, error)
	GetEventByID(ctx context.Context, id string) (*models.Event, error)
	GetTicketByID(ctx context.Context, id string) (*models.Ticket, error)
	GetTicketForEvent(ctx context.Context, eventID, ticketID string) (*models.Ticket, error)
	CreateTicket(ctx context.Context, ticket *models.Ticket) error
}

type Authorizer interface {
	Authorize(ctx context.Context, eventID, actorID string) error
}

type StatsBuilder interface {
	EventStats(ctx context.Context, event *models.Event) (*models.AttendanceStats, error)
}

// StatsCache is a display cache; a miss or an error only costs a query.
// StatsGeneration must be read before the stats are built, and SetStats
// stores them only if no invalidation happened since.
type StatsCache interface {
	GetStats(ctx context.Context, eventID string) (*models.AttendanceStats, bool, error)
	StatsGeneration(ctx context.Context, eventID string) (int64, error)
	SetStats(ctx context.Context, stats *models.AttendanceStats, generation int64) error
	InvalidateStats(ctx context.Context, eventID string) error
}

type Publisher interface {
	PublishAttendance(ctx context.Context, event models.AttendanceEvent) error
}

type Recorder interface {
	ObserveRedemption(outcome string, d time.Duration)
	ObserveReset(outcome string)
	ObserveTicketIssued()
	ObservePublishFailure(eventType string)
	ObserveStatsCache(hit bool)
}

// sideEffectTimeout bounds the best-effort work done after a verdict.
const sideEffectTimeout = 2 * time.Second

// TicketService is the redemption engine. Every admission decision is made
// by exactly one atomic store call; Cache, Publisher and Metrics are
// optional and never change a verdict.
type TicketService struct {
	DB        TicketDBLayer
	Guard     Authorizer
	Stats     StatsBuilder
	Cache     StatsCache
	Publisher Publisher
	Metrics   Recorder
	Logger    *logger.Logger
	// Timeout bounds one redemption attempt. Zero means the caller's deadline only.
	Timeout time.Duration

	pending sync.WaitGroup
}

func NewTicketService(db TicketDBLayer, guard Authorizer, stats StatsBuilder, log *logger.Logger) *TicketService {
	return &TicketService{
		DB:     db,
		Guard:  guard,
		Stats:  stats,
		Logger: log,
	}
}

// Redeem attempts to admit ticketID to eventID on behalf of actorID. It
// returns a verdict (ok, already, full) or one of the sentinel errors
// ErrInvalidInput, ErrEventNotFound, ErrForbidden, ErrTicketNotFound or
// ErrStoreUnavailable. After ErrStoreUnavailable the outcome is unknown and
// the same call may be repeated safely.
func (s *TicketService) Redeem(ctx context.Context, eventID, ticketID, actorID string) (*models.Verdict, error) {
	eventID, ticketID = strings.TrimSpace(eventID), strings.TrimSpace(ticketID)
	if eventID == "" || ticketID == "" {
		return nil, fmt.Errorf("%w: eventId and ticketId are required", models.ErrInvalidInput)
	}

	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	start := time.Now()

	if err := s.Guard.Authorize(ctx, eventID, actorID); err != nil {
		s.observeRedemption(outcome(err), start)
		if errors.Is(err, models.ErrForbidden) {
			s.Logger.LogSecurity("SCAN_DENIED", fmt.Sprintf("actor=%q event=%s", actorID, eventID))
		}
		return nil, err
	}

	verdict, err := s.DB.Redeem(ctx, eventID, ticketID, actorID)
	if err != nil {
		s.observeRedemption(outcome(err), start)
		if errors.Is(err, models.ErrStoreUnavailable) {
			s.Logger.Error("SCAN", fmt.Sprintf("event=%s ticket=%s: %v", eventID, ticketID, err))
		}
		return nil, err
	}

	s.observeRedemption(string(verdict.Status), start)
	s.Logger.LogScan(eventID, ticketID, string(verdict.Status))
	s.afterChange(ctx, eventID, models.NewScanEvent(verdict, actorID))
	return verdict, nil
}

// Reset sets the event's attendance back to zero and clears every ticket.
// Owner only.
func (s *TicketService) Reset(ctx context.Context, eventID, actorID string) (*models.ResetResult, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil, fmt.Errorf("%w: eventId is required", models.ErrInvalidInput)
	}

	if err := s.Guard.Authorize(ctx, eventID, actorID); err != nil {
		s.observeReset(outcome(err))
		return nil, err
	}

	result, err := s.DB.ResetEvent(ctx, eventID, actorID)
	if err != nil {
		s.observeReset(outcome(err))
		return nil, err
	}

	s.observeReset("ok")
	s.Logger.LogReset(eventID, result.TicketsCleared)
	s.afterChange(ctx, eventID, models.NewResetEvent(result, actorID))
	return result, nil
}

// EnsureTicket returns the guest's ticket for an event, creating one when
// the held id is empty, unknown, bound to another event, or forceNew is set.
func (s *TicketService) EnsureTicket(ctx context.Context, eventID, existingTicketID string, forceNew bool) (*models.GuestTicket, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil, fmt.Errorf("%w: eventId is required", models.ErrInvalidInput)
	}

	event, err := s.DB.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}

	if !forceNew && existingTicketID != "" {
		ticket, err := s.DB.GetTicketForEvent(ctx, eventID, existingTicketID)
		switch {
		case err == nil:
			return &models.GuestTicket{Event: event.Summary(), Ticket: ticket.Status()}, nil
		case !errors.Is(err, models.ErrTicketNotFound):
			return nil, err
		}
	}

	ticket := &models.Ticket{EventID: eventID}
	if err := s.DB.CreateTicket(ctx, ticket); err != nil {
		return nil, fmt.Errorf("failed to create ticket: %w", err)
	}
	if s.Metrics != nil {
		s.Metrics.ObserveTicketIssued()
	}
	s.Logger.Debug("TICKET", fmt.Sprintf("Issued ticket %s for event %s", ticket.ID, eventID))

	return &models.GuestTicket{Event: event.Summary(), Ticket: ticket.Status(), Created: true}, nil
}

func (s *TicketService) TicketStatus(ctx context.Context, ticketID string) (*models.TicketStatus, error) {
	ticketID = strings.TrimSpace(ticketID)
	if ticketID == "" {
		return nil, fmt.Errorf("%w: ticketId is required", models.ErrInvalidInput)
	}

	ticket, err := s.DB.GetTicketByID(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	status := ticket.Status()
	return &status, nil
}

// EventStats returns owner-only attendance analytics, from the display
// cache when it holds a fresh copy.
func (s *TicketService) EventStats(ctx context.Context, eventID, actorID string) (*models.AttendanceStats, error) {
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return nil, fmt.Errorf("%w: eventId is required", models.ErrInvalidInput)
	}

	if err := s.Guard.Authorize(ctx, eventID, actorID); err != nil {
		return nil, err
	}

	cacheable := false
	var generation int64
	if s.Cache != nil {
		stats, hit, err := s.Cache.GetStats(ctx, eventID)
		switch {
		case err != nil:
			s.Logger.Warn("CACHE", fmt.Sprintf("Stats lookup failed for event %s: %v", eventID, err))
		case hit:
			s.observeStatsCache(true)
			return stats, nil
		default:
			s.observeStatsCache(false)
			generation, err = s.Cache.StatsGeneration(ctx, eventID)
			if err != nil {
				s.Logger.Warn("CACHE", fmt.Sprintf("Stats generation lookup failed for event %s: %v", eventID, err))
			} else {
				cacheable = true
			}
		}
	}

	event, err := s.DB.GetEventByID(ctx, eventID)
	if err != nil {
		return nil, err
	}
	stats, err := s.Stats.EventStats(ctx, event)
	if err != nil {
		return nil, err
	}

	if cacheable {
		if err := s.Cache.SetStats(ctx, stats, generation); err != nil {
			s.Logger.Warn("CACHE", fmt.Sprintf("Failed to cache stats for event %s: %v", eventID, err))
		}
	}
	return stats, nil
}

// AuthorizeEvent exposes the guard to read paths outside the engine, such
// as the live stream.
func (s *TicketService) AuthorizeEvent(ctx context.Context, eventID, actorID string) error {
	return s.Guard.Authorize(ctx, eventID, actorID)
}

// afterChange drops the cached stats and fans the update out in the
// background, detached from the caller's cancellation. The verdict never
// waits on it.
func (s *TicketService) afterChange(ctx context.Context, eventID string, event models.AttendanceEvent) {
	if s.Cache == nil && s.Publisher == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(ctx, sideEffectTimeout)
		defer cancel()

		if s.Cache != nil {
			if err := s.Cache.InvalidateStats(ctx, eventID); err != nil {
				s.Logger.Warn("CACHE", fmt.Sprintf("Failed to invalidate stats for event %s: %v", eventID, err))
			}
		}
		if s.Publisher != nil {
			if err := s.Publisher.PublishAttendance(ctx, event); err != nil {
				s.Logger.Warn("PUBLISH", fmt.Sprintf("Failed to publish %s for event %s: %v", event.Type, eventID, err))
				if s.Metrics != nil {
					s.Metrics.ObservePublishFailure(event.Type)
				}
			}
		}
	}()
}

// Drain blocks until every background side effect has finished.
func (s *TicketService) Drain() {
	s.pending.Wait()
}

func (s *TicketService) observeStatsCache(hit bool) {
	if s.Metrics != nil {
		s.Metrics.ObserveStatsCache(hit)
	}
}

func (s *TicketService) observeRedemption(outcome string, start time.Time) {
	if s.Metrics != nil {
		s.Metrics.ObserveRedemption(outcome, time.Since(start))
	}
}

func (s *TicketService) observeReset(outcome string) {
	if s.Metrics != nil {
		s.Metrics.ObserveReset(outcome)
	}
}

// outcome is the metrics label of a failed call.
func outcome(err error) string {
	switch {
	case errors.Is(err, models.ErrForbidden):
		return "forbidden"
	case errors.Is(err, models.ErrEventNotFound):
		return "event_not_found"
	case errors.Is(err, models.ErrTicketNotFound):
		return "ticket_not_found"
	case errors.Is(err, models.ErrStoreUnavailable):
		return "unavailable"
	case errors.Is(err, models.ErrInvalidInput):
		return "invalid"
	}
	return "error"
}
