package tickets_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	tickets "ms-checkin/internal/tickets/service"
)

// MockTicketDBLayer is a mock implementation of the TicketDBLayer interface
type MockTicketDBLayer struct {
	mock.Mock
}

func (m *MockTicketDBLayer) Redeem(ctx context.Context, eventID, ticketID, actorID string) (*models.Verdict, error) {
	args := m.Called(ctx, eventID, ticketID, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Verdict), args.Error(1)
}

func (m *MockTicketDBLayer) ResetEvent(ctx context.Context, eventID, actorID string) (*models.ResetResult, error) {
	args := m.Called(ctx, eventID, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ResetResult), args.Error(1)
}

func (m *MockTicketDBLayer) GetEventByID(ctx context.Context, id string) (*models.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Event), args.Error(1)
}

func (m *MockTicketDBLayer) GetTicketByID(ctx context.Context, id string) (*models.Ticket, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Ticket), args.Error(1)
}

func (m *MockTicketDBLayer) GetTicketForEvent(ctx context.Context, eventID, ticketID string) (*models.Ticket, error) {
	args := m.Called(ctx, eventID, ticketID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Ticket), args.Error(1)
}

func (m *MockTicketDBLayer) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	args := m.Called(ctx, ticket)
	if ticket.ID == "" {
		ticket.ID = "generated-ticket"
	}
	return args.Error(0)
}

type MockAuthorizer struct {
	mock.Mock
}

func (m *MockAuthorizer) Authorize(ctx context.Context, eventID, actorID string) error {
	return m.Called(ctx, eventID, actorID).Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishAttendance(ctx context.Context, event models.AttendanceEvent) error {
	return m.Called(ctx, event).Error(0)
}

type MockStatsCache struct {
	mock.Mock
}

func (m *MockStatsCache) GetStats(ctx context.Context, eventID string) (*models.AttendanceStats, bool, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.AttendanceStats), args.Bool(1), args.Error(2)
}

func (m *MockStatsCache) StatsGeneration(ctx context.Context, eventID string) (int64, error) {
	args := m.Called(ctx, eventID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStatsCache) SetStats(ctx context.Context, stats *models.AttendanceStats, generation int64) error {
	return m.Called(ctx, stats, generation).Error(0)
}

func (m *MockStatsCache) InvalidateStats(ctx context.Context, eventID string) error {
	return m.Called(ctx, eventID).Error(0)
}

type MockStatsBuilder struct {
	mock.Mock
}

func (m *MockStatsBuilder) EventStats(ctx context.Context, event *models.Event) (*models.AttendanceStats, error) {
	args := m.Called(ctx, event)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.AttendanceStats), args.Error(1)
}

type mocks struct {
	db        *MockTicketDBLayer
	guard     *MockAuthorizer
	publisher *MockPublisher
	cache     *MockStatsCache
	stats     *MockStatsBuilder
}

func newService() (*tickets.TicketService, mocks) {
	m := mocks{
		db:        new(MockTicketDBLayer),
		guard:     new(MockAuthorizer),
		publisher: new(MockPublisher),
		cache:     new(MockStatsCache),
		stats:     new(MockStatsBuilder),
	}
	svc := tickets.NewTicketService(m.db, m.guard, m.stats, logger.NewNopLogger())
	svc.Publisher = m.publisher
	svc.Cache = m.cache
	return svc, m
}

var ctxAny = mock.Anything

// Tests start here
func TestRedeemOK(t *testing.T) {
	svc, m := newService()
	verdict := &models.Verdict{Status: models.VerdictOK, EventID: "evt-1", TicketID: "t-1", AttendedCount: 1, CapacityMax: 10, ScanCount: 1}

	m.guard.On("Authorize", ctxAny, "evt-1", "owner").Return(nil)
	m.db.On("Redeem", ctxAny, "evt-1", "t-1", "owner").Return(verdict, nil).Once()
	m.cache.On("InvalidateStats", ctxAny, "evt-1").Return(nil)
	m.publisher.On("PublishAttendance", ctxAny, mock.MatchedBy(func(e models.AttendanceEvent) bool {
		return e.Type == models.ScanEventType && e.Status == models.VerdictOK && e.ActorID == "owner"
	})).Return(nil)

	got, err := svc.Redeem(context.Background(), "evt-1", "t-1", "owner")
	svc.Drain()

	require.NoError(t, err)
	assert.Equal(t, verdict, got)
	m.db.AssertExpectations(t)
	m.publisher.AssertExpectations(t)
	m.cache.AssertExpectations(t)
}

func TestRedeemVerdictSurvivesSideEffectFailures(t *testing.T) {
	svc, m := newService()
	verdict := &models.Verdict{Status: models.VerdictFull, EventID: "evt-1", TicketID: "t-2", AttendedCount: 10, CapacityMax: 10}

	m.guard.On("Authorize", ctxAny, "evt-1", "owner").Return(nil)
	m.db.On("Redeem", ctxAny, "evt-1", "t-2", "owner").Return(verdict, nil)
	m.cache.On("InvalidateStats", ctxAny, "evt-1").Return(errors.New("redis down"))
	m.publisher.On("PublishAttendance", ctxAny, mock.Anything).Return(errors.New("kafka down"))

	got, err := svc.Redeem(context.Background(), "evt-1", "t-2", "owner")
	svc.Drain()

	require.NoError(t, err)
	assert.Equal(t, models.VerdictFull, got.Status)
}

// blockingPublisher holds every publish until released.
type blockingPublisher struct {
	release   chan struct{}
	published chan models.AttendanceEvent
}

func (p *blockingPublisher) PublishAttendance(ctx context.Context, event models.AttendanceEvent) error {
	select {
	case <-p.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	p.published <- event
	return nil
}

func TestRedeemDoesNotWaitForPublisher(t *testing.T) {
	svc, m := newService()
	publisher := &blockingPublisher{release: make(chan struct{}), published: make(chan models.AttendanceEvent, 1)}
	svc.Publisher = publisher
	verdict := &models.Verdict{Status: models.VerdictOK, EventID: "evt-1", TicketID: "t-1", AttendedCount: 1, CapacityMax: 10}

	m.guard.On("Authorize", ctxAny, "evt-1", "owner").Return(nil)
	m.db.On("Redeem", ctxAny, "evt-1", "t-1", "owner").Return(verdict, nil)
	m.cache.On("InvalidateStats", ctxAny, "evt-1").Return(nil)

	// Cancelling the request must not abandon the publish either.
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *models.Verdict, 1)
	go func() {
		got, err := svc.Redeem(ctx, "evt-1", "t-1", "owner")
		assert.NoError(t, err)
		done <- got
	}()

	select {
	case got := <-done:
		assert.Equal(t, models.VerdictOK, got.Status)
	case <-time.After(time.Second):
		t.Fatal("verdict waited on the publisher")
	}
	cancel()

	close(publisher.release)
	svc.Drain()
	select {
	case event := <-publisher.published:
		assert.Equal(t, "t-1", event.TicketID)
	default:
		t.Fatal("scan event was never published")
	}
}

func TestRedeemGuardFailuresSkipStore(t *testing.T) {
	for _, guardErr := range []error{models.ErrForbidden, models.ErrEventNotFound, models.ErrStoreUnavailable} {
		t.Run(guardErr.Error(), func(t *testing.T) {
			svc, m := newService()
			m.guard.On("Authorize", ctxAny, "evt-1", "intruder").Return(guardErr)

			got, err := svc.Redeem(context.Background(), "evt-1", "t-1", "intruder")

			assert.Nil(t, got)
			assert.ErrorIs(t, err, guardErr)
			m.db.AssertNotCalled(t, "Redeem", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			m.publisher.AssertNotCalled(t, "PublishAttendance", mock.Anything, mock.Anything)
		})
	}
}

func TestRedeemStoreErrorsPassThrough(t *testing.T) {
	for _, storeErr := range []error{models.ErrTicketNotFound, models.ErrForbidden, models.ErrStoreUnavailable} {
		t.Run(storeErr.Error(), func(t *testing.T) {
			svc, m := newService()
			m.guard.On("Authorize", ctxAny, "evt-1", "owner").Return(nil)
			m.db.On("Redeem", ctxAny, "evt-1", "t-1", "owner").Return(nil, storeErr)

			got, err := svc.Redeem(context.Background(), "evt-1", "t-1", "owner")

			assert.Nil(t, got)
			assert.ErrorIs(t, err, storeErr)
			m.publisher.AssertNotCalled(t, "PublishAttendance", mock.Anything, mock.Anything)
		})
	}
}

func TestRedeemRejectsEmptyIdentifiers(t *testing.T) {
	svc, m := newService()

	_, err := svc.Redeem(context.Background(), "", "t-1", "owner")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	_, err = svc.Redeem(context.Background(), "evt-1", "  ", "owner")
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	m.guard.AssertNotCalled(t, "Authorize", mock.Anything, mock.Anything, mock.Anything)
}

func TestRedeemAppliesTimeout(t *testing.T) {
	svc, m := newService()
	svc.Timeout = 50 * time.Millisecond

	m.guard.On("Authorize", ctxAny, "evt-1", "owner").Return(nil)
	m.db.On("Redeem", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	}), "evt-1", "t-1", "owner").Return(nil, models.ErrStoreUnavailable)

	_, err := svc.Redeem(context.Background(), "evt-1", "t-1", "owner")
	assert.ErrorIs(t, err, models.ErrStoreUnavailable)
	m.db.AssertExpectations(t)
}

func TestReset(t *testing.T) {
	svc, m := newService()
	result := &models.ResetResult{EventID: "evt-1", TicketsCleared: 4, CapacityMax: 10}

	m.guard.On("Authorize", ctxAny, "evt-1", "owner").Return(nil)
	m.db.On("ResetEvent", ctxAny, "evt-1", "owner").Return(result, nil)
	m.cache.On("InvalidateStats", ctxAny, "evt-1").Return(nil)
	m.publisher.On("PublishAttendance", ctxAny, mock.MatchedBy(func(e models.AttendanceEvent) bool {
		return e.Type == models.ResetEventType && e.AttendedCount == 0
	})).Return(nil)

	got, err := svc.Reset(context.Background(), "evt-1", "owner")
	svc.Drain()

	require.NoError(t, err)
	assert.Equal(t, 4, got.TicketsCleared)
	m.publisher.AssertExpectations(t)
}

func TestResetForbidden(t *testing.T) {
	svc, m := newService()
	m.guard.On("Authorize", ctxAny, "evt-1", "intruder").Return(models.ErrForbidden)

	_, err := svc.Reset(context.Background(), "evt-1", "intruder")

	assert.ErrorIs(t, err, models.ErrForbidden)
	m.db.AssertNotCalled(t, "ResetEvent", mock.Anything, mock.Anything, mock.Anything)
}

func TestEnsureTicketReusesHeldTicket(t *testing.T) {
	svc, m := newService()
	event := &models.Event{ID: "evt-1", Name: "Party", CapacityMax: 5}
	ticket := &models.Ticket{ID: "t-1", EventID: "evt-1"}

	m.db.On("GetEventByID", ctxAny, "evt-1").Return(event, nil)
	m.db.On("GetTicketForEvent", ctxAny, "evt-1", "t-1").Return(ticket, nil)

	got, err := svc.EnsureTicket(context.Background(), "evt-1", "t-1", false)

	require.NoError(t, err)
	assert.False(t, got.Created)
	assert.Equal(t, "t-1", got.Ticket.TicketID)
	assert.Equal(t, "Party", got.Event.Name)
	m.db.AssertNotCalled(t, "CreateTicket", mock.Anything, mock.Anything)
}

func TestEnsureTicketCreates(t *testing.T) {
	tests := []struct {
		name     string
		held     string
		forceNew bool
	}{
		{"no held ticket", "", false},
		{"held ticket unknown or foreign", "stale", false},
		{"forced", "t-1", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, m := newService()
			m.db.On("GetEventByID", ctxAny, "evt-1").Return(&models.Event{ID: "evt-1", CapacityMax: 5}, nil)
			m.db.On("GetTicketForEvent", ctxAny, "evt-1", "stale").Return(nil, models.ErrTicketNotFound)
			m.db.On("CreateTicket", ctxAny, mock.MatchedBy(func(t *models.Ticket) bool {
				return t.EventID == "evt-1"
			})).Return(nil)

			got, err := svc.EnsureTicket(context.Background(), "evt-1", tc.held, tc.forceNew)

			require.NoError(t, err)
			assert.True(t, got.Created)
			assert.NotEmpty(t, got.Ticket.TicketID)
			m.db.AssertCalled(t, "CreateTicket", mock.Anything, mock.Anything)
		})
	}
}

func TestEnsureTicketUnknownEvent(t *testing.T) {
	svc, m := newService()
	m.db.On("GetEventByID", ctxAny, "missing").Return(nil, models.ErrEventNotFound)

	_, err := svc.EnsureTicket(context.Background(), "missing", "", false)
	assert.ErrorIs(t, err, models.ErrEventNotFound)
}

func TestTicketStatus(t *testing.T) {
	svc, m := newService()
	m.db.On("GetTicketByID", ctxAny, "t-1").Return(&models.Ticket{ID: "t-1", EventID: "evt-1", Scanned: true, ScanCount: 2}, nil)
	m.db.On("GetTicketByID", ctxAny, "missing").Return(nil, models.ErrTicketNotFound)

	status, err := svc.TicketStatus(context.Background(), "t-1")
	require.NoError(t, err)
	assert.True(t, status.Scanned)
	assert.Equal(t, 2, status.ScanCount)

	_, err = svc.TicketStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrTicketNotFound)

	_, err = svc.TicketStatus(context.Background(), "")
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestEventStatsCacheHit(t *testing.T) {
	svc, m := newService()
	cached := &models.AttendanceStats{EventID: "evt-1", AttendedCount: 3}

	m.guard.On("Authorize", ctxAny, "evt-1", "owner").Return(nil)
	m.cache.On("GetStats", ctxAny, "evt-1").Return(cached, true, nil)

	got, err := svc.EventStats(context.Background(), "evt-1", "owner")

	require.NoError(t, err)
	assert.Same(t, cached, got)
	m.stats.AssertNotCalled(t, "EventStats", mock.Anything, mock.Anything)
}

func TestEventStatsCacheMiss(t *testing.T) {
	svc, m := newService()
	event := &models.Event{ID: "evt-1", OwnerID: "owner", CapacityMax: 10, AttendedCount: 2}
	fresh := &models.AttendanceStats{EventID: "evt-1", AttendedCount: 2, Remaining: 8}

	m.guard.On("Authorize", ctxAny, "evt-1", "owner").Return(nil)
	m.cache.On("GetStats", ctxAny, "evt-1").Return(nil, false, nil)
	m.cache.On("StatsGeneration", ctxAny, "evt-1").Return(int64(7), nil)
	m.db.On("GetEventByID", ctxAny, "evt-1").Return(event, nil)
	m.stats.On("EventStats", ctxAny, event).Return(fresh, nil)
	m.cache.On("SetStats", ctxAny, fresh, int64(7)).Return(nil)

	got, err := svc.EventStats(context.Background(), "evt-1", "owner")

	require.NoError(t, err)
	assert.Equal(t, 8, got.Remaining)
	m.cache.AssertExpectations(t)
}

// The generation is read before the database so a concurrent invalidation
// makes the write-back a no-op.
func TestEventStatsReadsGenerationBeforeBuilding(t *testing.T) {
	svc, m := newService()
	event := &models.Event{ID: "evt-1", OwnerID: "owner", CapacityMax: 10}
	fresh := &models.AttendanceStats{EventID: "evt-1"}

	var order []string
	m.guard.On("Authorize", ctxAny, "evt-1", "owner").Return(nil)
	m.cache.On("GetStats", ctxAny, "evt-1").Return(nil, false, nil)
	m.cache.On("StatsGeneration", ctxAny, "evt-1").Return(int64(3), nil).
		Run(func(mock.Arguments) { order = append(order, "generation") })
	m.db.On("GetEventByID", ctxAny, "evt-1").Return(event, nil).
		Run(func(mock.Arguments) { order = append(order, "database") })
	m.stats.On("EventStats", ctxAny, event).Return(fresh, nil)
	m.cache.On("SetStats", ctxAny, fresh, int64(3)).Return(nil)

	_, err := svc.EventStats(context.Background(), "evt-1", "owner")

	require.NoError(t, err)
	assert.Equal(t, []string{"generation", "database"}, order)
}

func TestEventStatsCacheDown(t *testing.T) {
	svc, m := newService()
	event := &models.Event{ID: "evt-1", OwnerID: "owner", CapacityMax: 10, AttendedCount: 2}
	fresh := &models.AttendanceStats{EventID: "evt-1", AttendedCount: 2, Remaining: 8}

	m.guard.On("Authorize", ctxAny, "evt-1", "owner").Return(nil)
	m.cache.On("GetStats", ctxAny, "evt-1").Return(nil, false, errors.New("redis down"))
	m.db.On("GetEventByID", ctxAny, "evt-1").Return(event, nil)
	m.stats.On("EventStats", ctxAny, event).Return(fresh, nil)

	got, err := svc.EventStats(context.Background(), "evt-1", "owner")

	require.NoError(t, err)
	assert.Equal(t, 8, got.Remaining)
	m.cache.AssertNotCalled(t, "SetStats", mock.Anything, mock.Anything, mock.Anything)
}

func TestEventStatsForbidden(t *testing.T) {
	svc, m := newService()
	m.guard.On("Authorize", ctxAny, "evt-1", "intruder").Return(models.ErrForbidden)

	_, err := svc.EventStats(context.Background(), "evt-1", "intruder")

	assert.ErrorIs(t, err, models.ErrForbidden)
	m.cache.AssertNotCalled(t, "GetStats", mock.Anything, mock.Anything)
}
