package auth

import (
	"context"

	"ms-checkin/internal/models"
)

// EventLookup is the slice of the event store the guard needs.
type EventLookup interface {
	GetEventByID(ctx context.Context, id string) (*models.Event, error)
}

// Guard decides whether an actor may operate on an event. It never writes.
type Guard struct {
	events EventLookup
}

func NewGuard(events EventLookup) *Guard {
	return &Guard{events: events}
}

// Authorize returns nil when actorID owns eventID. Missing events come back
// as models.ErrEventNotFound, an empty or foreign actor as models.ErrForbidden,
// and store failures as models.ErrStoreUnavailable.
func (g *Guard) Authorize(ctx context.Context, eventID, actorID string) error {
	event, err := g.events.GetEventByID(ctx, eventID)
	if err != nil {
		return err
	}
	if actorID == "" || event.OwnerID != actorID {
		return models.ErrForbidden
	}
	return nil
}
