package sse

import (
	"context"
	"sync"

	"ms-checkin/internal/models"
)

// AttendanceEmitter manages live dashboard connections, keyed by event id.
type AttendanceEmitter struct {
	clients     map[string][]chan models.AttendanceEvent
	clientMutex sync.RWMutex
	onChange    func(delta int)
}

// NewAttendanceEmitter creates a new SSE event emitter for attendance updates.
// onChange, when non-nil, is told about every subscribe (+1) and unsubscribe (-1).
func NewAttendanceEmitter(onChange func(delta int)) *AttendanceEmitter {
	return &AttendanceEmitter{
		clients:  make(map[string][]chan models.AttendanceEvent),
		onChange: onChange,
	}
}

// Subscribe adds a client to an event's attendance stream. The returned
// channel is closed once ctx is done.
func (e *AttendanceEmitter) Subscribe(ctx context.Context, eventID string) <-chan models.AttendanceEvent {
	clientChan := make(chan models.AttendanceEvent, 16)

	e.clientMutex.Lock()
	e.clients[eventID] = append(e.clients[eventID], clientChan)
	e.clientMutex.Unlock()
	if e.onChange != nil {
		e.onChange(1)
	}

	// Remove client when context is done
	go func() {
		<-ctx.Done()
		e.removeClient(eventID, clientChan)
	}()

	return clientChan
}

// Emit broadcasts an attendance update to every subscriber of its event.
func (e *AttendanceEmitter) Emit(event models.AttendanceEvent) {
	e.clientMutex.RLock()
	defer e.clientMutex.RUnlock()

	for _, clientChan := range e.clients[event.EventID] {
		// Non-blocking send; a slow dashboard misses intermediate updates
		// and catches up with the next one.
		select {
		case clientChan <- event:
		default:
		}
	}
}

// PublishAttendance lets the emitter stand in as the publisher when the
// service runs without Kafka or Redis.
func (e *AttendanceEmitter) PublishAttendance(_ context.Context, event models.AttendanceEvent) error {
	e.Emit(event)
	return nil
}

func (e *AttendanceEmitter) removeClient(eventID string, clientChan chan models.AttendanceEvent) {
	e.clientMutex.Lock()
	defer e.clientMutex.Unlock()

	clients := e.clients[eventID]
	for i, ch := range clients {
		if ch == clientChan {
			e.clients[eventID] = append(clients[:i], clients[i+1:]...)
			close(clientChan)
			if e.onChange != nil {
				e.onChange(-1)
			}
			break
		}
	}

	// Clean up map entry if no more clients
	if len(e.clients[eventID]) == 0 {
		delete(e.clients, eventID)
	}
}

// ClientCount returns the number of clients currently subscribed to an event
func (e *AttendanceEmitter) ClientCount(eventID string) int {
	e.clientMutex.RLock()
	defer e.clientMutex.RUnlock()
	return len(e.clients[eventID])
}
