package ticket_api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"ms-checkin/internal/auth"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/sse"
)

const heartbeatInterval = 15 * time.Second

// SSEHandler streams attendance updates of one event to its organizer.
type SSEHandler struct {
	TicketService TicketEngine
	Emitter       *sse.AttendanceEmitter
	Logger        *logger.Logger
	Heartbeat     time.Duration
}

type connectedMessage struct {
	Status  string `json:"status"`
	EventID string `json:"eventId"`
}

func connectedFrame(eventID string) ([]byte, error) {
	return json.Marshal(connectedMessage{Status: "connected", EventID: eventID})
}

// HandleLiveAttendance streams attendance events for a specific event
func (h *SSEHandler) HandleLiveAttendance(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	ctx := r.Context()

	if err := h.TicketService.AuthorizeEvent(ctx, eventID, auth.UserID(ctx)); err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Set headers for SSE
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	events := h.Emitter.Subscribe(ctx, eventID)

	hello, err := connectedFrame(eventID)
	if err != nil {
		h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize connected frame: %v", err))
		return
	}
	fmt.Fprintf(w, "event: connected\ndata: %s\n\n", hello)
	flusher.Flush()
	h.Logger.Info("SSE", fmt.Sprintf("Client connected to live attendance for event: %s", eventID))

	interval := h.Heartbeat
	if interval <= 0 {
		interval = heartbeatInterval
	}
	heartbeat := time.NewTicker(interval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.Logger.Info("SSE", fmt.Sprintf("Client disconnected from live attendance for event: %s", eventID))
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case event, ok := <-events:
			if !ok {
				return
			}
			jsonData, err := json.Marshal(event)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize attendance event: %v", err))
				continue
			}
			fmt.Fprintf(w, "event: attendance\ndata: %s\n\n", jsonData)
			flusher.Flush()
		}
	}
}
