package ticket_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ms-checkin/internal/auth"
	"ms-checkin/internal/logger"
	"ms-checkin/internal/models"
	qr "ms-checkin/internal/tickets/qr_payload"
	"ms-checkin/internal/utils"
)

const ticketCookieMaxAge = 30 * 24 * time.Hour

// TicketEngine is the part of the ticket service the handlers call.
type TicketEngine interface {
	Redeem(ctx context.Context, eventID, ticketID, actorID string) (*models.Verdict, error)
	Reset(ctx context.Context, eventID, actorID string) (*models.ResetResult, error)
	EnsureTicket(ctx context.Context, eventID, existingTicketID string, forceNew bool) (*models.GuestTicket, error)
	TicketStatus(ctx context.Context, ticketID string) (*models.TicketStatus, error)
	EventStats(ctx context.Context, eventID, actorID string) (*models.AttendanceStats, error)
	AuthorizeEvent(ctx context.Context, eventID, actorID string) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// BrokerHealth is the publisher side of the live fan-out.
type BrokerHealth interface {
	BreakerState() string
}

type Handler struct {
	TicketService  TicketEngine
	QR             *qr.Sealer // optional; without it scans must carry a plain ticketId
	DB             Pinger
	Broker         BrokerHealth // optional
	Logger         *logger.Logger
	CookieSecure   bool
	AllowedOrigins []string // CORS for browser guests; empty disables it
}

type scanRequest struct {
	EventID  string `json:"eventId"`
	TicketID string `json:"ticketId"`
	QR       string `json:"qr"`
}

// ScanTicket redeems one ticket for the authenticated organizer.
// Expected POST request body: {"eventId": "...", "ticketId": "..."} or {"eventId": "...", "qr": "..."}
func (h *Handler) ScanTicket(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	eventID, ticketID, err := h.resolveScan(req)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid ticket", err.Error())
		return
	}

	verdict, err := h.TicketService.Redeem(r.Context(), eventID, ticketID, auth.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, verdict)
}

// resolveScan returns the ids to redeem, opening the sealed payload when one
// was scanned instead of a raw ticket id.
func (h *Handler) resolveScan(req scanRequest) (string, string, error) {
	eventID := strings.TrimSpace(req.EventID)
	if req.QR == "" {
		if eventID == "" || strings.TrimSpace(req.TicketID) == "" {
			return "", "", errors.New("eventId and ticketId are required")
		}
		return eventID, strings.TrimSpace(req.TicketID), nil
	}

	if h.QR == nil {
		return "", "", errors.New("sealed QR payloads are not enabled")
	}
	payload, err := h.QR.Open(req.QR)
	if err != nil {
		return "", "", err
	}
	if eventID != "" && eventID != payload.EventID {
		return "", "", errors.New("ticket belongs to a different event")
	}
	return payload.EventID, payload.TicketID, nil
}

func wantsNewTicket(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

type ensureResponse struct {
	models.GuestTicket
	QR string `json:"qr,omitempty"`
}

// EnsureTicket hands a guest their ticket for an event, reusing the one held
// in the ticket_<eventId> cookie unless new=1 (or true, yes) is passed.
func (h *Handler) EnsureTicket(w http.ResponseWriter, r *http.Request) {
	eventID := strings.TrimSpace(r.URL.Query().Get("eventId"))
	if eventID == "" {
		utils.WriteError(w, http.StatusBadRequest, "eventId is required", "")
		return
	}
	forceNew := wantsNewTicket(r.URL.Query().Get("new"))

	cookieName := ticketCookieName(eventID)
	held := ""
	if c, err := r.Cookie(cookieName); err == nil {
		held = c.Value
	}

	guest, err := h.TicketService.EnsureTicket(r.Context(), eventID, held, forceNew)
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}

	resp := ensureResponse{GuestTicket: *guest}
	if h.QR != nil {
		sealed, err := h.QR.Seal(qr.Payload{EventID: eventID, TicketID: guest.Ticket.TicketID})
		if err != nil {
			h.Logger.Error("QR", fmt.Sprintf("Failed to seal payload for ticket %s: %v", guest.Ticket.TicketID, err))
		} else {
			resp.QR = sealed
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    guest.Ticket.TicketID,
		Path:     "/",
		MaxAge:   int(ticketCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	utils.WriteJSON(w, http.StatusOK, resp)
}

func ticketCookieName(eventID string) string {
	return "ticket_" + eventID
}

// TicketStatus lets a guest poll whether their ticket was scanned.
func (h *Handler) TicketStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.TicketService.TicketStatus(r.Context(), r.URL.Query().Get("ticketId"))
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, status)
}

// ResetEvent clears the attendance of an event.
// Expected POST request body: {"eventId": "..."}
func (h *Handler) ResetEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EventID string `json:"eventId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	result, err := h.TicketService.Reset(r.Context(), req.EventID, auth.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("attendance reset", result))
}

func (h *Handler) EventStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.TicketService.EventStats(r.Context(), r.URL.Query().Get("eventId"), auth.UserID(r.Context()))
	if err != nil {
		writeServiceError(w, h.Logger, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, stats)
}

// Health reports whether the store answers. An open Kafka breaker only
// degrades the service: scans keep working without live updates.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	body := map[string]string{"status": "ok", "database": "up"}
	if h.Broker != nil {
		state := h.Broker.BreakerState()
		body["kafka"] = state
		if state != "closed" {
			body["status"] = "degraded"
		}
	}

	if err := h.DB.Ping(ctx); err != nil {
		h.Logger.Error("HEALTH", fmt.Sprintf("Database ping failed: %v", err))
		body["status"], body["database"] = "unavailable", "down"
		utils.WriteJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	utils.WriteJSON(w, http.StatusOK, body)
}

// writeServiceError maps the service's sentinel errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, log *logger.Logger, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		utils.WriteError(w, http.StatusBadRequest, "invalid request", err.Error())
	case errors.Is(err, models.ErrForbidden):
		utils.WriteError(w, http.StatusForbidden, "forbidden", "not the organizer of this event")
	case errors.Is(err, models.ErrEventNotFound):
		utils.WriteError(w, http.StatusNotFound, "event not found", "")
	case errors.Is(err, models.ErrTicketNotFound):
		utils.WriteError(w, http.StatusNotFound, "ticket not found", "")
	case errors.Is(err, models.ErrStoreUnavailable):
		// The outcome is unknown; resubmitting the same scan is safe.
		w.Header().Set("Retry-After", "1")
		utils.WriteError(w, http.StatusServiceUnavailable, "store unavailable", "retry the request")
	default:
		log.Error("API", fmt.Sprintf("Unhandled error: %v", err))
		utils.WriteError(w, http.StatusInternalServerError, "internal error", "")
	}
}
