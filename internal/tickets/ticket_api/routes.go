package ticket_api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"ms-checkin/internal/auth"
	"ms-checkin/internal/logger"
)

// NewRouter wires the public guest routes, the organizer routes behind the
// identity middleware, and the operational endpoints.
func NewRouter(h *Handler, live *SSEHandler, verifier auth.Verifier, metrics http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.Logger))
	if len(h.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   h.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/health", h.Health)
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}

	r.Route("/api", func(r chi.Router) {
		// --- Public Routes ---
		r.Get("/tickets/ensure", h.EnsureTicket)
		r.Get("/tickets/status", h.TicketStatus)

		// --- Protected Routes ---
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(verifier))

			r.Post("/tickets/scan", h.ScanTicket)
			r.Post("/events/reset", h.ResetEvent)
			r.Get("/events/stats", h.EventStats)
			if live != nil {
				r.Get("/events/{eventId}/live", live.HandleLiveAttendance)
			}
		})
	})

	return r
}

func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.LogAPI(r.Method, r.URL.Path, ww.Status(), time.Since(start))
		})
	}
}
