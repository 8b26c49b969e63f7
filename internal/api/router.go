package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinicore/scheduling/internal/booking"
	"github.com/clinicore/scheduling/internal/queue"
)

type RouterConfig struct {
	Booking   *booking.Service
	Queue     *queue.Service
	PgPool    *pgxpool.Pool
	Redis     *redis.Client
	Env       string
	Version   string
	JWTSecret string
	Log       zerolog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))

	// Health endpoints stay unauthenticated for orchestration probes.
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.JWTSecret))

		// Availability and booking
		r.Get("/providers/{id}/availability", getAvailabilityHandler(cfg.Booking))
		r.Post("/appointments", bookAppointmentHandler(cfg.Booking))
		r.Get("/appointments", listAppointmentsHandler(cfg.Booking))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Booking))
		r.Post("/appointments/{id}/reschedule", rescheduleAppointmentHandler(cfg.Booking))
		r.Post("/appointments/{id}/confirm", transitionHandler(cfg.Booking.Confirm))
		r.Post("/appointments/{id}/cancel", transitionHandler(cfg.Booking.Cancel))
		r.Post("/appointments/{id}/complete", transitionHandler(cfg.Booking.Complete))
		r.Post("/appointments/{id}/no-show", transitionHandler(cfg.Booking.MarkNoShow))

		// Walk-in queue
		r.Post("/providers/{id}/queue", checkInHandler(cfg.Queue))
		r.Get("/providers/{id}/queue", listQueueHandler(cfg.Queue))
		r.Post("/providers/{id}/queue/next", callNextHandler(cfg.Queue))
		r.Post("/queue/{entryId}/complete", completeQueueEntryHandler(cfg.Queue))
	})

	return r
}
