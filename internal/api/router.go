package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinichq/scheduling/internal/booking"
	"github.com/clinichq/scheduling/internal/waitlist"
	"github.com/clinichq/scheduling/internal/workflow"
)

type RouterConfig struct {
	Bookings      *booking.Service
	Waitlist      *waitlist.Service
	Engine        *workflow.Engine
	WorkflowStore *workflow.Store
	PgPool        *pgxpool.Pool
	Redis         *redis.Client
	Logger        zerolog.Logger
	Env           string
	Version       string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	// Appointment endpoints
	r.Post("/appointments", createAppointmentHandler(cfg.Bookings))
	r.Get("/appointments", listAppointmentsHandler(cfg.Bookings))
	r.Get("/appointments/{id}", getAppointmentHandler(cfg.Bookings))
	r.Post("/appointments/{id}/reschedule", rescheduleAppointmentHandler(cfg.Bookings))
	r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Bookings))
	r.Post("/appointments/{id}/no-show", noShowAppointmentHandler(cfg.Bookings))
	r.Post("/appointments/{id}/complete", completeAppointmentHandler(cfg.Bookings))
	r.Get("/appointments/{id}/workflows", listWorkflowsHandler(cfg.WorkflowStore))

	// Agenda
	r.Get("/availability", availabilityHandler(cfg.Bookings))

	// Waitlist endpoints
	r.Post("/waitlist", createWaitlistHandler(cfg.Waitlist))
	r.Get("/waitlist", listWaitlistHandler(cfg.Waitlist))
	r.Delete("/waitlist/{id}", removeWaitlistHandler(cfg.Waitlist))
	r.Post("/waitlist/{id}/matches", matchWaitlistHandler(cfg.Waitlist))
	r.Post("/waitlist/{id}/accept", acceptWaitlistHandler(cfg.Waitlist))

	// Public action links, reached from patient messages
	r.Get("/a/confirm", confirmActionHandler(cfg.Engine))
	r.Get("/a/reschedule", rescheduleActionHandler(cfg.Engine))
	r.Get("/a/review", reviewActionHandler(cfg.Engine))

	return r
}
