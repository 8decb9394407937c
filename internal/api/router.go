package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/glowgrid/spa-booking-engine/pkg/logging"
)

type RouterConfig struct {
	Bookings     BookingService
	Reschedules  RescheduleService
	Transitions  TransitionService
	Appointments AppointmentReader
	PgPool       *pgxpool.Pool
	Redis        *redis.Client
	Env          string
	Version      string
	Logger       *logging.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/bookings", bookHandler(cfg.Bookings))
	r.Get("/appointments", listAppointmentsHandler(cfg.Appointments))
	r.Post("/appointments/{id}/reschedule", rescheduleHandler(cfg.Reschedules))
	r.Post("/appointments/{id}/transition", transitionHandler(cfg.Transitions))

	return r
}
