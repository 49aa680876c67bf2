package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/uptrace/bun"

	"clinicbook/internal/cache"
	"clinicbook/internal/service/booking"
)

type RouterConfig struct {
	Service *booking.Service
	DB      *bun.DB
	Cache   cache.Provider
	Log     *slog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))

	health := NewHealthHandler(cfg.DB, cfg.Cache)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	h := &handlers{svc: cfg.Service}

	r.Put("/providers/{providerID}/availability", h.publishAvailability)
	r.Get("/providers/{providerID}/slots", h.listFreeSlots)
	r.Get("/providers/{providerID}/day-sheet", h.listDaySheet)
	r.Get("/providers/{providerID}/appointments", h.listProviderAppointments)

	r.Post("/appointments", h.book)
	r.Get("/appointments/{id}", h.getAppointment)
	r.Post("/appointments/{id}/cancel", h.cancel)
	r.Post("/appointments/{id}/reschedule", h.reschedule)
	r.Post("/appointments/{id}/complete", h.complete)

	r.Get("/requesters/{requesterID}/appointments", h.listRequesterAppointments)

	return r
}
