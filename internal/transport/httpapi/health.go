package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/uptrace/bun"

	"clinicbook/internal/cache"
)

type HealthHandler struct {
	db    *bun.DB
	cache cache.Provider
}

// NewHealthHandler wires the readiness probes. db and cache may be nil
// when the corresponding backend is not configured.
func NewHealthHandler(db *bun.DB, c cache.Provider) *HealthHandler {
	return &HealthHandler{db: db, cache: c}
}

type LivenessResponse struct {
	Status string `json:"status"`
}

type ReadinessResponse struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{Status: "ok"})
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	deps := make(map[string]string)
	status := "ok"

	if h.db != nil {
		if err := h.db.PingContext(ctx); err != nil {
			deps["postgres"] = "down"
			status = "error"
		} else {
			deps["postgres"] = "ok"
		}
	}

	if h.cache != nil {
		// A tiny read distinguishes a reachable cache from a dead one.
		if _, err := h.cache.Get(ctx, "health:probe"); err != nil && !cache.Miss(err) {
			deps["redis"] = "down"
			if status == "ok" {
				status = "degraded"
			}
		} else {
			deps["redis"] = "ok"
		}
	}

	httpStatus := http.StatusOK
	if status == "error" {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, ReadinessResponse{Status: status, Dependencies: deps})
}
