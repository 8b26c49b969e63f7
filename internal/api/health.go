package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// pinger abstracts the dependency health probes.
type pinger interface {
	Ping(ctx context.Context) error
}

type pgPinger struct{ pool *pgxpool.Pool }

func (p pgPinger) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

type redisPinger struct{ client *redis.Client }

func (p redisPinger) Ping(ctx context.Context) error { return p.client.Ping(ctx).Err() }

// HealthHandler reports liveness and whether the scheduler can currently
// take bookings. Postgres down means not ready at all; Redis down only
// suspends booking and queue writes, which need the provider lock, while
// availability reads keep working.
type HealthHandler struct {
	db      pinger
	lock    pinger
	env     string
	version string
}

func NewHealthHandler(pgPool *pgxpool.Pool, rdb *redis.Client, env, version string) *HealthHandler {
	return &HealthHandler{
		db:      pgPinger{pool: pgPool},
		lock:    redisPinger{client: rdb},
		env:     env,
		version: version,
	}
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Env     string `json:"env,omitempty"`
}

type ReadinessResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Env     string            `json:"env,omitempty"`
	Booking string            `json:"booking"`
	Checks  map[string]string `json:"checks"`
}

const (
	bookingAccepting = "accepting"
	bookingSuspended = "suspended"
)

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{
		Status:  "ok",
		Version: h.version,
		Env:     h.env,
	})
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string)
	status := "ok"
	booking := bookingAccepting

	dbCtx, dbCancel := context.WithTimeout(ctx, 1*time.Second)
	err := h.db.Ping(dbCtx)
	dbCancel()
	if err != nil {
		checks["database"] = "down"
		status = "error"
		booking = bookingSuspended
	} else {
		checks["database"] = "ok"
	}

	lockCtx, lockCancel := context.WithTimeout(ctx, 1*time.Second)
	err = h.lock.Ping(lockCtx)
	lockCancel()
	if err != nil {
		checks["lock_service"] = "down"
		booking = bookingSuspended
		if status == "ok" {
			status = "degraded"
		}
	} else {
		checks["lock_service"] = "ok"
	}

	httpStatus := http.StatusOK
	if status == "error" {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, ReadinessResponse{
		Status:  status,
		Version: h.version,
		Env:     h.env,
		Booking: booking,
		Checks:  checks,
	})
}
