package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"

	"github.com/onurcolak/broadcast-dispatch-service/environments"
	"github.com/onurcolak/broadcast-dispatch-service/internal/domain"
	"github.com/onurcolak/broadcast-dispatch-service/pkg/redis"
)

type jobCounter interface {
	CountByStatus(ctx context.Context) (map[domain.JobStatus]int64, error)
}

// HealthHandler handles health checks.
type HealthHandler struct {
	db           *sqlx.DB
	redis        *redis.Client
	jobs         jobCounter
	queue        environments.QueueConfig
	checkTimeout time.Duration
}

func NewHealthHandler(
	db *sqlx.DB,
	redisClient *redis.Client,
	jobs jobCounter,
	queueCfg environments.QueueConfig,
) *HealthHandler {
	return &HealthHandler{
		db:           db,
		redis:        redisClient,
		jobs:         jobs,
		queue:        queueCfg,
		checkTimeout: 2 * time.Second,
	}
}

// Health returns overall status and component statuses: database, Valkey,
// the dispatch queue (with its backlog when it lives in Valkey) and the
// number of broadcasts that are still active.
// @Summary Health check
// @Description Returns overall status with DB and Valkey connectivity and the dispatch queue driver
// @Tags health
// @Accept json
// @Produce json
// @Success 200 {object} map[string]any
// @Router /health [get]
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.checkTimeout)
	defer cancel()

	overallStatus := "ok"

	dbStatus := "up"
	if h.db == nil {
		dbStatus = "down"
		overallStatus = "down"
	} else if err := h.db.PingContext(ctx); err != nil {
		dbStatus = "down"
		overallStatus = "down"
	}

	redisStatus := "disabled"
	if h.redis != nil {
		if err := h.redis.Ping(ctx); err != nil {
			redisStatus = "down"
			overallStatus = "degraded"
		} else {
			redisStatus = "up"
		}
	}

	queue := map[string]any{"driver": h.queue.Driver}
	if redisStatus == "up" && (h.queue.Driver == "valkey" || h.queue.Driver == "redis") {
		if backlog, err := h.redis.Len(ctx, h.queue.Name); err == nil {
			queue["backlog"] = backlog
		}
	}

	broadcasts := map[string]any{}
	if dbStatus == "up" && h.jobs != nil {
		if counts, err := h.jobs.CountByStatus(ctx); err == nil {
			for _, st := range []domain.JobStatus{domain.JobQueued, domain.JobRunning, domain.JobPaused} {
				broadcasts[string(st)] = counts[st]
			}
		}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"components": map[string]any{
			"database": map[string]any{
				"status": dbStatus,
			},
			"redis": map[string]any{
				"status": redisStatus,
			},
			"queue":      queue,
			"broadcasts": broadcasts,
		},
	})
}
