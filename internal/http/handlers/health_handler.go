package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/icoforge/icoforge/internal/models"
	"github.com/icoforge/icoforge/internal/services/queue"
	"github.com/icoforge/icoforge/internal/services/workerpool"
)

type HealthHandler struct {
	db     *sqlx.DB
	queue  *queue.Queue
	pool   *workerpool.Pool
	logger *zap.Logger
}

func NewHealthHandler(db *sqlx.DB, q *queue.Queue, pool *workerpool.Pool, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{db: db, queue: q, pool: pool, logger: logger}
}

// HealthCheck probes the database and reports a queue snapshot. The probe
// gates the status code: a down database means degraded rate limiting and
// lost metrics, so the instance is pulled from rotation.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	services := map[string]string{}

	services["database"] = "healthy"
	if h.db == nil {
		services["database"] = "not configured"
	} else if err := h.db.PingContext(c.Request.Context()); err != nil {
		h.logger.Warn("database health check failed", zap.Error(err))
		services["database"] = "unhealthy"
	}

	stats := h.queue.Stats()
	stats.Workers = h.pool.Size()
	services["workers"] = "healthy"
	if stats.Workers == 0 {
		services["workers"] = "unhealthy"
	}

	overall := "ok"
	statusCode := http.StatusOK
	if services["database"] != "healthy" || services["workers"] == "unhealthy" {
		overall = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, models.APIResponse{
		Success: overall == "ok",
		Data: models.HealthCheck{
			Status:    overall,
			Timestamp: time.Now(),
			Services:  services,
			Queue:     &stats,
		},
	})
}
