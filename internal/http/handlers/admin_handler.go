package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/icoforge/icoforge/internal/models"
	"github.com/icoforge/icoforge/internal/services/metrics"
)

const defaultFailureLimit = 50

// AdminHandler serves the password-protected stats surface. Authentication
// happens in middleware before any of these run.
type AdminHandler struct {
	store  metrics.Store
	logger *zap.Logger
}

func NewAdminHandler(store metrics.Store, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{store: store, logger: logger}
}

// GetSummary returns aggregate conversion counts and per-format breakdowns.
func (h *AdminHandler) GetSummary(c *gin.Context) {
	summary, err := h.store.Summary(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to load metrics summary", zap.Error(err))
		h.respondError(c, http.StatusInternalServerError, "Failed to load stats")
		return
	}

	c.JSON(http.StatusOK, models.APIResponse{Success: true, Data: summary})
}

// GetFailures returns the most recent failed conversions.
func (h *AdminHandler) GetFailures(c *gin.Context) {
	limit := defaultFailureLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			h.respondError(c, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	failures, err := h.store.RecentFailures(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("failed to load recent failures", zap.Error(err))
		h.respondError(c, http.StatusInternalServerError, "Failed to load failures")
		return
	}

	c.JSON(http.StatusOK, models.APIResponse{Success: true, Data: failures})
}

// DeleteFailures clears failure records after investigation.
func (h *AdminHandler) DeleteFailures(c *gin.Context) {
	deleted, err := h.store.DeleteFailures(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to delete failure records", zap.Error(err))
		h.respondError(c, http.StatusInternalServerError, "Failed to delete failures")
		return
	}

	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Data:    gin.H{"deleted": deleted},
	})
}

func (h *AdminHandler) respondError(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, models.APIResponse{
		Success: false,
		Error:   message,
	})
}
