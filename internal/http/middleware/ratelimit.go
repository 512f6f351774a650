package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/icoforge/icoforge/internal/models"
	"github.com/icoforge/icoforge/internal/services/ratelimit"
)

// RateLimit counts the request against the client's sliding window and
// rejects with 429 once the window is exhausted. Store outages fail open:
// a broken limiter must not take the conversion endpoint down with it.
func RateLimit(limiter *ratelimit.Limiter, logger *zap.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		decision, err := limiter.CheckAndIncrement(ctx.Request.Context(), ctx.ClientIP(), time.Now())
		if err != nil {
			logger.Error("rate limit check failed", zap.Error(err))
			ctx.Next()
			return
		}

		if decision.Blocked {
			retryAfter := int(math.Ceil(decision.TimeToExpire.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			ctx.Header("Retry-After", strconv.Itoa(retryAfter))
			ctx.AbortWithStatusJSON(http.StatusTooManyRequests, models.APIResponse{
				Success: false,
				Error:   "Rate limit exceeded. Please try again later",
			})
			return
		}

		ctx.Next()
	}
}
