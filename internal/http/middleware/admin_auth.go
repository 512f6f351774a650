package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/icoforge/icoforge/internal/models"
)

const adminPasswordHeader = "X-Admin-Password"

// AdminAuth guards the admin routes. The comparison is constant time, and
// an empty configured password disables the surface entirely.
func AdminAuth(password string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		supplied := ctx.GetHeader(adminPasswordHeader)
		if password == "" ||
			subtle.ConstantTimeCompare([]byte(supplied), []byte(password)) != 1 {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, models.APIResponse{
				Success: false,
				Error:   "Invalid admin password",
			})
			return
		}
		ctx.Next()
	}
}
