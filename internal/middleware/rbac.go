package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sortify-api/internal/models"
	appErrors "github.com/noah-isme/sortify-api/pkg/errors"
	"github.com/noah-isme/sortify-api/pkg/response"
)

// RequireAdmin allows only sessions carrying the admin role. It must run after JWT.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		value, exists := c.Get(ContextUserKey)
		if !exists {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		claims, ok := value.(*models.JWTClaims)
		if !ok || !claims.IsAdmin() {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorizedActor, "admin role required"))
			c.Abort()
			return
		}
		c.Next()
	}
}
