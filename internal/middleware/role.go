package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/infest-events/registration/internal/models"
	"github.com/infest-events/registration/pkg/response"
)

// RequireRole allows only staff whose token carries one of roles. It must run after JWT.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		role := c.GetString(ContextUserRole)
		if role == "" {
			response.Unauthorized(c, "missing staff context")
			c.Abort()
			return
		}
		if _, ok := allowed[models.Role(role)]; !ok {
			response.Forbidden(c, "insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}
