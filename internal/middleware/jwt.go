package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/infest-events/registration/internal/auth"
	"github.com/infest-events/registration/pkg/response"
)

const (
	// ContextStaffID is the key for the staff id in gin context.
	ContextStaffID = "staff_id"
	// ContextUsername is the key for the staff username in gin context.
	ContextUsername = "username"
	// ContextUserRole is the key for the staff role in gin context.
	ContextUserRole = "user_role"
)

// JWT returns a middleware that validates JWT and sets staff claims in context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(strings.TrimSpace(parts[1]))
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextStaffID, claims.StaffID.String())
		c.Set(ContextUsername, claims.Username)
		c.Set(ContextUserRole, claims.Role)
		c.Next()
	}
}
