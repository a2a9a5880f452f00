package middleware

import (
	"net/http"

	"hospital-waiting-room/internal/models"
	"hospital-waiting-room/pkg/utils"

	"github.com/gin-gonic/gin"
)

// RequireRole lets the request through when the caller holds one of roles.
// Admins pass every role check.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles)+1)
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	allowed[models.RoleAdmin] = struct{}{}

	return func(c *gin.Context) {
		role, exists := c.Get(ContextRole)
		if !exists {
			utils.ErrorResponse(c, http.StatusUnauthorized, "Authentication required")
			c.Abort()
			return
		}

		roleStr, _ := role.(string)
		if _, ok := allowed[roleStr]; !ok {
			utils.ErrorResponse(c, http.StatusForbidden, "Insufficient role for this action")
			c.Abort()
			return
		}

		c.Next()
	}
}

// RequireAdmin checks if the authenticated user has admin role
func RequireAdmin() gin.HandlerFunc {
	return RequireRole(models.RoleAdmin)
}
