package middleware

import (
	"net/http"

	"affluence/internal/domain"

	"github.com/gin-gonic/gin"
)

// AdminRequired lets admins and subadmins through.
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch GetRole(c) {
		case domain.RoleAdmin, domain.RoleSubadmin:
			c.Next()
		default:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
		}
	}
}
