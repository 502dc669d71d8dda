package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tc-schedule-api/internal/models"
	appErrors "github.com/noah-isme/tc-schedule-api/pkg/errors"
	"github.com/noah-isme/tc-schedule-api/pkg/response"
)

// RBAC enforces role-based access control for routes.
func RBAC(allowed ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := Actor(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		for _, a := range allowed {
			if models.UserRole(a) == claims.Role {
				c.Next()
				return
			}
		}

		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "role is not allowed to access this resource"))
		c.Abort()
	}
}

// RequireStaff admits the academic staff roles plus any extra roles given.
func RequireStaff(extra ...models.UserRole) gin.HandlerFunc {
	roles := append(append([]models.UserRole{}, models.StaffRoles...), extra...)
	return RequireRoles(roles...)
}

// RequireRoles is a helper that accepts a list of roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make([]string, len(roles))
	for i, r := range roles {
		allowed[i] = string(r)
	}
	return RBAC(allowed...)
}
