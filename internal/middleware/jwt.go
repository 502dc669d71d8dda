package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tc-schedule-api/internal/models"
	appErrors "github.com/noah-isme/tc-schedule-api/pkg/errors"
	"github.com/noah-isme/tc-schedule-api/pkg/response"
)

// Context keys written by JWT. The id and role are plain strings so request
// logging can read them without the claims type.
const (
	ContextActorKey     = "actor"
	ContextActorIDKey   = "actor_id"
	ContextActorRoleKey = "actor_role"
)

type tokenValidator interface {
	ValidateToken(token string) (*models.JWTClaims, error)
}

// JWT authenticates the caller as a student, teacher or staff actor.
func JWT(tokens tokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		claims, err := tokens.ValidateToken(token)
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}
		if err := checkActor(claims); err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextActorKey, claims)
		c.Set(ContextActorIDKey, claims.UserID)
		c.Set(ContextActorRoleKey, string(claims.Role))
		c.Next()
	}
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", appErrors.ErrUnauthorized
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header")
	}
	return strings.TrimSpace(token), nil
}

// checkActor admits only tokens naming a user in one of the request roles.
func checkActor(claims *models.JWTClaims) error {
	if claims == nil || strings.TrimSpace(claims.UserID) == "" {
		return appErrors.Clone(appErrors.ErrUnauthorized, "token does not identify a user")
	}
	if claims.Role == models.RoleStudent || claims.Role == models.RoleTeacher || claims.Role.IsStaff() {
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, "role cannot act on scheduling requests")
}

// Actor returns the authenticated claims, or nil outside JWT-protected routes.
func Actor(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(ContextActorKey)
	if !exists {
		return nil
	}
	claims, _ := value.(*models.JWTClaims)
	return claims
}
