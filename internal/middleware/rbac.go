package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/care-roster-api/internal/models"
	appErrors "github.com/noah-isme/care-roster-api/pkg/errors"
)

// RequireRoles limits a route to the given roles. It must run after JWT.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil {
			abort(c, appErrors.ErrUnauthorized)
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			abort(c, appErrors.Clone(appErrors.ErrForbidden, "role "+string(claims.Role)+" cannot access this roster operation"))
			return
		}
		c.Next()
	}
}
