package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/consultportal/portal/pkg/errors"
	"github.com/consultportal/portal/pkg/response"
)

// RequireRole allows the request through only when the authenticated caller
// holds one of roles. It must run after Auth.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFromContext(c)
		if !ok {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !claims.HasRole(roles...) {
			response.Error(c, errors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
