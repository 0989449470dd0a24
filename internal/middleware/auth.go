package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"carelink-backend/internal/domain"
	"carelink-backend/pkg/jwt"
	"carelink-backend/pkg/response"
)

const identityKey = "identity"

// Auth validates the bearer token and stores the caller's identity in
// the request context.
func Auth(tokens *jwt.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "Authorization header required")
			c.Abort()
			return
		}

		parts := strings.Split(header, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "Invalid authorization header format")
			c.Abort()
			return
		}

		identity, err := tokens.Resolve(parts[1])
		if err != nil {
			response.Unauthorized(c, "Invalid token")
			c.Abort()
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// RequireRole rejects callers whose role does not match.
func RequireRole(role domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := Identity(c)
		if identity == nil || identity.Role != role {
			response.Forbidden(c, "Insufficient role")
			c.Abort()
			return
		}
		c.Next()
	}
}

// Identity returns the authenticated caller, or nil on unauthenticated
// routes.
func Identity(c *gin.Context) *domain.Identity {
	value, ok := c.Get(identityKey)
	if !ok {
		return nil
	}
	identity, ok := value.(*domain.Identity)
	if !ok {
		return nil
	}
	return identity
}
