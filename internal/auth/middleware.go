package auth

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ezchat-cam/coordinator/pkg/response"
)

// ctxUsername is the gin context key for the authenticated username. It
// matches pkg/log.FieldUsername so the request logger picks it up.
const ctxUsername = "username"

// RequireAuth validates the bearer token and stores the caller's username in
// the gin context. Tokens are read from the Authorization header or, for
// EventSource and WebSocket clients that cannot set headers, from the token
// query parameter.
func RequireAuth(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			response.Unauthorized(c, "missing token")
			c.Abort()
			return
		}

		claims, err := m.Validate(token)
		if err != nil {
			response.Unauthorized(c, err.Error())
			c.Abort()
			return
		}

		c.Set(ctxUsername, claims.Username)
		c.Next()
	}
}

// GetUsername returns the authenticated username set by RequireAuth.
func GetUsername(c *gin.Context) string {
	username, _ := c.Get(ctxUsername)
	s, _ := username.(string)
	return s
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok && after != "" {
		return after
	}
	return c.Query("token")
}
