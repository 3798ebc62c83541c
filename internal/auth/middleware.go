package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"rollcall/internal/guard"
)

const sessionKey = "session"

// SessionFromContext returns the rehydrated session set by Require.
func SessionFromContext(c *gin.Context) (*guard.Session, bool) {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil, false
	}
	sess, ok := v.(*guard.Session)
	return sess, ok
}

// Require enforces bearer-token access to a protected route group. The token
// is resolved through one identity round trip, then the guard decides: 401
// sends the actor to sign-in, 403 to the unauthorized notice. An empty
// allowed set admits any authenticated actor.
func Require(rehydrator *guard.Rehydrator, allowed guard.RoleSet) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		state := rehydrator.Resolve(c.Request.Context(), token)

		switch guard.Evaluate(state, true, allowed) {
		case guard.Allow:
			c.Set(sessionKey, state.Session)
			c.Next()
		case guard.RedirectToUnauthorized:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
		default:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "sign in required"})
		}
	}
}

func bearerToken(authz string) string {
	if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return ""
	}
	return strings.TrimSpace(authz[len("bearer "):])
}
