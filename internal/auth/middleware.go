package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const contextKey = "auth.user"

// Bearer enforces bearer JWT tokens signed with HS256 and stores the
// authenticated user on the gin context.
func Bearer(signingKey, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		user, err := Parse(tokenStr, signingKey, issuer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(contextKey, user)
		c.Next()
	}
}

// Require aborts with 403 unless the authenticated user can perform op.
func Require(op Operation) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := FromContext(c)
		if !ok || !user.Can(op) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not permitted", "code": "NotPermitted"})
			return
		}
		c.Next()
	}
}

// FromContext returns the authenticated user stored by Bearer.
func FromContext(c *gin.Context) (User, bool) {
	v, ok := c.Get(contextKey)
	if !ok {
		return User{}, false
	}
	user, ok := v.(User)
	return user, ok
}
