package middleware

import (
	"net/http"
	"strings"

	"banana/storage-api/pkg/security"

	"github.com/gin-gonic/gin"
)

// Token returns the auth token from the cookie, falling back to a bearer
// Authorization header
func Token(c *gin.Context) string {
	if token, err := c.Cookie(security.CookieName); err == nil && token != "" {
		return token
	}

	if token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}

	return ""
}

// Authenticate verifies the token and sets username and isAdmin. isAdmin is
// the claim from the token, handlers that grant privileges check the user
// record instead.
func Authenticate(c *gin.Context, secret []byte) (security.TokenPayload, bool) {
	p, ok := security.VerifyToken(secret, Token(c))
	if !ok {
		return security.TokenPayload{}, false
	}

	c.Set("username", p.Username)
	c.Set("isAdmin", p.IsAdmin)

	return p, true
}

func NewAuthMiddleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := Authenticate(c, secret); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":     "Authorization token invalid or expired",
				"requestID": c.GetString("requestID"),
			})
			return
		}

		c.Next()
	}
}

// NewAdminMiddleware must run after NewAuthMiddleware. isAdmin reports the
// current flag from the user store so promotions apply without a new login.
func NewAdminMiddleware(isAdmin func(username string) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isAdmin(c.GetString("username")) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":     "Admin access required",
				"requestID": c.GetString("requestID"),
			})
			return
		}

		c.Set("isAdmin", true)
		c.Next()
	}
}
