package user

import (
	"net/http"

	"banana/storage-api/internal"
	"banana/storage-api/internal/apperr"
	"banana/storage-api/pkg/security"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func UserLogin(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)

	var data credentialsBody
	if err := c.ShouldBindJSON(&data); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid request body",
			"requestID": requestID,
		})

		zap.L().Debug("Can't bind request body", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	token, u, err := d.Users.Login(data.Username, data.Password)
	if err != nil {
		apperr.Abort(c, err)
		return
	}

	// No Max-Age, the expiry lives in the token itself
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(security.CookieName, token, 0, "/", "", secureCookie(c, d), true)

	c.JSON(http.StatusOK, gin.H{
		"ok":       true,
		"username": u.Username,
		"isAdmin":  u.IsAdmin,
	})
}

func UserLogout(c *gin.Context, d *internal.Deps) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(security.CookieName, "", -1, "/", "", secureCookie(c, d), true)

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Cookies are only marked secure in production and when the request came in
// over HTTPS, directly or through a proxy
func secureCookie(c *gin.Context, d *internal.Deps) bool {
	if !d.Config.Production {
		return false
	}

	return c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https"
}
