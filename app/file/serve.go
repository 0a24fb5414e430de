package file

import (
	"net/http"
	"os"

	"banana/storage-api/internal"
	"banana/storage-api/internal/storage"
	"banana/storage-api/pkg/middleware"
	"banana/storage-api/pkg/validators"

	"github.com/gin-gonic/gin"
)

// FileServe serves /files/:username/*rel. The checks run in a fixed order:
// valid token, path stays inside the user's directory, caller owns the
// directory or is an admin.
func FileServe(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)

	p, ok := middleware.Authenticate(c, d.Secret)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"error":     "Authorization token invalid or expired",
			"requestID": requestID,
		})
		return
	}

	username := c.Param("username")
	if validators.UsernameValidator(username) != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid path",
			"requestID": requestID,
		})
		return
	}

	rel := c.Param("rel")
	abs, err := storage.Resolve(d.Layout.UserDir(username), rel)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid path",
			"requestID": requestID,
		})
		return
	}

	if p.Username != username && !p.IsAdmin {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error":     "You don't have access to this file",
			"requestID": requestID,
		})
		return
	}

	info, err := os.Stat(abs)
	if err != nil || !info.Mode().IsRegular() || !storage.Servable(rel) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
			"error":     "File not found",
			"requestID": requestID,
		})
		return
	}

	c.Header("Cache-Control", "private, max-age=31536000, immutable")
	c.File(abs)
}
