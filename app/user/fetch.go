package user

import (
	"net/http"

	"banana/storage-api/internal"
	"banana/storage-api/internal/apperr"

	"github.com/gin-gonic/gin"
)

// UserFetch returns the logged in user together with their usage and quota
func UserFetch(c *gin.Context, d *internal.Deps) {
	username := c.MustGet("username").(string)

	u, err := d.Users.Get(username)
	if err != nil {
		apperr.Abort(c, err)
		return
	}

	usage, quota, err := d.Quota.Summary(username, false)
	if err != nil {
		apperr.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"username":  u.Username,
		"isAdmin":   u.IsAdmin,
		"createdAt": u.CreatedAt,
		"usage":     usage,
		"quota":     quota,
	})
}

// UserUsage returns the usage counters, ?recompute=1 rebuilds them from disk
func UserUsage(c *gin.Context, d *internal.Deps) {
	username := c.MustGet("username").(string)
	recompute := c.Query("recompute") == "1" || c.Query("recompute") == "true"

	usage, quota, err := d.Quota.Summary(username, recompute)
	if err != nil {
		apperr.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"usage": usage,
		"quota": quota,
	})
}
