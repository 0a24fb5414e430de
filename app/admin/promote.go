// Package admin contains the endpoints only admins can call
package admin

import (
	"net/http"

	"banana/storage-api/internal"
	"banana/storage-api/internal/apperr"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type promoteBody struct {
	Username string `json:"username"`
}

func AdminPromote(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)

	var data promoteBody
	if err := c.ShouldBindJSON(&data); err != nil || data.Username == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Username is required",
			"requestID": requestID,
		})
		return
	}

	u, err := d.Users.Promote(data.Username)
	if err != nil {
		apperr.Abort(c, err)
		return
	}

	zap.L().Info("Admin promoted user",
		zap.String("by", c.GetString("username")),
		zap.String("username", u.Username),
		zap.String("requestID", requestID))

	c.JSON(http.StatusOK, gin.H{
		"ok":       true,
		"username": u.Username,
		"isAdmin":  u.IsAdmin,
	})
}

func AdminUsers(c *gin.Context, d *internal.Deps) {
	users, err := d.Users.List()
	if err != nil {
		apperr.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"users": users})
}
