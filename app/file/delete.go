package file

import (
	"net/http"

	"banana/storage-api/internal"
	"banana/storage-api/internal/apperr"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func FileDelete(c *gin.Context, d *internal.Deps) {
	username := c.MustGet("username").(string)

	err := d.Files.Delete(c.Request.Context(), username, c.Param("kind"), c.Param("name"))
	if err != nil {
		apperr.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// FileClear deletes every image of a kind
func FileClear(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)
	username := c.MustGet("username").(string)

	n, err := d.Files.Clear(c.Request.Context(), username, c.Param("kind"))
	if err != nil {
		apperr.Abort(c, err)
		return
	}

	zap.L().Debug("Images cleared", zap.String("username", username), zap.Int("count", n), zap.String("requestID", requestID))

	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"deleted": n,
	})
}
