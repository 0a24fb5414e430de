package file

import (
	"net/http"

	"banana/storage-api/internal"
	"banana/storage-api/internal/apperr"

	"github.com/gin-gonic/gin"
)

// FileFetchBulk lists every image of a kind, newest first
func FileFetchBulk(c *gin.Context, d *internal.Deps) {
	username := c.MustGet("username").(string)

	files, err := d.Files.List(username, c.Param("kind"))
	if err != nil {
		apperr.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"files": files})
}
