package favorite

import (
	"net/http"

	"banana/storage-api/internal"
	"banana/storage-api/internal/apperr"

	"github.com/gin-gonic/gin"
)

// FavoriteDelete succeeds for unknown ids too
func FavoriteDelete(c *gin.Context, d *internal.Deps) {
	username := c.MustGet("username").(string)

	if err := d.Favorites.Delete(c.Request.Context(), username, c.Param("type"), c.Param("id")); err != nil {
		apperr.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}
