// Package favorite contains the endpoints for presets, chats and collections
package favorite

import (
	"net/http"

	"banana/storage-api/internal"
	"banana/storage-api/internal/apperr"

	"github.com/gin-gonic/gin"
)

func FavoriteList(c *gin.Context, d *internal.Deps) {
	username := c.MustGet("username").(string)

	items, err := d.Favorites.List(username, c.Param("type"))
	if err != nil {
		apperr.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}
