package favorite

import (
	"encoding/json"
	"errors"
	"net/http"

	"banana/storage-api/internal"
	"banana/storage-api/internal/apperr"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// FavoriteSave accepts {"item": {...}} or the bare item. Numbers are kept as
// written so numeric ids round-trip exactly.
func FavoriteSave(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)
	username := c.MustGet("username").(string)

	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()

	var body map[string]any
	if err := dec.Decode(&body); err != nil || body == nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":     "Request body size exceeds limit",
				"requestID": requestID,
			})
			return
		}

		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Request body must be a JSON object",
			"requestID": requestID,
		})

		zap.L().Debug("Can't decode favorite", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	var item any = body
	if wrapped, ok := body["item"]; ok && len(body) == 1 {
		item = wrapped
	}

	saved, err := d.Favorites.Save(c.Request.Context(), username, c.Param("type"), item)
	if err != nil {
		apperr.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":   true,
		"item": saved,
	})
}
