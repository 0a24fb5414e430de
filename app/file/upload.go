// Package file contains the image endpoints and the /files route
package file

import (
	"errors"
	"net/http"

	"banana/storage-api/internal"
	"banana/storage-api/internal/apperr"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type uploadBody struct {
	DataURL      string `json:"dataUrl"`
	ThumbDataURL string `json:"thumbDataUrl"`
}

func FileUpload(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)
	username := c.MustGet("username").(string)

	var data uploadBody
	if err := c.ShouldBindJSON(&data); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":     "Request body size exceeds limit",
				"requestID": requestID,
			})
			return
		}

		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid request body",
			"requestID": requestID,
		})

		zap.L().Debug("Can't bind request body", zap.Error(err), zap.String("requestID", requestID))
		return
	}

	if data.DataURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Missing dataUrl",
			"requestID": requestID,
		})
		return
	}

	f, err := d.Files.SaveDataURL(c.Request.Context(), username, c.Param("kind"), data.DataURL, data.ThumbDataURL)
	if err != nil {
		apperr.Abort(c, err)
		return
	}

	zap.L().Debug("Image stored",
		zap.String("username", username),
		zap.String("name", f.Name),
		zap.Int64("size", f.Size),
		zap.String("requestID", requestID))

	c.JSON(http.StatusOK, gin.H{
		"ok":   true,
		"file": f,
	})
}
