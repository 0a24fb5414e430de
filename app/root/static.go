package root

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"banana/storage-api/internal"
	"banana/storage-api/internal/storage"

	"github.com/gin-gonic/gin"
)

// Static serves the front-end from the static directory. Unknown paths fall
// back to index.html, except under /api/ and /files/.
func Static(c *gin.Context, d *internal.Deps) {
	requestID := c.GetString("requestID")
	reqPath := c.Request.URL.Path

	if (c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead) ||
		strings.HasPrefix(reqPath, "/api/") || strings.HasPrefix(reqPath, "/files/") {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
			"error":     "Not found",
			"requestID": requestID,
		})
		return
	}

	rel := strings.TrimPrefix(reqPath, "/")
	if rel == "" {
		rel = "index.html"
	}

	p, err := storage.Resolve(d.Config.StaticDir, rel)
	if err != nil {
		if errors.Is(err, storage.ErrPathEscape) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":     "Invalid path",
				"requestID": requestID,
			})
			return
		}

		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":     "Internal server error",
			"requestID": requestID,
		})
		return
	}

	if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
		c.File(p)
		return
	}

	index := filepath.Join(d.Config.StaticDir, "index.html")
	if info, err := os.Stat(index); err == nil && info.Mode().IsRegular() {
		c.File(index)
		return
	}

	c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
		"error":     "Not found",
		"requestID": requestID,
	})
}
