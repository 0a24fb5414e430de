package admin

import (
	"net/http"

	"banana/storage-api/internal"
	"banana/storage-api/internal/apperr"

	"github.com/gin-gonic/gin"
)

// quotaBytes is a pointer so that null clears the override
type quotaBody struct {
	Username   string `json:"username"`
	QuotaBytes *int64 `json:"quotaBytes"`
}

func AdminSetQuota(c *gin.Context, d *internal.Deps) {
	requestID := c.MustGet("requestID").(string)

	var data quotaBody
	if err := c.ShouldBindJSON(&data); err != nil || data.Username == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Username is required",
			"requestID": requestID,
		})
		return
	}

	if err := d.Quota.SetOverride(data.Username, data.QuotaBytes); err != nil {
		apperr.Abort(c, err)
		return
	}

	_, quota, err := d.Quota.Summary(data.Username, false)
	if err != nil {
		apperr.Abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":       true,
		"username": data.Username,
		"quota":    quota,
	})
}
