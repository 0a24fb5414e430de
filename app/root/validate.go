package root

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Validate is only reached with a valid token
func Validate(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok":       true,
		"username": c.GetString("username"),
		"isAdmin":  c.GetBool("isAdmin"),
	})
}
