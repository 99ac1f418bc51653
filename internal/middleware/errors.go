package middleware

import (
	"github.com/gin-gonic/gin"

	"clockpoint/internal/apperr"
)

// Abort renders err as the error envelope and stops the chain.
func Abort(c *gin.Context, err error) {
	_ = c.Error(err)
	status, body := apperr.Render(err)
	c.AbortWithStatusJSON(status, body)
}
