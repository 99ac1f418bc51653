package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"clockpoint/internal/apperr"
)

func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Interface("panic", r).
					Str("path", c.Request.URL.Path).
					Str("request_id", c.Writer.Header().Get(RequestIDHeader)).
					Msg("panic recovered")
				status, body := apperr.Render(apperr.ErrInternal)
				c.AbortWithStatusJSON(status, body)
			}
		}()
		c.Next()
	}
}
