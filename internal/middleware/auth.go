package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"clockpoint/internal/models"
	"clockpoint/internal/security"
)

const (
	currentUserKey   = "current_user"
	accessPayloadKey = "access_payload"

	// accessTokenQuery carries the bearer token for clients that cannot set
	// headers, such as browser websockets.
	accessTokenQuery = "access_token"
)

// Authenticator resolves a raw ACCESS token to its user.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (models.User, security.Payload, error)
}

// Auth requires "Authorization: <prefix> <token>" and stores the resolved
// user on the context.
func Auth(prefix string, auth Authenticator) gin.HandlerFunc {
	if prefix == "" {
		prefix = "Bearer"
	}
	return func(c *gin.Context) {
		raw, ok := bearer(c.GetHeader("Authorization"), prefix)
		if !ok {
			raw = c.Query(accessTokenQuery)
		}
		if raw == "" {
			Abort(c, security.ErrTokenMissing)
			return
		}

		user, payload, err := auth.Authenticate(c.Request.Context(), raw)
		if err != nil {
			Abort(c, err)
			return
		}

		c.Set(currentUserKey, user)
		c.Set(accessPayloadKey, payload)
		c.Next()
	}
}

func bearer(header, prefix string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, prefix) {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func CurrentUser(c *gin.Context) (models.User, bool) {
	v, ok := c.Get(currentUserKey)
	if !ok {
		return models.User{}, false
	}
	user, ok := v.(models.User)
	return user, ok
}
