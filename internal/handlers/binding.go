package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"clockpoint/internal/apperr"
	"clockpoint/internal/middleware"
	"clockpoint/internal/models"
	"clockpoint/internal/security"
)

func init() {
	// Report validation failures under their wire names.
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
	}
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		middleware.Abort(c, bindError(err))
		return false
	}
	return true
}

func bindError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]apperr.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, apperr.FieldError{
				Name:      fe.Field(),
				Message:   fmt.Sprintf("failed on the %q rule", fe.Tag()),
				ErrorCode: fe.Tag(),
			})
		}
		return apperr.Validation(fields...)
	}
	return apperr.ErrValidation.WithMessage("malformed request body").Wrap(err)
}

// actor returns the authenticated user. Routes reaching it are behind Auth.
func actor(c *gin.Context) (models.User, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		middleware.Abort(c, security.ErrTokenMissing)
	}
	return user, ok
}

func requiredQuery(c *gin.Context, name string) (string, bool) {
	v := strings.TrimSpace(c.Query(name))
	if v == "" {
		middleware.Abort(c, apperr.Validation(apperr.FieldError{Name: name, Message: "query parameter is required", ErrorCode: "required"}))
		return "", false
	}
	return v, true
}

// timeQuery parses an optional RFC3339 query parameter.
func timeQuery(c *gin.Context, name string) (*time.Time, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		middleware.Abort(c, apperr.Validation(apperr.FieldError{Name: name, Message: "expected an RFC3339 timestamp", ErrorCode: "invalid_time"}))
		return nil, false
	}
	return &t, true
}

// listQuery accepts both repeated parameters and comma separated values.
func listQuery(c *gin.Context, name string) []string {
	var out []string
	for _, raw := range c.QueryArray(name) {
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

func boolQuery(c *gin.Context, name string) bool {
	switch strings.ToLower(strings.TrimSpace(c.Query(name))) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
