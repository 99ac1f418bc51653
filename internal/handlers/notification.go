package handlers

import (
	"fmt"
	"slices"

	"github.com/gin-gonic/gin"

	"clockpoint/internal/apperr"
	"clockpoint/internal/middleware"
	"clockpoint/internal/notify"
)

// Notifications upgrades to a websocket streaming the requested event types,
// or every known type when events is empty.
func (h HandlerSet) Notifications(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	events := listQuery(c, "events")
	for _, ev := range events {
		if !slices.Contains(notify.KnownEvents, ev) {
			middleware.Abort(c, apperr.Validation(apperr.FieldError{
				Name:      "events",
				Message:   fmt.Sprintf("unknown event type %q", ev),
				ErrorCode: "unknown_event",
			}))
			return
		}
	}
	if len(events) == 0 {
		events = notify.KnownEvents
	}
	h.ws.Serve(c.Writer, c.Request, user.ID, events)
}
