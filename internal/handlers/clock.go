package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"clockpoint/internal/middleware"
	"clockpoint/internal/models"
	"clockpoint/internal/service"
)

type createSessionRequest struct {
	Duration int `json:"duration"`
}

func (h HandlerSet) CreateSession(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	var req createSessionRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := h.sessions.CreateSession(c.Request.Context(), user, c.Param("group_id"), req.Duration)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(session))
}

func (h HandlerSet) ListSessions(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	from, ok := timeQuery(c, "start_at")
	if !ok {
		return
	}
	to, ok := timeQuery(c, "stop_at")
	if !ok {
		return
	}
	sessions, err := h.sessions.ListSessions(c.Request.Context(), user, c.Param("group_id"), from, to)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	resp := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		resp = append(resp, newSessionResponse(s))
	}
	c.JSON(http.StatusOK, resp)
}

type weekdaysRequest struct {
	Monday    *bool `json:"monday"`
	Tuesday   *bool `json:"tuesday"`
	Wednesday *bool `json:"wednesday"`
	Thursday  *bool `json:"thursday"`
	Friday    *bool `json:"friday"`
	Saturday  *bool `json:"saturday"`
	Sunday    *bool `json:"sunday"`
}

func (w weekdaysRequest) set() bool {
	for _, d := range []*bool{w.Monday, w.Tuesday, w.Wednesday, w.Thursday, w.Friday, w.Saturday, w.Sunday} {
		if d != nil {
			return true
		}
	}
	return false
}

func (w weekdaysRequest) days() models.Weekdays {
	on := func(b *bool) bool { return b != nil && *b }
	return models.Weekdays{
		Monday:    on(w.Monday),
		Tuesday:   on(w.Tuesday),
		Wednesday: on(w.Wednesday),
		Thursday:  on(w.Thursday),
		Friday:    on(w.Friday),
		Saturday:  on(w.Saturday),
		Sunday:    on(w.Sunday),
	}
}

type createScheduleRequest struct {
	StartAt  string `json:"startAt" binding:"required"`
	Duration int    `json:"duration"`
	weekdaysRequest
}

func (h HandlerSet) CreateSchedule(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	var req createScheduleRequest
	if !bindJSON(c, &req) {
		return
	}
	schedule, err := h.sessions.CreateSchedule(c.Request.Context(), user, c.Param("group_id"), service.ScheduleInput{
		StartAt:  req.StartAt,
		Duration: req.Duration,
		Days:     req.days(),
	})
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, newScheduleResponse(schedule))
}

// updateScheduleRequest replaces the whole weekday set as soon as one
// weekday is present.
type updateScheduleRequest struct {
	StartAt  *string `json:"startAt"`
	Duration *int    `json:"duration"`
	weekdaysRequest
}

func (h HandlerSet) UpdateSchedule(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	var req updateScheduleRequest
	if !bindJSON(c, &req) {
		return
	}
	input := service.ScheduleUpdate{StartAt: req.StartAt, Duration: req.Duration}
	if req.set() {
		days := req.days()
		input.Days = &days
	}
	schedule, err := h.sessions.UpdateSchedule(c.Request.Context(), user, c.Param("group_id"), c.Param("schedule_id"), input)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, newScheduleResponse(schedule))
}

func (h HandlerSet) DeleteSchedule(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	if err := h.sessions.DeleteSchedule(c.Request.Context(), user, c.Param("group_id"), c.Param("schedule_id")); err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "schedule deleted"})
}

func (h HandlerSet) ListSchedules(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	schedules, err := h.sessions.ListSchedules(c.Request.Context(), user, c.Param("group_id"))
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	resp := make([]scheduleResponse, 0, len(schedules))
	for _, s := range schedules {
		resp = append(resp, newScheduleResponse(s))
	}
	c.JSON(http.StatusOK, resp)
}

func (h HandlerSet) IssueQR(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	entryType, ok := requiredQuery(c, "entry_type")
	if !ok {
		return
	}
	code, err := h.clock.IssueQR(c.Request.Context(), user, c.Param("group_id"), c.Param("session_id"), models.EntryType(strings.ToUpper(entryType)))
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, qrResponse{
		Token:     code.Token,
		Group:     newGroupResponse(code.Group),
		SessionID: code.Session.ID,
		EntryType: code.Type,
		ExpiresAt: code.ExpiresAt,
	})
}

func (h HandlerSet) ClockEntry(c *gin.Context) {
	user, ok := actor(c)
	if !ok {
		return
	}
	raw, ok := requiredQuery(c, "clock_entry_token")
	if !ok {
		return
	}
	entry, err := h.clock.Enter(c.Request.Context(), user, raw)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, entryResponse{ID: entry.ID, ClockAt: entry.ClockAt, Type: entry.Type})
}
