package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"clockpoint/internal/apperr"
	"clockpoint/internal/middleware"
	"clockpoint/internal/models"
	"clockpoint/internal/report"
)

const (
	formatJSON  = "json"
	formatExcel = "excel"
)

type reportResponse struct {
	Own      bool                  `json:"own"`
	Sessions []report.Session      `json:"sessions,omitempty"`
	Smart    []report.SmartSession `json:"smartSessions,omitempty"`
}

// Report serves the group report as JSON, or as a spreadsheet when
// smart_entries_format=excel.
func (h HandlerSet) Report(c *gin.Context) {
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
	filter := models.ReportFilter{
		SessionID: strings.TrimSpace(c.Query("session_id")),
		UserIDs:   listQuery(c, "users"),
		StartAt:   from,
		StopAt:    to,
	}
	groupID := c.Param("group_id")

	format := strings.ToLower(c.DefaultQuery("smart_entries_format", formatJSON))
	switch format {
	case formatJSON:
	case formatExcel:
		data, err := h.reports.Spreadsheet(c.Request.Context(), user, groupID, filter)
		if err != nil {
			middleware.Abort(c, err)
			return
		}
		name := fmt.Sprintf("report-%s-%s.xlsx", groupID, time.Now().UTC().Format("20060102T150405Z"))
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		c.Data(http.StatusOK, report.ContentTypeXLSX, data)
		return
	default:
		middleware.Abort(c, apperr.Validation(apperr.FieldError{
			Name:      "smart_entries_format",
			Message:   "expected json or excel",
			ErrorCode: "invalid_format",
		}))
		return
	}

	rep, err := h.reports.Build(c.Request.Context(), user, groupID, filter, boolQuery(c, "smart_entries"))
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	resp := reportResponse{Own: rep.Own}
	if rep.Smart != nil {
		resp.Smart = rep.Smart
	} else {
		resp.Sessions = rep.Sessions
	}
	c.JSON(http.StatusOK, resp)
}
