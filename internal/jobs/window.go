package jobs

import (
	"fmt"
	"time"

	"clockpoint/internal/models"
)

// ActiveWindow returns the occurrence of s that contains now. An occurrence
// belongs to the weekday on which it starts, so a window crossing midnight is
// still active on the next calendar day.
func ActiveWindow(s models.ClockSchedule, now time.Time) (start, stop time.Time, ok bool) {
	for _, back := range []int{0, -1} {
		day := now.AddDate(0, 0, back)
		start = s.StartAt.On(day)
		stop = start.Add(s.Duration())
		if !s.Days.Includes(start.Weekday()) {
			continue
		}
		if !now.Before(start) && now.Before(stop) {
			return start, stop, true
		}
	}
	return time.Time{}, time.Time{}, false
}

// ClaimKey identifies one occurrence of a schedule.
func ClaimKey(scheduleID string, start time.Time) string {
	return fmt.Sprintf("schedule:%s:%s", scheduleID, start.Format("2006-01-02"))
}
