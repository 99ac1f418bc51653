package models

import (
	"fmt"
	"time"
)

// MaxSessionDuration bounds both ad-hoc sessions and schedules.
const MaxSessionDuration = 16 * time.Hour

type EntryType string

const (
	EntryIn  EntryType = "IN"
	EntryOut EntryType = "OUT"
)

func (t EntryType) Valid() bool {
	return t == EntryIn || t == EntryOut
}

type ClockSession struct {
	ID        string
	GroupID   string
	StartAt   time.Time
	StopAt    time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (s ClockSession) Expired(now time.Time) bool {
	return now.After(s.StopAt)
}

// TimeOfDay is an offset from local midnight.
type TimeOfDay time.Duration

const day = 24 * time.Hour

// ParseTimeOfDay accepts "15:04" or "15:04:05".
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return TimeOfDay(time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second), nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q", raw)
}

func (t TimeOfDay) Duration() time.Duration { return time.Duration(t) }

// Add returns t shifted by d, wrapping at midnight.
func (t TimeOfDay) Add(d time.Duration) TimeOfDay {
	v := (time.Duration(t) + d) % day
	if v < 0 {
		v += day
	}
	return TimeOfDay(v)
}

func (t TimeOfDay) String() string {
	d := time.Duration(t)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	if s == 0 {
		return fmt.Sprintf("%02d:%02d", h, m)
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// On anchors t to the calendar day of date as a wall-clock time in date's
// location, so DST transitions do not shift it.
func (t TimeOfDay) On(date time.Time) time.Time {
	y, mo, d := date.Date()
	v := time.Duration(t)
	return time.Date(y, mo, d, int(v/time.Hour), int(v%time.Hour/time.Minute), int(v%time.Minute/time.Second), 0, date.Location())
}

type Weekdays struct {
	Monday    bool
	Tuesday   bool
	Wednesday bool
	Thursday  bool
	Friday    bool
	Saturday  bool
	Sunday    bool
}

func (w Weekdays) Any() bool {
	return w.Monday || w.Tuesday || w.Wednesday || w.Thursday || w.Friday || w.Saturday || w.Sunday
}

func (w Weekdays) Includes(d time.Weekday) bool {
	switch d {
	case time.Monday:
		return w.Monday
	case time.Tuesday:
		return w.Tuesday
	case time.Wednesday:
		return w.Wednesday
	case time.Thursday:
		return w.Thursday
	case time.Friday:
		return w.Friday
	case time.Saturday:
		return w.Saturday
	default:
		return w.Sunday
	}
}

type ClockSchedule struct {
	ID          string
	GroupUserID string
	GroupID     string
	StartAt     TimeOfDay
	StopAt      TimeOfDay
	Days        Weekdays
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Duration is the length of one occurrence, taken modulo 24h when the
// schedule crosses midnight.
func (s ClockSchedule) Duration() time.Duration {
	d := time.Duration(s.StopAt) - time.Duration(s.StartAt)
	if d <= 0 {
		d += day
	}
	return d
}

type ClockEntry struct {
	ID        string
	ClockAt   time.Time
	Type      EntryType
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SessionEntry links a session and a group user. A nil EntryID marks the
// session as opened for that group user.
type SessionEntry struct {
	ID          string
	SessionID   string
	GroupUserID string
	EntryID     *string
}
