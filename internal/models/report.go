package models

import "time"

// ReportFilter narrows the rows returned for a group report. Zero values
// mean "no constraint".
type ReportFilter struct {
	SessionID string
	UserIDs   []string
	StartAt   *time.Time
	StopAt    *time.Time
}

// EntryRecord is one session entry row joined with its session, user and,
// unless it is the session-open marker, its clock entry.
type EntryRecord struct {
	SessionID      string
	SessionStartAt time.Time
	SessionStopAt  time.Time
	GroupUserID    string
	User           User
	EntryID        *string
	ClockAt        *time.Time
	Type           EntryType
}

// Marker reports whether the row is a session-open marker.
func (r EntryRecord) Marker() bool {
	return r.EntryID == nil
}

// Member is a group user joined with the user and role name.
type Member struct {
	GroupUser GroupUser
	User      User
	Role      RoleName
}
