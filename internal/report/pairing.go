// Package report turns raw session entries into paired attendance data and
// renders it as JSON shapes or a spreadsheet.
package report

import (
	"sort"
	"time"

	"clockpoint/internal/models"
)

type UserInfo struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

func NewUserInfo(u models.User) UserInfo {
	return UserInfo{ID: u.ID, Email: u.Email, Username: u.Username, FirstName: u.FirstName, LastName: u.LastName}
}

type Entry struct {
	ID      string           `json:"id"`
	ClockAt time.Time        `json:"clockAt"`
	Type    models.EntryType `json:"type"`
	User    UserInfo         `json:"user"`
}

type Session struct {
	ID      string    `json:"id"`
	StartAt time.Time `json:"startAt"`
	StopAt  time.Time `json:"stopAt"`
	Entries []Entry   `json:"entries"`
}

// SmartEntry is an IN paired with its OUT. ClockOut is nil while the
// session is still running and the user has not clocked out.
type SmartEntry struct {
	User        UserInfo   `json:"user"`
	ClockIn     time.Time  `json:"clockIn"`
	ClockOut    *time.Time `json:"clockOut"`
	Synthesized bool       `json:"synthesized"`
}

type SmartSession struct {
	ID      string       `json:"id"`
	StartAt time.Time    `json:"startAt"`
	StopAt  time.Time    `json:"stopAt"`
	Entries []SmartEntry `json:"entries"`
}

// GroupSessions regroups joined rows by session, keeping the row order.
// Marker rows open a session without contributing an entry.
func GroupSessions(records []models.EntryRecord) []Session {
	var (
		out   []Session
		index = make(map[string]int)
	)
	for _, rec := range records {
		i, ok := index[rec.SessionID]
		if !ok {
			i = len(out)
			index[rec.SessionID] = i
			out = append(out, Session{ID: rec.SessionID, StartAt: rec.SessionStartAt, StopAt: rec.SessionStopAt, Entries: []Entry{}})
		}
		if rec.Marker() || rec.ClockAt == nil {
			continue
		}
		out[i].Entries = append(out[i].Entries, Entry{
			ID:      *rec.EntryID,
			ClockAt: *rec.ClockAt,
			Type:    rec.Type,
			User:    NewUserInfo(rec.User),
		})
	}
	return out
}

// Pair builds smart entries for one session. Consecutive IN/OUT entries of a
// user form a pair; an OUT without a preceding IN is dropped. When the
// session is over, a trailing IN is closed at the session stop.
func Pair(s Session, now time.Time) SmartSession {
	entries := append([]Entry(nil), s.Entries...)
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].ClockAt.Equal(entries[j].ClockAt) {
			return entries[i].ClockAt.Before(entries[j].ClockAt)
		}
		return entries[i].User.ID < entries[j].User.ID
	})

	closed := now.After(s.StopAt)
	pending := make(map[string]*Entry)
	var pairs []SmartEntry

	flush := func(in *Entry, last bool) {
		pair := SmartEntry{User: in.User, ClockIn: in.ClockAt}
		if last && closed {
			stop := s.StopAt
			pair.ClockOut = &stop
			pair.Synthesized = true
		}
		pairs = append(pairs, pair)
	}

	for i := range entries {
		e := &entries[i]
		switch e.Type {
		case models.EntryIn:
			if prev, ok := pending[e.User.ID]; ok {
				flush(prev, false)
			}
			pending[e.User.ID] = e
		case models.EntryOut:
			in, ok := pending[e.User.ID]
			if !ok {
				continue
			}
			out := e.ClockAt
			pairs = append(pairs, SmartEntry{User: in.User, ClockIn: in.ClockAt, ClockOut: &out})
			delete(pending, e.User.ID)
		}
	}
	for _, in := range pending {
		flush(in, true)
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		if !pairs[i].ClockIn.Equal(pairs[j].ClockIn) {
			return pairs[i].ClockIn.Before(pairs[j].ClockIn)
		}
		return pairs[i].User.ID < pairs[j].User.ID
	})
	if pairs == nil {
		pairs = []SmartEntry{}
	}

	return SmartSession{ID: s.ID, StartAt: s.StartAt, StopAt: s.StopAt, Entries: pairs}
}

func PairAll(sessions []Session, now time.Time) []SmartSession {
	out := make([]SmartSession, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, Pair(s, now))
	}
	return out
}

// Users returns every distinct user with at least one entry, ordered by
// username.
func Users(sessions []Session) []UserInfo {
	seen := make(map[string]UserInfo)
	for _, s := range sessions {
		for _, e := range s.Entries {
			seen[e.User.ID] = e.User
		}
	}
	out := make([]UserInfo, 0, len(seen))
	for _, u := range seen {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}
