package report

import (
	"testing"
	"time"

	"clockpoint/internal/models"
)

var (
	bob   = models.User{ID: "bob", Username: "bob", Email: "bob@x"}
	carol = models.User{ID: "carol", Username: "carol", Email: "carol@x"}
	start = time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)
	stop  = start.Add(time.Hour)
)

func record(session string, u models.User, id string, at time.Time, typ models.EntryType) models.EntryRecord {
	rec := models.EntryRecord{
		SessionID:      session,
		SessionStartAt: start,
		SessionStopAt:  stop,
		GroupUserID:    "gu-" + u.ID,
		User:           u,
	}
	if id != "" {
		entryID, clockAt := id, at
		rec.EntryID, rec.ClockAt, rec.Type = &entryID, &clockAt, typ
	}
	return rec
}

func TestGroupSessionsSkipsMarkers(t *testing.T) {
	recs := []models.EntryRecord{
		record("s1", bob, "", time.Time{}, ""),
		record("s1", bob, "e1", start.Add(time.Minute), models.EntryIn),
		record("s2", carol, "", time.Time{}, ""),
		record("s1", bob, "e2", start.Add(10*time.Minute), models.EntryOut),
	}
	sessions := GroupSessions(recs)
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != "s1" || len(sessions[0].Entries) != 2 {
		t.Fatalf("unexpected first session %+v", sessions[0])
	}
	if sessions[1].ID != "s2" || len(sessions[1].Entries) != 0 {
		t.Fatalf("marker-only session must have no entries: %+v", sessions[1])
	}
}

func TestPairSynthesizesOutAfterClose(t *testing.T) {
	in := start.Add(5 * time.Minute)
	sessions := GroupSessions([]models.EntryRecord{
		record("s1", bob, "e1", in, models.EntryIn),
	})

	closed := Pair(sessions[0], stop.Add(time.Second))
	if len(closed.Entries) != 1 {
		t.Fatalf("expected one pair, got %d", len(closed.Entries))
	}
	got := closed.Entries[0]
	if !got.ClockIn.Equal(in) || got.ClockOut == nil || !got.ClockOut.Equal(stop) || !got.Synthesized {
		t.Fatalf("expected synthesized out at session stop, got %+v", got)
	}

	running := Pair(sessions[0], stop.Add(-time.Minute))
	if running.Entries[0].ClockOut != nil {
		t.Fatalf("open session must not synthesize an out")
	}
}

func TestPairMultipleUsersAndCycles(t *testing.T) {
	sessions := GroupSessions([]models.EntryRecord{
		record("s1", bob, "e1", start.Add(1*time.Minute), models.EntryIn),
		record("s1", carol, "e2", start.Add(2*time.Minute), models.EntryOut), // orphan
		record("s1", carol, "e3", start.Add(3*time.Minute), models.EntryIn),
		record("s1", bob, "e4", start.Add(4*time.Minute), models.EntryOut),
		record("s1", bob, "e5", start.Add(5*time.Minute), models.EntryIn),
		record("s1", bob, "e6", start.Add(6*time.Minute), models.EntryOut),
		record("s1", carol, "e7", start.Add(7*time.Minute), models.EntryOut),
	})

	got := Pair(sessions[0], stop.Add(time.Hour)).Entries
	want := []struct {
		user    string
		in, out time.Duration
	}{
		{"bob", 1 * time.Minute, 4 * time.Minute},
		{"carol", 3 * time.Minute, 7 * time.Minute},
		{"bob", 5 * time.Minute, 6 * time.Minute},
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d pairs, got %d: %+v", len(want), len(got), got)
	}
	for i, w := range want {
		g := got[i]
		if g.User.ID != w.user || !g.ClockIn.Equal(start.Add(w.in)) || g.ClockOut == nil || !g.ClockOut.Equal(start.Add(w.out)) {
			t.Errorf("pair %d = %+v, want %s %v-%v", i, g, w.user, w.in, w.out)
		}
		if g.Synthesized {
			t.Errorf("pair %d must not be synthesized", i)
		}
	}
}

func TestUsersDistinctSorted(t *testing.T) {
	sessions := GroupSessions([]models.EntryRecord{
		record("s1", carol, "e1", start, models.EntryIn),
		record("s1", bob, "e2", start, models.EntryIn),
		record("s2", bob, "e3", start, models.EntryIn),
	})
	users := Users(sessions)
	if len(users) != 2 || users[0].ID != "bob" || users[1].ID != "carol" {
		t.Fatalf("unexpected users %+v", users)
	}
}
