package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"clockpoint/internal/cache"
	"clockpoint/internal/config"
	"clockpoint/internal/models"
)

type fakeSource struct {
	mu        sync.Mutex
	schedules []models.ClockSchedule
	sessions  []models.ClockSession
	fail      bool
}

func (f *fakeSource) ActiveSchedules(context.Context) ([]models.ClockSchedule, error) {
	return f.schedules, nil
}

func (f *fakeSource) MaterializeSchedule(_ context.Context, s models.ClockSchedule, start, stop time.Time) (models.ClockSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return models.ClockSession{}, errors.New("db down")
	}
	session := models.ClockSession{ID: s.ID + "@" + start.Format(time.RFC3339), GroupID: s.GroupID, StartAt: start, StopAt: stop}
	f.sessions = append(f.sessions, session)
	return session, nil
}

func newClaimer(t *testing.T) (*cache.Claimer, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return cache.NewClaimer(rdb, 500*time.Millisecond), mr
}

func newTestScheduler(t *testing.T, src Source, claims Claimer, now time.Time) *Scheduler {
	t.Helper()
	s, err := NewScheduler(src, claims, config.SchedulerConfig{Tick: time.Minute, Timezone: "UTC"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	return s.WithClock(func() time.Time { return now })
}

func weekdaySchedule(t *testing.T) models.ClockSchedule {
	return models.ClockSchedule{
		ID:          "sched-1",
		GroupUserID: "gu-alice",
		GroupID:     "ops",
		StartAt:     mustTOD(t, "08:00"),
		StopAt:      mustTOD(t, "09:00"),
		Days:        models.Weekdays{Monday: true, Tuesday: true, Wednesday: true, Thursday: true, Friday: true},
	}
}

func TestTwoWorkersMaterializeOnce(t *testing.T) {
	src := &fakeSource{schedules: []models.ClockSchedule{weekdaySchedule(t)}}
	claims, mr := newClaimer(t)
	now := time.Date(2024, 3, 4, 8, 0, 1, 0, time.UTC)

	workers := []*Scheduler{
		newTestScheduler(t, src, claims, now),
		newTestScheduler(t, src, claims, now),
	}

	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *Scheduler) {
			defer wg.Done()
			if _, err := w.Tick(context.Background()); err != nil {
				t.Errorf("Tick: %v", err)
			}
		}(w)
	}
	wg.Wait()

	if len(src.sessions) != 1 {
		t.Fatalf("expected exactly one session, got %d", len(src.sessions))
	}
	got := src.sessions[0]
	if !got.StartAt.Equal(time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)) || !got.StopAt.Equal(time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected session window %v - %v", got.StartAt, got.StopAt)
	}

	key := "schedule:sched-1:2024-03-04"
	if ttl := mr.TTL(key); ttl <= 59*time.Minute || ttl > time.Hour {
		t.Fatalf("claim ttl must last until stop, got %v", ttl)
	}

	// a later tick on the same day is a no-op
	later := newTestScheduler(t, src, claims, now.Add(30*time.Minute))
	if n, err := later.Tick(context.Background()); err != nil || n != 0 {
		t.Fatalf("second tick created %d sessions (err %v)", n, err)
	}
}

func TestTickSkipsInactiveSchedules(t *testing.T) {
	src := &fakeSource{schedules: []models.ClockSchedule{weekdaySchedule(t)}}
	claims, _ := newClaimer(t)

	saturday := time.Date(2024, 3, 9, 8, 30, 0, 0, time.UTC)
	if n, err := newTestScheduler(t, src, claims, saturday).Tick(context.Background()); err != nil || n != 0 {
		t.Fatalf("weekend tick created %d sessions (err %v)", n, err)
	}
}

func TestFailedMaterializationReleasesClaim(t *testing.T) {
	src := &fakeSource{schedules: []models.ClockSchedule{weekdaySchedule(t)}, fail: true}
	claims, mr := newClaimer(t)
	now := time.Date(2024, 3, 4, 8, 5, 0, 0, time.UTC)

	if n, err := newTestScheduler(t, src, claims, now).Tick(context.Background()); err != nil || n != 0 {
		t.Fatalf("failing tick: n=%d err=%v", n, err)
	}
	if mr.Exists("schedule:sched-1:2024-03-04") {
		t.Fatalf("claim must be released after a failed materialization")
	}

	src.fail = false
	if n, err := newTestScheduler(t, src, claims, now.Add(time.Minute)).Tick(context.Background()); err != nil || n != 1 {
		t.Fatalf("retry tick: n=%d err=%v", n, err)
	}
}

func TestStartStop(t *testing.T) {
	src := &fakeSource{}
	claims, _ := newClaimer(t)
	s := newTestScheduler(t, src, claims, time.Now())
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-s.Stop().Done():
	case <-time.After(time.Second):
		t.Fatalf("scheduler did not stop")
	}
}
