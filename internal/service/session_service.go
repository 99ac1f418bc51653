package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"clockpoint/internal/authz"
	"clockpoint/internal/events"
	"clockpoint/internal/ids"
	"clockpoint/internal/metrics"
	"clockpoint/internal/models"
	"clockpoint/internal/notify"
	"clockpoint/internal/repository"
)

// SessionService manages ad-hoc sessions and schedules, and materializes
// scheduled occurrences for the scheduler loop.
type SessionService struct {
	store   Store
	authz   *authz.Evaluator
	effects Effects
	now     func() time.Time
	log     zerolog.Logger
}

func NewSessionService(store Store, evaluator *authz.Evaluator, effects Effects, log zerolog.Logger) *SessionService {
	return &SessionService{store: store, authz: evaluator, effects: effects, now: time.Now, log: log}
}

func (s *SessionService) WithClock(now func() time.Time) *SessionService {
	s.now = now
	return s
}

// sessionDuration bounds minutes before converting so that huge values
// cannot overflow back into range.
func sessionDuration(minutes int) (time.Duration, error) {
	if minutes <= 0 || minutes > int(models.MaxSessionDuration/time.Minute) {
		return 0, ErrDurationTooLong
	}
	return time.Duration(minutes) * time.Minute, nil
}

// CreateSession opens a session of the given length starting now, with the
// open marker for the actor.
func (s *SessionService) CreateSession(ctx context.Context, actor models.User, groupID string, minutes int) (models.ClockSession, error) {
	grant, err := s.authz.Require(ctx, actor.ID, groupID, models.PermGenerateReport)
	if err != nil {
		return models.ClockSession{}, err
	}
	d, err := sessionDuration(minutes)
	if err != nil {
		return models.ClockSession{}, err
	}

	now := s.now()
	session, err := s.open(ctx, groupID, grant.Member.ID, now, now.Add(d))
	if err != nil {
		return models.ClockSession{}, err
	}
	s.published(ctx, session, "adhoc")
	return session, nil
}

// open inserts the session and its open marker atomically.
func (s *SessionService) open(ctx context.Context, groupID, groupUserID string, start, stop time.Time) (models.ClockSession, error) {
	session := models.ClockSession{ID: ids.New(), GroupID: groupID, StartAt: start, StopAt: stop}
	err := s.store.WithTx(ctx, func(tx Repositories) error {
		if err := tx.Sessions().Create(ctx, &session); err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		marker := models.SessionEntry{ID: ids.New(), SessionID: session.ID, GroupUserID: groupUserID}
		if err := tx.Sessions().AddSessionEntry(ctx, &marker); err != nil {
			return fmt.Errorf("add session marker: %w", err)
		}
		return nil
	})
	return session, err
}

func (s *SessionService) published(ctx context.Context, session models.ClockSession, origin string) {
	metrics.SessionsCreatedTotal.WithLabelValues(origin).Inc()
	s.log.Info().Str("session_id", session.ID).Str("group_id", session.GroupID).Str("origin", origin).Msg("clock session created")

	payload := map[string]any{
		"sessionId": session.ID,
		"groupId":   session.GroupID,
		"startAt":   session.StartAt,
		"stopAt":    session.StopAt,
		"origin":    origin,
	}
	if members, err := s.store.Members().ListByGroup(ctx, session.GroupID); err == nil {
		userIDs := make([]string, 0, len(members))
		for _, m := range members {
			userIDs = append(userIDs, m.User.ID)
		}
		s.effects.notify(ctx, notify.EventSessionCreated, userIDs, payload)
	} else {
		s.log.Warn().Err(err).Str("group_id", session.GroupID).Msg("list members for notification failed")
	}
	s.effects.emit(ctx, events.SessionCreated, payload)
}

type ScheduleInput struct {
	StartAt  string
	Duration int
	Days     models.Weekdays
}

// CreateSchedule registers a recurring session for the actor's membership.
func (s *SessionService) CreateSchedule(ctx context.Context, actor models.User, groupID string, input ScheduleInput) (models.ClockSchedule, error) {
	grant, err := s.authz.Require(ctx, actor.ID, groupID, models.PermGenerateReport)
	if err != nil {
		return models.ClockSchedule{}, err
	}
	start, err := models.ParseTimeOfDay(input.StartAt)
	if err != nil {
		return models.ClockSchedule{}, ErrInvalidTimeOfDay
	}
	d, err := sessionDuration(input.Duration)
	if err != nil {
		return models.ClockSchedule{}, err
	}
	if !input.Days.Any() {
		return models.ClockSchedule{}, ErrNoWeekday
	}

	schedule := models.ClockSchedule{
		ID:          ids.New(),
		GroupUserID: grant.Member.ID,
		GroupID:     groupID,
		StartAt:     start,
		StopAt:      start.Add(d),
		Days:        input.Days,
	}
	if err := s.store.Schedules().Create(ctx, &schedule); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return models.ClockSchedule{}, ErrDuplicateSchedule
		}
		return models.ClockSchedule{}, fmt.Errorf("create schedule: %w", err)
	}
	return schedule, nil
}

// ScheduleUpdate changes a schedule. StartAt and Duration move together:
// supplying only one of them is ambiguous.
type ScheduleUpdate struct {
	StartAt  *string
	Duration *int
	Days     *models.Weekdays
}

func (s *SessionService) UpdateSchedule(ctx context.Context, actor models.User, groupID, scheduleID string, input ScheduleUpdate) (models.ClockSchedule, error) {
	if _, err := s.authz.Require(ctx, actor.ID, groupID, models.PermGenerateReport); err != nil {
		return models.ClockSchedule{}, err
	}
	if (input.StartAt == nil) != (input.Duration == nil) {
		return models.ClockSchedule{}, ErrAmbiguousScheduleUpdate
	}
	schedule, err := s.schedule(ctx, groupID, scheduleID)
	if err != nil {
		return models.ClockSchedule{}, err
	}

	if input.StartAt != nil {
		start, err := models.ParseTimeOfDay(*input.StartAt)
		if err != nil {
			return models.ClockSchedule{}, ErrInvalidTimeOfDay
		}
		d, err := sessionDuration(*input.Duration)
		if err != nil {
			return models.ClockSchedule{}, err
		}
		schedule.StartAt = start
		schedule.StopAt = start.Add(d)
	}
	if input.Days != nil {
		if !input.Days.Any() {
			return models.ClockSchedule{}, ErrNoWeekday
		}
		schedule.Days = *input.Days
	}

	if err := s.store.Schedules().Update(ctx, &schedule); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return models.ClockSchedule{}, ErrDuplicateSchedule
		case errors.Is(err, repository.ErrNotFound):
			return models.ClockSchedule{}, ErrScheduleNotFound
		}
		return models.ClockSchedule{}, fmt.Errorf("update schedule: %w", err)
	}
	return schedule, nil
}

func (s *SessionService) DeleteSchedule(ctx context.Context, actor models.User, groupID, scheduleID string) error {
	if _, err := s.authz.Require(ctx, actor.ID, groupID, models.PermGenerateReport); err != nil {
		return err
	}
	if _, err := s.schedule(ctx, groupID, scheduleID); err != nil {
		return err
	}
	if err := s.store.Schedules().Delete(ctx, scheduleID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrScheduleNotFound
		}
		return fmt.Errorf("delete schedule: %w", err)
	}
	return nil
}

// schedule loads scheduleID and hides schedules of other groups.
func (s *SessionService) schedule(ctx context.Context, groupID, scheduleID string) (models.ClockSchedule, error) {
	schedule, err := s.store.Schedules().Get(ctx, scheduleID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && schedule.GroupID != groupID) {
		return models.ClockSchedule{}, ErrScheduleNotFound
	}
	if err != nil {
		return models.ClockSchedule{}, fmt.Errorf("load schedule: %w", err)
	}
	return schedule, nil
}

func (s *SessionService) ListSchedules(ctx context.Context, actor models.User, groupID string) ([]models.ClockSchedule, error) {
	if _, err := s.authz.Resolve(ctx, actor.ID, groupID); err != nil {
		return nil, err
	}
	schedules, err := s.store.Schedules().ListByGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	return schedules, nil
}

func (s *SessionService) ListSessions(ctx context.Context, actor models.User, groupID string, from, to *time.Time) ([]models.ClockSession, error) {
	if _, err := s.authz.Require(ctx, actor.ID, groupID, models.PermViewOwnReport); err != nil {
		return nil, err
	}
	sessions, err := s.store.Sessions().ListByGroup(ctx, groupID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// ActiveSchedules feeds the scheduler loop.
func (s *SessionService) ActiveSchedules(ctx context.Context) ([]models.ClockSchedule, error) {
	return s.store.Schedules().ListActive(ctx)
}

// MaterializeSchedule creates the session of one claimed occurrence.
func (s *SessionService) MaterializeSchedule(ctx context.Context, schedule models.ClockSchedule, start, stop time.Time) (models.ClockSession, error) {
	session, err := s.open(ctx, schedule.GroupID, schedule.GroupUserID, start, stop)
	if err != nil {
		return models.ClockSession{}, err
	}
	s.published(ctx, session, "schedule")
	return session, nil
}
