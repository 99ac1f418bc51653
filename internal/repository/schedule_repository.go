package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"clockpoint/internal/models"
)

type ScheduleRepository struct {
	db Querier
}

func timeOfDayParam(t models.TimeOfDay) pgtype.Time {
	return pgtype.Time{Microseconds: t.Duration().Microseconds(), Valid: true}
}

func timeOfDayValue(t pgtype.Time) models.TimeOfDay {
	return models.TimeOfDay(time.Duration(t.Microseconds) * time.Microsecond)
}

const scheduleSelect = `
	SELECT cs.id, cs.group_user_id, gu.group_id, cs.start_at, cs.stop_at,
		cs.monday, cs.tuesday, cs.wednesday, cs.thursday, cs.friday, cs.saturday, cs.sunday,
		cs.created_at, cs.updated_at
	FROM clock_schedules cs
	JOIN group_users gu ON gu.id = cs.group_user_id AND gu.deleted_at IS NULL
	JOIN groups g ON g.id = gu.group_id AND g.deleted_at IS NULL
`

func scanSchedule(row interface{ Scan(...any) error }) (models.ClockSchedule, error) {
	var (
		s           models.ClockSchedule
		start, stop pgtype.Time
		d           = &s.Days
	)
	err := row.Scan(
		&s.ID, &s.GroupUserID, &s.GroupID, &start, &stop,
		&d.Monday, &d.Tuesday, &d.Wednesday, &d.Thursday, &d.Friday, &d.Saturday, &d.Sunday,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return models.ClockSchedule{}, translate(err)
	}
	s.StartAt = timeOfDayValue(start)
	s.StopAt = timeOfDayValue(stop)
	return s, nil
}

func (r *ScheduleRepository) Create(ctx context.Context, s *models.ClockSchedule) error {
	const query = `
		INSERT INTO clock_schedules (
			id, group_user_id, start_at, stop_at,
			monday, tuesday, wednesday, thursday, friday, saturday, sunday,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW()
		)
		RETURNING created_at, updated_at
	`
	d := s.Days
	err := r.db.QueryRow(ctx, query,
		s.ID, s.GroupUserID, timeOfDayParam(s.StartAt), timeOfDayParam(s.StopAt),
		d.Monday, d.Tuesday, d.Wednesday, d.Thursday, d.Friday, d.Saturday, d.Sunday,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	return translate(err)
}

func (r *ScheduleRepository) Get(ctx context.Context, id string) (models.ClockSchedule, error) {
	return scanSchedule(r.db.QueryRow(ctx, scheduleSelect+` WHERE cs.id = $1`, id))
}

// Update overwrites times and weekday flags; concurrent edits are
// last-writer-wins.
func (r *ScheduleRepository) Update(ctx context.Context, s *models.ClockSchedule) error {
	const query = `
		UPDATE clock_schedules SET
			start_at = $2, stop_at = $3,
			monday = $4, tuesday = $5, wednesday = $6, thursday = $7,
			friday = $8, saturday = $9, sunday = $10,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`
	d := s.Days
	err := r.db.QueryRow(ctx, query,
		s.ID, timeOfDayParam(s.StartAt), timeOfDayParam(s.StopAt),
		d.Monday, d.Tuesday, d.Wednesday, d.Thursday, d.Friday, d.Saturday, d.Sunday,
	).Scan(&s.UpdatedAt)
	return translate(err)
}

func (r *ScheduleRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM clock_schedules WHERE id = $1`, id)
	if err != nil {
		return translate(err)
	}
	return affected(tag)
}

func (r *ScheduleRepository) ListByGroup(ctx context.Context, groupID string) ([]models.ClockSchedule, error) {
	return r.list(ctx, scheduleSelect+` WHERE gu.group_id = $1 ORDER BY cs.start_at`, groupID)
}

// ListActive returns every schedule whose group user and group still exist.
func (r *ScheduleRepository) ListActive(ctx context.Context) ([]models.ClockSchedule, error) {
	return r.list(ctx, scheduleSelect+` ORDER BY cs.start_at`)
}

func (r *ScheduleRepository) list(ctx context.Context, query string, args ...any) ([]models.ClockSchedule, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []models.ClockSchedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
