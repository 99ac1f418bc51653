package repository

import (
	"context"
	"time"

	"clockpoint/internal/models"
)

type SessionRepository struct {
	db Querier
}

func (r *SessionRepository) Create(ctx context.Context, s *models.ClockSession) error {
	const query = `
		INSERT INTO clock_sessions (id, group_id, start_at, stop_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query, s.ID, s.GroupID, s.StartAt, s.StopAt).
		Scan(&s.CreatedAt, &s.UpdatedAt)
	return translate(err)
}

func (r *SessionRepository) Get(ctx context.Context, id string) (models.ClockSession, error) {
	const query = `SELECT id, group_id, start_at, stop_at, created_at, updated_at FROM clock_sessions WHERE id = $1`
	var s models.ClockSession
	err := r.db.QueryRow(ctx, query, id).
		Scan(&s.ID, &s.GroupID, &s.StartAt, &s.StopAt, &s.CreatedAt, &s.UpdatedAt)
	return s, translate(err)
}

// ListByGroup returns the sessions of groupID starting inside [from, to].
// Nil bounds are open.
func (r *SessionRepository) ListByGroup(ctx context.Context, groupID string, from, to *time.Time) ([]models.ClockSession, error) {
	const query = `
		SELECT id, group_id, start_at, stop_at, created_at, updated_at
		FROM clock_sessions
		WHERE group_id = $1
			AND ($2::timestamptz IS NULL OR start_at >= $2)
			AND ($3::timestamptz IS NULL OR start_at <= $3)
		ORDER BY start_at
	`
	rows, err := r.db.Query(ctx, query, groupID, from, to)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []models.ClockSession
	for rows.Next() {
		var s models.ClockSession
		if err := rows.Scan(&s.ID, &s.GroupID, &s.StartAt, &s.StopAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// AddSessionEntry links a group user to a session. A nil EntryID inserts
// the session-open marker.
func (r *SessionRepository) AddSessionEntry(ctx context.Context, e *models.SessionEntry) error {
	const query = `
		INSERT INTO clock_session_entries (id, session_id, group_user_id, entry_id)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.Exec(ctx, query, e.ID, e.SessionID, e.GroupUserID, e.EntryID)
	return translate(err)
}

func (r *SessionRepository) AddClockEntry(ctx context.Context, e *models.ClockEntry) error {
	const query = `
		INSERT INTO clock_entries (id, clock_at, type, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query, e.ID, e.ClockAt, e.Type).Scan(&e.CreatedAt, &e.UpdatedAt)
	return translate(err)
}

// LockPair serializes clock entries of one group user in one session until
// the surrounding transaction ends.
func (r *SessionRepository) LockPair(ctx context.Context, sessionID, groupUserID string) error {
	const query = `SELECT pg_advisory_xact_lock(hashtext($1), hashtext($2))`
	_, err := r.db.Exec(ctx, query, sessionID, groupUserID)
	return translate(err)
}

// LastEntry returns the most recent clock entry of the pair, or ErrNotFound
// when only the marker (or nothing) exists.
func (r *SessionRepository) LastEntry(ctx context.Context, sessionID, groupUserID string) (models.ClockEntry, error) {
	const query = `
		SELECT ce.id, ce.clock_at, ce.type, ce.created_at, ce.updated_at
		FROM clock_session_entries cse
		JOIN clock_entries ce ON ce.id = cse.entry_id
		WHERE cse.session_id = $1 AND cse.group_user_id = $2
		ORDER BY ce.clock_at DESC, ce.created_at DESC
		LIMIT 1
	`
	var e models.ClockEntry
	err := r.db.QueryRow(ctx, query, sessionID, groupUserID).
		Scan(&e.ID, &e.ClockAt, &e.Type, &e.CreatedAt, &e.UpdatedAt)
	return e, translate(err)
}

// EntryRecords returns session entries of groupID joined with sessions,
// users and clock entries, ordered by clock time then user.
func (r *SessionRepository) EntryRecords(ctx context.Context, groupID string, f models.ReportFilter) ([]models.EntryRecord, error) {
	var sessionID *string
	if f.SessionID != "" {
		sessionID = &f.SessionID
	}
	var userIDs []string
	if len(f.UserIDs) > 0 {
		userIDs = f.UserIDs
	}

	query := `
		SELECT cs.id, cs.start_at, cs.stop_at, cse.group_user_id, ` + userColumnsQualified + `,
			ce.id, ce.clock_at, COALESCE(ce.type, '')
		FROM clock_session_entries cse
		JOIN clock_sessions cs ON cs.id = cse.session_id
		JOIN group_users gu ON gu.id = cse.group_user_id
		JOIN users u ON u.id = gu.user_id
		LEFT JOIN clock_entries ce ON ce.id = cse.entry_id
		WHERE cs.group_id = $1
			AND ($2::text IS NULL OR cs.id = $2)
			AND ($3::text[] IS NULL OR u.id = ANY($3))
			AND ($4::timestamptz IS NULL OR cs.start_at >= $4)
			AND ($5::timestamptz IS NULL OR cs.start_at <= $5)
		ORDER BY cs.start_at, COALESCE(ce.clock_at, cs.start_at), u.id
	`
	rows, err := r.db.Query(ctx, query, groupID, sessionID, userIDs, f.StartAt, f.StopAt)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []models.EntryRecord
	for rows.Next() {
		var rec models.EntryRecord
		u := &rec.User
		if err := rows.Scan(
			&rec.SessionID, &rec.SessionStartAt, &rec.SessionStopAt, &rec.GroupUserID,
			&u.ID, &u.Email, &u.Username, &u.FirstName, &u.SecondName, &u.LastName, &u.PhoneNumber,
			&u.Salt, &u.PasswordHash, &u.IsActive, &u.CreatedAt, &u.UpdatedAt, &u.DeletedAt,
			&rec.EntryID, &rec.ClockAt, &rec.Type,
		); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
