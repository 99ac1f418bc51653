package repository

import (
	"context"
	"errors"

	"clockpoint/internal/models"
)

type MemberRepository struct {
	db Querier
}

// Add inserts the membership, or revives a previously removed one with the
// given role.
func (r *MemberRepository) Add(ctx context.Context, gu *models.GroupUser) error {
	const query = `
		INSERT INTO group_users (id, group_id, user_id, role_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (group_id, user_id) DO UPDATE
			SET role_id = EXCLUDED.role_id, deleted_at = NULL, updated_at = NOW()
			WHERE group_users.deleted_at IS NOT NULL
		RETURNING id, created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query, gu.ID, gu.GroupID, gu.UserID, gu.RoleID).
		Scan(&gu.ID, &gu.CreatedAt, &gu.UpdatedAt)
	switch err := translate(err); {
	case errors.Is(err, ErrNotFound):
		// conflict with an active membership: nothing was returned
		return ErrDuplicate
	case err != nil:
		return err
	}
	gu.DeletedAt = nil
	return nil
}

const memberColumns = `gu.id, gu.group_id, gu.user_id, gu.role_id, gu.created_at, gu.updated_at, gu.deleted_at`

func scanGroupUser(row interface{ Scan(...any) error }) (models.GroupUser, error) {
	var gu models.GroupUser
	err := row.Scan(&gu.ID, &gu.GroupID, &gu.UserID, &gu.RoleID, &gu.CreatedAt, &gu.UpdatedAt, &gu.DeletedAt)
	return gu, translate(err)
}

// Get returns the active membership of userID in groupID.
func (r *MemberRepository) Get(ctx context.Context, groupID, userID string) (models.GroupUser, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM group_users gu
		JOIN groups g ON g.id = gu.group_id AND g.deleted_at IS NULL
		WHERE gu.group_id = $1 AND gu.user_id = $2 AND gu.deleted_at IS NULL
	`
	return scanGroupUser(r.db.QueryRow(ctx, query, groupID, userID))
}

func (r *MemberRepository) GetByID(ctx context.Context, id string) (models.GroupUser, error) {
	query := `SELECT ` + memberColumns + ` FROM group_users gu WHERE gu.id = $1 AND gu.deleted_at IS NULL`
	return scanGroupUser(r.db.QueryRow(ctx, query, id))
}

func (r *MemberRepository) UpdateRole(ctx context.Context, id, roleID string) error {
	const query = `UPDATE group_users SET role_id = $2, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`
	tag, err := r.db.Exec(ctx, query, id, roleID)
	if err != nil {
		return translate(err)
	}
	return affected(tag)
}

func (r *MemberRepository) SoftDelete(ctx context.Context, id string) error {
	const query = `UPDATE group_users SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return translate(err)
	}
	return affected(tag)
}

// SoftDeleteByUser removes userID from every group it belongs to.
func (r *MemberRepository) SoftDeleteByUser(ctx context.Context, userID string) error {
	const query = `UPDATE group_users SET deleted_at = NOW(), updated_at = NOW() WHERE user_id = $1 AND deleted_at IS NULL`
	_, err := r.db.Exec(ctx, query, userID)
	return translate(err)
}

// ListByUser returns the active memberships of userID with group and role.
func (r *MemberRepository) ListByUser(ctx context.Context, userID string) ([]models.Membership, error) {
	query := `
		SELECT ` + memberColumns + `, ` + groupColumns + `,
			r.id, r.group_id, r.name, r.created_at, r.updated_at
		FROM group_users gu
		JOIN groups g ON g.id = gu.group_id AND g.deleted_at IS NULL
		JOIN roles r ON r.id = gu.role_id
		WHERE gu.user_id = $1 AND gu.deleted_at IS NULL
		ORDER BY g.name
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []models.Membership
	for rows.Next() {
		var m models.Membership
		gu, g, role := &m.GroupUser, &m.Group, &m.Role
		if err := rows.Scan(
			&gu.ID, &gu.GroupID, &gu.UserID, &gu.RoleID, &gu.CreatedAt, &gu.UpdatedAt, &gu.DeletedAt,
			&g.ID, &g.Name, &g.Description, &g.CreatedAt, &g.UpdatedAt, &g.DeletedAt,
			&role.ID, &role.GroupID, &role.Name, &role.CreatedAt, &role.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListByGroup returns the active members of groupID ordered by username.
func (r *MemberRepository) ListByGroup(ctx context.Context, groupID string) ([]models.Member, error) {
	query := `
		SELECT ` + memberColumns + `, ` + userColumnsQualified + `, r.name
		FROM group_users gu
		JOIN users u ON u.id = gu.user_id AND u.deleted_at IS NULL
		JOIN roles r ON r.id = gu.role_id
		WHERE gu.group_id = $1 AND gu.deleted_at IS NULL
		ORDER BY u.username
	`
	rows, err := r.db.Query(ctx, query, groupID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []models.Member
	for rows.Next() {
		var m models.Member
		gu, u := &m.GroupUser, &m.User
		if err := rows.Scan(
			&gu.ID, &gu.GroupID, &gu.UserID, &gu.RoleID, &gu.CreatedAt, &gu.UpdatedAt, &gu.DeletedAt,
			&u.ID, &u.Email, &u.Username, &u.FirstName, &u.SecondName, &u.LastName, &u.PhoneNumber,
			&u.Salt, &u.PasswordHash, &u.IsActive, &u.CreatedAt, &u.UpdatedAt, &u.DeletedAt,
			&m.Role,
		); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
