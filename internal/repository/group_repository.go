package repository

import (
	"context"

	"clockpoint/internal/ids"
	"clockpoint/internal/models"
)

type GroupRepository struct {
	db Querier
}

const groupColumns = `g.id, g.name, g.description, g.created_at, g.updated_at, g.deleted_at`

func scanGroup(row interface{ Scan(...any) error }) (models.Group, error) {
	var g models.Group
	err := row.Scan(&g.ID, &g.Name, &g.Description, &g.CreatedAt, &g.UpdatedAt, &g.DeletedAt)
	return g, translate(err)
}

func (r *GroupRepository) Create(ctx context.Context, group *models.Group) error {
	const query = `
		INSERT INTO groups (id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query, group.ID, group.Name, group.Description).
		Scan(&group.CreatedAt, &group.UpdatedAt)
	return translate(err)
}

func (r *GroupRepository) GetByID(ctx context.Context, id string) (models.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups g WHERE g.id = $1 AND g.deleted_at IS NULL`
	return scanGroup(r.db.QueryRow(ctx, query, id))
}

func (r *GroupRepository) GetByName(ctx context.Context, name string) (models.Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups g WHERE g.name = $1 AND g.deleted_at IS NULL`
	return scanGroup(r.db.QueryRow(ctx, query, name))
}

// Update applies last-writer-wins changes to name and description.
func (r *GroupRepository) Update(ctx context.Context, group *models.Group) error {
	const query = `
		UPDATE groups SET name = $2, description = $3, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING updated_at
	`
	err := r.db.QueryRow(ctx, query, group.ID, group.Name, group.Description).Scan(&group.UpdatedAt)
	return translate(err)
}

func (r *GroupRepository) SoftDelete(ctx context.Context, id string) error {
	const query = `UPDATE groups SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return translate(err)
	}
	return affected(tag)
}

type RoleRepository struct {
	db Querier
}

func (r *RoleRepository) Create(ctx context.Context, role *models.Role) error {
	const query = `
		INSERT INTO roles (id, group_id, name, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query, role.ID, role.GroupID, role.Name).
		Scan(&role.CreatedAt, &role.UpdatedAt)
	return translate(err)
}

func (r *RoleRepository) GetByID(ctx context.Context, id string) (models.Role, error) {
	const query = `SELECT id, group_id, name, created_at, updated_at FROM roles WHERE id = $1`
	var role models.Role
	err := r.db.QueryRow(ctx, query, id).
		Scan(&role.ID, &role.GroupID, &role.Name, &role.CreatedAt, &role.UpdatedAt)
	return role, translate(err)
}

func (r *RoleRepository) GetByName(ctx context.Context, groupID string, name models.RoleName) (models.Role, error) {
	const query = `SELECT id, group_id, name, created_at, updated_at FROM roles WHERE group_id = $1 AND name = $2`
	var role models.Role
	err := r.db.QueryRow(ctx, query, groupID, name).
		Scan(&role.ID, &role.GroupID, &role.Name, &role.CreatedAt, &role.UpdatedAt)
	return role, translate(err)
}

// BindPermissions inserts one role_permissions row per permission.
func (r *RoleRepository) BindPermissions(ctx context.Context, roleID string, perms []models.Permission) error {
	const query = `
		INSERT INTO role_permissions (id, role_id, permission_id)
		SELECT $1, $2, p.id FROM permissions p WHERE p.name = $3
	`
	for _, perm := range perms {
		tag, err := r.db.Exec(ctx, query, ids.New(), roleID, perm)
		if err != nil {
			return translate(err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
	}
	return nil
}

func (r *RoleRepository) Permissions(ctx context.Context, roleID string) ([]models.Permission, error) {
	const query = `
		SELECT DISTINCT p.name
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.name
	`
	rows, err := r.db.Query(ctx, query, roleID)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var perms []models.Permission
	for rows.Next() {
		var p models.Permission
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}
