package repository

import (
	"context"

	"clockpoint/internal/models"
)

type UserRepository struct {
	db Querier
}

const userColumns = `id, email, username, first_name, second_name, last_name, phone_number,
	salt, password_hash, is_active, created_at, updated_at, deleted_at`

const userColumnsQualified = `u.id, u.email, u.username, u.first_name, u.second_name, u.last_name, u.phone_number,
	u.salt, u.password_hash, u.is_active, u.created_at, u.updated_at, u.deleted_at`

func scanUser(row interface{ Scan(...any) error }) (models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.FirstName,
		&user.SecondName,
		&user.LastName,
		&user.PhoneNumber,
		&user.Salt,
		&user.PasswordHash,
		&user.IsActive,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.DeletedAt,
	)
	return user, translate(err)
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	const query = `
		INSERT INTO users (
			id, email, username, first_name, second_name, last_name, phone_number,
			salt, password_hash, is_active, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW()
		)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		user.ID,
		user.Email,
		user.Username,
		user.FirstName,
		user.SecondName,
		user.LastName,
		user.PhoneNumber,
		user.Salt,
		user.PasswordHash,
		user.IsActive,
	).Scan(&user.CreatedAt, &user.UpdatedAt)
	return translate(err)
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 AND deleted_at IS NULL`
	return scanUser(r.db.QueryRow(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1) AND deleted_at IS NULL`
	return scanUser(r.db.QueryRow(ctx, query, email))
}

// UpdatePassword replaces the salt and digest together.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, salt, passwordHash string) error {
	const query = `
		UPDATE users SET salt = $2, password_hash = $3, updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`
	tag, err := r.db.Exec(ctx, query, id, salt, passwordHash)
	if err != nil {
		return translate(err)
	}
	return affected(tag)
}

func (r *UserRepository) Activate(ctx context.Context, id string) error {
	const query = `UPDATE users SET is_active = TRUE, updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return translate(err)
	}
	return affected(tag)
}

func (r *UserRepository) SoftDelete(ctx context.Context, id string) error {
	const query = `UPDATE users SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return translate(err)
	}
	return affected(tag)
}
