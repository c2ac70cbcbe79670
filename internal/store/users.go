package store

import (
	"context"

	"warehouse-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// CreateUser creates a new user
func (s *queries) CreateUser(ctx context.Context, user *models.User) error {
	err := s.q.QueryRowxContext(ctx, `
		INSERT INTO users (username, email, password_hash)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`,
		user.Username, user.Email, user.PasswordHash).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	return translate(err)
}

// GetUserByID retrieves a user by ID
func (s *queries) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := sqlx.GetContext(ctx, s.q, &user, "SELECT * FROM users WHERE id = $1", id)
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by email
func (s *queries) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := sqlx.GetContext(ctx, s.q, &user, "SELECT * FROM users WHERE email = $1", email)
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// ListUsers retrieves a page of users
func (s *queries) ListUsers(ctx context.Context, offset, limit int) ([]models.User, error) {
	users := []models.User{}
	err := sqlx.SelectContext(ctx, s.q, &users,
		"SELECT * FROM users ORDER BY id OFFSET $1 LIMIT $2", offset, limit)
	return users, translate(err)
}

// UpdateUser persists username and email
func (s *queries) UpdateUser(ctx context.Context, user *models.User) error {
	err := s.q.QueryRowxContext(ctx,
		"UPDATE users SET username = $1, email = $2, updated_at = NOW() WHERE id = $3 RETURNING updated_at",
		user.Username, user.Email, user.ID).Scan(&user.UpdatedAt)
	return translate(err)
}

// DeleteUser removes a user. Orders must be reconciled and removed first.
func (s *queries) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.q.ExecContext(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return translate(err)
	}
	return expectOne(res)
}
