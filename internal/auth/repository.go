package auth

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads operator accounts from Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByEmail returns the account for a login email.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	const q = `
		SELECT id, name, email, password_hash, role, active, created_at
		FROM users
		WHERE lower(email) = lower($1)`

	var (
		u    User
		role string
	)
	err := r.pool.QueryRow(ctx, q, email).Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &u.Active, &u.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("auth: get user by email: %w", err)
	}
	u.Role = Role(role)
	return &u, nil
}

// Get returns the account by ID.
func (r *Repository) Get(ctx context.Context, id int64) (*User, error) {
	const q = `
		SELECT id, name, email, password_hash, role, active, created_at
		FROM users
		WHERE id = $1`

	var (
		u    User
		role string
	)
	err := r.pool.QueryRow(ctx, q, id).Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &u.Active, &u.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("auth: get user: %w", err)
	}
	u.Role = Role(role)
	return &u, nil
}
