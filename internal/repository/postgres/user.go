package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/student360/student360-backend/internal/models"
)

// UserRepository handles user data access
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (
			id, name, email, password_hash, role, status,
			email_verified, login_attempts, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)`

	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Name, user.Email, user.PasswordHash, user.Role, user.Status,
		user.EmailVerified, user.LoginAttempts, user.CreatedAt, user.UpdatedAt,
	)
	return err
}

// GetByID retrieves a user by ID. Soft-deleted users are not returned.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	query := `
		SELECT
			id, name, email, password_hash, role, status,
			email_verified, last_login_at, login_attempts, locked_until,
			password_changed_at, created_at, updated_at, deleted_at
		FROM users
		WHERE id = $1 AND deleted_at IS NULL`

	err := r.db.GetContext(ctx, &user, query, id)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByEmail retrieves a user by email. Soft-deleted users are not returned.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	query := `
		SELECT
			id, name, email, password_hash, role, status,
			email_verified, last_login_at, login_attempts, locked_until,
			password_changed_at, created_at, updated_at, deleted_at
		FROM users
		WHERE email = $1 AND deleted_at IS NULL`

	err := r.db.GetContext(ctx, &user, query, email)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Update updates a user's mutable account fields
func (r *UserRepository) Update(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users SET
			name = $2,
			email = $3,
			role = $4,
			status = $5,
			email_verified = $6,
			updated_at = $7
		WHERE id = $1`

	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Name, user.Email, user.Role, user.Status,
		user.EmailVerified, time.Now(),
	)
	return err
}

// UpdateLoginState persists the login bookkeeping columns: attempt counter,
// lockout deadline and last login timestamp.
func (r *UserRepository) UpdateLoginState(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users SET
			login_attempts = $2,
			locked_until = $3,
			last_login_at = $4,
			updated_at = $5
		WHERE id = $1`

	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.LoginAttempts, user.LockedUntil, user.LastLoginAt, time.Now(),
	)
	return err
}

// UpdatePassword updates a user's password hash
func (r *UserRepository) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	query := `
		UPDATE users SET
			password_hash = $2,
			password_changed_at = $3,
			updated_at = $3
		WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, userID, passwordHash, time.Now())
	return err
}

// SoftDelete marks a user as deleted without removing the row
func (r *UserRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE users SET deleted_at = $2, status = $3, updated_at = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, time.Now(), models.StatusInactive)
	return err
}

// Delete permanently deletes a user
func (r *UserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM users WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// List lists users with pagination
func (r *UserRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	var users []*models.User
	query := `
		SELECT
			id, name, email, password_hash, role, status,
			email_verified, last_login_at, login_attempts, locked_until,
			password_changed_at, created_at, updated_at, deleted_at
		FROM users
		WHERE deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	err := r.db.SelectContext(ctx, &users, query, limit, offset)
	return users, err
}

// Count counts total non-deleted users
func (r *UserRepository) Count(ctx context.Context) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM users WHERE deleted_at IS NULL`
	err := r.db.GetContext(ctx, &count, query)
	return count, err
}
