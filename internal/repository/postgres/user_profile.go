package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/student360/student360-backend/internal/models"
)

// UserProfileRepository implements auth.ProfileRepository
type UserProfileRepository struct {
	db *sqlx.DB
}

// NewUserProfileRepository creates a new user profile repository
func NewUserProfileRepository(db *sqlx.DB) *UserProfileRepository {
	return &UserProfileRepository{db: db}
}

// Upsert creates or replaces the profile row for a user. A user has at most
// one profile, keyed by user_id.
func (r *UserProfileRepository) Upsert(ctx context.Context, profile *models.UserProfile) error {
	if profile.ID == uuid.Nil {
		profile.ID = uuid.New()
	}
	now := time.Now()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now

	if profile.Preferences == nil {
		profile.Preferences = models.JSONB{}
	}

	query := `
		INSERT INTO user_profiles (
			id, user_id, avatar_url, phone, address, bio, preferences,
			created_at, updated_at
		) VALUES (
			:id, :user_id, :avatar_url, :phone, :address, :bio, :preferences,
			:created_at, :updated_at
		)
		ON CONFLICT (user_id) DO UPDATE SET
			avatar_url = EXCLUDED.avatar_url,
			phone = EXCLUDED.phone,
			address = EXCLUDED.address,
			bio = EXCLUDED.bio,
			preferences = EXCLUDED.preferences,
			updated_at = EXCLUDED.updated_at`

	_, err := r.db.NamedExecContext(ctx, query, profile)
	return err
}

// GetByUserID retrieves the profile for a user
func (r *UserProfileRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.UserProfile, error) {
	var profile models.UserProfile
	query := `SELECT * FROM user_profiles WHERE user_id = $1`

	err := r.db.GetContext(ctx, &profile, query, userID)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}
