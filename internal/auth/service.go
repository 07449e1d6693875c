package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/student360/student360-backend/internal/models"
)

var (
	// ErrInvalidCredentials is returned when login credentials are invalid
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrUserNotFound is returned when a user is not found
	ErrUserNotFound = errors.New("user not found")
	// ErrUserInactive is returned when a user account may not log in
	ErrUserInactive = errors.New("user account is inactive")
	// ErrAccountLocked is returned after too many failed login attempts
	ErrAccountLocked = errors.New("account temporarily locked due to failed login attempts")
	// ErrEmailAlreadyExists is returned when email is already registered
	ErrEmailAlreadyExists = errors.New("email already exists")
	// ErrSessionNotFound is returned when a login session is not found
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is returned when a login session is expired or revoked
	ErrSessionExpired = errors.New("session expired")
)

// UserRepository defines the interface for user data access
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	UpdateLoginState(ctx context.Context, user *models.User) error
	UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
	Count(ctx context.Context) (int, error)
}

// ProfileRepository defines the interface for user profile data access
type ProfileRepository interface {
	Upsert(ctx context.Context, profile *models.UserProfile) error
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.UserProfile, error)
}

// SessionRepository defines the interface for login session data access
type SessionRepository interface {
	Create(ctx context.Context, session *models.UserSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.UserSession, error)
	Update(ctx context.Context, session *models.UserSession) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteExpired(ctx context.Context) error
	DeleteUserSessions(ctx context.Context, userID uuid.UUID) error
}

// Service handles authentication operations
type Service struct {
	userRepo    UserRepository
	profileRepo ProfileRepository
	sessionRepo SessionRepository
	jwt         *JWTService
	log         *logrus.Entry
}

// NewService creates a new auth service
func NewService(userRepo UserRepository, profileRepo ProfileRepository, sessionRepo SessionRepository, jwtSecret string) *Service {
	return &Service{
		userRepo:    userRepo,
		profileRepo: profileRepo,
		sessionRepo: sessionRepo,
		jwt:         NewJWTService(jwtSecret, "student360"),
		log:         logrus.WithField("component", "auth"),
	}
}

// JWT exposes the underlying JWT service
func (s *Service) JWT() *JWTService {
	return s.jwt
}

// Register creates a new user account
func (s *Service) Register(ctx context.Context, name, email, password, role string) (*models.User, error) {
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	existingUser, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if existingUser != nil {
		return nil, ErrEmailAlreadyExists
	}

	passwordHash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	if role == "" {
		role = models.RoleStudent
	}

	user := &models.User{
		ID:           uuid.New(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		Status:       models.StatusActive,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

// Login authenticates a user and creates a session
func (s *Service) Login(ctx context.Context, email, password string, ipAddress, userAgent string) (*models.User, string, string, error) {
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", "", ErrInvalidCredentials
		}
		return nil, "", "", err
	}

	if user.IsLocked() {
		return nil, "", "", ErrAccountLocked
	}

	if !user.IsActive() {
		return nil, "", "", ErrUserInactive
	}

	if !CheckPassword(password, user.PasswordHash) {
		user.LoginAttempts++
		if user.LoginAttempts >= models.MaxLoginAttempts {
			lockedUntil := time.Now().Add(models.LockoutDuration)
			user.LockedUntil = &lockedUntil
			s.log.WithField("user_id", user.ID).Warn("account locked after repeated failed logins")
		}
		if err := s.userRepo.UpdateLoginState(ctx, user); err != nil {
			s.log.WithError(err).Error("failed to record failed login attempt")
		}
		return nil, "", "", ErrInvalidCredentials
	}

	session := &models.UserSession{
		ID:               uuid.New(),
		UserID:           user.ID,
		ExpiresAt:        time.Now().Add(AccessTokenTTL),
		RefreshExpiresAt: time.Now().Add(RefreshTokenTTL),
		IPAddress:        ipAddress,
		UserAgent:        userAgent,
		CreatedAt:        time.Now(),
		LastActivity:     time.Now(),
	}

	accessToken, refreshToken, err := s.jwt.GenerateTokenPair(
		user.ID.String(),
		user.Email,
		user.Role,
		session.ID.String(),
	)
	if err != nil {
		return nil, "", "", err
	}

	session.TokenHash = HashToken(accessToken)
	session.RefreshTokenHash = HashToken(refreshToken)

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, "", "", err
	}

	// Successful login resets the attempt counter
	now := time.Now()
	user.LastLoginAt = &now
	user.LoginAttempts = 0
	user.LockedUntil = nil
	if err := s.userRepo.UpdateLoginState(ctx, user); err != nil {
		s.log.WithError(err).Error("failed to update last login")
	}

	return user, accessToken, refreshToken, nil
}

// RefreshToken refreshes an access token using a refresh token
func (s *Service) RefreshToken(ctx context.Context, refreshToken string) (string, string, error) {
	claims, err := s.jwt.ValidateRefreshToken(refreshToken)
	if err != nil {
		return "", "", ErrInvalidToken
	}

	sessionID, err := uuid.Parse(claims.SessionID)
	if err != nil {
		return "", "", ErrInvalidToken
	}

	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", ErrSessionNotFound
		}
		return "", "", err
	}

	if session.RevokedAt != nil {
		return "", "", ErrSessionExpired
	}

	if session.RefreshTokenHash != HashToken(refreshToken) {
		return "", "", ErrInvalidToken
	}

	if session.RefreshExpiresAt.Before(time.Now()) {
		return "", "", ErrSessionExpired
	}

	user, err := s.userRepo.GetByID(ctx, session.UserID)
	if err != nil {
		return "", "", err
	}

	newAccessToken, newRefreshToken, err := s.jwt.GenerateTokenPair(
		user.ID.String(),
		user.Email,
		user.Role,
		session.ID.String(),
	)
	if err != nil {
		return "", "", err
	}

	session.TokenHash = HashToken(newAccessToken)
	session.RefreshTokenHash = HashToken(newRefreshToken)
	session.ExpiresAt = time.Now().Add(AccessTokenTTL)
	session.RefreshExpiresAt = time.Now().Add(RefreshTokenTTL)
	session.LastActivity = time.Now()

	if err := s.sessionRepo.Update(ctx, session); err != nil {
		return "", "", err
	}

	return newAccessToken, newRefreshToken, nil
}

// Logout revokes a session
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return err
	}

	session, err := s.sessionRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	now := time.Now()
	session.RevokedAt = &now
	return s.sessionRepo.Update(ctx, session)
}

// ValidateAccessToken validates an access token and returns the user
func (s *Service) ValidateAccessToken(ctx context.Context, token string) (*models.User, *JWTClaims, error) {
	claims, err := s.jwt.ValidateAccessToken(token)
	if err != nil {
		return nil, nil, err
	}

	sessionID, err := uuid.Parse(claims.SessionID)
	if err != nil {
		return nil, nil, ErrInvalidToken
	}

	session, err := s.sessionRepo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrSessionNotFound
		}
		return nil, nil, err
	}

	if session.RevokedAt != nil {
		return nil, nil, ErrSessionExpired
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, nil, ErrInvalidToken
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrUserNotFound
		}
		return nil, nil, err
	}

	if !user.IsActive() {
		return nil, nil, ErrUserInactive
	}

	session.LastActivity = time.Now()
	if err := s.sessionRepo.Update(ctx, session); err != nil {
		s.log.WithError(err).Error("failed to update session activity")
	}

	return user, claims, nil
}

// GetUser retrieves a user by ID
func (s *Service) GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	return s.userRepo.GetByID(ctx, userID)
}

// GetProfile retrieves a user's profile, creating an empty one if absent
func (s *Service) GetProfile(ctx context.Context, userID uuid.UUID) (*models.UserProfile, error) {
	profile, err := s.profileRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.UserProfile{UserID: userID, Preferences: make(models.JSONB)}, nil
		}
		return nil, err
	}
	return profile, nil
}

// UpdateProfile updates a user's name and profile fields
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, name string, profile *models.UserProfile) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if name != "" {
		user.Name = name
		user.UpdatedAt = time.Now()
		if err := s.userRepo.Update(ctx, user); err != nil {
			return nil, err
		}
	}

	if profile != nil {
		profile.UserID = userID
		if err := s.profileRepo.Upsert(ctx, profile); err != nil {
			return nil, err
		}
	}

	return user, nil
}

// ChangePassword changes a user's password
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	if !CheckPassword(currentPassword, user.PasswordHash) {
		return ErrInvalidCredentials
	}

	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	newHash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}

	return s.userRepo.UpdatePassword(ctx, userID, newHash)
}

// DeleteAccount soft-deletes the user and revokes all their sessions
func (s *Service) DeleteAccount(ctx context.Context, userID uuid.UUID) error {
	if err := s.userRepo.SoftDelete(ctx, userID); err != nil {
		return err
	}
	return s.sessionRepo.DeleteUserSessions(ctx, userID)
}

// CleanupExpiredSessions removes expired sessions
func (s *Service) CleanupExpiredSessions(ctx context.Context) error {
	return s.sessionRepo.DeleteExpired(ctx)
}
