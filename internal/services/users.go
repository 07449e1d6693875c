package services

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/student360/student360-backend/internal/auth"
	"github.com/student360/student360-backend/internal/models"
)

// validRoles and validStatuses bound what an admin may assign
var validRoles = map[string]bool{
	models.RoleAdmin:   true,
	models.RoleTeacher: true,
	models.RoleStudent: true,
}

var validStatuses = map[string]bool{
	models.StatusActive:              true,
	models.StatusInactive:            true,
	models.StatusSuspended:           true,
	models.StatusPendingVerification: true,
}

// UserService covers the admin-facing user management operations. Self-service
// profile and password flows live in the auth service.
type UserService struct {
	userRepo    auth.UserRepository
	sessionRepo auth.SessionRepository
	log         *logrus.Entry
}

// NewUserService creates the user management service
func NewUserService(userRepo auth.UserRepository, sessionRepo auth.SessionRepository) *UserService {
	return &UserService{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		log:         logrus.WithField("component", "user-service"),
	}
}

// List returns a page of users and the total count
func (s *UserService) List(ctx context.Context, page, limit int) ([]*models.User, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	users, err := s.userRepo.List(ctx, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.userRepo.Count(ctx)
	if err != nil {
		return nil, 0, err
	}

	if users == nil {
		users = []*models.User{}
	}
	return users, total, nil
}

// Get retrieves one user
func (s *UserService) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

// UpdateRole changes a user's role
func (s *UserService) UpdateRole(ctx context.Context, id uuid.UUID, role string) (*models.User, error) {
	if !validRoles[role] {
		return nil, NewInvalidRequest("invalid role: "+role, nil)
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	user.Role = role
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"user_id": id,
		"role":    role,
	}).Info("user role updated")

	return user, nil
}

// UpdateStatus changes a user's account status. Suspending a user also
// revokes their login sessions.
func (s *UserService) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*models.User, error) {
	if !validStatuses[status] {
		return nil, NewInvalidRequest("invalid status: "+status, nil)
	}

	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	user.Status = status
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}

	if status == models.StatusSuspended || status == models.StatusInactive {
		if err := s.sessionRepo.DeleteUserSessions(ctx, id); err != nil {
			s.log.WithError(err).WithField("user_id", id).Warn("failed to revoke sessions")
		}
	}

	return user, nil
}

// Delete soft-deletes a user and revokes their sessions
func (s *UserService) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	if err := s.userRepo.SoftDelete(ctx, id); err != nil {
		return err
	}
	if err := s.sessionRepo.DeleteUserSessions(ctx, id); err != nil {
		s.log.WithError(err).WithField("user_id", id).Warn("failed to revoke sessions")
	}

	return nil
}
