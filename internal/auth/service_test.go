package auth

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/student360/student360-backend/internal/models"
)

type fakeUserRepo struct {
	users map[uuid.UUID]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uuid.UUID]*models.User)}
}

func (r *fakeUserRepo) Create(ctx context.Context, user *models.User) error {
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := r.users[id]
	if !ok || u.DeletedAt != nil {
		return nil, sql.ErrNoRows
	}
	cp := *u
	return &cp, nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range r.users {
		if u.Email == email && u.DeletedAt == nil {
			cp := *u
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r *fakeUserRepo) Update(ctx context.Context, user *models.User) error {
	cp := *user
	r.users[user.ID] = &cp
	return nil
}

func (r *fakeUserRepo) UpdateLoginState(ctx context.Context, user *models.User) error {
	stored, ok := r.users[user.ID]
	if !ok {
		return sql.ErrNoRows
	}
	stored.LoginAttempts = user.LoginAttempts
	stored.LockedUntil = user.LockedUntil
	stored.LastLoginAt = user.LastLoginAt
	return nil
}

func (r *fakeUserRepo) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	stored, ok := r.users[userID]
	if !ok {
		return sql.ErrNoRows
	}
	stored.PasswordHash = passwordHash
	return nil
}

func (r *fakeUserRepo) SoftDelete(ctx context.Context, id uuid.UUID) error {
	if u, ok := r.users[id]; ok {
		now := time.Now()
		u.DeletedAt = &now
		u.Status = models.StatusInactive
	}
	return nil
}

func (r *fakeUserRepo) Delete(ctx context.Context, id uuid.UUID) error {
	delete(r.users, id)
	return nil
}

func (r *fakeUserRepo) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	var out []*models.User
	for _, u := range r.users {
		if u.DeletedAt == nil {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeUserRepo) Count(ctx context.Context) (int, error) {
	n := 0
	for _, u := range r.users {
		if u.DeletedAt == nil {
			n++
		}
	}
	return n, nil
}

type fakeProfileRepo struct {
	profiles map[uuid.UUID]*models.UserProfile
}

func newFakeProfileRepo() *fakeProfileRepo {
	return &fakeProfileRepo{profiles: make(map[uuid.UUID]*models.UserProfile)}
}

func (r *fakeProfileRepo) Upsert(ctx context.Context, profile *models.UserProfile) error {
	cp := *profile
	r.profiles[profile.UserID] = &cp
	return nil
}

func (r *fakeProfileRepo) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.UserProfile, error) {
	p, ok := r.profiles[userID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *p
	return &cp, nil
}

type fakeUserSessionRepo struct {
	sessions map[uuid.UUID]*models.UserSession
}

func newFakeUserSessionRepo() *fakeUserSessionRepo {
	return &fakeUserSessionRepo{sessions: make(map[uuid.UUID]*models.UserSession)}
}

func (r *fakeUserSessionRepo) Create(ctx context.Context, session *models.UserSession) error {
	cp := *session
	r.sessions[session.ID] = &cp
	return nil
}

func (r *fakeUserSessionRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.UserSession, error) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *s
	return &cp, nil
}

func (r *fakeUserSessionRepo) Update(ctx context.Context, session *models.UserSession) error {
	cp := *session
	r.sessions[session.ID] = &cp
	return nil
}

func (r *fakeUserSessionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	delete(r.sessions, id)
	return nil
}

func (r *fakeUserSessionRepo) DeleteExpired(ctx context.Context) error { return nil }

func (r *fakeUserSessionRepo) DeleteUserSessions(ctx context.Context, userID uuid.UUID) error {
	for id, s := range r.sessions {
		if s.UserID == userID {
			delete(r.sessions, id)
		}
	}
	return nil
}

func newTestService() (*Service, *fakeUserRepo, *fakeUserSessionRepo) {
	users := newFakeUserRepo()
	sessions := newFakeUserSessionRepo()
	svc := NewService(users, newFakeProfileRepo(), sessions, "test-secret")
	return svc, users, sessions
}

func TestService_RegisterAndLogin(t *testing.T) {
	svc, _, sessions := newTestService()

	user, err := svc.Register(context.Background(), "Ada Lovelace", "ada@example.com", "Sup3rSecret!", "")
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, user.Role)
	assert.Equal(t, models.StatusActive, user.Status)

	loggedIn, access, refresh, err := svc.Login(context.Background(), "ada@example.com", "Sup3rSecret!", "127.0.0.1", "go-test")
	require.NoError(t, err)
	assert.Equal(t, user.ID, loggedIn.ID)
	assert.NotEmpty(t, access)
	assert.NotEmpty(t, refresh)
	assert.Len(t, sessions.sessions, 1)

	validated, claims, err := svc.ValidateAccessToken(context.Background(), access)
	require.NoError(t, err)
	assert.Equal(t, user.ID, validated.ID)
	assert.Equal(t, "ada@example.com", claims.Email)
}

func TestService_Register_DuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Register(context.Background(), "Ada", "ada@example.com", "Sup3rSecret!", "")
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), "Other Ada", "ada@example.com", "An0therSecret!", "")
	assert.ErrorIs(t, err, ErrEmailAlreadyExists)
}

func TestService_Login_WrongPasswordLocksAccount(t *testing.T) {
	svc, users, _ := newTestService()

	user, err := svc.Register(context.Background(), "Ada", "ada@example.com", "Sup3rSecret!", "")
	require.NoError(t, err)

	for i := 0; i < models.MaxLoginAttempts; i++ {
		_, _, _, err = svc.Login(context.Background(), "ada@example.com", "wrong", "127.0.0.1", "go-test")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}

	stored := users.users[user.ID]
	require.NotNil(t, stored.LockedUntil)
	assert.Equal(t, models.MaxLoginAttempts, stored.LoginAttempts)

	// Even the correct password is rejected while the lock holds
	_, _, _, err = svc.Login(context.Background(), "ada@example.com", "Sup3rSecret!", "127.0.0.1", "go-test")
	assert.ErrorIs(t, err, ErrAccountLocked)
}

func TestService_Login_SuccessResetsAttempts(t *testing.T) {
	svc, users, _ := newTestService()

	user, err := svc.Register(context.Background(), "Ada", "ada@example.com", "Sup3rSecret!", "")
	require.NoError(t, err)

	_, _, _, err = svc.Login(context.Background(), "ada@example.com", "wrong", "127.0.0.1", "go-test")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, 1, users.users[user.ID].LoginAttempts)

	_, _, _, err = svc.Login(context.Background(), "ada@example.com", "Sup3rSecret!", "127.0.0.1", "go-test")
	require.NoError(t, err)

	assert.Zero(t, users.users[user.ID].LoginAttempts)
	assert.NotNil(t, users.users[user.ID].LastLoginAt)
}

func TestService_Login_UnknownEmail(t *testing.T) {
	svc, _, _ := newTestService()

	_, _, _, err := svc.Login(context.Background(), "nobody@example.com", "whatever", "127.0.0.1", "go-test")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestService_Login_InactiveUser(t *testing.T) {
	svc, users, _ := newTestService()

	user, err := svc.Register(context.Background(), "Ada", "ada@example.com", "Sup3rSecret!", "")
	require.NoError(t, err)
	users.users[user.ID].Status = models.StatusSuspended

	_, _, _, err = svc.Login(context.Background(), "ada@example.com", "Sup3rSecret!", "127.0.0.1", "go-test")
	assert.ErrorIs(t, err, ErrUserInactive)
}

func TestService_RefreshToken_RotatesPair(t *testing.T) {
	svc, _, sessions := newTestService()

	_, err := svc.Register(context.Background(), "Ada", "ada@example.com", "Sup3rSecret!", "")
	require.NoError(t, err)

	_, access, refresh, err := svc.Login(context.Background(), "ada@example.com", "Sup3rSecret!", "127.0.0.1", "go-test")
	require.NoError(t, err)

	newAccess, newRefresh, err := svc.RefreshToken(context.Background(), refresh)
	require.NoError(t, err)
	assert.NotEqual(t, access, newAccess)
	assert.NotEmpty(t, newRefresh)

	// The old refresh token no longer matches the stored hash
	_, _, err = svc.RefreshToken(context.Background(), refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, _, err = svc.RefreshToken(context.Background(), newRefresh)
	require.NoError(t, err)

	require.Len(t, sessions.sessions, 1)
}

func TestService_RefreshToken_RejectsAccessToken(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.Register(context.Background(), "Ada", "ada@example.com", "Sup3rSecret!", "")
	require.NoError(t, err)

	_, access, _, err := svc.Login(context.Background(), "ada@example.com", "Sup3rSecret!", "127.0.0.1", "go-test")
	require.NoError(t, err)

	_, _, err = svc.RefreshToken(context.Background(), access)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestService_Logout_RevokesSession(t *testing.T) {
	svc, _, sessions := newTestService()

	_, err := svc.Register(context.Background(), "Ada", "ada@example.com", "Sup3rSecret!", "")
	require.NoError(t, err)

	_, access, refresh, err := svc.Login(context.Background(), "ada@example.com", "Sup3rSecret!", "127.0.0.1", "go-test")
	require.NoError(t, err)

	var sessionID uuid.UUID
	for id := range sessions.sessions {
		sessionID = id
	}
	require.NoError(t, svc.Logout(context.Background(), sessionID.String()))

	_, _, err = svc.ValidateAccessToken(context.Background(), access)
	assert.ErrorIs(t, err, ErrSessionExpired)

	_, _, err = svc.RefreshToken(context.Background(), refresh)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestService_ChangePassword(t *testing.T) {
	svc, _, _ := newTestService()

	user, err := svc.Register(context.Background(), "Ada", "ada@example.com", "Sup3rSecret!", "")
	require.NoError(t, err)

	err = svc.ChangePassword(context.Background(), user.ID, "wrong", "NewSecret1!")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	err = svc.ChangePassword(context.Background(), user.ID, "Sup3rSecret!", "weak")
	assert.Error(t, err)

	require.NoError(t, svc.ChangePassword(context.Background(), user.ID, "Sup3rSecret!", "NewSecret1!"))

	_, _, _, err = svc.Login(context.Background(), "ada@example.com", "NewSecret1!", "127.0.0.1", "go-test")
	require.NoError(t, err)
}

func TestService_DeleteAccount(t *testing.T) {
	svc, _, sessions := newTestService()

	user, err := svc.Register(context.Background(), "Ada", "ada@example.com", "Sup3rSecret!", "")
	require.NoError(t, err)

	_, _, _, err = svc.Login(context.Background(), "ada@example.com", "Sup3rSecret!", "127.0.0.1", "go-test")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteAccount(context.Background(), user.ID))
	assert.Empty(t, sessions.sessions)

	_, _, _, err = svc.Login(context.Background(), "ada@example.com", "Sup3rSecret!", "127.0.0.1", "go-test")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
