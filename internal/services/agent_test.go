package services

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/student360/student360-backend/internal/agent"
	"github.com/student360/student360-backend/internal/models"
	"github.com/student360/student360-backend/internal/repository"
)

type fakeSessionRepo struct {
	sessions map[string]*repository.AgentSession
	nextID   int
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: make(map[string]*repository.AgentSession)}
}

func (r *fakeSessionRepo) Create(ctx context.Context, s *repository.AgentSession) error {
	if s.ID == "" {
		r.nextID++
		s.ID = uuid.New().String()
	}
	if s.State == "" {
		s.State = repository.SessionStateActive
	}
	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

func (r *fakeSessionRepo) Get(ctx context.Context, userID uuid.UUID, id string) (*repository.AgentSession, error) {
	s, ok := r.sessions[id]
	if !ok || s.UserID != userID {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *fakeSessionRepo) ListActive(ctx context.Context, userID uuid.UUID) ([]*repository.AgentSession, error) {
	var out []*repository.AgentSession
	for _, s := range r.sessions {
		if s.UserID == userID && s.State == repository.SessionStateActive {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *fakeSessionRepo) UpdateState(ctx context.Context, userID uuid.UUID, id string, state string) error {
	if s, ok := r.sessions[id]; ok && s.UserID == userID {
		s.State = state
	}
	return nil
}

func (r *fakeSessionRepo) UpdateSync(ctx context.Context, id string, lastUpdateTime decimal.Decimal, metadata models.JSONB) error {
	if s, ok := r.sessions[id]; ok {
		s.LastUpdateTime = lastUpdateTime
		if metadata != nil {
			s.SessionMetadata = metadata
		}
	}
	return nil
}

func (r *fakeSessionRepo) IncrementMessageCount(ctx context.Context, id string) error {
	if s, ok := r.sessions[id]; ok {
		s.MessageCount++
	}
	return nil
}

func (r *fakeSessionRepo) CountMessages(ctx context.Context, id string) (int, error) {
	if s, ok := r.sessions[id]; ok {
		return s.MessageCount, nil
	}
	return 0, nil
}

type fakeMessageRepo struct {
	messages []*repository.AgentMessage
}

func (r *fakeMessageRepo) Create(ctx context.Context, m *repository.AgentMessage) (string, error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	cp := *m
	r.messages = append(r.messages, &cp)
	return m.ID, nil
}

func (r *fakeMessageRepo) ListBySession(ctx context.Context, sessionID string) ([]*repository.AgentMessage, error) {
	var out []*repository.AgentMessage
	for _, m := range r.messages {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeRemote struct {
	createErr     error
	getErr        error
	deleteErr     error
	streamErr     error
	streamEvent   *agent.Event
	remoteSession *agent.RemoteSession

	deleteCalls        []string
	messagesAtCallTime []int

	messageRepo *fakeMessageRepo
}

func (f *fakeRemote) CreateSession(ctx context.Context, userID string) (*agent.RemoteSession, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &agent.RemoteSession{
		ID:             "remote-1",
		UserID:         userID,
		AppName:        "engine",
		LastUpdateTime: 1756339200.5,
		State:          map[string]interface{}{"seeded": true},
	}, nil
}

func (f *fakeRemote) ListSessions(ctx context.Context, userID string) ([]agent.RemoteSession, error) {
	return nil, nil
}

func (f *fakeRemote) GetSession(ctx context.Context, userID, sessionID string) (*agent.RemoteSession, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	if f.remoteSession != nil {
		return f.remoteSession, nil
	}
	return &agent.RemoteSession{ID: sessionID, LastUpdateTime: 1756339999.25}, nil
}

func (f *fakeRemote) DeleteSession(ctx context.Context, userID, sessionID string) error {
	f.deleteCalls = append(f.deleteCalls, sessionID)
	return f.deleteErr
}

func (f *fakeRemote) StreamQuery(ctx context.Context, userID, sessionID, message string, onEvent func(agent.Event)) error {
	if f.messageRepo != nil {
		f.messagesAtCallTime = append(f.messagesAtCallTime, len(f.messageRepo.messages))
	}
	if f.streamErr != nil {
		return f.streamErr
	}
	if f.streamEvent != nil {
		onEvent(*f.streamEvent)
	}
	return nil
}

func newTestAgentService(remote *fakeRemote) (*AgentService, *fakeSessionRepo, *fakeMessageRepo) {
	sessions := newFakeSessionRepo()
	messages := &fakeMessageRepo{}
	remote.messageRepo = messages
	return NewAgentService(remote, sessions, messages, "student360"), sessions, messages
}

func TestAgentService_CreateSession(t *testing.T) {
	svc, sessions, _ := newTestAgentService(&fakeRemote{})
	userID := uuid.New()

	created, err := svc.CreateSession(context.Background(), userID)
	require.NoError(t, err)

	assert.Equal(t, "remote-1", created.ExternalID)
	assert.Equal(t, userID, created.UserID)
	assert.Equal(t, repository.SessionStateActive, created.State)
	assert.True(t, created.LastUpdateTime.Equal(decimal.NewFromFloat(1756339200.5)))
	assert.Equal(t, true, created.SessionMetadata["seeded"])
	assert.Len(t, sessions.sessions, 1)
}

func TestAgentService_CreateSession_RemoteFailureWritesNothing(t *testing.T) {
	svc, sessions, _ := newTestAgentService(&fakeRemote{createErr: errors.New("quota exceeded")})

	_, err := svc.CreateSession(context.Background(), uuid.New())

	var invalid *InvalidRequestError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, invalid.Message, "quota exceeded")
	assert.Empty(t, sessions.sessions)
}

func TestAgentService_GetSession_OwnershipCollapsesToNotFound(t *testing.T) {
	svc, _, _ := newTestAgentService(&fakeRemote{})
	owner := uuid.New()
	stranger := uuid.New()

	created, err := svc.CreateSession(context.Background(), owner)
	require.NoError(t, err)

	_, err = svc.GetSession(context.Background(), stranger, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.GetSession(context.Background(), owner, "no-such-session")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAgentService_GetSession_RefreshesFromRemote(t *testing.T) {
	svc, _, _ := newTestAgentService(&fakeRemote{})
	userID := uuid.New()

	created, err := svc.CreateSession(context.Background(), userID)
	require.NoError(t, err)

	got, err := svc.GetSession(context.Background(), userID, created.ID)
	require.NoError(t, err)
	assert.True(t, got.LastUpdateTime.Equal(decimal.NewFromFloat(1756339999.25)))
}

func TestAgentService_GetSession_RefreshFailureServesMirror(t *testing.T) {
	remote := &fakeRemote{}
	svc, _, _ := newTestAgentService(remote)
	userID := uuid.New()

	created, err := svc.CreateSession(context.Background(), userID)
	require.NoError(t, err)

	remote.getErr = errors.New("remote down")

	got, err := svc.GetSession(context.Background(), userID, created.ID)
	require.NoError(t, err)
	assert.True(t, got.LastUpdateTime.Equal(decimal.NewFromFloat(1756339200.5)))
}

func TestAgentService_ListSessions_ActiveNewestFirst(t *testing.T) {
	svc, sessions, _ := newTestAgentService(&fakeRemote{})
	userID := uuid.New()
	now := time.Now()

	seed := []*repository.AgentSession{
		{ID: "older", UserID: userID, State: repository.SessionStateActive, CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "newer", UserID: userID, State: repository.SessionStateActive, CreatedAt: now},
		{ID: "idle", UserID: userID, State: repository.SessionStateInactive, CreatedAt: now.Add(-time.Hour)},
		{ID: "gone", UserID: userID, State: repository.SessionStateDeleted, CreatedAt: now.Add(-time.Minute)},
	}
	for _, s := range seed {
		require.NoError(t, sessions.Create(context.Background(), s))
	}

	listed, err := svc.ListSessions(context.Background(), userID)
	require.NoError(t, err)

	// Only active sessions, newest-created first
	require.Len(t, listed, 2)
	assert.Equal(t, "newer", listed[0].ID)
	assert.Equal(t, "older", listed[1].ID)
}

func TestAgentService_DeleteSession(t *testing.T) {
	remote := &fakeRemote{}
	svc, sessions, _ := newTestAgentService(remote)
	userID := uuid.New()

	created, err := svc.CreateSession(context.Background(), userID)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteSession(context.Background(), userID, created.ID))

	// The remote delete is addressed by external ID, not the local row ID
	require.Len(t, remote.deleteCalls, 1)
	assert.Equal(t, "remote-1", remote.deleteCalls[0])

	assert.Equal(t, repository.SessionStateDeleted, sessions.sessions[created.ID].State)

	// Deleted sessions behave as if they never existed
	_, err = svc.GetSession(context.Background(), userID, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	listed, err := svc.ListSessions(context.Background(), userID)
	require.NoError(t, err)
	assert.Empty(t, listed)

	_, err = svc.GetChatHistory(context.Background(), userID, created.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAgentService_DeleteSession_RemoteFailureKeepsMirror(t *testing.T) {
	remote := &fakeRemote{deleteErr: errors.New("remote down")}
	svc, sessions, _ := newTestAgentService(remote)
	userID := uuid.New()

	created, err := svc.CreateSession(context.Background(), userID)
	require.NoError(t, err)

	err = svc.DeleteSession(context.Background(), userID, created.ID)

	var invalid *InvalidRequestError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, repository.SessionStateActive, sessions.sessions[created.ID].State)
}

func TestAgentService_SendMessage(t *testing.T) {
	remote := &fakeRemote{
		streamEvent: &agent.Event{
			Role:         repository.MessageRoleModel,
			Author:       repository.MessageAuthorOrchestrator,
			Content:      "the answer",
			FinishReason: "STOP",
			Timestamp:    1756339200.5,
		},
	}
	svc, sessions, messages := newTestAgentService(remote)
	userID := uuid.New()

	created, err := svc.CreateSession(context.Background(), userID)
	require.NoError(t, err)

	var received []StreamEvent
	err = svc.SendMessage(context.Background(), userID, created.ID, "what is it?",
		func(ev StreamEvent) { received = append(received, ev) })
	require.NoError(t, err)

	// The user's turn was already stored when the remote call started
	require.Len(t, remote.messagesAtCallTime, 1)
	assert.Equal(t, 1, remote.messagesAtCallTime[0])

	require.Len(t, received, 1)
	assert.Equal(t, "the answer", received[0].Content)
	assert.Equal(t, int64(1756339200), received[0].Timestamp)

	require.Len(t, messages.messages, 2)
	assert.Equal(t, repository.MessageRoleUser, messages.messages[0].Role)
	assert.Equal(t, "what is it?", messages.messages[0].Content)
	assert.Equal(t, repository.MessageRoleModel, messages.messages[1].Role)
	require.NotNil(t, messages.messages[1].FinishReason)
	assert.Equal(t, "STOP", *messages.messages[1].FinishReason)

	// One increment per persisted turn
	assert.Equal(t, 2, sessions.sessions[created.ID].MessageCount)
}

func TestAgentService_SendMessage_AssistantDurableBeforeEmit(t *testing.T) {
	remote := &fakeRemote{
		streamEvent: &agent.Event{
			Role:    repository.MessageRoleModel,
			Author:  repository.MessageAuthorOrchestrator,
			Content: "the answer",
		},
	}
	svc, sessions, messages := newTestAgentService(remote)
	userID := uuid.New()

	created, err := svc.CreateSession(context.Background(), userID)
	require.NoError(t, err)

	var storedAtEmit, countAtEmit int
	err = svc.SendMessage(context.Background(), userID, created.ID, "what is it?",
		func(StreamEvent) {
			storedAtEmit = len(messages.messages)
			countAtEmit = sessions.sessions[created.ID].MessageCount
		})
	require.NoError(t, err)

	// Both turns were already in the mirror when the event went out
	assert.Equal(t, 2, storedAtEmit)
	assert.Equal(t, 2, countAtEmit)
}

func TestAgentService_SendMessage_RemoteFailureKeepsUserTurn(t *testing.T) {
	remote := &fakeRemote{streamErr: errors.New("stream broke")}
	svc, sessions, messages := newTestAgentService(remote)
	userID := uuid.New()

	created, err := svc.CreateSession(context.Background(), userID)
	require.NoError(t, err)

	err = svc.SendMessage(context.Background(), userID, created.ID, "hello", func(StreamEvent) {})

	var invalid *InvalidRequestError
	require.ErrorAs(t, err, &invalid)

	require.Len(t, messages.messages, 1)
	assert.Equal(t, repository.MessageRoleUser, messages.messages[0].Role)
	assert.Equal(t, 1, sessions.sessions[created.ID].MessageCount)
}

func TestAgentService_SendMessage_UnknownSession(t *testing.T) {
	svc, _, messages := newTestAgentService(&fakeRemote{})

	err := svc.SendMessage(context.Background(), uuid.New(), "nope", "hello", func(StreamEvent) {})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, messages.messages)
}

func TestAgentService_GetChatHistory(t *testing.T) {
	remote := &fakeRemote{
		streamEvent: &agent.Event{
			Role:    repository.MessageRoleModel,
			Author:  repository.MessageAuthorOrchestrator,
			Content: "reply",
		},
	}
	svc, _, _ := newTestAgentService(remote)
	userID := uuid.New()

	created, err := svc.CreateSession(context.Background(), userID)
	require.NoError(t, err)

	require.NoError(t, svc.SendMessage(context.Background(), userID, created.ID, "ask", func(StreamEvent) {}))

	history, err := svc.GetChatHistory(context.Background(), userID, created.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "ask", history[0].Content)
	assert.Equal(t, "reply", history[1].Content)
}
