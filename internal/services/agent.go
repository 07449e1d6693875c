package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/student360/student360-backend/internal/agent"
	"github.com/student360/student360-backend/internal/models"
	"github.com/student360/student360-backend/internal/repository"
)

// RemoteAgentClient is the slice of the platform client the relay needs
type RemoteAgentClient interface {
	CreateSession(ctx context.Context, userID string) (*agent.RemoteSession, error)
	ListSessions(ctx context.Context, userID string) ([]agent.RemoteSession, error)
	GetSession(ctx context.Context, userID, sessionID string) (*agent.RemoteSession, error)
	DeleteSession(ctx context.Context, userID, sessionID string) error
	StreamQuery(ctx context.Context, userID, sessionID, message string, onEvent func(agent.Event)) error
}

// StreamEvent is the transport-facing shape of one relayed chat event
type StreamEvent struct {
	Content       string                 `json:"content"`
	Author        string                 `json:"author"`
	FinishReason  string                 `json:"finishReason,omitempty"`
	UsageMetadata map[string]interface{} `json:"usageMetadata,omitempty"`
	InvocationID  string                 `json:"invocationId,omitempty"`
	Timestamp     int64                  `json:"timestamp"`
}

// AgentService relays chat between authenticated users and the remote agent
// platform, mirroring sessions and turns locally.
type AgentService struct {
	remote      RemoteAgentClient
	sessionRepo repository.AgentSessionRepository
	messageRepo repository.AgentMessageRepository
	appName     string
	log         *logrus.Entry
}

// NewAgentService creates the chat relay service
func NewAgentService(
	remote RemoteAgentClient,
	sessionRepo repository.AgentSessionRepository,
	messageRepo repository.AgentMessageRepository,
	appName string,
) *AgentService {
	return &AgentService{
		remote:      remote,
		sessionRepo: sessionRepo,
		messageRepo: messageRepo,
		appName:     appName,
		log:         logrus.WithField("component", "agent-service"),
	}
}

// CreateSession creates a remote session first, then its local mirror. If
// the remote create fails no local row is written.
func (s *AgentService) CreateSession(ctx context.Context, userID uuid.UUID) (*repository.AgentSession, error) {
	remote, err := s.remote.CreateSession(ctx, userID.String())
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Error("remote session create failed")
		return nil, NewInvalidRequest("failed to create chat session: "+err.Error(), err)
	}

	session := &repository.AgentSession{
		ExternalID:      remote.ID,
		UserID:          userID,
		AppName:         s.appName,
		State:           repository.SessionStateActive,
		SessionMetadata: models.JSONB(remote.State),
		LastUpdateTime:  decimal.NewFromFloat(remote.LastUpdateTime),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, err
	}

	return session, nil
}

// ListSessions returns the caller's active sessions from the local mirror,
// newest first. The remote platform is not consulted on list.
func (s *AgentService) ListSessions(ctx context.Context, userID uuid.UUID) ([]*repository.AgentSession, error) {
	sessions, err := s.sessionRepo.ListActive(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = []*repository.AgentSession{}
	}
	return sessions, nil
}

// GetSession returns one owned session, refreshed from the remote platform
// on a best-effort basis. A refresh failure degrades to the stored mirror
// rather than failing the read.
func (s *AgentService) GetSession(ctx context.Context, userID uuid.UUID, id string) (*repository.AgentSession, error) {
	session, err := s.visibleSession(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	remote, err := s.remote.GetSession(ctx, userID.String(), session.ExternalID)
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"session_id":  session.ID,
			"external_id": session.ExternalID,
		}).Warn("remote session refresh failed, serving stored mirror")
		return session, nil
	}

	session.LastUpdateTime = decimal.NewFromFloat(remote.LastUpdateTime)
	session.SessionMetadata = models.JSONB(remote.State)
	if err := s.sessionRepo.UpdateSync(ctx, session.ID, session.LastUpdateTime, session.SessionMetadata); err != nil {
		s.log.WithError(err).WithField("session_id", session.ID).Warn("failed to persist refreshed session state")
	}

	return session, nil
}

// DeleteSession removes the remote session and, only once the remote
// confirms, marks the mirror deleted. Deleted sessions never come back.
func (s *AgentService) DeleteSession(ctx context.Context, userID uuid.UUID, id string) error {
	session, err := s.visibleSession(ctx, userID, id)
	if err != nil {
		return err
	}

	if err := s.remote.DeleteSession(ctx, userID.String(), session.ExternalID); err != nil {
		s.log.WithError(err).WithField("session_id", session.ID).Error("remote session delete failed")
		return NewInvalidRequest("failed to delete chat session: "+err.Error(), err)
	}

	return s.sessionRepo.UpdateState(ctx, userID, session.ID, repository.SessionStateDeleted)
}

// SendMessage relays one user turn to the agent and streams the normalized
// response through onEvent. The user turn is persisted before the remote
// call and the assistant turn before its event is forwarded; assistant
// mirror writes are best-effort and never block a delivered response.
func (s *AgentService) SendMessage(ctx context.Context, userID uuid.UUID, sessionID, message string, onEvent func(StreamEvent)) error {
	session, err := s.visibleSession(ctx, userID, sessionID)
	if err != nil {
		return err
	}

	userMsg := &repository.AgentMessage{
		SessionID: session.ID,
		Role:      repository.MessageRoleUser,
		Author:    repository.MessageAuthorUser,
		Content:   message,
	}
	if _, err := s.messageRepo.Create(ctx, userMsg); err != nil {
		return err
	}
	if err := s.sessionRepo.IncrementMessageCount(ctx, session.ID); err != nil {
		s.log.WithError(err).WithField("session_id", session.ID).Warn("failed to bump message count")
	}

	err = s.remote.StreamQuery(ctx, userID.String(), session.ExternalID, message, func(ev agent.Event) {
		// The assistant turn must be durable before its frame goes out
		s.persistReply(ctx, session.ID, ev)
		onEvent(StreamEvent{
			Content:       ev.Content,
			Author:        ev.Author,
			FinishReason:  ev.FinishReason,
			UsageMetadata: ev.UsageMetadata,
			InvocationID:  ev.InvocationID,
			Timestamp:     ev.UnixTimestamp(),
		})
	})
	if err != nil {
		s.log.WithError(err).WithField("session_id", session.ID).Error("agent stream failed")
		return NewInvalidRequest("failed to send message: "+err.Error(), err)
	}

	return nil
}

// GetChatHistory returns the stored turns of one owned session in
// chronological order.
func (s *AgentService) GetChatHistory(ctx context.Context, userID uuid.UUID, sessionID string) ([]*repository.AgentMessage, error) {
	session, err := s.visibleSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	messages, err := s.messageRepo.ListBySession(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []*repository.AgentMessage{}
	}
	return messages, nil
}

// visibleSession loads an owned, non-deleted session. Missing, foreign and
// deleted sessions all collapse to ErrNotFound.
func (s *AgentService) visibleSession(ctx context.Context, userID uuid.UUID, id string) (*repository.AgentSession, error) {
	session, err := s.sessionRepo.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if session == nil || session.State == repository.SessionStateDeleted {
		return nil, ErrNotFound
	}
	return session, nil
}

// persistReply mirrors the agent's turn locally. A mirror write failure must
// not cost the caller a response the remote already produced, so failures
// are logged and swallowed.
func (s *AgentService) persistReply(ctx context.Context, sessionID string, ev agent.Event) {
	var finishReason *string
	if ev.FinishReason != "" {
		finishReason = &ev.FinishReason
	}
	var invocationID *string
	if ev.InvocationID != "" {
		invocationID = &ev.InvocationID
	}

	msg := &repository.AgentMessage{
		SessionID:     sessionID,
		Role:          ev.Role,
		Author:        ev.Author,
		Content:       ev.Content,
		FinishReason:  finishReason,
		UsageMetadata: models.JSONB(ev.UsageMetadata),
		InvocationID:  invocationID,
		Timestamp:     ev.UnixTimestamp(),
	}

	if _, err := s.messageRepo.Create(ctx, msg); err != nil {
		s.log.WithError(err).WithField("session_id", sessionID).Warn("failed to persist agent reply")
		return
	}
	if err := s.sessionRepo.IncrementMessageCount(ctx, sessionID); err != nil {
		s.log.WithError(err).WithField("session_id", sessionID).Warn("failed to bump message count")
	}

	if ev.Timestamp > 0 {
		ts := decimal.NewFromFloat(ev.Timestamp)
		if err := s.sessionRepo.UpdateSync(ctx, sessionID, ts, nil); err != nil {
			s.log.WithError(err).WithField("session_id", sessionID).Warn("failed to update session sync time")
		}
	}
}
