package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/student360/student360-backend/internal/models"
	"github.com/student360/student360-backend/internal/repository"
)

// AgentMessageRepository implements repository.AgentMessageRepository using
// PostgreSQL
type AgentMessageRepository struct {
	db *sqlx.DB
}

// NewAgentMessageRepository creates a new PostgreSQL agent message repository
func NewAgentMessageRepository(db *sqlx.DB) repository.AgentMessageRepository {
	return &AgentMessageRepository{db: db}
}

// Create persists one conversation turn
func (r *AgentMessageRepository) Create(ctx context.Context, message *repository.AgentMessage) (string, error) {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	now := time.Now()
	message.CreatedAt = now
	message.UpdatedAt = now

	if message.Timestamp == 0 {
		message.Timestamp = now.Unix()
	}
	if message.UsageMetadata == nil {
		message.UsageMetadata = models.JSONB{}
	}

	query := `
		INSERT INTO agent_messages (
			id, session_id, role, author, content, finish_reason,
			usage_metadata, invocation_id, timestamp, created_at, updated_at
		) VALUES (
			:id, :session_id, :role, :author, :content, :finish_reason,
			:usage_metadata, :invocation_id, :timestamp, :created_at, :updated_at
		)`

	_, err := r.db.NamedExecContext(ctx, query, message)
	if err != nil {
		return "", err
	}

	return message.ID, nil
}

// ListBySession retrieves a session's turns in chronological order
func (r *AgentMessageRepository) ListBySession(ctx context.Context, sessionID string) ([]*repository.AgentMessage, error) {
	var messages []*repository.AgentMessage
	query := `
		SELECT id, session_id, role, author, content, finish_reason,
		       usage_metadata, invocation_id, timestamp, created_at, updated_at
		FROM agent_messages
		WHERE session_id = $1
		ORDER BY timestamp ASC, created_at ASC`

	err := r.db.SelectContext(ctx, &messages, query, sessionID)
	if err != nil {
		return nil, err
	}

	return messages, nil
}
