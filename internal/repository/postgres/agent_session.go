package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/student360/student360-backend/internal/models"
	"github.com/student360/student360-backend/internal/repository"
)

// AgentSessionRepository implements repository.AgentSessionRepository using
// PostgreSQL
type AgentSessionRepository struct {
	db *sqlx.DB
}

// NewAgentSessionRepository creates a new PostgreSQL agent session repository
func NewAgentSessionRepository(db *sqlx.DB) repository.AgentSessionRepository {
	return &AgentSessionRepository{db: db}
}

// Create creates a local session mirror
func (r *AgentSessionRepository) Create(ctx context.Context, session *repository.AgentSession) error {
	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	now := time.Now()
	session.CreatedAt = now
	session.UpdatedAt = now

	if session.State == "" {
		session.State = repository.SessionStateActive
	}
	if session.SessionMetadata == nil {
		session.SessionMetadata = models.JSONB{}
	}

	query := `
		INSERT INTO agent_sessions (
			id, external_id, user_id, app_name, state, session_metadata,
			last_update_time, title, summary, message_count, created_at, updated_at
		) VALUES (
			:id, :external_id, :user_id, :app_name, :state, :session_metadata,
			:last_update_time, :title, :summary, :message_count, :created_at, :updated_at
		)`

	_, err := r.db.NamedExecContext(ctx, query, session)
	return err
}

// Get retrieves a session by ID, scoped to the owner. Returns nil, nil when
// no row matches; a session belonging to someone else is indistinguishable
// from one that does not exist.
func (r *AgentSessionRepository) Get(ctx context.Context, userID uuid.UUID, id string) (*repository.AgentSession, error) {
	var session repository.AgentSession
	query := `
		SELECT id, external_id, user_id, app_name, state, session_metadata,
		       last_update_time, title, summary, message_count, created_at, updated_at
		FROM agent_sessions
		WHERE id = $1 AND user_id = $2`

	err := r.db.GetContext(ctx, &session, query, id, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return &session, nil
}

// ListActive retrieves the owner's active sessions, newest first
func (r *AgentSessionRepository) ListActive(ctx context.Context, userID uuid.UUID) ([]*repository.AgentSession, error) {
	var sessions []*repository.AgentSession
	query := `
		SELECT id, external_id, user_id, app_name, state, session_metadata,
		       last_update_time, title, summary, message_count, created_at, updated_at
		FROM agent_sessions
		WHERE user_id = $1 AND state = $2
		ORDER BY created_at DESC`

	err := r.db.SelectContext(ctx, &sessions, query, userID, repository.SessionStateActive)
	if err != nil {
		return nil, err
	}

	return sessions, nil
}

// UpdateState transitions a session's lifecycle state, scoped to the owner
func (r *AgentSessionRepository) UpdateState(ctx context.Context, userID uuid.UUID, id string, state string) error {
	query := `
		UPDATE agent_sessions SET state = $3, updated_at = $4
		WHERE id = $1 AND user_id = $2`
	_, err := r.db.ExecContext(ctx, query, id, userID, state, time.Now())
	return err
}

// UpdateSync refreshes the columns mirrored from the remote platform. A nil
// metadata leaves the stored metadata untouched.
func (r *AgentSessionRepository) UpdateSync(ctx context.Context, id string, lastUpdateTime decimal.Decimal, metadata models.JSONB) error {
	if metadata == nil {
		query := `
			UPDATE agent_sessions SET last_update_time = $2, updated_at = $3
			WHERE id = $1`
		_, err := r.db.ExecContext(ctx, query, id, lastUpdateTime, time.Now())
		return err
	}

	query := `
		UPDATE agent_sessions SET
			last_update_time = $2, session_metadata = $3, updated_at = $4
		WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, lastUpdateTime, metadata, time.Now())
	return err
}

// IncrementMessageCount bumps the denormalized message counter by one
func (r *AgentSessionRepository) IncrementMessageCount(ctx context.Context, id string) error {
	query := `
		UPDATE agent_sessions SET
			message_count = message_count + 1, updated_at = $2
		WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, time.Now())
	return err
}

// CountMessages counts the persisted turns for a session
func (r *AgentSessionRepository) CountMessages(ctx context.Context, id string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM agent_messages WHERE session_id = $1`
	err := r.db.GetContext(ctx, &count, query, id)
	return count, err
}
