package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/student360/student360-backend/internal/models"
)

// AgentSession state constants. A session never leaves the deleted state.
const (
	SessionStateActive   = "active"
	SessionStateInactive = "inactive"
	SessionStateDeleted  = "deleted"
)

// AgentMessage role constants (semantic speaker class)
const (
	MessageRoleUser   = "user"
	MessageRoleModel  = "model"
	MessageRoleSystem = "system"
)

// AgentMessage author constants (concrete originator, a separate axis from role)
const (
	MessageAuthorUser         = "user"
	MessageAuthorOrchestrator = "orchestrator_agent"
	MessageAuthorSystem       = "system"
)

// AgentSession is the local mirror of a remote conversation.
// ExternalID is immutable once set. LastUpdateTime keeps the remote
// platform's sub-second precision, hence decimal rather than int64.
type AgentSession struct {
	ID              string          `db:"id" json:"id"`
	ExternalID      string          `db:"external_id" json:"externalId"`
	UserID          uuid.UUID       `db:"user_id" json:"userId"`
	AppName         string          `db:"app_name" json:"appName"`
	State           string          `db:"state" json:"state"`
	SessionMetadata models.JSONB    `db:"session_metadata" json:"sessionMetadata"`
	LastUpdateTime  decimal.Decimal `db:"last_update_time" json:"lastUpdateTime"`
	Title           *string         `db:"title" json:"title"`
	Summary         *string         `db:"summary" json:"summary"`
	MessageCount    int             `db:"message_count" json:"messageCount"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updatedAt"`
}

// AgentMessage is the local mirror of one conversation turn. Timestamp is
// integer epoch seconds; coarser than the session's lastUpdateTime on purpose.
type AgentMessage struct {
	ID            string       `db:"id" json:"id"`
	SessionID     string       `db:"session_id" json:"sessionId"`
	Role          string       `db:"role" json:"role"`
	Author        string       `db:"author" json:"author"`
	Content       string       `db:"content" json:"content"`
	FinishReason  *string      `db:"finish_reason" json:"finishReason,omitempty"`
	UsageMetadata models.JSONB `db:"usage_metadata" json:"usageMetadata,omitempty"`
	InvocationID  *string      `db:"invocation_id" json:"invocationId,omitempty"`
	Timestamp     int64        `db:"timestamp" json:"timestamp"`
	CreatedAt     time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updatedAt"`
}

// AgentSessionRepository defines local session mirror storage
type AgentSessionRepository interface {
	Create(ctx context.Context, session *AgentSession) error
	Get(ctx context.Context, userID uuid.UUID, id string) (*AgentSession, error)
	ListActive(ctx context.Context, userID uuid.UUID) ([]*AgentSession, error)
	UpdateState(ctx context.Context, userID uuid.UUID, id string, state string) error
	UpdateSync(ctx context.Context, id string, lastUpdateTime decimal.Decimal, metadata models.JSONB) error
	IncrementMessageCount(ctx context.Context, id string) error
	CountMessages(ctx context.Context, id string) (int, error)
}

// AgentMessageRepository defines chat turn storage
type AgentMessageRepository interface {
	Create(ctx context.Context, message *AgentMessage) (string, error)
	ListBySession(ctx context.Context, sessionID string) ([]*AgentMessage, error)
}

// Student represents a student record
type Student struct {
	ID               string       `db:"id" json:"id"`
	UserID           *uuid.UUID   `db:"user_id" json:"userId,omitempty"`
	StudentID        string       `db:"student_id" json:"studentId"`
	FirstName        string       `db:"first_name" json:"firstName"`
	LastName         string       `db:"last_name" json:"lastName"`
	Email            string       `db:"email" json:"email"`
	DateOfBirth      time.Time    `db:"date_of_birth" json:"dateOfBirth"`
	Gender           *string      `db:"gender" json:"gender,omitempty"`
	Grade            string       `db:"grade" json:"grade"`
	AcademicYear     string       `db:"academic_year" json:"academicYear"`
	EnrollmentDate   time.Time    `db:"enrollment_date" json:"enrollmentDate"`
	GraduationDate   *time.Time   `db:"graduation_date" json:"graduationDate,omitempty"`
	IsActive         bool         `db:"is_active" json:"isActive"`
	Phone            *string      `db:"phone" json:"phone,omitempty"`
	Address          *string      `db:"address" json:"address,omitempty"`
	EmergencyContact models.JSONB `db:"emergency_contact" json:"emergencyContact,omitempty"`
	AcademicInfo     models.JSONB `db:"academic_info" json:"academicInfo,omitempty"`
	Preferences      models.JSONB `db:"preferences" json:"preferences,omitempty"`
	CreatedAt        time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time    `db:"updated_at" json:"updatedAt"`
	DeletedAt        *time.Time   `db:"deleted_at" json:"-"`
}

// FullName returns the student's display name
func (s *Student) FullName() string {
	return s.FirstName + " " + s.LastName
}

// StudentQuery carries list filtering and pagination parameters
type StudentQuery struct {
	Page      int
	Limit     int
	Search    string
	Grade     string
	IsActive  *bool
	SortBy    string
	SortOrder string
}

// StudentRepository defines student record storage
type StudentRepository interface {
	Create(ctx context.Context, student *Student) error
	Get(ctx context.Context, id string) (*Student, error)
	GetByEmail(ctx context.Context, email string) (*Student, error)
	List(ctx context.Context, query StudentQuery) ([]*Student, int, error)
	Update(ctx context.Context, id string, updates map[string]interface{}) error
	SoftDelete(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	LatestStudentID(ctx context.Context, prefix string) (string, error)
}
