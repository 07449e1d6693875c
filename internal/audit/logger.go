package audit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/student360/student360-backend/internal/models"
)

// EventType represents the type of audit event
type EventType string

const (
	EventLogin          EventType = "auth.login"
	EventLogout         EventType = "auth.logout"
	EventRegister       EventType = "auth.register"
	EventTokenRefresh   EventType = "auth.token_refresh"
	EventPasswordChange EventType = "user.password_change"
	EventProfileUpdate  EventType = "user.profile_update"
	EventAccountDelete  EventType = "user.account_delete"
	EventStudentCreate  EventType = "student.create"
	EventStudentUpdate  EventType = "student.update"
	EventStudentDelete  EventType = "student.delete"
	EventSessionCreate  EventType = "agent.session_create"
	EventSessionDelete  EventType = "agent.session_delete"
	EventChatMessage    EventType = "agent.chat_message"
	EventAdminAction    EventType = "admin.action"
)

// Event results
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Event represents an audit event
type Event struct {
	ID        uuid.UUID              `json:"id"`
	EventType EventType              `json:"event_type"`
	UserID    *uuid.UUID             `json:"user_id,omitempty"`
	IPAddress string                 `json:"ip_address,omitempty"`
	UserAgent string                 `json:"user_agent,omitempty"`
	Resource  string                 `json:"resource,omitempty"`
	Result    string                 `json:"result,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// Repository defines the interface for audit log persistence
type Repository interface {
	Log(ctx context.Context, log *models.AuditLog) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.AuditLog, error)
}

// Service implements audit logging on top of the persistence layer
type Service struct {
	repo Repository
}

// NewService creates a new audit service
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Log records an audit event
func (s *Service) Log(ctx context.Context, event *Event) error {
	entry := &models.AuditLog{
		ID:           event.ID,
		UserID:       event.UserID,
		Action:       string(event.EventType),
		ResourceType: event.Resource,
		IPAddress:    event.IPAddress,
		UserAgent:    event.UserAgent,
		Metadata:     models.JSONB(event.Metadata),
		Status:       event.Result,
		ErrorMessage: event.Error,
		CreatedAt:    event.CreatedAt,
	}

	return s.repo.Log(ctx, entry)
}

// GetUserEvents retrieves audit events for a specific user
func (s *Service) GetUserEvents(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Event, error) {
	logs, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}

	events := make([]*Event, len(logs))
	for i, log := range logs {
		events[i] = &Event{
			ID:        log.ID,
			EventType: EventType(log.Action),
			UserID:    log.UserID,
			IPAddress: log.IPAddress,
			UserAgent: log.UserAgent,
			Resource:  log.ResourceType,
			Result:    log.Status,
			Error:     log.ErrorMessage,
			Metadata:  map[string]interface{}(log.Metadata),
			CreatedAt: log.CreatedAt,
		}
	}

	return events, nil
}

// NewEvent creates a success event; callers override Result on failure
func NewEvent(eventType EventType, userID *uuid.UUID, ipAddress, userAgent string) *Event {
	return &Event{
		ID:        uuid.New(),
		EventType: eventType,
		UserID:    userID,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		Result:    ResultSuccess,
		CreatedAt: time.Now(),
		Metadata:  make(map[string]interface{}),
	}
}
