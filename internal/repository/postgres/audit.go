package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/student360/student360-backend/internal/models"
)

// AuditLogRepository handles audit log data access
type AuditLogRepository struct {
	db *sqlx.DB
}

// NewAuditLogRepository creates a new audit log repository
func NewAuditLogRepository(db *sqlx.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

// Log creates a new audit log entry
func (r *AuditLogRepository) Log(ctx context.Context, entry *models.AuditLog) error {
	query := `
		INSERT INTO audit_logs (
			id, user_id, action, resource_type, resource_id,
			ip_address, user_agent, metadata, status, error_message,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.UserID, entry.Action, entry.ResourceType, entry.ResourceID,
		entry.IPAddress, entry.UserAgent, entry.Metadata, entry.Status, entry.ErrorMessage,
		entry.CreatedAt,
	)
	return err
}

// ListByUser lists audit logs for a specific user
func (r *AuditLogRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*models.AuditLog, error) {
	var entries []*models.AuditLog
	query := `
		SELECT * FROM audit_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	err := r.db.SelectContext(ctx, &entries, query, userID, limit, offset)
	return entries, err
}

// AuditLogFilter represents filters for audit log queries
type AuditLogFilter struct {
	UserID       *uuid.UUID
	Action       string
	ResourceType string
	Status       string
	StartDate    time.Time
	EndDate      time.Time
	Limit        int
	Offset       int
}

// List lists audit logs matching the filter
func (r *AuditLogRepository) List(ctx context.Context, filter AuditLogFilter) ([]*models.AuditLog, error) {
	query := `SELECT * FROM audit_logs WHERE 1=1`
	var args []interface{}

	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if filter.Action != "" {
		args = append(args, filter.Action)
		query += fmt.Sprintf(" AND action = $%d", len(args))
	}
	if filter.ResourceType != "" {
		args = append(args, filter.ResourceType)
		query += fmt.Sprintf(" AND resource_type = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if !filter.StartDate.IsZero() {
		args = append(args, filter.StartDate)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if !filter.EndDate.IsZero() {
		args = append(args, filter.EndDate)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}

	query += ` ORDER BY created_at DESC`

	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	var entries []*models.AuditLog
	err := r.db.SelectContext(ctx, &entries, query, args...)
	return entries, err
}

// GetRecentFailedLogins counts failed login attempts from an address within
// the trailing window
func (r *AuditLogRepository) GetRecentFailedLogins(ctx context.Context, ipAddress string, duration time.Duration) (int, error) {
	var count int
	query := `
		SELECT COUNT(*) FROM audit_logs
		WHERE action = 'auth.login'
		AND status = 'error'
		AND ip_address = $1
		AND created_at > $2`

	since := time.Now().Add(-duration)
	err := r.db.GetContext(ctx, &count, query, ipAddress, since)
	return count, err
}

// DeleteOlderThan deletes audit logs older than the given date
func (r *AuditLogRepository) DeleteOlderThan(ctx context.Context, date time.Time) error {
	query := `DELETE FROM audit_logs WHERE created_at < $1`
	_, err := r.db.ExecContext(ctx, query, date)
	return err
}
