package services

import (
	"github.com/jmoiron/sqlx"

	"github.com/student360/student360-backend/internal/audit"
	"github.com/student360/student360-backend/internal/auth"
	"github.com/student360/student360-backend/internal/config"
	"github.com/student360/student360-backend/internal/repository/postgres"
)

// appName tags locally mirrored chat sessions
const appName = "student360"

// Services holds all service instances
type Services struct {
	Auth     *auth.Service
	Users    *UserService
	Students *StudentService
	Agent    *AgentService
	Audit    *audit.Service
}

// NewServices wires repositories and services on top of one database handle
func NewServices(db *sqlx.DB, cfg *config.Config, remote RemoteAgentClient) *Services {
	userRepo := postgres.NewUserRepository(db)
	profileRepo := postgres.NewUserProfileRepository(db)
	userSessionRepo := postgres.NewUserSessionRepository(db)
	auditRepo := postgres.NewAuditLogRepository(db)
	studentRepo := postgres.NewStudentRepository(db)
	agentSessionRepo := postgres.NewAgentSessionRepository(db)
	agentMessageRepo := postgres.NewAgentMessageRepository(db)

	authService := auth.NewService(userRepo, profileRepo, userSessionRepo, cfg.Auth.JWTSecret)

	return &Services{
		Auth:     authService,
		Users:    NewUserService(userRepo, userSessionRepo),
		Students: NewStudentService(studentRepo),
		Agent:    NewAgentService(remote, agentSessionRepo, agentMessageRepo, appName),
		Audit:    audit.NewService(auditRepo),
	}
}
