package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/student360/student360-backend/internal/api/handlers"
	"github.com/student360/student360-backend/internal/api/middleware"
	"github.com/student360/student360-backend/internal/models"
	"github.com/student360/student360-backend/internal/services"
)

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, svc *services.Services) {
	api := app.Group("/api/v1")

	// Health check
	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "student360-backend",
		})
	})

	// Authentication endpoints (public)
	authGroup := api.Group("/auth")
	authGroup.Post("/register", middleware.AuthRateLimit(), handlers.Register(svc.Auth, svc.Audit))
	authGroup.Post("/login", middleware.AuthRateLimit(), handlers.Login(svc.Auth, svc.Audit))
	authGroup.Post("/refresh", handlers.RefreshToken(svc.Auth))
	authGroup.Post("/logout", middleware.AuthRequired(svc.Auth), handlers.Logout(svc.Auth, svc.Audit))

	// Protected routes
	protected := api.Group("", middleware.AuthRequired(svc.Auth), middleware.DefaultRateLimit())

	// Current user and profile
	protected.Get("/auth/me", handlers.GetCurrentUser(svc.Auth))
	protected.Put("/auth/profile", handlers.UpdateProfile(svc.Auth, svc.Audit))
	protected.Put("/auth/password", handlers.ChangePassword(svc.Auth, svc.Audit))
	protected.Delete("/auth/account", handlers.DeleteAccount(svc.Auth, svc.Audit))

	// Student records
	protected.Post("/students", handlers.CreateStudent(svc.Students, svc.Audit))
	protected.Get("/students", handlers.ListStudents(svc.Students))
	protected.Get("/students/:id", handlers.GetStudent(svc.Students))
	protected.Put("/students/:id", handlers.UpdateStudent(svc.Students, svc.Audit))
	protected.Patch("/students/:id/deactivate", handlers.DeactivateStudent(svc.Students, svc.Audit))
	protected.Delete("/students/:id", handlers.DeleteStudent(svc.Students, svc.Audit))

	// Agent chat sessions
	protected.Post("/agents/sessions", handlers.CreateAgentSession(svc.Agent, svc.Audit))
	protected.Get("/agents/sessions", handlers.ListAgentSessions(svc.Agent))
	protected.Get("/agents/sessions/:id", handlers.GetAgentSession(svc.Agent))
	protected.Delete("/agents/sessions/:id", handlers.DeleteAgentSession(svc.Agent, svc.Audit))
	protected.Get("/agents/sessions/:id/history", handlers.GetChatHistory(svc.Agent))
	protected.Post("/agents/chat", middleware.ChatRateLimit(), handlers.Chat(svc.Agent, svc.Audit))

	// User management (admin only)
	admin := protected.Group("", middleware.RequireRole(svc.Auth, models.RoleAdmin))
	admin.Get("/users", handlers.ListUsers(svc.Users))
	admin.Get("/users/:id", handlers.GetUser(svc.Users))
	admin.Put("/users/:id", handlers.UpdateUser(svc.Users, svc.Audit))
	admin.Delete("/users/:id", handlers.DeleteUser(svc.Users, svc.Audit))
}
