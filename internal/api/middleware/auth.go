package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/student360/student360-backend/internal/auth"
	"github.com/student360/student360-backend/internal/models"
)

// AuthConfig holds the auth middleware configuration
type AuthConfig struct {
	AuthService *auth.Service
	Optional    bool   // If true, a missing or bad token does not fail the request
	RequireRole string // If set, requires specific role
}

// AuthRequired creates a middleware that requires authentication
func AuthRequired(authService *auth.Service) fiber.Handler {
	return AuthMiddleware(AuthConfig{
		AuthService: authService,
	})
}

// RequireRole creates a middleware that requires a specific role
func RequireRole(authService *auth.Service, role string) fiber.Handler {
	return AuthMiddleware(AuthConfig{
		AuthService: authService,
		RequireRole: role,
	})
}

// AuthMiddleware is the main authentication middleware
func AuthMiddleware(config AuthConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := auth.ExtractTokenFromBearer(c.Get("Authorization"))

		// Web clients carry the token in a cookie instead
		if token == "" {
			token = c.Cookies("access_token")
		}

		if token == "" {
			if config.Optional {
				return c.Next()
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required",
			})
		}

		user, claims, err := config.AuthService.ValidateAccessToken(c.Context(), token)
		if err != nil {
			if config.Optional {
				return c.Next()
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		if config.RequireRole != "" && user.Role != config.RequireRole {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Insufficient permissions",
			})
		}

		storeUserContext(c, user)
		c.Locals("session_id", claims.SessionID)

		return c.Next()
	}
}

// storeUserContext stores user information in the fiber context
func storeUserContext(c *fiber.Ctx, user *models.User) {
	c.Locals("user_id", user.ID.String())
	c.Locals("user_email", user.Email)
	c.Locals("user_role", user.Role)

	c.Locals("user_context", &models.UserContext{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	})
}

// GetUserContext retrieves the user context from the fiber context
func GetUserContext(c *fiber.Ctx) *models.UserContext {
	if ctx := c.Locals("user_context"); ctx != nil {
		if userContext, ok := ctx.(*models.UserContext); ok {
			return userContext
		}
	}
	return nil
}

// GetUserID retrieves the user ID from the fiber context
func GetUserID(c *fiber.Ctx) (uuid.UUID, error) {
	if userID := c.Locals("user_id"); userID != nil {
		if id, ok := userID.(string); ok {
			return uuid.Parse(id)
		}
	}
	return uuid.Nil, fiber.NewError(fiber.StatusUnauthorized, "User not authenticated")
}

// HasRole checks if the authenticated user has a specific role
func HasRole(c *fiber.Ctx, role string) bool {
	if userRole := c.Locals("user_role"); userRole != nil {
		if r, ok := userRole.(string); ok {
			return r == role
		}
	}
	return false
}

// IsAdmin checks if the authenticated user is an admin
func IsAdmin(c *fiber.Ctx) bool {
	return HasRole(c, models.RoleAdmin)
}
