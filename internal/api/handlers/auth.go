package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/student360/student360-backend/internal/api/middleware"
	"github.com/student360/student360-backend/internal/audit"
	"github.com/student360/student360-backend/internal/auth"
	"github.com/student360/student360-backend/internal/models"
)

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse represents a login response
type LoginResponse struct {
	User         *UserResponse `json:"user"`
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresIn    int           `json:"expires_in"`
}

// RefreshRequest represents a token refresh request
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RefreshResponse represents a token refresh response
type RefreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// UserResponse represents a user in API responses
type UserResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Role          string    `json:"role"`
	Status        string    `json:"status"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
}

func toUserResponse(user *models.User) *UserResponse {
	return &UserResponse{
		ID:            user.ID.String(),
		Name:          user.Name,
		Email:         user.Email,
		Role:          user.Role,
		Status:        user.Status,
		EmailVerified: user.EmailVerified,
		CreatedAt:     user.CreatedAt,
	}
}

func setAuthCookies(c *fiber.Ctx, accessToken, refreshToken string) {
	c.Cookie(&fiber.Cookie{
		Name:     "access_token",
		Value:    accessToken,
		Expires:  time.Now().Add(auth.AccessTokenTTL),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Strict",
	})
	c.Cookie(&fiber.Cookie{
		Name:     "refresh_token",
		Value:    refreshToken,
		Expires:  time.Now().Add(auth.RefreshTokenTTL),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Strict",
	})
}

func clearAuthCookies(c *fiber.Ctx) {
	expired := time.Now().Add(-time.Hour)
	for _, name := range []string{"access_token", "refresh_token"} {
		c.Cookie(&fiber.Cookie{
			Name:     name,
			Value:    "",
			Expires:  expired,
			HTTPOnly: true,
			Secure:   true,
			SameSite: "Strict",
		})
	}
}

// Register handles user registration
func Register(authService *auth.Service, auditService *audit.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req RegisterRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}

		if req.Name == "" || req.Email == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Name and email are required",
			})
		}
		if err := auth.ValidatePassword(req.Password); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		user, err := authService.Register(c.Context(), req.Name, req.Email, req.Password, req.Role)
		if err != nil {
			if errors.Is(err, auth.ErrEmailAlreadyExists) {
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{
					"error": "Email already registered",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Registration failed",
			})
		}

		event := audit.NewEvent(audit.EventRegister, &user.ID, c.IP(), c.Get("User-Agent"))
		event.Resource = "user"
		event.Metadata["email"] = user.Email
		auditService.Log(c.Context(), event)

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"user": toUserResponse(user),
		})
	}
}

// Login handles user login
func Login(authService *auth.Service, auditService *audit.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req LoginRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}

		if req.Email == "" || req.Password == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Email and password are required",
			})
		}

		user, accessToken, refreshToken, err := authService.Login(
			c.Context(), req.Email, req.Password, c.IP(), c.Get("User-Agent"),
		)
		if err != nil {
			event := audit.NewEvent(audit.EventLogin, nil, c.IP(), c.Get("User-Agent"))
			event.Resource = "auth"
			event.Result = audit.ResultError
			event.Error = err.Error()
			event.Metadata["email"] = req.Email
			auditService.Log(c.Context(), event)

			switch {
			case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrUserNotFound):
				// Same answer either way to prevent user enumeration
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Invalid email or password",
				})
			case errors.Is(err, auth.ErrAccountLocked):
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"error": "Account temporarily locked. Try again later.",
				})
			case errors.Is(err, auth.ErrUserInactive):
				return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
					"error": "Account is inactive",
				})
			default:
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "Login failed",
				})
			}
		}

		event := audit.NewEvent(audit.EventLogin, &user.ID, c.IP(), c.Get("User-Agent"))
		event.Resource = "auth"
		event.Metadata["email"] = user.Email
		auditService.Log(c.Context(), event)

		setAuthCookies(c, accessToken, refreshToken)

		return c.JSON(LoginResponse{
			User:         toUserResponse(user),
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			ExpiresIn:    int(auth.AccessTokenTTL.Seconds()),
		})
	}
}

// RefreshToken handles token refresh
func RefreshToken(authService *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req RefreshRequest
		c.BodyParser(&req)

		refreshToken := req.RefreshToken
		if refreshToken == "" {
			refreshToken = auth.ExtractTokenFromBearer(c.Get("Authorization"))
		}
		if refreshToken == "" {
			refreshToken = c.Cookies("refresh_token")
		}

		if refreshToken == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Refresh token required",
			})
		}

		newAccessToken, newRefreshToken, err := authService.RefreshToken(c.Context(), refreshToken)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) ||
				errors.Is(err, auth.ErrSessionNotFound) || errors.Is(err, auth.ErrSessionExpired) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Invalid or expired refresh token",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Token refresh failed",
			})
		}

		setAuthCookies(c, newAccessToken, newRefreshToken)

		return c.JSON(RefreshResponse{
			AccessToken:  newAccessToken,
			RefreshToken: newRefreshToken,
			ExpiresIn:    int(auth.AccessTokenTTL.Seconds()),
		})
	}
}

// Logout handles user logout
func Logout(authService *auth.Service, auditService *audit.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if sessionID, ok := c.Locals("session_id").(string); ok && sessionID != "" {
			if err := authService.Logout(c.Context(), sessionID); err != nil {
				// Session may already be gone; logout still succeeds
				logrus.WithError(err).Warn("failed to revoke session on logout")
			}
		}

		if userCtx := middleware.GetUserContext(c); userCtx != nil {
			event := audit.NewEvent(audit.EventLogout, &userCtx.UserID, c.IP(), c.Get("User-Agent"))
			event.Resource = "auth"
			auditService.Log(c.Context(), event)
		}

		clearAuthCookies(c)

		return c.JSON(fiber.Map{
			"message": "Logged out successfully",
		})
	}
}

// GetCurrentUser returns the current authenticated user with their profile
func GetCurrentUser(authService *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		user, err := authService.GetUser(c.Context(), userContext.UserID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to get user data",
			})
		}

		profile, err := authService.GetProfile(c.Context(), userContext.UserID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to get profile data",
			})
		}

		return c.JSON(fiber.Map{
			"user":    toUserResponse(user),
			"profile": profile,
		})
	}
}

// UpdateProfile updates the current user's name and profile
func UpdateProfile(authService *auth.Service, auditService *audit.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		var req struct {
			Name        string       `json:"name"`
			AvatarURL   string       `json:"avatar_url"`
			Phone       string       `json:"phone"`
			Address     string       `json:"address"`
			Bio         string       `json:"bio"`
			Preferences models.JSONB `json:"preferences"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}

		profile := &models.UserProfile{
			UserID:      userContext.UserID,
			AvatarURL:   req.AvatarURL,
			Phone:       req.Phone,
			Address:     req.Address,
			Bio:         req.Bio,
			Preferences: req.Preferences,
		}

		user, err := authService.UpdateProfile(c.Context(), userContext.UserID, req.Name, profile)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to update profile",
			})
		}

		event := audit.NewEvent(audit.EventProfileUpdate, &userContext.UserID, c.IP(), c.Get("User-Agent"))
		event.Resource = "user"
		auditService.Log(c.Context(), event)

		return c.JSON(fiber.Map{
			"user":    toUserResponse(user),
			"profile": profile,
		})
	}
}

// ChangePassword changes the current user's password
func ChangePassword(authService *auth.Service, auditService *audit.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		var req struct {
			CurrentPassword string `json:"current_password"`
			NewPassword     string `json:"new_password"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}

		if err := auth.ValidatePassword(req.NewPassword); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}

		if err := authService.ChangePassword(
			c.Context(), userContext.UserID, req.CurrentPassword, req.NewPassword,
		); err != nil {
			if errors.Is(err, auth.ErrInvalidCredentials) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Current password is incorrect",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to change password",
			})
		}

		event := audit.NewEvent(audit.EventPasswordChange, &userContext.UserID, c.IP(), c.Get("User-Agent"))
		event.Resource = "user"
		auditService.Log(c.Context(), event)

		return c.JSON(fiber.Map{
			"message": "Password changed successfully",
		})
	}
}

// DeleteAccount soft-deletes the current user's account
func DeleteAccount(authService *auth.Service, auditService *audit.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		if err := authService.DeleteAccount(c.Context(), userContext.UserID); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to delete account",
			})
		}

		event := audit.NewEvent(audit.EventAccountDelete, &userContext.UserID, c.IP(), c.Get("User-Agent"))
		event.Resource = "user"
		auditService.Log(c.Context(), event)

		clearAuthCookies(c)

		return c.SendStatus(fiber.StatusNoContent)
	}
}
