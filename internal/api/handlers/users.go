package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/student360/student360-backend/internal/api/middleware"
	"github.com/student360/student360-backend/internal/audit"
	"github.com/student360/student360-backend/internal/models"
	"github.com/student360/student360-backend/internal/services"
)

// UserListResponse wraps a user page with pagination metadata
type UserListResponse struct {
	Users []*UserResponse `json:"users"`
	Total int             `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

// ListUsers returns a paginated user list (admin only)
func ListUsers(userService *services.UserService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		page := c.QueryInt("page", 1)
		limit := c.QueryInt("limit", 20)

		users, total, err := userService.List(c.Context(), page, limit)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to list users",
			})
		}

		resp := make([]*UserResponse, len(users))
		for i, user := range users {
			resp[i] = toUserResponse(user)
		}

		return c.JSON(UserListResponse{
			Users: resp,
			Total: total,
			Page:  page,
			Limit: limit,
		})
	}
}

// GetUser returns one user (admin only)
func GetUser(userService *services.UserService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseUserID(c)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid user ID",
			})
		}

		user, err := userService.Get(c.Context(), id)
		if err != nil {
			if errors.Is(err, services.ErrNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": "User not found",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to get user",
			})
		}

		return c.JSON(toUserResponse(user))
	}
}

// UpdateUser changes a user's role or status (admin only)
func UpdateUser(userService *services.UserService, auditService *audit.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseUserID(c)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid user ID",
			})
		}

		var req struct {
			Role   string `json:"role"`
			Status string `json:"status"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
		if req.Role == "" && req.Status == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Nothing to update",
			})
		}

		var user *models.User
		if req.Role != "" {
			user, err = userService.UpdateRole(c.Context(), id, req.Role)
		}
		if err == nil && req.Status != "" {
			user, err = userService.UpdateStatus(c.Context(), id, req.Status)
		}
		if err != nil {
			var invalid *services.InvalidRequestError
			switch {
			case errors.Is(err, services.ErrNotFound):
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": "User not found",
				})
			case errors.As(err, &invalid):
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": invalid.Message,
				})
			default:
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "Failed to update user",
				})
			}
		}

		if userCtx := middleware.GetUserContext(c); userCtx != nil {
			event := audit.NewEvent(audit.EventAdminAction, &userCtx.UserID, c.IP(), c.Get("User-Agent"))
			event.Resource = "user"
			event.Metadata["target_user_id"] = id.String()
			auditService.Log(c.Context(), event)
		}

		return c.JSON(toUserResponse(user))
	}
}

// DeleteUser soft-deletes a user (admin only)
func DeleteUser(userService *services.UserService, auditService *audit.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := parseUserID(c)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid user ID",
			})
		}

		userCtx := middleware.GetUserContext(c)
		if userCtx != nil && userCtx.UserID == id {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Admins cannot delete their own account here",
			})
		}

		if err := userService.Delete(c.Context(), id); err != nil {
			if errors.Is(err, services.ErrNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": "User not found",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to delete user",
			})
		}

		if userCtx != nil {
			event := audit.NewEvent(audit.EventAdminAction, &userCtx.UserID, c.IP(), c.Get("User-Agent"))
			event.Resource = "user"
			event.Metadata["target_user_id"] = id.String()
			event.Metadata["operation"] = "delete"
			auditService.Log(c.Context(), event)
		}

		return c.SendStatus(fiber.StatusNoContent)
	}
}
