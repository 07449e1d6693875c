package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/student360/student360-backend/internal/api/middleware"
	"github.com/student360/student360-backend/internal/audit"
	"github.com/student360/student360-backend/internal/services"
)

// ChatRequest represents one relayed chat message
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// CreateAgentSession creates a new chat session
func CreateAgentSession(agentService *services.AgentService, auditService *audit.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userCtx := middleware.GetUserContext(c)
		if userCtx == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		session, err := agentService.CreateSession(c.Context(), userCtx.UserID)
		if err != nil {
			var invalid *services.InvalidRequestError
			if errors.As(err, &invalid) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": invalid.Message,
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to create session",
			})
		}

		event := audit.NewEvent(audit.EventSessionCreate, &userCtx.UserID, c.IP(), c.Get("User-Agent"))
		event.Resource = "agent_session"
		event.Metadata["session_id"] = session.ID
		auditService.Log(c.Context(), event)

		return c.Status(fiber.StatusCreated).JSON(session)
	}
}

// ListAgentSessions lists the caller's chat sessions
func ListAgentSessions(agentService *services.AgentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userCtx := middleware.GetUserContext(c)
		if userCtx == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		sessions, err := agentService.ListSessions(c.Context(), userCtx.UserID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to list sessions",
			})
		}

		return c.JSON(fiber.Map{
			"sessions": sessions,
		})
	}
}

// GetAgentSession returns one chat session
func GetAgentSession(agentService *services.AgentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userCtx := middleware.GetUserContext(c)
		if userCtx == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		session, err := agentService.GetSession(c.Context(), userCtx.UserID, c.Params("id"))
		if err != nil {
			if errors.Is(err, services.ErrNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": "Session not found",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to get session",
			})
		}

		return c.JSON(session)
	}
}

// DeleteAgentSession deletes a chat session
func DeleteAgentSession(agentService *services.AgentService, auditService *audit.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userCtx := middleware.GetUserContext(c)
		if userCtx == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		id := c.Params("id")
		if err := agentService.DeleteSession(c.Context(), userCtx.UserID, id); err != nil {
			var invalid *services.InvalidRequestError
			switch {
			case errors.Is(err, services.ErrNotFound):
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": "Session not found",
				})
			case errors.As(err, &invalid):
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": invalid.Message,
				})
			default:
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "Failed to delete session",
				})
			}
		}

		event := audit.NewEvent(audit.EventSessionDelete, &userCtx.UserID, c.IP(), c.Get("User-Agent"))
		event.Resource = "agent_session"
		event.Metadata["session_id"] = id
		auditService.Log(c.Context(), event)

		return c.SendStatus(fiber.StatusNoContent)
	}
}

// GetChatHistory returns a session's stored turns in order
func GetChatHistory(agentService *services.AgentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userCtx := middleware.GetUserContext(c)
		if userCtx == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		messages, err := agentService.GetChatHistory(c.Context(), userCtx.UserID, c.Params("id"))
		if err != nil {
			if errors.Is(err, services.ErrNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": "Session not found",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to get chat history",
			})
		}

		return c.JSON(fiber.Map{
			"messages": messages,
		})
	}
}

// Chat relays one user message and streams the agent's response as SSE.
// A complete event is only sent after at least one data frame; failures
// surface as an error event on the stream.
func Chat(agentService *services.AgentService, auditService *audit.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userCtx := middleware.GetUserContext(c)
		if userCtx == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		var req ChatRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
		if req.SessionID == "" || req.Message == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "session_id and message are required",
			})
		}

		event := audit.NewEvent(audit.EventChatMessage, &userCtx.UserID, c.IP(), c.Get("User-Agent"))
		event.Resource = "agent_session"
		event.Metadata["session_id"] = req.SessionID
		auditService.Log(c.Context(), event)

		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("Transfer-Encoding", "chunked")

		userID := userCtx.UserID

		// The fiber context is invalid once the handler returns, so the
		// relay runs on a background context inside the stream writer.
		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			hasData := false

			err := agentService.SendMessage(context.Background(), userID, req.SessionID, req.Message,
				func(ev services.StreamEvent) {
					data, err := json.Marshal(ev)
					if err != nil {
						return
					}
					fmt.Fprintf(w, "data: %s\n\n", data)
					w.Flush()
					hasData = true
				})
			if err != nil {
				msg := "Failed to send message"
				var invalid *services.InvalidRequestError
				switch {
				case errors.Is(err, services.ErrNotFound):
					msg = "Session not found"
				case errors.As(err, &invalid):
					msg = invalid.Message
				}
				payload, _ := json.Marshal(fiber.Map{"error": msg})
				fmt.Fprintf(w, "event: error\ndata: %s\n\n", payload)
				w.Flush()
				return
			}

			if hasData {
				fmt.Fprintf(w, "event: complete\ndata: {}\n\n")
				w.Flush()
			}
		})

		return nil
	}
}
