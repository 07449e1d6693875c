package handlers

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/student360/student360-backend/internal/api/middleware"
	"github.com/student360/student360-backend/internal/audit"
	"github.com/student360/student360-backend/internal/models"
	"github.com/student360/student360-backend/internal/repository"
	"github.com/student360/student360-backend/internal/services"
)

// CreateStudentRequest represents a student registration request
type CreateStudentRequest struct {
	FirstName        string       `json:"first_name"`
	LastName         string       `json:"last_name"`
	Email            string       `json:"email"`
	DateOfBirth      string       `json:"date_of_birth"`
	Gender           *string      `json:"gender"`
	Grade            string       `json:"grade"`
	AcademicYear     string       `json:"academic_year"`
	EnrollmentDate   string       `json:"enrollment_date"`
	Phone            *string      `json:"phone"`
	Address          *string      `json:"address"`
	EmergencyContact models.JSONB `json:"emergency_contact"`
	AcademicInfo     models.JSONB `json:"academic_info"`
	Preferences      models.JSONB `json:"preferences"`
}

// StudentListResponse wraps a student page with pagination metadata
type StudentListResponse struct {
	Students []*repository.Student `json:"students"`
	Total    int                   `json:"total"`
	Page     int                   `json:"page"`
	Limit    int                   `json:"limit"`
}

func parseDate(value string) (time.Time, error) {
	return time.Parse("2006-01-02", value)
}

// CreateStudent handles student registration
func CreateStudent(studentService *services.StudentService, auditService *audit.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req CreateStudentRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}

		student := &repository.Student{
			FirstName:        req.FirstName,
			LastName:         req.LastName,
			Email:            req.Email,
			Gender:           req.Gender,
			Grade:            req.Grade,
			AcademicYear:     req.AcademicYear,
			Phone:            req.Phone,
			Address:          req.Address,
			EmergencyContact: req.EmergencyContact,
			AcademicInfo:     req.AcademicInfo,
			Preferences:      req.Preferences,
		}

		if req.DateOfBirth != "" {
			dob, err := parseDate(req.DateOfBirth)
			if err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid date_of_birth, expected YYYY-MM-DD",
				})
			}
			student.DateOfBirth = dob
		}
		if req.EnrollmentDate != "" {
			enrolled, err := parseDate(req.EnrollmentDate)
			if err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid enrollment_date, expected YYYY-MM-DD",
				})
			}
			student.EnrollmentDate = enrolled
		}

		created, err := studentService.Create(c.Context(), student)
		if err != nil {
			var invalid *services.InvalidRequestError
			switch {
			case errors.As(err, &invalid):
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": invalid.Message,
				})
			case errors.Is(err, services.ErrConflict):
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{
					"error": "A student with this email already exists",
				})
			default:
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "Failed to create student",
				})
			}
		}

		if userCtx := middleware.GetUserContext(c); userCtx != nil {
			event := audit.NewEvent(audit.EventStudentCreate, &userCtx.UserID, c.IP(), c.Get("User-Agent"))
			event.Resource = "student"
			event.Metadata["student_id"] = created.StudentID
			auditService.Log(c.Context(), event)
		}

		return c.Status(fiber.StatusCreated).JSON(created)
	}
}

// ListStudents returns a filtered, paginated student list
func ListStudents(studentService *services.StudentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		query := repository.StudentQuery{
			Page:      c.QueryInt("page", 1),
			Limit:     c.QueryInt("limit", 20),
			Search:    c.Query("search"),
			Grade:     c.Query("grade"),
			SortBy:    c.Query("sort_by"),
			SortOrder: c.Query("sort_order"),
		}
		if raw := c.Query("is_active"); raw != "" {
			active, err := strconv.ParseBool(raw)
			if err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid is_active, expected true or false",
				})
			}
			query.IsActive = &active
		}
		if query.Limit > 100 {
			query.Limit = 100
		}

		students, total, err := studentService.List(c.Context(), query)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to list students",
			})
		}

		return c.JSON(StudentListResponse{
			Students: students,
			Total:    total,
			Page:     query.Page,
			Limit:    query.Limit,
		})
	}
}

// GetStudent returns one student record
func GetStudent(studentService *services.StudentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		student, err := studentService.Get(c.Context(), c.Params("id"))
		if err != nil {
			if errors.Is(err, services.ErrNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": "Student not found",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to get student",
			})
		}

		return c.JSON(student)
	}
}

// UpdateStudent applies a partial update to a student record
func UpdateStudent(studentService *services.StudentService, auditService *audit.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var updates map[string]interface{}
		if err := c.BodyParser(&updates); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}

		student, err := studentService.Update(c.Context(), c.Params("id"), updates)
		if err != nil {
			var invalid *services.InvalidRequestError
			switch {
			case errors.Is(err, services.ErrNotFound):
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": "Student not found",
				})
			case errors.As(err, &invalid):
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": invalid.Message,
				})
			case errors.Is(err, services.ErrConflict):
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{
					"error": "A student with this email already exists",
				})
			default:
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "Failed to update student",
				})
			}
		}

		if userCtx := middleware.GetUserContext(c); userCtx != nil {
			event := audit.NewEvent(audit.EventStudentUpdate, &userCtx.UserID, c.IP(), c.Get("User-Agent"))
			event.Resource = "student"
			event.Metadata["student_id"] = student.StudentID
			auditService.Log(c.Context(), event)
		}

		return c.JSON(student)
	}
}

// DeactivateStudent soft-deletes a student record
func DeactivateStudent(studentService *services.StudentService, auditService *audit.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if err := studentService.Deactivate(c.Context(), id); err != nil {
			if errors.Is(err, services.ErrNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": "Student not found",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to deactivate student",
			})
		}

		if userCtx := middleware.GetUserContext(c); userCtx != nil {
			event := audit.NewEvent(audit.EventStudentDelete, &userCtx.UserID, c.IP(), c.Get("User-Agent"))
			event.Resource = "student"
			event.Metadata["id"] = id
			event.Metadata["operation"] = "deactivate"
			auditService.Log(c.Context(), event)
		}

		return c.SendStatus(fiber.StatusNoContent)
	}
}

// DeleteStudent permanently removes a student record
func DeleteStudent(studentService *services.StudentService, auditService *audit.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		if err := studentService.Delete(c.Context(), id); err != nil {
			if errors.Is(err, services.ErrNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": "Student not found",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to delete student",
			})
		}

		if userCtx := middleware.GetUserContext(c); userCtx != nil {
			event := audit.NewEvent(audit.EventStudentDelete, &userCtx.UserID, c.IP(), c.Get("User-Agent"))
			event.Resource = "student"
			event.Metadata["id"] = id
			auditService.Log(c.Context(), event)
		}

		return c.SendStatus(fiber.StatusNoContent)
	}
}

// parseUserID parses a path parameter as a user UUID
func parseUserID(c *fiber.Ctx) (uuid.UUID, error) {
	return uuid.Parse(c.Params("id"))
}
