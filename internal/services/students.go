package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/student360/student360-backend/internal/repository"
)

// studentIDPrefix namespaces generated student numbers
const studentIDPrefix = "STU"

// allowedStudentUpdates whitelists the columns a partial update may touch
var allowedStudentUpdates = map[string]bool{
	"first_name":        true,
	"last_name":         true,
	"email":             true,
	"date_of_birth":     true,
	"gender":            true,
	"grade":             true,
	"academic_year":     true,
	"enrollment_date":   true,
	"graduation_date":   true,
	"is_active":         true,
	"phone":             true,
	"address":           true,
	"emergency_contact": true,
	"academic_info":     true,
	"preferences":       true,
}

// StudentService manages student records
type StudentService struct {
	repo repository.StudentRepository
	log  *logrus.Entry
}

// NewStudentService creates the student record service
func NewStudentService(repo repository.StudentRepository) *StudentService {
	return &StudentService{
		repo: repo,
		log:  logrus.WithField("component", "student-service"),
	}
}

// Create registers a new student. The student number is generated, never
// caller-supplied.
func (s *StudentService) Create(ctx context.Context, student *repository.Student) (*repository.Student, error) {
	if student.FirstName == "" || student.LastName == "" || student.Email == "" {
		return nil, NewInvalidRequest("first name, last name and email are required", nil)
	}

	existing, err := s.repo.GetByEmail(ctx, student.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrConflict
	}

	studentID, err := s.nextStudentID(ctx)
	if err != nil {
		return nil, err
	}
	student.StudentID = studentID

	if student.EnrollmentDate.IsZero() {
		student.EnrollmentDate = time.Now()
	}
	if student.AcademicYear == "" {
		student.AcademicYear = academicYear(student.EnrollmentDate)
	}
	student.IsActive = true

	if err := s.repo.Create(ctx, student); err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"student_id": student.StudentID,
		"email":      student.Email,
	}).Info("student registered")

	return student, nil
}

// Get retrieves one student record
func (s *StudentService) Get(ctx context.Context, id string) (*repository.Student, error) {
	student, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if student == nil {
		return nil, ErrNotFound
	}
	return student, nil
}

// List retrieves students matching the query, plus the total for pagination
func (s *StudentService) List(ctx context.Context, query repository.StudentQuery) ([]*repository.Student, int, error) {
	students, total, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	if students == nil {
		students = []*repository.Student{}
	}
	return students, total, nil
}

// Update applies a partial update and returns the updated record. Unknown
// fields are rejected rather than silently dropped.
func (s *StudentService) Update(ctx context.Context, id string, updates map[string]interface{}) (*repository.Student, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	filtered := make(map[string]interface{}, len(updates))
	for key, value := range updates {
		if !allowedStudentUpdates[key] {
			return nil, NewInvalidRequest("unknown field: "+key, nil)
		}
		filtered[key] = value
	}
	if len(filtered) == 0 {
		return nil, NewInvalidRequest("no fields to update", nil)
	}

	if email, ok := filtered["email"].(string); ok {
		existing, err := s.repo.GetByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		if existing != nil && existing.ID != id {
			return nil, ErrConflict
		}
	}

	if err := s.repo.Update(ctx, id, filtered); err != nil {
		return nil, err
	}

	return s.Get(ctx, id)
}

// Deactivate soft-deletes a student record. The row stays behind deleted_at
// and the student number is not reusable.
func (s *StudentService) Deactivate(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.repo.SoftDelete(ctx, id)
}

// Delete permanently removes a student record
func (s *StudentService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

// nextStudentID allocates the next sequential number for the current year,
// STU-YYYY-NNNN.
func (s *StudentService) nextStudentID(ctx context.Context) (string, error) {
	year := time.Now().Year()
	prefix := fmt.Sprintf("%s-%d-", studentIDPrefix, year)

	latest, err := s.repo.LatestStudentID(ctx, prefix)
	if err != nil {
		return "", err
	}

	seq := 1
	if latest != "" {
		parts := strings.Split(latest, "-")
		if n, err := strconv.Atoi(parts[len(parts)-1]); err == nil {
			seq = n + 1
		}
	}

	return fmt.Sprintf("%s%04d", prefix, seq), nil
}

// academicYear derives the "YYYY-YYYY" school year from an enrollment date.
// The year rolls over in August.
func academicYear(t time.Time) string {
	start := t.Year()
	if t.Month() < time.August {
		start--
	}
	return fmt.Sprintf("%d-%d", start, start+1)
}
