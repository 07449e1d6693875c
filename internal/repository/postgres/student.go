package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/student360/student360-backend/internal/models"
	"github.com/student360/student360-backend/internal/repository"
)

// studentColumns is the full select list shared by the read queries
const studentColumns = `
	id, user_id, student_id, first_name, last_name, email, date_of_birth,
	gender, grade, academic_year, enrollment_date, graduation_date, is_active,
	phone, address, emergency_contact, academic_info, preferences,
	created_at, updated_at, deleted_at`

// sortableColumns whitelists the columns list queries may order by
var sortableColumns = map[string]bool{
	"created_at":      true,
	"updated_at":      true,
	"first_name":      true,
	"last_name":       true,
	"student_id":      true,
	"grade":           true,
	"enrollment_date": true,
}

// StudentRepository implements repository.StudentRepository using PostgreSQL
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository creates a new PostgreSQL student repository
func NewStudentRepository(db *sqlx.DB) repository.StudentRepository {
	return &StudentRepository{db: db}
}

// Create creates a new student record
func (r *StudentRepository) Create(ctx context.Context, student *repository.Student) error {
	if student.ID == "" {
		student.ID = uuid.New().String()
	}
	now := time.Now()
	student.CreatedAt = now
	student.UpdatedAt = now

	if student.EmergencyContact == nil {
		student.EmergencyContact = models.JSONB{}
	}
	if student.AcademicInfo == nil {
		student.AcademicInfo = models.JSONB{}
	}
	if student.Preferences == nil {
		student.Preferences = models.JSONB{}
	}

	query := `
		INSERT INTO students (
			id, user_id, student_id, first_name, last_name, email, date_of_birth,
			gender, grade, academic_year, enrollment_date, graduation_date, is_active,
			phone, address, emergency_contact, academic_info, preferences,
			created_at, updated_at
		) VALUES (
			:id, :user_id, :student_id, :first_name, :last_name, :email, :date_of_birth,
			:gender, :grade, :academic_year, :enrollment_date, :graduation_date, :is_active,
			:phone, :address, :emergency_contact, :academic_info, :preferences,
			:created_at, :updated_at
		)`

	_, err := r.db.NamedExecContext(ctx, query, student)
	return err
}

// Get retrieves a student by ID. Soft-deleted records are not returned.
func (r *StudentRepository) Get(ctx context.Context, id string) (*repository.Student, error) {
	var student repository.Student
	query := `SELECT ` + studentColumns + ` FROM students WHERE id = $1 AND deleted_at IS NULL`

	err := r.db.GetContext(ctx, &student, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return &student, nil
}

// GetByEmail retrieves a student by email
func (r *StudentRepository) GetByEmail(ctx context.Context, email string) (*repository.Student, error) {
	var student repository.Student
	query := `SELECT ` + studentColumns + ` FROM students WHERE email = $1 AND deleted_at IS NULL`

	err := r.db.GetContext(ctx, &student, query, email)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return &student, nil
}

// List retrieves students matching the query filters, plus the total match
// count for pagination.
func (r *StudentRepository) List(ctx context.Context, q repository.StudentQuery) ([]*repository.Student, int, error) {
	where := []string{"deleted_at IS NULL"}
	var args []interface{}

	if q.Search != "" {
		args = append(args, "%"+q.Search+"%")
		n := len(args)
		where = append(where, fmt.Sprintf(
			"(first_name ILIKE $%d OR last_name ILIKE $%d OR email ILIKE $%d OR student_id ILIKE $%d)",
			n, n, n, n))
	}
	if q.Grade != "" {
		args = append(args, q.Grade)
		where = append(where, fmt.Sprintf("grade = $%d", len(args)))
	}
	if q.IsActive != nil {
		args = append(args, *q.IsActive)
		where = append(where, fmt.Sprintf("is_active = $%d", len(args)))
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := `SELECT COUNT(*) FROM students WHERE ` + whereClause
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}

	sortBy := q.SortBy
	if !sortableColumns[sortBy] {
		sortBy = "created_at"
	}
	sortOrder := "DESC"
	if strings.EqualFold(q.SortOrder, "asc") {
		sortOrder = "ASC"
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	limit := q.Limit
	if limit < 1 {
		limit = 20
	}

	args = append(args, limit, (page-1)*limit)
	query := fmt.Sprintf(`SELECT %s FROM students WHERE %s ORDER BY %s %s LIMIT $%d OFFSET $%d`,
		studentColumns, whereClause, sortBy, sortOrder, len(args)-1, len(args))

	var students []*repository.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, err
	}

	return students, total, nil
}

// Update applies a partial update. Callers own column name validation.
func (r *StudentRepository) Update(ctx context.Context, id string, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()

	setClauses := make([]string, 0, len(updates))
	params := map[string]interface{}{"id": id}
	for key, value := range updates {
		setClauses = append(setClauses, key+" = :"+key)
		params[key] = value
	}

	query := "UPDATE students SET " + strings.Join(setClauses, ", ") +
		" WHERE id = :id AND deleted_at IS NULL"

	_, err := r.db.NamedExecContext(ctx, query, params)
	return err
}

// SoftDelete marks a student record deleted and inactive
func (r *StudentRepository) SoftDelete(ctx context.Context, id string) error {
	query := `
		UPDATE students SET deleted_at = $2, is_active = false, updated_at = $2
		WHERE id = $1 AND deleted_at IS NULL`
	_, err := r.db.ExecContext(ctx, query, id, time.Now())
	return err
}

// Delete permanently removes a student record
func (r *StudentRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM students WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id)
	return err
}

// LatestStudentID returns the highest assigned student number with the given
// prefix, e.g. "STU-2026-". Empty string when none exist yet.
func (r *StudentRepository) LatestStudentID(ctx context.Context, prefix string) (string, error) {
	var latest string
	query := `
		SELECT student_id FROM students
		WHERE student_id LIKE $1
		ORDER BY student_id DESC
		LIMIT 1`

	err := r.db.GetContext(ctx, &latest, query, prefix+"%")
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}

	return latest, nil
}
