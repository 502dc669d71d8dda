package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tc-schedule-api/internal/models"
)

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

func (r *EnrollmentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// ListActiveByStudent returns the student's ENROLLED enrollments with class facts.
func (r *EnrollmentRepository) ListActiveByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.class_id, e.status, e.enrolled_at, e.join_session_id, e.left_session_id, e.left_at,
       c.code AS class_code, c.name AS class_name, c.course_id, c.branch_id, c.modality, c.status AS class_status
FROM enrollments e
JOIN classes c ON c.id = e.class_id
WHERE e.student_id = $1 AND e.status = $2
ORDER BY e.enrolled_at ASC`
	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID, models.EnrollmentStatusEnrolled); err != nil {
		return nil, fmt.Errorf("list active enrollments: %w", err)
	}
	return enrollments, nil
}

// FindActive returns the student's ENROLLED enrollment in the class.
func (r *EnrollmentRepository) FindActive(ctx context.Context, exec sqlx.ExtContext, studentID, classID string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, class_id, status, enrolled_at, join_session_id, left_session_id, left_at
FROM enrollments WHERE student_id = $1 AND class_id = $2 AND status = $3`
	var enrollment models.Enrollment
	if err := sqlx.GetContext(ctx, r.exec(exec), &enrollment, query, studentID, classID, models.EnrollmentStatusEnrolled); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// CountActiveByClass counts ENROLLED students in the class.
func (r *EnrollmentRepository) CountActiveByClass(ctx context.Context, exec sqlx.ExtContext, classID string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE class_id = $1 AND status = $2`
	var count int
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, query, classID, models.EnrollmentStatusEnrolled); err != nil {
		return 0, fmt.Errorf("count class enrollments: %w", err)
	}
	return count, nil
}

// Create persists a new enrollment record.
func (r *EnrollmentRepository) Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrolledAt.IsZero() {
		enrollment.EnrolledAt = time.Now().UTC()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusEnrolled
	}
	const query = `INSERT INTO enrollments (id, student_id, class_id, status, enrolled_at, join_session_id, left_session_id, left_at)
        VALUES (:id, :student_id, :class_id, :status, :enrolled_at, :join_session_id, :left_session_id, :left_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// Close ends an enrollment with the given status at the session the student leaves from.
func (r *EnrollmentRepository) Close(ctx context.Context, exec sqlx.ExtContext, id string, status models.EnrollmentStatus, leftSessionID *string, leftAt time.Time) error {
	const query = `UPDATE enrollments SET status = $2, left_session_id = $3, left_at = $4 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, status, leftSessionID, leftAt); err != nil {
		return fmt.Errorf("close enrollment: %w", err)
	}
	return nil
}
