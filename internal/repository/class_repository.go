package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tc-schedule-api/internal/models"
)

const classColumns = `id, code, name, course_id, branch_id, modality, max_capacity, status, start_date, created_at, updated_at`

// ClassRepository reads classes and their occupancy.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs the repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

func (r *ClassRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID returns a class.
func (r *ClassRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Class, error) {
	query := `SELECT ` + classColumns + ` FROM classes WHERE id = $1`
	var class models.Class
	if err := sqlx.GetContext(ctx, r.exec(exec), &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// LockByID takes the class row lock serialising enrollment changes into the class.
func (r *ClassRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Class, error) {
	query := `SELECT ` + classColumns + ` FROM classes WHERE id = $1 FOR UPDATE`
	var class models.Class
	if err := sqlx.GetContext(ctx, r.exec(exec), &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// ListTransferCandidates returns the other open classes of a course with their headcount.
func (r *ClassRepository) ListTransferCandidates(ctx context.Context, courseID, excludeClassID string) ([]models.ClassOccupancy, error) {
	const query = `SELECT c.id, c.code, c.name, c.course_id, c.branch_id, c.modality, c.max_capacity, c.status, c.start_date,
       c.created_at, c.updated_at,
       (SELECT COUNT(*) FROM enrollments e WHERE e.class_id = c.id AND e.status = $3) AS enrolled_count
FROM classes c
WHERE c.course_id = $1 AND c.id <> $2 AND c.status IN ($4, $5)
ORDER BY c.start_date ASC NULLS LAST, c.code ASC`
	var classes []models.ClassOccupancy
	if err := r.db.SelectContext(ctx, &classes, query, courseID, excludeClassID, models.EnrollmentStatusEnrolled,
		models.ClassStatusScheduled, models.ClassStatusOngoing); err != nil {
		return nil, fmt.Errorf("list transfer candidates: %w", err)
	}
	return classes, nil
}
