package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tc-schedule-api/internal/models"
)

// TeachingSlotRepository manages teacher-to-session assignments.
type TeachingSlotRepository struct {
	db *sqlx.DB
}

// NewTeachingSlotRepository constructs the repository.
func NewTeachingSlotRepository(db *sqlx.DB) *TeachingSlotRepository {
	return &TeachingSlotRepository{db: db}
}

func (r *TeachingSlotRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// ListBySession returns every teaching slot of the session regardless of status.
func (r *TeachingSlotRepository) ListBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string) ([]models.TeachingSlot, error) {
	const query = `SELECT session_id, teacher_id, status FROM teaching_slots WHERE session_id = $1 ORDER BY teacher_id`
	var slots []models.TeachingSlot
	if err := sqlx.SelectContext(ctx, r.exec(exec), &slots, query, sessionID); err != nil {
		return nil, fmt.Errorf("list teaching slots: %w", err)
	}
	return slots, nil
}

// UpdateStatus flips one slot's status.
func (r *TeachingSlotRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, sessionID, teacherID string, status models.TeachingSlotStatus) error {
	const query = `UPDATE teaching_slots SET status = $3 WHERE session_id = $1 AND teacher_id = $2`
	if _, err := r.exec(exec).ExecContext(ctx, query, sessionID, teacherID, status); err != nil {
		return fmt.Errorf("update teaching slot: %w", err)
	}
	return nil
}

// Upsert creates the slot or overwrites its status.
func (r *TeachingSlotRepository) Upsert(ctx context.Context, exec sqlx.ExtContext, slot models.TeachingSlot) error {
	const query = `INSERT INTO teaching_slots (session_id, teacher_id, status) VALUES ($1, $2, $3)
ON CONFLICT (session_id, teacher_id) DO UPDATE SET status = EXCLUDED.status`
	if _, err := r.exec(exec).ExecContext(ctx, query, slot.SessionID, slot.TeacherID, slot.Status); err != nil {
		return fmt.Errorf("upsert teaching slot: %w", err)
	}
	return nil
}

// MoveToSession re-points every slot of one session at another.
func (r *TeachingSlotRepository) MoveToSession(ctx context.Context, exec sqlx.ExtContext, fromSessionID, toSessionID string) error {
	const query = `UPDATE teaching_slots SET session_id = $2 WHERE session_id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, fromSessionID, toSessionID); err != nil {
		return fmt.Errorf("move teaching slots: %w", err)
	}
	return nil
}
