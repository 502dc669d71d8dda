package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tc-schedule-api/internal/models"
)

// StudentSessionRepository manages per-student attendance rows.
type StudentSessionRepository struct {
	db *sqlx.DB
}

// NewStudentSessionRepository constructs the repository.
func NewStudentSessionRepository(db *sqlx.DB) *StudentSessionRepository {
	return &StudentSessionRepository{db: db}
}

func (r *StudentSessionRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Find returns the student's row for the session.
func (r *StudentSessionRepository) Find(ctx context.Context, exec sqlx.ExtContext, studentID, sessionID string) (*models.StudentSession, error) {
	const query = `SELECT student_id, session_id, attendance_status, is_makeup, original_session_id, note
FROM student_sessions WHERE student_id = $1 AND session_id = $2`
	var row models.StudentSession
	if err := sqlx.GetContext(ctx, r.exec(exec), &row, query, studentID, sessionID); err != nil {
		return nil, err
	}
	return &row, nil
}

// Lock returns the student's row for the session and holds it until the transaction ends.
func (r *StudentSessionRepository) Lock(ctx context.Context, exec sqlx.ExtContext, studentID, sessionID string) (*models.StudentSession, error) {
	const query = `SELECT student_id, session_id, attendance_status, is_makeup, original_session_id, note
FROM student_sessions WHERE student_id = $1 AND session_id = $2 FOR UPDATE`
	var row models.StudentSession
	if err := sqlx.GetContext(ctx, r.exec(exec), &row, query, studentID, sessionID); err != nil {
		return nil, err
	}
	return &row, nil
}

// CountBySession counts the students expected in a session, makeup guests included.
func (r *StudentSessionRepository) CountBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string) (int, error) {
	const query = `SELECT COUNT(*) FROM student_sessions WHERE session_id = $1`
	var count int
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, query, sessionID); err != nil {
		return 0, fmt.Errorf("count session students: %w", err)
	}
	return count, nil
}

// MarkAttendance sets the attendance status and note of one row.
func (r *StudentSessionRepository) MarkAttendance(ctx context.Context, exec sqlx.ExtContext, studentID, sessionID string, status models.AttendanceStatus, note string) error {
	const query = `UPDATE student_sessions SET attendance_status = $3, note = $4 WHERE student_id = $1 AND session_id = $2`
	if _, err := r.exec(exec).ExecContext(ctx, query, studentID, sessionID, status, note); err != nil {
		return fmt.Errorf("mark attendance: %w", err)
	}
	return nil
}

// Create inserts a student session row.
func (r *StudentSessionRepository) Create(ctx context.Context, exec sqlx.ExtContext, row *models.StudentSession) error {
	if row.AttendanceStatus == "" {
		row.AttendanceStatus = models.AttendancePlanned
	}
	const query = `INSERT INTO student_sessions (student_id, session_id, attendance_status, is_makeup, original_session_id, note)
VALUES (:student_id, :session_id, :attendance_status, :is_makeup, :original_session_id, :note)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, row); err != nil {
		return fmt.Errorf("create student session: %w", err)
	}
	return nil
}

// MoveToSession re-points every student row of one session at another.
func (r *StudentSessionRepository) MoveToSession(ctx context.Context, exec sqlx.ExtContext, fromSessionID, toSessionID string) error {
	const query = `UPDATE student_sessions SET session_id = $2 WHERE session_id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, fromSessionID, toSessionID); err != nil {
		return fmt.Errorf("move student sessions: %w", err)
	}
	return nil
}

// DeletePlannedFrom drops the student's untaken rows for the class from the given date on.
func (r *StudentSessionRepository) DeletePlannedFrom(ctx context.Context, exec sqlx.ExtContext, studentID, classID string, from time.Time) (int64, error) {
	const query = `DELETE FROM student_sessions ss
USING sessions s
WHERE ss.session_id = s.id AND ss.student_id = $1 AND s.class_id = $2 AND s.date >= $3 AND ss.attendance_status = $4`
	result, err := r.exec(exec).ExecContext(ctx, query, studentID, classID, from, models.AttendancePlanned)
	if err != nil {
		return 0, fmt.Errorf("delete planned student sessions: %w", err)
	}
	return result.RowsAffected()
}

// CreateForClassFrom enrols the student into every planned session of the class from the given date on.
func (r *StudentSessionRepository) CreateForClassFrom(ctx context.Context, exec sqlx.ExtContext, studentID, classID string, from time.Time) (int64, error) {
	const query = `INSERT INTO student_sessions (student_id, session_id, attendance_status, is_makeup)
SELECT $1, s.id, $4, FALSE FROM sessions s
WHERE s.class_id = $2 AND s.date >= $3 AND s.status = $5
ON CONFLICT (student_id, session_id) DO NOTHING`
	result, err := r.exec(exec).ExecContext(ctx, query, studentID, classID, from, models.AttendancePlanned, models.SessionStatusPlanned)
	if err != nil {
		return 0, fmt.Errorf("create student sessions: %w", err)
	}
	return result.RowsAffected()
}
