package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tc-schedule-api/internal/models"
)

const sessionDetailQuery = `SELECT s.id, s.class_id, s.course_session_id, s.time_slot_id, s.date, s.status, s.created_at, s.updated_at,
       c.course_id, co.code AS course_code, cs.sequence AS course_sequence, cs.topic AS course_topic, c.branch_id, c.max_capacity AS class_max_capacity,
       c.modality, ts.start_time, ts.end_time
FROM sessions s
JOIN classes c ON c.id = s.class_id
JOIN courses co ON co.id = c.course_id
JOIN course_sessions cs ON cs.id = s.course_session_id
JOIN time_slots ts ON ts.id = s.time_slot_id`

// SessionRepository reads and writes concrete class sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindDetail returns the session projection with its class, curriculum and time slot facts.
func (r *SessionRepository) FindDetail(ctx context.Context, exec sqlx.ExtContext, id string) (*models.SessionDetail, error) {
	query := sessionDetailQuery + ` WHERE s.id = $1`
	var detail models.SessionDetail
	if err := sqlx.GetContext(ctx, r.exec(exec), &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// LockByID takes the session row lock used as the aggregate root for teaching slot and resource writes.
func (r *SessionRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Session, error) {
	const query = `SELECT id, class_id, course_session_id, time_slot_id, date, status, created_at, updated_at
FROM sessions WHERE id = $1 FOR UPDATE`
	var session models.Session
	if err := sqlx.GetContext(ctx, r.exec(exec), &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// FindPlannedByClassAndDate returns the class's planned session on the given date.
func (r *SessionRepository) FindPlannedByClassAndDate(ctx context.Context, exec sqlx.ExtContext, classID string, date time.Time) (*models.Session, error) {
	const query = `SELECT id, class_id, course_session_id, time_slot_id, date, status, created_at, updated_at
FROM sessions WHERE class_id = $1 AND date = $2 AND status = $3 ORDER BY created_at ASC LIMIT 1`
	var session models.Session
	if err := sqlx.GetContext(ctx, r.exec(exec), &session, query, classID, date, models.SessionStatusPlanned); err != nil {
		return nil, err
	}
	return &session, nil
}

// ListProgress returns completed or cancelled sessions of the class dated before asOf, by curriculum order.
func (r *SessionRepository) ListProgress(ctx context.Context, classID string, asOf time.Time) ([]models.CourseSessionProgress, error) {
	const query = `SELECT s.id AS session_id, s.course_session_id, cs.sequence, cs.topic, s.date, s.status
FROM sessions s
JOIN course_sessions cs ON cs.id = s.course_session_id
WHERE s.class_id = $1 AND s.date < $2 AND s.status IN ($3, $4)
ORDER BY cs.sequence ASC`
	var progress []models.CourseSessionProgress
	if err := r.db.SelectContext(ctx, &progress, query, classID, asOf, models.SessionStatusDone, models.SessionStatusCancelled); err != nil {
		return nil, fmt.Errorf("list class progress: %w", err)
	}
	return progress, nil
}

// Create inserts a new session row.
func (r *SessionRepository) Create(ctx context.Context, exec sqlx.ExtContext, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	if session.Status == "" {
		session.Status = models.SessionStatusPlanned
	}
	const query = `INSERT INTO sessions (id, class_id, course_session_id, time_slot_id, date, status, created_at, updated_at)
VALUES (:id, :class_id, :course_session_id, :time_slot_id, :date, :status, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// UpdateStatus changes the session status.
func (r *SessionRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.SessionStatus) error {
	const query = `UPDATE sessions SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, status, time.Now().UTC()); err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	return nil
}

// LockBookingKeys takes transaction scoped advisory locks on the keys. Keys are
// deduplicated and locked in sorted order so concurrent writers cannot deadlock.
func (r *SessionRepository) LockBookingKeys(ctx context.Context, exec sqlx.ExtContext, keys []string) error {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	const query = `SELECT pg_advisory_xact_lock(hashtext($1))`
	for i, key := range sorted {
		if i > 0 && sorted[i-1] == key {
			continue
		}
		if _, err := r.exec(exec).ExecContext(ctx, query, key); err != nil {
			return fmt.Errorf("lock booking key %s: %w", key, err)
		}
	}
	return nil
}

// ListBookings returns the active occupancy rows for one date. A session without a
// teacher or resource still yields a row with the missing side left empty.
func (r *SessionRepository) ListBookings(ctx context.Context, exec sqlx.ExtContext, filter models.BookingFilter) ([]models.Booking, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT s.id AS session_id, s.class_id, s.time_slot_id, s.date, ts.start_time, ts.end_time,
       COALESCE(tsl.teacher_id, '') AS teacher_id, COALESCE(sr.resource_id, '') AS resource_id
FROM sessions s
JOIN time_slots ts ON ts.id = s.time_slot_id
JOIN classes c ON c.id = s.class_id
LEFT JOIN teaching_slots tsl ON tsl.session_id = s.id AND tsl.status IN ($2, $3)
LEFT JOIN session_resources sr ON sr.session_id = s.id
WHERE s.date = $1 AND s.status <> $4`)
	args := []interface{}{filter.Date, models.TeachingSlotScheduled, models.TeachingSlotSubstituted, models.SessionStatusCancelled}
	if filter.TeacherID != "" {
		args = append(args, filter.TeacherID)
		fmt.Fprintf(&builder, " AND tsl.teacher_id = $%d", len(args))
	}
	if filter.ResourceID != "" {
		args = append(args, filter.ResourceID)
		fmt.Fprintf(&builder, " AND sr.resource_id = $%d", len(args))
	}
	if filter.ClassID != "" {
		args = append(args, filter.ClassID)
		fmt.Fprintf(&builder, " AND s.class_id = $%d", len(args))
	}
	if filter.BranchID != "" {
		args = append(args, filter.BranchID)
		fmt.Fprintf(&builder, " AND c.branch_id = $%d", len(args))
	}
	builder.WriteString(" ORDER BY ts.start_time ASC")

	var bookings []models.Booking
	if err := sqlx.SelectContext(ctx, r.exec(exec), &bookings, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return bookings, nil
}
