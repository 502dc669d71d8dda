package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/tc-schedule-api/internal/models"
)

const teacherRequestColumns = `id, teacher_id, session_id, request_type, status, replacement_teacher_id, new_date, new_time_slot_id,
       new_resource_id, new_session_id, request_reason, note, rejection_reason, submitted_at, decided_by, decided_at`

// TeacherRequestRepository persists teacher requests.
type TeacherRequestRepository struct {
	db *sqlx.DB
}

// NewTeacherRequestRepository constructs the repository.
func NewTeacherRequestRepository(db *sqlx.DB) *TeacherRequestRepository {
	return &TeacherRequestRepository{db: db}
}

func (r *TeacherRequestRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a new request row.
func (r *TeacherRequestRepository) Create(ctx context.Context, exec sqlx.ExtContext, req *models.TeacherRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Status == "" {
		req.Status = models.RequestStatusPending
	}
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = time.Now().UTC()
	}
	const query = `INSERT INTO teacher_requests
	(id, teacher_id, session_id, request_type, status, replacement_teacher_id, new_date, new_time_slot_id, new_resource_id,
	 new_session_id, request_reason, note, rejection_reason, submitted_at, decided_by, decided_at)
	VALUES (:id, :teacher_id, :session_id, :request_type, :status, :replacement_teacher_id, :new_date, :new_time_slot_id, :new_resource_id,
	 :new_session_id, :request_reason, :note, :rejection_reason, :submitted_at, :decided_by, :decided_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, req); err != nil {
		return fmt.Errorf("create teacher request: %w", err)
	}
	return nil
}

// FindByID fetches a request by identifier.
func (r *TeacherRequestRepository) FindByID(ctx context.Context, id string) (*models.TeacherRequest, error) {
	query := `SELECT ` + teacherRequestColumns + ` FROM teacher_requests WHERE id = $1`
	var req models.TeacherRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// LockByID loads the request holding a row lock until the transaction ends.
func (r *TeacherRequestRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TeacherRequest, error) {
	query := `SELECT ` + teacherRequestColumns + ` FROM teacher_requests WHERE id = $1 FOR UPDATE`
	var req models.TeacherRequest
	if err := sqlx.GetContext(ctx, r.exec(exec), &req, query, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// List returns requests matching the filter, newest first.
func (r *TeacherRequestRepository) List(ctx context.Context, filter models.TeacherRequestFilter) ([]models.TeacherRequest, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 6)
	builder.WriteString(`SELECT ` + teacherRequestColumns + ` FROM teacher_requests`)

	conditions := make([]string, 0, 5)
	if filter.TeacherID != "" {
		args = append(args, filter.TeacherID)
		conditions = append(conditions, fmt.Sprintf("teacher_id = $%d", len(args)))
	}
	if filter.ReplacementTeacherID != "" {
		args = append(args, filter.ReplacementTeacherID)
		conditions = append(conditions, fmt.Sprintf("replacement_teacher_id = $%d", len(args)))
	}
	if filter.InvolvingTeacherID != "" {
		args = append(args, filter.InvolvingTeacherID)
		conditions = append(conditions, fmt.Sprintf("(teacher_id = $%d OR replacement_teacher_id = $%d)", len(args), len(args)))
	}
	if filter.SessionID != "" {
		args = append(args, filter.SessionID)
		conditions = append(conditions, fmt.Sprintf("session_id = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("request_type = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY submitted_at DESC")
	builder.WriteString(limitOffset(filter.Limit, filter.Offset))

	var requests []models.TeacherRequest
	if err := r.db.SelectContext(ctx, &requests, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list teacher requests: %w", err)
	}
	return requests, nil
}

// ExistsOpen reports whether a PENDING or WAITING_CONFIRM request of the type already exists for the session.
func (r *TeacherRequestRepository) ExistsOpen(ctx context.Context, sessionID string, requestType models.TeacherRequestType) (bool, error) {
	const query = `SELECT 1 FROM teacher_requests WHERE session_id = $1 AND request_type = $2 AND status IN ($3, $4) LIMIT 1`
	var exists int
	err := r.db.GetContext(ctx, &exists, query, sessionID, requestType, models.RequestStatusPending, models.RequestStatusWaitingConfirm)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check open teacher request: %w", err)
	}
	return true, nil
}

// UpdateTeacherRequestStatusParams groups the columns written by a transition.
type UpdateTeacherRequestStatusParams struct {
	ID                   string
	From                 models.RequestStatus
	To                   models.RequestStatus
	ReplacementTeacherID *string
	ClearReplacement     bool
	NewResourceID        *string
	NewSessionID         *string
	Note                 *string
	RejectionReason      *string
	DecidedBy            *string
	DecidedAt            *time.Time
}

// UpdateStatus moves the request to a new status only if it is still in the expected one.
func (r *TeacherRequestRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, params UpdateTeacherRequestStatusParams) error {
	setParts := []string{"status = :status"}
	switch {
	case params.ClearReplacement:
		setParts = append(setParts, "replacement_teacher_id = NULL")
	case params.ReplacementTeacherID != nil:
		setParts = append(setParts, "replacement_teacher_id = :replacement_teacher_id")
	}
	if params.NewResourceID != nil {
		setParts = append(setParts, "new_resource_id = :new_resource_id")
	}
	if params.NewSessionID != nil {
		setParts = append(setParts, "new_session_id = :new_session_id")
	}
	if params.Note != nil {
		setParts = append(setParts, "note = :note")
	}
	if params.RejectionReason != nil {
		setParts = append(setParts, "rejection_reason = :rejection_reason")
	}
	if params.DecidedBy != nil {
		setParts = append(setParts, "decided_by = :decided_by")
	}
	if params.DecidedAt != nil {
		setParts = append(setParts, "decided_at = :decided_at")
	}
	query := fmt.Sprintf("UPDATE teacher_requests SET %s WHERE id = :id AND status = :from_status", strings.Join(setParts, ", "))
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, map[string]interface{}{
		"id":                     params.ID,
		"status":                 params.To,
		"from_status":            params.From,
		"replacement_teacher_id": params.ReplacementTeacherID,
		"new_resource_id":        params.NewResourceID,
		"new_session_id":         params.NewSessionID,
		"note":                   params.Note,
		"rejection_reason":       params.RejectionReason,
		"decided_by":             params.DecidedBy,
		"decided_at":             params.DecidedAt,
	})
	if err != nil {
		return fmt.Errorf("update teacher request status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check teacher request update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
