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
	"github.com/lib/pq"

	"github.com/noah-isme/tc-schedule-api/internal/models"
)

const (
	uniqueViolationCode  = "23505"
	lockNotAvailableCode = "55P03"
	deadlockCode         = "40P01"
)

// IsUniqueViolation reports whether err is a Postgres unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolationCode
	}
	return false
}

// IsLockTimeout reports whether err came from lock_timeout expiry or deadlock detection.
func IsLockTimeout(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == lockNotAvailableCode || pqErr.Code == deadlockCode
	}
	return false
}

const studentRequestColumns = `id, student_id, request_type, status, target_session_id, makeup_session_id, current_class_id,
       target_class_id, effective_date, transfer_tier, request_reason, note, rejection_reason, submitted_by, submitted_at,
       decided_by, decided_at`

// StudentRequestRepository persists student requests.
type StudentRequestRepository struct {
	db *sqlx.DB
}

// NewStudentRequestRepository constructs the repository.
func NewStudentRequestRepository(db *sqlx.DB) *StudentRequestRepository {
	return &StudentRequestRepository{db: db}
}

func (r *StudentRequestRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a new request row.
func (r *StudentRequestRepository) Create(ctx context.Context, exec sqlx.ExtContext, req *models.StudentRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Status == "" {
		req.Status = models.RequestStatusPending
	}
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = time.Now().UTC()
	}
	const query = `INSERT INTO student_requests
	(id, student_id, request_type, status, target_session_id, makeup_session_id, current_class_id, target_class_id,
	 effective_date, transfer_tier, request_reason, note, rejection_reason, submitted_by, submitted_at, decided_by, decided_at)
	VALUES (:id, :student_id, :request_type, :status, :target_session_id, :makeup_session_id, :current_class_id, :target_class_id,
	 :effective_date, :transfer_tier, :request_reason, :note, :rejection_reason, :submitted_by, :submitted_at, :decided_by, :decided_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, req); err != nil {
		return fmt.Errorf("create student request: %w", err)
	}
	return nil
}

// FindByID fetches a request by identifier.
func (r *StudentRequestRepository) FindByID(ctx context.Context, id string) (*models.StudentRequest, error) {
	query := `SELECT ` + studentRequestColumns + ` FROM student_requests WHERE id = $1`
	var req models.StudentRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// LockByID loads the request holding a row lock until the transaction ends.
func (r *StudentRequestRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.StudentRequest, error) {
	query := `SELECT ` + studentRequestColumns + ` FROM student_requests WHERE id = $1 FOR UPDATE`
	var req models.StudentRequest
	if err := sqlx.GetContext(ctx, r.exec(exec), &req, query, id); err != nil {
		return nil, err
	}
	return &req, nil
}

// List returns requests matching the filter, newest first.
func (r *StudentRequestRepository) List(ctx context.Context, filter models.StudentRequestFilter) ([]models.StudentRequest, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(`SELECT ` + studentRequestColumns + ` FROM student_requests`)

	conditions := make([]string, 0, 3)
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)))
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

	var requests []models.StudentRequest
	if err := r.db.SelectContext(ctx, &requests, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list student requests: %w", err)
	}
	return requests, nil
}

// ExistsOpen reports whether a PENDING or WAITING_CONFIRM request already covers the key.
func (r *StudentRequestRepository) ExistsOpen(ctx context.Context, key models.OpenStudentRequestKey) (bool, error) {
	query := `SELECT 1 FROM student_requests WHERE student_id = $1 AND request_type = $2 AND status IN ($3, $4)`
	args := []interface{}{key.StudentID, key.Type, models.RequestStatusPending, models.RequestStatusWaitingConfirm}
	if key.TargetSessionID != "" {
		args = append(args, key.TargetSessionID)
		query += fmt.Sprintf(" AND target_session_id = $%d", len(args))
	}
	if key.CurrentClassID != "" {
		args = append(args, key.CurrentClassID)
		query += fmt.Sprintf(" AND current_class_id = $%d", len(args))
	}
	query += " LIMIT 1"
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check open student request: %w", err)
	}
	return true, nil
}

// CountApprovedTransfers counts approved transfers out of classes of the given course.
func (r *StudentRequestRepository) CountApprovedTransfers(ctx context.Context, exec sqlx.ExtContext, studentID, courseID string) (int, error) {
	const query = `SELECT COUNT(*) FROM student_requests sr
JOIN classes c ON c.id = sr.current_class_id
WHERE sr.student_id = $1 AND sr.request_type = $2 AND sr.status = $3 AND c.course_id = $4`
	var count int
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, query, studentID, models.StudentRequestTransfer, models.RequestStatusApproved, courseID); err != nil {
		return 0, fmt.Errorf("count approved transfers: %w", err)
	}
	return count, nil
}

// UpdateStudentRequestStatusParams groups the columns written by a decision.
type UpdateStudentRequestStatusParams struct {
	ID              string
	From            models.RequestStatus
	To              models.RequestStatus
	DecidedBy       *string
	DecidedAt       *time.Time
	RejectionReason *string
	Note            *string
	TargetSessionID *string
	MakeupSessionID *string
	TargetClassID   *string
	TransferTier    *models.TransferTier
}

// UpdateStatus moves the request to a new status only if it is still in the expected one.
func (r *StudentRequestRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, params UpdateStudentRequestStatusParams) error {
	setParts := []string{"status = :status"}
	if params.DecidedBy != nil {
		setParts = append(setParts, "decided_by = :decided_by")
	}
	if params.DecidedAt != nil {
		setParts = append(setParts, "decided_at = :decided_at")
	}
	if params.RejectionReason != nil {
		setParts = append(setParts, "rejection_reason = :rejection_reason")
	}
	if params.Note != nil {
		setParts = append(setParts, "note = :note")
	}
	if params.TargetSessionID != nil {
		setParts = append(setParts, "target_session_id = :target_session_id")
	}
	if params.MakeupSessionID != nil {
		setParts = append(setParts, "makeup_session_id = :makeup_session_id")
	}
	if params.TargetClassID != nil {
		setParts = append(setParts, "target_class_id = :target_class_id")
	}
	if params.TransferTier != nil {
		setParts = append(setParts, "transfer_tier = :transfer_tier")
	}
	query := fmt.Sprintf("UPDATE student_requests SET %s WHERE id = :id AND status = :from_status", strings.Join(setParts, ", "))
	result, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, map[string]interface{}{
		"id":                params.ID,
		"status":            params.To,
		"from_status":       params.From,
		"decided_by":        params.DecidedBy,
		"decided_at":        params.DecidedAt,
		"rejection_reason":  params.RejectionReason,
		"note":              params.Note,
		"target_session_id": params.TargetSessionID,
		"makeup_session_id": params.MakeupSessionID,
		"target_class_id":   params.TargetClassID,
		"transfer_tier":     params.TransferTier,
	})
	if err != nil {
		return fmt.Errorf("update student request status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check student request update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func limitOffset(limit, offset int) string {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
}
