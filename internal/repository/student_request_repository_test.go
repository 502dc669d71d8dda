package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tc-schedule-api/internal/models"
)

func TestPostgresErrorClassification(t *testing.T) {
	assert.True(t, IsUniqueViolation(fmt.Errorf("create: %w", &pq.Error{Code: "23505"})))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
	assert.True(t, IsLockTimeout(&pq.Error{Code: "55P03"}))
	assert.True(t, IsLockTimeout(&pq.Error{Code: "40P01"}))
	assert.False(t, IsLockTimeout(&pq.Error{Code: "23505"}))
}

func TestStudentRequestRepositoryExistsOpen(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewStudentRequestRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT 1 FROM student_requests WHERE student_id = $1 AND request_type = $2 AND status IN ($3, $4) AND target_session_id = $5 LIMIT 1`)).
		WithArgs("student-1", models.StudentRequestAbsence, models.RequestStatusPending, models.RequestStatusWaitingConfirm, "session-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta(`AND current_class_id = $5 LIMIT 1`)).
		WithArgs("student-1", models.StudentRequestTransfer, models.RequestStatusPending, models.RequestStatusWaitingConfirm, "class-1").
		WillReturnError(sql.ErrNoRows)

	exists, err := repo.ExistsOpen(context.Background(), models.OpenStudentRequestKey{StudentID: "student-1", Type: models.StudentRequestAbsence, TargetSessionID: "session-1"})
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsOpen(context.Background(), models.OpenStudentRequestKey{StudentID: "student-1", Type: models.StudentRequestTransfer, CurrentClassID: "class-1"})
	require.NoError(t, err)
	assert.False(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRequestRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewStudentRequestRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM student_requests WHERE student_id = $1 AND status IN ($2,$3) ORDER BY submitted_at DESC LIMIT 50 OFFSET 0`)).
		WithArgs("student-1", models.RequestStatusPending, models.RequestStatusApproved).
		WillReturnRows(sqlmock.NewRows([]string{"id", "student_id", "request_type", "status"}).
			AddRow("req-1", "student-1", "ABSENCE", "PENDING"))

	items, err := repo.List(context.Background(), models.StudentRequestFilter{
		StudentID: "student-1",
		Status:    []models.RequestStatus{models.RequestStatusPending, models.RequestStatusApproved},
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.StudentRequestAbsence, items[0].Type)
}

func TestStudentRequestRepositoryUpdateStatusCompareAndSet(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewStudentRequestRepository(db)
	decidedBy := "user-staff"
	decidedAt := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE student_requests SET status = $1, decided_by = $2, decided_at = $3 WHERE id = $4 AND status = $5`)).
		WithArgs(models.RequestStatusApproved, decidedBy, decidedAt, "req-1", models.RequestStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), nil, UpdateStudentRequestStatusParams{
		ID:        "req-1",
		From:      models.RequestStatusPending,
		To:        models.RequestStatusApproved,
		DecidedBy: &decidedBy,
		DecidedAt: &decidedAt,
	})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRequestRepositoryCountApprovedTransfers(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewStudentRequestRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`JOIN classes c ON c.id = sr.current_class_id`)).
		WithArgs("student-1", models.StudentRequestTransfer, models.RequestStatusApproved, "course-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	count, err := repo.CountApprovedTransfers(context.Background(), nil, "student-1", "course-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestLimitOffset(t *testing.T) {
	assert.Equal(t, " LIMIT 50 OFFSET 0", limitOffset(0, -1))
	assert.Equal(t, " LIMIT 50 OFFSET 10", limitOffset(500, 10))
	assert.Equal(t, " LIMIT 20 OFFSET 40", limitOffset(20, 40))
}
