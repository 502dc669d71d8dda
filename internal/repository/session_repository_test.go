package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tc-schedule-api/internal/models"
)

func newTimetableRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	cleanup := func() {
		_ = sqlxDB.Close()
		db.Close()
	}
	return sqlxDB, mock, cleanup
}

func TestSessionRepositoryListBookingsFilters(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)
	day := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"session_id", "class_id", "time_slot_id", "date", "start_time", "end_time", "teacher_id", "resource_id"}).
		AddRow("session-1", "class-1", "slot-am", day, "08:00", "10:00", "teacher-1", "").
		AddRow("session-2", "class-2", "slot-am", day, "08:00", "10:00", "", "room-1")

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE s.date = $1 AND s.status <> $4 AND tsl.teacher_id = $5 AND c.branch_id = $6 ORDER BY ts.start_time ASC`)).
		WithArgs(day, models.TeachingSlotScheduled, models.TeachingSlotSubstituted, models.SessionStatusCancelled, "teacher-1", "branch-1").
		WillReturnRows(rows)

	bookings, err := repo.ListBookings(context.Background(), nil, models.BookingFilter{Date: day, TeacherID: "teacher-1", BranchID: "branch-1"})
	require.NoError(t, err)
	require.Len(t, bookings, 2)
	assert.Equal(t, "teacher-1", bookings[0].TeacherID)
	assert.Empty(t, bookings[0].ResourceID)
	assert.Equal(t, "room-1", bookings[1].ResourceID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryLockByIDUsesTransaction(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)
	day := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM sessions WHERE id = $1 FOR UPDATE`)).
		WithArgs("session-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "class_id", "course_session_id", "time_slot_id", "date", "status", "created_at", "updated_at"}).
			AddRow("session-1", "class-1", "cs-1", "slot-am", day, "PLANNED", day, day))
	mock.ExpectCommit()

	tx, err := db.BeginTxx(context.Background(), nil)
	require.NoError(t, err)
	session, err := repo.LockByID(context.Background(), tx, "session-1")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.Equal(t, models.SessionStatusPlanned, session.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryFindDetailNotFound(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE s.id = $1`)).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindDetail(context.Background(), nil, "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestSessionRepositoryListProgress(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)
	asOf := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE s.class_id = $1 AND s.date < $2 AND s.status IN ($3, $4)`)).
		WithArgs("class-1", asOf, models.SessionStatusDone, models.SessionStatusCancelled).
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "course_session_id", "sequence", "topic", "date", "status"}).
			AddRow("session-1", "cs-1", 1, "Greetings", asOf.AddDate(0, 0, -7), "DONE"))

	progress, err := repo.ListProgress(context.Background(), "class-1", asOf)
	require.NoError(t, err)
	require.Len(t, progress, 1)
	assert.Equal(t, 1, progress[0].Sequence)
	assert.Equal(t, models.SessionStatusDone, progress[0].Status)
}

func TestSessionRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO sessions`)).
		WithArgs(sqlmock.AnyArg(), "class-1", "cs-1", "slot-pm", sqlmock.AnyArg(), models.SessionStatusPlanned, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	session := &models.Session{ClassID: "class-1", CourseSessionID: "cs-1", TimeSlotID: "slot-pm", Date: time.Now()}
	require.NoError(t, repo.Create(context.Background(), nil, session))
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, models.SessionStatusPlanned, session.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryLockBookingKeysSortedAndDeduplicated(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectBegin()
	for _, key := range []string{"class|class-1|2026-03-05", "resource|room-1|2026-03-05", "teacher|t-1|2026-03-05"} {
		mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock(hashtext($1))`)).
			WithArgs(key).
			WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectCommit()

	tx, err := db.Beginx()
	require.NoError(t, err)
	err = repo.LockBookingKeys(context.Background(), tx, []string{
		"teacher|t-1|2026-03-05",
		"resource|room-1|2026-03-05",
		"class|class-1|2026-03-05",
		"teacher|t-1|2026-03-05",
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}
