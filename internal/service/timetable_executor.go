package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/tc-schedule-api/internal/models"
	"github.com/noah-isme/tc-schedule-api/internal/repository"
	appErrors "github.com/noah-isme/tc-schedule-api/pkg/errors"
)

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

const excusedAbsenceNote = "Excused absence"

// TimetableExecutor applies approved decisions to the timetable. Every Apply method
// expects to run inside Run, locks its aggregate root first and re-validates before writing.
type TimetableExecutor struct {
	tx              txProvider
	lockTimeout     time.Duration
	sessions        sessionStore
	slots           teachingSlotStore
	resources       sessionResourceStore
	studentSessions studentSessionStore
	enrollments     enrollmentStore
	classes         classStore
	catalog         catalogStore
	transfers       transferCounter
	conflicts       *ConflictDetector
	metrics         *MetricsService
	guard           CapacityGuard
	logger          *zap.Logger
}

// TimetableExecutorDeps groups the stores the executor writes through.
type TimetableExecutorDeps struct {
	Sessions        sessionStore
	TeachingSlots   teachingSlotStore
	Resources       sessionResourceStore
	StudentSessions studentSessionStore
	Enrollments     enrollmentStore
	Classes         classStore
	Catalog         catalogStore
	Transfers       transferCounter
	Conflicts       *ConflictDetector
	Metrics         *MetricsService
}

// NewTimetableExecutor constructs the executor. A zero lockTimeout leaves the server default.
func NewTimetableExecutor(tx txProvider, deps TimetableExecutorDeps, guard CapacityGuard, lockTimeout time.Duration, logger *zap.Logger) *TimetableExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TimetableExecutor{
		tx:              tx,
		lockTimeout:     lockTimeout,
		sessions:        deps.Sessions,
		slots:           deps.TeachingSlots,
		resources:       deps.Resources,
		studentSessions: deps.StudentSessions,
		enrollments:     deps.Enrollments,
		classes:         deps.Classes,
		catalog:         deps.Catalog,
		transfers:       deps.Transfers,
		conflicts:       deps.Conflicts,
		metrics:         deps.Metrics,
		guard:           guard,
		logger:          logger,
	}
}

// Run executes fn in one transaction, rolling back on any error.
func (e *TimetableExecutor) Run(ctx context.Context, fn func(exec sqlx.ExtContext) error) (err error) {
	if e.tx == nil {
		return appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	start := time.Now()
	defer func() {
		e.metrics.ObserveTransaction("timetable", time.Since(start))
	}()
	tx, err := e.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if e.lockTimeout > 0 {
		if _, err = tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", e.lockTimeout.Milliseconds())); err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to set lock timeout")
			return err
		}
	}

	if err = fn(tx); err != nil {
		if repository.IsLockTimeout(err) {
			e.metrics.RecordLockTimeout()
			e.logger.Warn("timetable transaction hit lock timeout", zap.Error(err))
			err = appErrors.Wrap(err, appErrors.ErrLockTimeout.Code, appErrors.ErrLockTimeout.Status, appErrors.ErrLockTimeout.Message)
		}
		return err
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit timetable changes")
		return err
	}
	return nil
}

func (e *TimetableExecutor) lockPlannedSession(ctx context.Context, exec sqlx.ExtContext, sessionID string) (*models.SessionDetail, error) {
	if _, err := e.sessions.LockByID(ctx, exec, sessionID); err != nil {
		return nil, lookupError(err, "session not found", "failed to lock session")
	}
	detail, err := e.sessions.FindDetail(ctx, exec, sessionID)
	if err != nil {
		return nil, lookupError(err, "session not found", "failed to load session")
	}
	if detail.Status != models.SessionStatusPlanned {
		return nil, appErrors.BusinessRule(appErrors.CodeBusinessRule, fmt.Sprintf("Session is %s and can no longer be changed", detail.Status))
	}
	return detail, nil
}

// ApplyAbsence marks the student's attendance for the session as an excused absence.
func (e *TimetableExecutor) ApplyAbsence(ctx context.Context, exec sqlx.ExtContext, studentID, sessionID string) error {
	if _, err := e.sessions.LockByID(ctx, exec, sessionID); err != nil {
		return lookupError(err, "session not found", "failed to lock session")
	}
	if _, err := e.studentSessions.Find(ctx, exec, studentID, sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.BusinessRule(appErrors.CodeBusinessRule, "Session is not part of the student's schedule")
		}
		return internalError(err, "failed to load student session")
	}
	if err := e.studentSessions.MarkAttendance(ctx, exec, studentID, sessionID, models.AttendanceAbsent, excusedAbsenceNote); err != nil {
		return internalError(err, "failed to record absence")
	}
	return nil
}

// MakeupExecution books a student into another session of the same course session.
type MakeupExecution struct {
	StudentID       string
	TargetSessionID string
	MakeupSessionID string
	Override        CapacityOverride
}

// ApplyMakeup re-checks the missed attendance and the makeup session's seats under
// their locks and books the student.
func (e *TimetableExecutor) ApplyMakeup(ctx context.Context, exec sqlx.ExtContext, in MakeupExecution) error {
	detail, err := e.lockPlannedSession(ctx, exec, in.MakeupSessionID)
	if err != nil {
		return err
	}
	missed, err := e.studentSessions.Lock(ctx, exec, in.StudentID, in.TargetSessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.BusinessRule(appErrors.CodeBusinessRule, "Session is not part of the student's schedule")
		}
		return internalError(err, "failed to lock student session")
	}
	if missed.AttendanceStatus != models.AttendanceAbsent {
		return appErrors.BusinessRule(appErrors.CodeBusinessRule, "Can only makeup absent sessions")
	}
	if _, err := e.studentSessions.Find(ctx, exec, in.StudentID, in.MakeupSessionID); err == nil {
		return appErrors.BusinessRule(appErrors.CodeBusinessRule, "Student is already booked into the makeup session")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return internalError(err, "failed to load student session")
	}
	count, err := e.studentSessions.CountBySession(ctx, exec, in.MakeupSessionID)
	if err != nil {
		return internalError(err, "failed to count session students")
	}
	if err := e.guard.CheckSeat(count, detail.ClassMaxCapacity, in.Override, appErrors.CodeBusinessRule, "Makeup session is full"); err != nil {
		return err
	}
	original := in.TargetSessionID
	row := &models.StudentSession{
		StudentID:         in.StudentID,
		SessionID:         in.MakeupSessionID,
		AttendanceStatus:  models.AttendancePlanned,
		IsMakeup:          true,
		OriginalSessionID: &original,
	}
	if err := e.studentSessions.Create(ctx, exec, row); err != nil {
		return internalError(err, "failed to book makeup session")
	}
	return nil
}

// TransferExecution moves an enrollment between sibling classes from a date on.
type TransferExecution struct {
	StudentID      string
	CurrentClassID string
	TargetClassID  string
	EffectiveDate  time.Time
	Override       CapacityOverride
}

// ApplyTransfer locks the target class, re-checks seats and quota, closes the current
// enrollment and carries the student's future sessions over. It returns the target
// session the student joins on.
func (e *TimetableExecutor) ApplyTransfer(ctx context.Context, exec sqlx.ExtContext, in TransferExecution) (*models.Session, error) {
	target, err := e.classes.LockByID(ctx, exec, in.TargetClassID)
	if err != nil {
		return nil, lookupError(err, "target class not found", "failed to lock target class")
	}
	current, err := e.classes.FindByID(ctx, exec, in.CurrentClassID)
	if err != nil {
		return nil, lookupError(err, "current class not found", "failed to load current class")
	}
	if err := validateTransferTarget(*current, *target); err != nil {
		return nil, err
	}
	enrollment, err := e.enrollments.FindActive(ctx, exec, in.StudentID, in.CurrentClassID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.BusinessRule(appErrors.CodeInvalidTransfer, "Student is not enrolled in the current class")
		}
		return nil, internalError(err, "failed to load enrollment")
	}
	enrolled, err := e.enrollments.CountActiveByClass(ctx, exec, target.ID)
	if err != nil {
		return nil, internalError(err, "failed to count target class enrollments")
	}
	if err := e.guard.CheckSeat(enrolled, target.MaxCapacity, in.Override, appErrors.CodeInvalidTransfer, "Target class is full"); err != nil {
		return nil, err
	}
	used, err := e.transfers.CountApprovedTransfers(ctx, exec, in.StudentID, current.CourseID)
	if err != nil {
		return nil, internalError(err, "failed to count approved transfers")
	}
	if err := e.guard.CheckTransferQuota(used); err != nil {
		return nil, err
	}
	join, err := e.sessions.FindPlannedByClassAndDate(ctx, exec, target.ID, in.EffectiveDate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.BusinessRule(appErrors.CodeNoSessionOnDate, "Target class has no scheduled session on the effective date")
		}
		return nil, internalError(err, "failed to load target session")
	}

	var leftSessionID *string
	if left, err := e.sessions.FindPlannedByClassAndDate(ctx, exec, current.ID, in.EffectiveDate); err == nil {
		leftSessionID = &left.ID
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, internalError(err, "failed to load current session")
	}

	if err := e.enrollments.Close(ctx, exec, enrollment.ID, models.EnrollmentStatusTransferred, leftSessionID, in.EffectiveDate); err != nil {
		return nil, internalError(err, "failed to close current enrollment")
	}
	joinID := join.ID
	if err := e.enrollments.Create(ctx, exec, &models.Enrollment{
		StudentID:     in.StudentID,
		ClassID:       target.ID,
		Status:        models.EnrollmentStatusEnrolled,
		JoinSessionID: &joinID,
	}); err != nil {
		return nil, internalError(err, "failed to create target enrollment")
	}
	removed, err := e.studentSessions.DeletePlannedFrom(ctx, exec, in.StudentID, current.ID, in.EffectiveDate)
	if err != nil {
		return nil, internalError(err, "failed to release current class sessions")
	}
	added, err := e.studentSessions.CreateForClassFrom(ctx, exec, in.StudentID, target.ID, in.EffectiveDate)
	if err != nil {
		return nil, internalError(err, "failed to book target class sessions")
	}
	e.logger.Info("transfer executed",
		zap.String("student_id", in.StudentID),
		zap.String("from_class", current.ID),
		zap.String("to_class", target.ID),
		zap.Int64("sessions_released", removed),
		zap.Int64("sessions_booked", added),
	)
	return join, nil
}

func validateTransferTarget(current, target models.Class) error {
	switch {
	case current.ID == target.ID:
		return appErrors.BusinessRule(appErrors.CodeInvalidTransfer, "Target class must differ from the current class")
	case current.CourseID != target.CourseID:
		return appErrors.BusinessRule(appErrors.CodeInvalidTransfer, "Target class must belong to the same course")
	case !target.Status.AcceptsTransfers():
		return appErrors.BusinessRule(appErrors.CodeInvalidTransfer, "Target class is not open for transfers")
	}
	return nil
}

// ApplyModalityChange rebinds the session to another resource. Teaching slots are untouched.
func (e *TimetableExecutor) ApplyModalityChange(ctx context.Context, exec sqlx.ExtContext, sessionID, resourceID string) error {
	detail, err := e.lockPlannedSession(ctx, exec, sessionID)
	if err != nil {
		return err
	}
	if err := e.lockBookingKeys(ctx, exec, detail.Date, "", []string{resourceID}, nil); err != nil {
		return err
	}
	if err := e.conflicts.Check(ctx, exec, ConflictCandidate{
		Date:             detail.Date,
		TimeSlotID:       detail.TimeSlotID,
		StartTime:        detail.StartTime,
		EndTime:          detail.EndTime,
		ResourceID:       resourceID,
		IgnoreSessionIDs: []string{sessionID},
	}); err != nil {
		return err
	}
	if err := e.resources.ReplaceForSession(ctx, exec, sessionID, resourceID); err != nil {
		return internalError(err, "failed to rebind session resource")
	}
	return nil
}

// RescheduleExecution moves a session to a new date and time slot. A non-zero Today
// rejects a NewDate that has already passed.
type RescheduleExecution struct {
	SessionID     string
	NewDate       time.Time
	NewTimeSlotID string
	NewResourceID string
	Today         time.Time
}

// ApplyReschedule cancels the session and recreates it at the new slot, moving teaching
// slots, student sessions and the resource binding to the new row.
func (e *TimetableExecutor) ApplyReschedule(ctx context.Context, exec sqlx.ExtContext, in RescheduleExecution) (*models.Session, error) {
	detail, err := e.lockPlannedSession(ctx, exec, in.SessionID)
	if err != nil {
		return nil, err
	}
	if !in.Today.IsZero() && isPastDate(in.NewDate, in.Today) {
		return nil, appErrors.BusinessRule(appErrors.CodePastSession, "New date has already passed")
	}
	slot, err := e.catalog.FindTimeSlot(ctx, in.NewTimeSlotID)
	if err != nil {
		return nil, lookupError(err, "time slot not found", "failed to load time slot")
	}
	resourceID := in.NewResourceID
	if resourceID == "" {
		binding, err := e.resources.FindBySession(ctx, exec, in.SessionID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, internalError(err, "failed to load session resource")
		}
		if binding != nil {
			resourceID = binding.ResourceID
		}
	}
	teachingSlots, err := e.slots.ListBySession(ctx, exec, in.SessionID)
	if err != nil {
		return nil, internalError(err, "failed to load teaching slots")
	}

	teacherIDs := occupyingTeachers(teachingSlots)
	if err := e.lockBookingKeys(ctx, exec, in.NewDate, detail.ClassID, []string{resourceID}, teacherIDs); err != nil {
		return nil, err
	}
	if err := e.conflicts.CheckMove(ctx, exec, SessionMove{
		SessionID:  in.SessionID,
		ClassID:    detail.ClassID,
		TeacherIDs: teacherIDs,
		ResourceID: resourceID,
		Date:       in.NewDate,
		Slot:       *slot,
	}); err != nil {
		return nil, err
	}

	next := &models.Session{
		ClassID:         detail.ClassID,
		CourseSessionID: detail.CourseSessionID,
		TimeSlotID:      slot.ID,
		Date:            dateOnly(in.NewDate),
		Status:          models.SessionStatusPlanned,
	}
	if err := e.sessions.Create(ctx, exec, next); err != nil {
		return nil, internalError(err, "failed to create rescheduled session")
	}
	if err := e.sessions.UpdateStatus(ctx, exec, in.SessionID, models.SessionStatusCancelled); err != nil {
		return nil, internalError(err, "failed to cancel original session")
	}
	if err := e.slots.MoveToSession(ctx, exec, in.SessionID, next.ID); err != nil {
		return nil, internalError(err, "failed to move teaching slots")
	}
	if err := e.studentSessions.MoveToSession(ctx, exec, in.SessionID, next.ID); err != nil {
		return nil, internalError(err, "failed to move student sessions")
	}
	if err := e.resources.DeleteBySession(ctx, exec, in.SessionID); err != nil {
		return nil, internalError(err, "failed to release original resource")
	}
	if resourceID != "" {
		if err := e.resources.ReplaceForSession(ctx, exec, next.ID, resourceID); err != nil {
			return nil, internalError(err, "failed to bind resource to rescheduled session")
		}
	}
	return next, nil
}

// ApplySwap puts the original teacher on leave and substitutes the replacement for the session.
// The original teacher must still hold the session and no substitute may be assigned yet.
func (e *TimetableExecutor) ApplySwap(ctx context.Context, exec sqlx.ExtContext, sessionID, originalTeacherID, replacementTeacherID string) error {
	detail, err := e.lockPlannedSession(ctx, exec, sessionID)
	if err != nil {
		return err
	}
	current, err := e.slots.ListBySession(ctx, exec, sessionID)
	if err != nil {
		return internalError(err, "failed to load teaching slots")
	}
	if err := checkSwappable(current, originalTeacherID, replacementTeacherID); err != nil {
		return err
	}
	if err := e.lockBookingKeys(ctx, exec, detail.Date, "", nil, []string{replacementTeacherID}); err != nil {
		return err
	}
	if err := e.conflicts.Check(ctx, exec, ConflictCandidate{
		Date:             detail.Date,
		TimeSlotID:       detail.TimeSlotID,
		StartTime:        detail.StartTime,
		EndTime:          detail.EndTime,
		TeacherID:        replacementTeacherID,
		IgnoreSessionIDs: []string{sessionID},
	}); err != nil {
		return err
	}
	if err := e.slots.UpdateStatus(ctx, exec, sessionID, originalTeacherID, models.TeachingSlotOnLeave); err != nil {
		return internalError(err, "failed to put original teacher on leave")
	}
	if err := e.slots.Upsert(ctx, exec, models.TeachingSlot{
		SessionID: sessionID,
		TeacherID: replacementTeacherID,
		Status:    models.TeachingSlotSubstituted,
	}); err != nil {
		return internalError(err, "failed to assign replacement teacher")
	}
	return nil
}

func checkSwappable(slots []models.TeachingSlot, originalTeacherID, replacementTeacherID string) error {
	holds := false
	for _, slot := range slots {
		switch {
		case slot.TeacherID == originalTeacherID:
			holds = slot.Status.Occupies()
		case slot.Status == models.TeachingSlotSubstituted:
			return appErrors.Clone(appErrors.ErrInvalidStatus, "session already has a substitute teacher")
		case slot.TeacherID == replacementTeacherID && slot.Status.Occupies():
			return appErrors.Clone(appErrors.ErrInvalidStatus, "replacement teacher already teaches this session")
		}
	}
	if !holds {
		return appErrors.Clone(appErrors.ErrInvalidStatus, "original teacher no longer holds this session")
	}
	return nil
}

// lockBookingKeys serializes writers that book the same class, resource or teacher on
// one date, so two transactions cannot both pass the conflict check for a shared slot.
func (e *TimetableExecutor) lockBookingKeys(ctx context.Context, exec sqlx.ExtContext, date time.Time, classID string, resourceIDs, teacherIDs []string) error {
	day := dateOnly(date).Format("2006-01-02")
	keys := make([]string, 0, 1+len(resourceIDs)+len(teacherIDs))
	if classID != "" {
		keys = append(keys, "class|"+classID+"|"+day)
	}
	for _, id := range resourceIDs {
		if id != "" {
			keys = append(keys, "resource|"+id+"|"+day)
		}
	}
	for _, id := range teacherIDs {
		if id != "" {
			keys = append(keys, "teacher|"+id+"|"+day)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	if err := e.sessions.LockBookingKeys(ctx, exec, keys); err != nil {
		return internalError(err, "failed to lock booking keys")
	}
	return nil
}
