package service

import (
	"context"
	"strings"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tc-schedule-api/internal/dto"
	"github.com/noah-isme/tc-schedule-api/internal/models"
	appErrors "github.com/noah-isme/tc-schedule-api/pkg/errors"
)

const absenceReason = "Family event out of town"

// studentWorld: stu-1 is enrolled in class-a; class-b is a sibling class of the same course.
func studentWorld() *timetableWorld {
	w := newTimetableWorld()
	w.addTimeSlot("slot-am", "08:00", "10:00")
	w.addTimeSlot("slot-pm", "13:00", "15:00")
	w.addClass(models.Class{ID: "class-a", Code: "ENG-A", CourseID: "course-1", MaxCapacity: 30})
	w.addClass(models.Class{ID: "class-b", Code: "ENG-B", CourseID: "course-1", MaxCapacity: 30})
	w.addClass(models.Class{ID: "class-remote", Code: "ENG-R", CourseID: "course-1", MaxCapacity: 30, BranchID: "branch-2", Modality: models.ModalityOnline})
	w.addStudent("stu-1", "user-stu-1")
	w.addStudent("stu-2", "user-stu-2")
	w.enroll("stu-1", "class-a")

	w.addSession("a-5", "class-a", "cs-5", "slot-am", fixtureDay(2))
	w.addSession("a-6", "class-a", "cs-6", "slot-am", fixtureDay(7))
	w.addSession("a-4", "class-a", "cs-4", "slot-am", fixtureDay(-3))
	w.seat("stu-1", "a-5", models.AttendancePlanned)
	w.seat("stu-1", "a-6", models.AttendancePlanned)
	w.seat("stu-1", "a-4", models.AttendancePlanned)

	w.addSession("b-5", "class-b", "cs-5", "slot-pm", fixtureDay(3))
	w.addSession("b-6", "class-b", "cs-6", "slot-pm", fixtureDay(7))
	w.addSession("r-6", "class-remote", "cs-6", "slot-pm", fixtureDay(7))
	return w
}

func absenceRequest(sessionID string) dto.SubmitStudentRequest {
	return dto.SubmitStudentRequest{
		RequestType:     models.StudentRequestAbsence,
		TargetSessionID: sessionID,
		RequestReason:   absenceReason,
	}
}

func makeupRequest(target, makeup string) dto.SubmitStudentRequest {
	return dto.SubmitStudentRequest{
		RequestType:     models.StudentRequestMakeup,
		TargetSessionID: target,
		MakeupSessionID: makeup,
		RequestReason:   "Missed the lesson while sick",
	}
}

func transferRequest(current, target string, offset int) dto.SubmitStudentRequest {
	return dto.SubmitStudentRequest{
		RequestType:    models.StudentRequestTransfer,
		CurrentClassID: current,
		TargetClassID:  target,
		EffectiveDate:  fixtureDay(offset).Format("2006-01-02"),
		RequestReason:  "Work schedule changed to mornings",
	}
}

func TestStudentSubmitAbsence(t *testing.T) {
	f := newTimetableFixture(t, studentWorld())

	req, err := f.students.Submit(context.Background(), absenceRequest("a-5"), studentClaims("user-stu-1"))
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusPending, req.Status)
	assert.Equal(t, models.StudentRequestAbsence, req.Type)
	assert.Equal(t, "stu-1", req.StudentID)
	assert.Equal(t, "a-5", *req.TargetSessionID)
	assert.Equal(t, "user-stu-1", req.SubmittedBy)
	assert.Equal(t, uint64(1), f.metrics.Snapshot().RequestTransitions)
	require.Len(t, f.w.audits, 1)
	assert.Equal(t, models.AuditActionRequestSubmit, f.w.audits[0].Action)
}

func TestStudentSubmitRejectsShortReason(t *testing.T) {
	f := newTimetableFixture(t, studentWorld())
	req := absenceRequest("a-5")
	req.RequestReason = "sick"

	_, err := f.students.Submit(context.Background(), req, studentClaims("user-stu-1"))
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.CodeBusinessRule))
	assert.Empty(t, f.w.studentRequests)
}

func TestStudentSubmitValidation(t *testing.T) {
	f := newTimetableFixture(t, studentWorld())

	_, err := f.students.Submit(context.Background(), dto.SubmitStudentRequest{RequestType: "HOLIDAY", RequestReason: absenceReason}, studentClaims("user-stu-1"))
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	_, err = f.students.Submit(context.Background(), dto.SubmitStudentRequest{RequestType: models.StudentRequestMakeup, TargetSessionID: "a-5", RequestReason: absenceReason}, studentClaims("user-stu-1"))
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidInput.Code))
}

func TestStudentSubmitDuplicateOpenRequest(t *testing.T) {
	f := newTimetableFixture(t, studentWorld())
	ctx := context.Background()

	_, err := f.students.Submit(ctx, absenceRequest("a-5"), studentClaims("user-stu-1"))
	require.NoError(t, err)

	_, err = f.students.Submit(ctx, absenceRequest("a-5"), studentClaims("user-stu-1"))
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrDuplicateRequest.Code))
	assert.Len(t, f.w.studentRequests, 1)
}

func TestStudentSubmitUniqueViolationIsDuplicate(t *testing.T) {
	f := newTimetableFixture(t, studentWorld())
	f.requests.createErr = &pq.Error{Code: "23505"}

	_, err := f.students.Submit(context.Background(), absenceRequest("a-5"), studentClaims("user-stu-1"))
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrDuplicateRequest.Code))
}

func TestStudentSubmitAbsencePastSession(t *testing.T) {
	f := newTimetableFixture(t, studentWorld())

	_, err := f.students.Submit(context.Background(), absenceRequest("a-4"), studentClaims("user-stu-1"))
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.CodePastSession))
}

func TestStudentSubmitAbsenceStaffLookback(t *testing.T) {
	f := newTimetableFixture(t, studentWorld())
	req := absenceRequest("a-4")
	req.StudentID = "stu-1"

	created, err := f.students.Submit(context.Background(), req, staffClaims())
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusPending, created.Status)
	assert.Equal(t, "user-staff", created.SubmittedBy)

	f.w.addSession("a-old", "class-a", "cs-1", "slot-am", fixtureDay(-30))
	f.w.seat("stu-1", "a-old", models.AttendancePlanned)
	req.TargetSessionID = "a-old"
	_, err = f.students.Submit(context.Background(), req, staffClaims())
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.CodePastSession))
}

func TestStudentSubmitOnBehalfRequiresStudentID(t *testing.T) {
	f := newTimetableFixture(t, studentWorld())

	_, err := f.students.Submit(context.Background(), absenceRequest("a-5"), staffClaims())
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidInput.Code))
}

func TestStudentSubmitAbsenceOutsideSchedule(t *testing.T) {
	f := newTimetableFixture(t, studentWorld())

	_, err := f.students.Submit(context.Background(), absenceRequest("b-5"), studentClaims("user-stu-1"))
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.CodeBusinessRule))
}

func TestStudentSubmitForbiddenForTeacher(t *testing.T) {
	f := newTimetableFixture(t, studentWorld())

	_, err := f.students.Submit(context.Background(), absenceRequest("a-5"), teacherClaims("user-t"))
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden.Code))
}

func TestStudentApproveAbsenceMarksAttendance(t *testing.T) {
	f := newTimetableFixture(t, studentWorld())
	ctx := context.Background()
	created, err := f.students.Submit(ctx, absenceRequest("a-5"), studentClaims("user-stu-1"))
	require.NoError(t, err)

	f.expectCommit()
	approved, err := f.students.Approve(ctx, created.ID, dto.ApproveStudentRequest{Note: "Documented"}, staffClaims())
	require.NoError(t, err)
	require.NoError(t, f.mock.ExpectationsWereMet())

	assert.Equal(t, models.RequestStatusApproved, approved.Status)
	require.NotNil(t, approved.DecidedBy)
	assert.Equal(t, "user-staff", *approved.DecidedBy)
	assert.Equal(t, "Documented", *approved.Note)
	seat := f.w.studentSessions[seatKey("stu-1", "a-5")]
	assert.Equal(t, models.AttendanceAbsent, seat.AttendanceStatus)
	assert.Equal(t, excusedAbsenceNote, *seat.Note)
	assert.Equal(t, models.RequestStatusApproved, f.w.studentRequests[created.ID].Status)
}

func TestStudentApproveRequiresStaff(t *testing.T) {
	f := newTimetableFixture(t, studentWorld())
	created, err := f.students.Submit(context.Background(), absenceRequest("a-5"), studentClaims("user-stu-1"))
	require.NoError(t, err)

	_, err = f.students.Approve(context.Background(), created.ID, dto.ApproveStudentRequest{}, studentClaims("user-stu-1"))
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden.Code))
}

func TestStudentRejectTwice(t *testing.T) {
	f := newTimetableFixture(t, studentWorld())
	ctx := context.Background()
	created, err := f.students.Submit(ctx, absenceRequest("a-5"), studentClaims("user-stu-1"))
	require.NoError(t, err)

	rejected, err := f.students.Reject(ctx, created.ID, dto.RejectRequest{Reason: "No supporting document"}, staffClaims())
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusRejected, rejected.Status)
	assert.Equal(t, "No supporting document", *rejected.RejectionReason)

	_, err = f.students.Reject(ctx, created.ID, dto.RejectRequest{Reason: "Again"}, staffClaims())
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.CodeInvalidStatus))

	_, err = f.students.Approve(ctx, created.ID, dto.ApproveStudentRequest{}, staffClaims())
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.CodeInvalidStatus))
	assert.Equal(t, models.AttendancePlanned, f.w.studentSessions[seatKey("stu-1", "a-5")].AttendanceStatus)
}

func TestStudentCancel(t *testing.T) {
	f := newTimetableFixture(t, studentWorld())
	ctx := context.Background()
	created, err := f.students.Submit(ctx, absenceRequest("a-5"), studentClaims("user-stu-1"))
	require.NoError(t, err)

	_, err = f.students.Cancel(ctx, created.ID, studentClaims("user-stu-2"))
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden.Code))

	cancelled, err := f.students.Cancel(ctx, created.ID, studentClaims("user-stu-1"))
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusCancelled, cancelled.Status)

	_, err = f.students.Cancel(ctx, created.ID, studentClaims("user-stu-1"))
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.CodeInvalidStatus))

	// a cancelled request no longer blocks a new one
	_, err = f.students.Submit(ctx, absenceRequest("a-5"), studentClaims("user-stu-1"))
	require.NoError(t, err)
}

func TestStudentMakeupRequiresAbsence(t *testing.T) {
	f := newTimetableFixture(t, studentWorld())

	_, err := f.students.Submit(context.Background(), makeupRequest("a-5", "b-5"), studentClaims("user-stu-1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Can only makeup absent sessions")
}

func TestStudentMakeupApproveBooksSeat(t *testing.T) {
	w := studentWorld()
	w.studentSessions[seatKey("stu-1", "a-5")].AttendanceStatus = models.AttendanceAbsent
	w.fillSession("b-5", 15)
	f := newTimetableFixture(t, w)
	ctx := context.Background()

	created, err := f.students.Submit(ctx, makeupRequest("a-5", "b-5"), studentClaims("user-stu-1"))
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusPending, created.Status)
	assert.Equal(t, 15, w.countSeats("b-5"))

	f.expectCommit()
	approved, err := f.students.Approve(ctx, created.ID, dto.ApproveStudentRequest{}, staffClaims())
	require.NoError(t, err)
	require.NoError(t, f.mock.ExpectationsWereMet())
	assert.Equal(t, models.RequestStatusApproved, approved.Status)

	assert.Equal(t, 16, w.countSeats("b-5"))
	row := w.studentSessions[seatKey("stu-1", "b-5")]
	require.NotNil(t, row)
	assert.True(t, row.IsMakeup)
	assert.Equal(t, "a-5", *row.OriginalSessionID)
}

func TestStudentMakeupMustCoverSameCourseSession(t *testing.T) {
	w := studentWorld()
	w.studentSessions[seatKey("stu-1", "a-5")].AttendanceStatus = models.AttendanceAbsent
	f := newTimetableFixture(t, w)

	_, err := f.students.Submit(context.Background(), makeupRequest("a-5", "b-6"), studentClaims("user-stu-1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "same course session")
}

func TestStudentMakeupFullSessionOverride(t *testing.T) {
	w := studentWorld()
	w.studentSessions[seatKey("stu-1", "a-5")].AttendanceStatus = models.AttendanceAbsent
	w.fillSession("b-5", 30)
	f := newTimetableFixture(t, w)
	ctx := context.Background()

	_, err := f.students.Submit(ctx, makeupRequest("a-5", "b-5"), studentClaims("user-stu-1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Makeup session is full")

	req := makeupRequest("a-5", "b-5")
	req.StudentID = "stu-1"
	req.AllowCapacityOverride = true
	req.OverrideReason = "VIP"
	_, err = f.students.Submit(ctx, req, staffClaims())
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.CodeCapacityExceeded))

	req.OverrideReason = strings.Repeat("Approved by director ", 2)
	f.expectCommit()
	created, err := f.students.Submit(ctx, req, staffClaims())
	require.NoError(t, err)
	require.NoError(t, f.mock.ExpectationsWereMet())
	assert.Equal(t, models.RequestStatusApproved, created.Status, "staff makeup is executed immediately")
	require.NotNil(t, created.DecidedAt)
	assert.Equal(t, 31, w.countSeats("b-5"))
}

func TestStudentSubmitTransfer(t *testing.T) {
	f := newTimetableFixture(t, studentWorld())

	created, err := f.students.Submit(context.Background(), transferRequest("class-a", "class-b", 7), studentClaims("user-stu-1"))
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusPending, created.Status)
	require.NotNil(t, created.TransferTier)
	assert.Equal(t, models.TransferTierSelfService, *created.TransferTier)
	assert.Equal(t, "b-6", *created.TargetSessionID)
}

func TestStudentSubmitTransferRules(t *testing.T) {
	tests := []struct {
		name  string
		setup func(w *timetableWorld)
		req   dto.SubmitStudentRequest
		code  string
	}{
		{name: "same class", req: transferRequest("class-a", "class-a", 7), code: appErrors.CodeInvalidTransfer},
		{name: "past effective date", req: transferRequest("class-a", "class-b", -1), code: appErrors.CodePastEffectiveDate},
		{name: "no session on date", req: transferRequest("class-a", "class-b", 8), code: appErrors.CodeNoSessionOnDate},
		{
			name:  "quota exhausted",
			setup: func(w *timetableWorld) { w.approvedTransfers["stu-1|course-1"] = 1 },
			req:   transferRequest("class-a", "class-b", 7),
			code:  appErrors.CodeTransferLimitExceeded,
		},
		{
			name: "target full",
			setup: func(w *timetableWorld) {
				w.classes["class-b"].MaxCapacity = 1
				w.enroll("stu-2", "class-b")
			},
			req:  transferRequest("class-a", "class-b", 7),
			code: appErrors.CodeInvalidTransfer,
		},
		{
			name:  "target completed",
			setup: func(w *timetableWorld) { w.classes["class-b"].Status = models.ClassStatusCompleted },
			req:   transferRequest("class-a", "class-b", 7),
			code:  appErrors.CodeInvalidTransfer,
		},
		{name: "cross branch needs staff", req: transferRequest("class-a", "class-remote", 7), code: appErrors.CodeRequiresAAApproval},
		{
			name:  "not enrolled",
			setup: func(w *timetableWorld) { w.enrollments = nil },
			req:   transferRequest("class-a", "class-b", 7),
			code:  appErrors.CodeInvalidTransfer,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := studentWorld()
			if tc.setup != nil {
				tc.setup(w)
			}
			f := newTimetableFixture(t, w)
			_, err := f.students.Submit(context.Background(), tc.req, studentClaims("user-stu-1"))
			require.Error(t, err)
			assert.True(t, appErrors.HasCode(err, tc.code), "got %v", err)
		})
	}
}

func TestStudentSubmitCrossBranchTransferByStaff(t *testing.T) {
	f := newTimetableFixture(t, studentWorld())
	req := transferRequest("class-a", "class-remote", 7)
	req.StudentID = "stu-1"

	created, err := f.students.Submit(context.Background(), req, staffClaims())
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusPending, created.Status)
	assert.Equal(t, models.TransferTierStaffApproval, *created.TransferTier)
}

func TestStudentApproveTransferMovesEnrollment(t *testing.T) {
	w := studentWorld()
	f := newTimetableFixture(t, w)
	ctx := context.Background()
	created, err := f.students.Submit(ctx, transferRequest("class-a", "class-b", 7), studentClaims("user-stu-1"))
	require.NoError(t, err)

	f.expectCommit()
	approved, err := f.students.Approve(ctx, created.ID, dto.ApproveStudentRequest{}, staffClaims())
	require.NoError(t, err)
	require.NoError(t, f.mock.ExpectationsWereMet())
	assert.Equal(t, models.RequestStatusApproved, approved.Status)
	assert.Equal(t, "b-6", *approved.TargetSessionID)

	var closed, opened *models.Enrollment
	for _, e := range w.enrollments {
		switch {
		case e.ClassID == "class-a":
			closed = e
		case e.ClassID == "class-b" && e.StudentID == "stu-1":
			opened = e
		}
	}
	require.NotNil(t, closed)
	require.NotNil(t, opened)
	assert.Equal(t, models.EnrollmentStatusTransferred, closed.Status)
	assert.Equal(t, "a-6", *closed.LeftSessionID)
	assert.Equal(t, models.EnrollmentStatusEnrolled, opened.Status)
	assert.Equal(t, "b-6", *opened.JoinSessionID)

	assert.NotContains(t, w.studentSessions, seatKey("stu-1", "a-6"))
	assert.Contains(t, w.studentSessions, seatKey("stu-1", "a-5"), "sessions before the effective date stay")
	assert.Contains(t, w.studentSessions, seatKey("stu-1", "b-6"))
}

func TestStudentApproveTransferRevalidatesCapacity(t *testing.T) {
	w := studentWorld()
	f := newTimetableFixture(t, w)
	ctx := context.Background()
	created, err := f.students.Submit(ctx, transferRequest("class-a", "class-b", 7), studentClaims("user-stu-1"))
	require.NoError(t, err)

	w.classes["class-b"].MaxCapacity = 1
	w.enroll("stu-2", "class-b")

	f.expectRollback()
	_, err = f.students.Approve(ctx, created.ID, dto.ApproveStudentRequest{}, staffClaims())
	require.Error(t, err)
	require.NoError(t, f.mock.ExpectationsWereMet())
	assert.True(t, appErrors.HasCode(err, appErrors.CodeInvalidTransfer))
	assert.Equal(t, models.RequestStatusPending, w.studentRequests[created.ID].Status)

	f.expectCommit()
	approved, err := f.students.Approve(ctx, created.ID, dto.ApproveStudentRequest{
		AllowCapacityOverride: true,
		OverrideReason:        "Seat freed by a late withdrawal today",
	}, staffClaims())
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusApproved, approved.Status)
}

func TestStudentListScopesToOwnRequests(t *testing.T) {
	w := studentWorld()
	w.enroll("stu-2", "class-a")
	w.seat("stu-2", "a-5", models.AttendancePlanned)
	f := newTimetableFixture(t, w)
	ctx := context.Background()

	_, err := f.students.Submit(ctx, absenceRequest("a-5"), studentClaims("user-stu-1"))
	require.NoError(t, err)
	_, err = f.students.Submit(ctx, absenceRequest("a-5"), studentClaims("user-stu-2"))
	require.NoError(t, err)

	own, err := f.students.List(ctx, dto.RequestListQuery{}, studentClaims("user-stu-1"))
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, "stu-1", own[0].StudentID)

	all, err := f.students.List(ctx, dto.RequestListQuery{}, staffClaims())
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = f.students.Get(ctx, own[0].ID, studentClaims("user-stu-2"))
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrForbidden.Code))
}

func TestStudentMakeupApproveRechecksAbsence(t *testing.T) {
	w := studentWorld()
	w.studentSessions[seatKey("stu-1", "a-5")].AttendanceStatus = models.AttendanceAbsent
	f := newTimetableFixture(t, w)
	ctx := context.Background()

	created, err := f.students.Submit(ctx, makeupRequest("a-5", "b-5"), studentClaims("user-stu-1"))
	require.NoError(t, err)

	// attendance corrected to PRESENT before staff decide
	w.studentSessions[seatKey("stu-1", "a-5")].AttendanceStatus = models.AttendancePresent

	f.expectRollback()
	_, err = f.students.Approve(ctx, created.ID, dto.ApproveStudentRequest{}, staffClaims())
	require.Error(t, err)
	require.NoError(t, f.mock.ExpectationsWereMet())
	assert.Contains(t, err.Error(), "Can only makeup absent sessions")
	assert.Equal(t, models.RequestStatusPending, w.studentRequests[created.ID].Status)
	assert.NotContains(t, w.studentSessions, seatKey("stu-1", "b-5"))
}

func TestStudentApproveTransferOverrideRecomputesTierAndGap(t *testing.T) {
	w := studentWorld()
	done := w.addSession("r-1", "class-remote", "cs-1", "slot-pm", fixtureDay(-10))
	done.Status = models.SessionStatusDone
	done.CourseSequence = 1
	f := newTimetableFixture(t, w)
	ctx := context.Background()

	created, err := f.students.Submit(ctx, transferRequest("class-a", "class-b", 7), studentClaims("user-stu-1"))
	require.NoError(t, err)
	require.Equal(t, models.TransferTierSelfService, *created.TransferTier)

	f.expectCommit()
	approved, err := f.students.Approve(ctx, created.ID, dto.ApproveStudentRequest{TargetClassID: "class-remote"}, staffClaims())
	require.NoError(t, err)
	require.NoError(t, f.mock.ExpectationsWereMet())

	assert.Equal(t, "class-remote", *approved.TargetClassID)
	assert.Equal(t, "r-6", *approved.TargetSessionID)
	require.NotNil(t, approved.TransferTier)
	assert.Equal(t, models.TransferTierStaffApproval, *approved.TransferTier)
	require.NotNil(t, approved.Note)
	assert.Contains(t, *approved.Note, "Content gap MINOR against ENG-R: 1 missed sessions")

	stored := w.studentRequests[created.ID]
	assert.Equal(t, models.TransferTierStaffApproval, *stored.TransferTier)
	assert.Equal(t, *approved.Note, *stored.Note)
}
