package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tc-schedule-api/internal/models"
	"github.com/noah-isme/tc-schedule-api/internal/repository"
)

// fixtureNow is a Monday morning; sessions in fixtures are placed relative to it.
var fixtureNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func fixtureDay(offset int) time.Time {
	return dateOnly(fixtureNow).AddDate(0, 0, offset)
}

func fixtureClock() time.Time { return fixtureNow }

// timetableWorld is an in-memory timetable shared by the store fakes below.
type timetableWorld struct {
	sessions          map[string]*models.SessionDetail
	teachingSlots     map[string][]models.TeachingSlot
	bindings          map[string]string
	studentSessions   map[string]*models.StudentSession
	enrollments       []*models.Enrollment
	classes           map[string]*models.Class
	timeSlots         map[string]models.TimeSlot
	resources         map[string]models.Resource
	students          map[string]*models.Student
	teachers          map[string]*models.Teacher
	studentRequests   map[string]*models.StudentRequest
	teacherRequests   map[string]*models.TeacherRequest
	approvedTransfers map[string]int
	audits            []models.AuditLog
	lockedKeys        []string
	seq               int
}

func newTimetableWorld() *timetableWorld {
	return &timetableWorld{
		sessions:          map[string]*models.SessionDetail{},
		teachingSlots:     map[string][]models.TeachingSlot{},
		bindings:          map[string]string{},
		studentSessions:   map[string]*models.StudentSession{},
		classes:           map[string]*models.Class{},
		timeSlots:         map[string]models.TimeSlot{},
		resources:         map[string]models.Resource{},
		students:          map[string]*models.Student{},
		teachers:          map[string]*models.Teacher{},
		studentRequests:   map[string]*models.StudentRequest{},
		teacherRequests:   map[string]*models.TeacherRequest{},
		approvedTransfers: map[string]int{},
	}
}

func (w *timetableWorld) nextID(prefix string) string {
	w.seq++
	return fmt.Sprintf("%s-%d", prefix, w.seq)
}

func (w *timetableWorld) addClass(c models.Class) *models.Class {
	if c.Status == "" {
		c.Status = models.ClassStatusOngoing
	}
	if c.Modality == "" {
		c.Modality = models.ModalityOffline
	}
	if c.BranchID == "" {
		c.BranchID = "branch-1"
	}
	w.classes[c.ID] = &c
	return &c
}

func (w *timetableWorld) addTimeSlot(id, start, end string) models.TimeSlot {
	slot := models.TimeSlot{ID: id, BranchID: "branch-1", Name: id, StartTime: start, EndTime: end}
	w.timeSlots[id] = slot
	return slot
}

func (w *timetableWorld) addResource(r models.Resource) models.Resource {
	if r.BranchID == "" {
		r.BranchID = "branch-1"
	}
	if r.Type == "" {
		r.Type = models.ResourceTypeRoom
	}
	w.resources[r.ID] = r
	return r
}

// addSession places a PLANNED session for classID. courseSessionID doubles as its sequence label.
func (w *timetableWorld) addSession(id, classID, courseSessionID, timeSlotID string, date time.Time) *models.SessionDetail {
	class := w.classes[classID]
	slot := w.timeSlots[timeSlotID]
	detail := &models.SessionDetail{
		Session: models.Session{
			ID:              id,
			ClassID:         classID,
			CourseSessionID: courseSessionID,
			TimeSlotID:      timeSlotID,
			Date:            date,
			Status:          models.SessionStatusPlanned,
		},
		CourseID:         class.CourseID,
		CourseCode:       "ENG",
		BranchID:         class.BranchID,
		ClassMaxCapacity: class.MaxCapacity,
		Modality:         class.Modality,
		StartTime:        slot.StartTime,
		EndTime:          slot.EndTime,
	}
	w.sessions[id] = detail
	return detail
}

func (w *timetableWorld) assignTeacher(sessionID, teacherID string) {
	w.teachingSlots[sessionID] = append(w.teachingSlots[sessionID], models.TeachingSlot{
		SessionID: sessionID, TeacherID: teacherID, Status: models.TeachingSlotScheduled,
	})
}

func (w *timetableWorld) addTeacher(id, userID string, skills ...string) *models.Teacher {
	t := &models.Teacher{ID: id, UserID: userID, FullName: "Teacher " + id, BranchID: "branch-1", Skills: skills, Active: true}
	w.teachers[id] = t
	return t
}

func (w *timetableWorld) addStudent(id, userID string) *models.Student {
	s := &models.Student{ID: id, UserID: userID, FullName: "Student " + id, Active: true}
	w.students[id] = s
	return s
}

func (w *timetableWorld) enroll(studentID, classID string) *models.Enrollment {
	e := &models.Enrollment{
		ID:         w.nextID("enr"),
		StudentID:  studentID,
		ClassID:    classID,
		Status:     models.EnrollmentStatusEnrolled,
		EnrolledAt: fixtureNow.AddDate(0, -1, 0),
	}
	w.enrollments = append(w.enrollments, e)
	return e
}

func (w *timetableWorld) seat(studentID, sessionID string, status models.AttendanceStatus) {
	w.studentSessions[seatKey(studentID, sessionID)] = &models.StudentSession{
		StudentID: studentID, SessionID: sessionID, AttendanceStatus: status,
	}
}

// fillSession seats n anonymous students.
func (w *timetableWorld) fillSession(sessionID string, n int) {
	for i := 0; i < n; i++ {
		w.seat(fmt.Sprintf("filler-%s-%d", sessionID, i), sessionID, models.AttendancePlanned)
	}
}

func seatKey(studentID, sessionID string) string {
	return studentID + "|" + sessionID
}

func (w *timetableWorld) countSeats(sessionID string) int {
	count := 0
	for _, row := range w.studentSessions {
		if row.SessionID == sessionID {
			count++
		}
	}
	return count
}

type sessionFake struct{ w *timetableWorld }

func (f sessionFake) FindDetail(ctx context.Context, exec sqlx.ExtContext, id string) (*models.SessionDetail, error) {
	d, ok := f.w.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *d
	return &cp, nil
}

func (f sessionFake) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Session, error) {
	d, ok := f.w.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := d.Session
	return &cp, nil
}

func (f sessionFake) FindPlannedByClassAndDate(ctx context.Context, exec sqlx.ExtContext, classID string, date time.Time) (*models.Session, error) {
	for _, d := range f.w.sessions {
		if d.ClassID == classID && d.Status == models.SessionStatusPlanned && sameDay(d.Date, date) {
			cp := d.Session
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f sessionFake) ListProgress(ctx context.Context, classID string, asOf time.Time) ([]models.CourseSessionProgress, error) {
	out := make([]models.CourseSessionProgress, 0)
	for _, d := range f.w.sessions {
		if d.ClassID != classID || d.Status == models.SessionStatusPlanned || d.Date.After(asOf) {
			continue
		}
		out = append(out, models.CourseSessionProgress{
			SessionID:       d.ID,
			CourseSessionID: d.CourseSessionID,
			Sequence:        d.CourseSequence,
			Topic:           d.CourseTopic,
			Date:            d.Date,
			Status:          d.Status,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (f sessionFake) Create(ctx context.Context, exec sqlx.ExtContext, session *models.Session) error {
	if session.ID == "" {
		session.ID = f.w.nextID("session")
	}
	base, ok := f.w.sessions[findAnySessionOfClass(f.w, session.ClassID)]
	detail := &models.SessionDetail{Session: *session}
	if ok {
		detail.CourseID = base.CourseID
		detail.CourseCode = base.CourseCode
		detail.BranchID = base.BranchID
		detail.ClassMaxCapacity = base.ClassMaxCapacity
		detail.Modality = base.Modality
	}
	slot := f.w.timeSlots[session.TimeSlotID]
	detail.StartTime = slot.StartTime
	detail.EndTime = slot.EndTime
	f.w.sessions[session.ID] = detail
	return nil
}

func findAnySessionOfClass(w *timetableWorld, classID string) string {
	for id, d := range w.sessions {
		if d.ClassID == classID {
			return id
		}
	}
	return ""
}

func (f sessionFake) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.SessionStatus) error {
	d, ok := f.w.sessions[id]
	if !ok {
		return sql.ErrNoRows
	}
	d.Status = status
	return nil
}

func (f sessionFake) LockBookingKeys(ctx context.Context, exec sqlx.ExtContext, keys []string) error {
	f.w.lockedKeys = append(f.w.lockedKeys, keys...)
	return nil
}

// ListBookings mirrors the SQL join: one row per occupying teacher, resource side optional.
func (f sessionFake) ListBookings(ctx context.Context, exec sqlx.ExtContext, filter models.BookingFilter) ([]models.Booking, error) {
	out := make([]models.Booking, 0)
	for _, d := range f.w.sessions {
		if d.Status == models.SessionStatusCancelled || !sameDay(d.Date, filter.Date) {
			continue
		}
		if filter.ClassID != "" && d.ClassID != filter.ClassID {
			continue
		}
		if filter.BranchID != "" && d.BranchID != filter.BranchID {
			continue
		}
		resourceID := f.w.bindings[d.ID]
		if filter.ResourceID != "" && resourceID != filter.ResourceID {
			continue
		}
		teachers := occupyingTeachers(f.w.teachingSlots[d.ID])
		if len(teachers) == 0 {
			teachers = []string{""}
		}
		for _, teacherID := range teachers {
			if filter.TeacherID != "" && teacherID != filter.TeacherID {
				continue
			}
			out = append(out, models.Booking{
				SessionID:  d.ID,
				ClassID:    d.ClassID,
				TeacherID:  teacherID,
				ResourceID: resourceID,
				TimeSlotID: d.TimeSlotID,
				Date:       d.Date,
				StartTime:  d.StartTime,
				EndTime:    d.EndTime,
			})
		}
	}
	return out, nil
}

type teachingSlotFake struct{ w *timetableWorld }

func (f teachingSlotFake) ListBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string) ([]models.TeachingSlot, error) {
	return append([]models.TeachingSlot(nil), f.w.teachingSlots[sessionID]...), nil
}

func (f teachingSlotFake) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, sessionID, teacherID string, status models.TeachingSlotStatus) error {
	slots := f.w.teachingSlots[sessionID]
	for i := range slots {
		if slots[i].TeacherID == teacherID {
			slots[i].Status = status
			return nil
		}
	}
	return sql.ErrNoRows
}

func (f teachingSlotFake) Upsert(ctx context.Context, exec sqlx.ExtContext, slot models.TeachingSlot) error {
	slots := f.w.teachingSlots[slot.SessionID]
	for i := range slots {
		if slots[i].TeacherID == slot.TeacherID {
			slots[i].Status = slot.Status
			return nil
		}
	}
	f.w.teachingSlots[slot.SessionID] = append(slots, slot)
	return nil
}

func (f teachingSlotFake) MoveToSession(ctx context.Context, exec sqlx.ExtContext, fromSessionID, toSessionID string) error {
	moved := f.w.teachingSlots[fromSessionID]
	for i := range moved {
		moved[i].SessionID = toSessionID
	}
	f.w.teachingSlots[toSessionID] = append(f.w.teachingSlots[toSessionID], moved...)
	delete(f.w.teachingSlots, fromSessionID)
	return nil
}

type sessionResourceFake struct{ w *timetableWorld }

func (f sessionResourceFake) FindBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string) (*models.SessionResource, error) {
	resourceID, ok := f.w.bindings[sessionID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.SessionResource{ID: "binding-" + sessionID, SessionID: sessionID, ResourceID: resourceID}, nil
}

func (f sessionResourceFake) ReplaceForSession(ctx context.Context, exec sqlx.ExtContext, sessionID, resourceID string) error {
	f.w.bindings[sessionID] = resourceID
	return nil
}

func (f sessionResourceFake) DeleteBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string) error {
	delete(f.w.bindings, sessionID)
	return nil
}

type studentSessionFake struct{ w *timetableWorld }

func (f studentSessionFake) Find(ctx context.Context, exec sqlx.ExtContext, studentID, sessionID string) (*models.StudentSession, error) {
	row, ok := f.w.studentSessions[seatKey(studentID, sessionID)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *row
	return &cp, nil
}

func (f studentSessionFake) Lock(ctx context.Context, exec sqlx.ExtContext, studentID, sessionID string) (*models.StudentSession, error) {
	return f.Find(ctx, exec, studentID, sessionID)
}

func (f studentSessionFake) CountBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string) (int, error) {
	return f.w.countSeats(sessionID), nil
}

func (f studentSessionFake) MarkAttendance(ctx context.Context, exec sqlx.ExtContext, studentID, sessionID string, status models.AttendanceStatus, note string) error {
	row, ok := f.w.studentSessions[seatKey(studentID, sessionID)]
	if !ok {
		return sql.ErrNoRows
	}
	row.AttendanceStatus = status
	row.Note = &note
	return nil
}

func (f studentSessionFake) Create(ctx context.Context, exec sqlx.ExtContext, row *models.StudentSession) error {
	key := seatKey(row.StudentID, row.SessionID)
	if _, exists := f.w.studentSessions[key]; exists {
		return fmt.Errorf("student session %s already exists", key)
	}
	cp := *row
	f.w.studentSessions[key] = &cp
	return nil
}

func (f studentSessionFake) MoveToSession(ctx context.Context, exec sqlx.ExtContext, fromSessionID, toSessionID string) error {
	for key, row := range f.w.studentSessions {
		if row.SessionID != fromSessionID {
			continue
		}
		delete(f.w.studentSessions, key)
		row.SessionID = toSessionID
		f.w.studentSessions[seatKey(row.StudentID, toSessionID)] = row
	}
	return nil
}

func (f studentSessionFake) DeletePlannedFrom(ctx context.Context, exec sqlx.ExtContext, studentID, classID string, from time.Time) (int64, error) {
	var removed int64
	for key, row := range f.w.studentSessions {
		session, ok := f.w.sessions[row.SessionID]
		if row.StudentID != studentID || !ok || session.ClassID != classID || row.IsMakeup {
			continue
		}
		if session.Status == models.SessionStatusPlanned && !session.Date.Before(dateOnly(from)) {
			delete(f.w.studentSessions, key)
			removed++
		}
	}
	return removed, nil
}

func (f studentSessionFake) CreateForClassFrom(ctx context.Context, exec sqlx.ExtContext, studentID, classID string, from time.Time) (int64, error) {
	var added int64
	for _, session := range f.w.sessions {
		if session.ClassID != classID || session.Status != models.SessionStatusPlanned || session.Date.Before(dateOnly(from)) {
			continue
		}
		key := seatKey(studentID, session.ID)
		if _, exists := f.w.studentSessions[key]; exists {
			continue
		}
		f.w.studentSessions[key] = &models.StudentSession{StudentID: studentID, SessionID: session.ID, AttendanceStatus: models.AttendancePlanned}
		added++
	}
	return added, nil
}

type enrollmentFake struct{ w *timetableWorld }

func (f enrollmentFake) ListActiveByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error) {
	out := make([]models.EnrollmentDetail, 0)
	for _, e := range f.w.enrollments {
		if e.StudentID != studentID || e.Status != models.EnrollmentStatusEnrolled {
			continue
		}
		class := f.w.classes[e.ClassID]
		out = append(out, models.EnrollmentDetail{
			Enrollment:  *e,
			ClassCode:   class.Code,
			ClassName:   class.Name,
			CourseID:    class.CourseID,
			BranchID:    class.BranchID,
			Modality:    class.Modality,
			ClassStatus: class.Status,
		})
	}
	return out, nil
}

func (f enrollmentFake) FindActive(ctx context.Context, exec sqlx.ExtContext, studentID, classID string) (*models.Enrollment, error) {
	for _, e := range f.w.enrollments {
		if e.StudentID == studentID && e.ClassID == classID && e.Status == models.EnrollmentStatusEnrolled {
			cp := *e
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f enrollmentFake) CountActiveByClass(ctx context.Context, exec sqlx.ExtContext, classID string) (int, error) {
	count := 0
	for _, e := range f.w.enrollments {
		if e.ClassID == classID && e.Status == models.EnrollmentStatusEnrolled {
			count++
		}
	}
	return count, nil
}

func (f enrollmentFake) Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = f.w.nextID("enr")
	}
	cp := *enrollment
	f.w.enrollments = append(f.w.enrollments, &cp)
	return nil
}

func (f enrollmentFake) Close(ctx context.Context, exec sqlx.ExtContext, id string, status models.EnrollmentStatus, leftSessionID *string, leftAt time.Time) error {
	for _, e := range f.w.enrollments {
		if e.ID == id {
			e.Status = status
			e.LeftSessionID = leftSessionID
			e.LeftAt = &leftAt
			return nil
		}
	}
	return sql.ErrNoRows
}

type classFake struct{ w *timetableWorld }

func (f classFake) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Class, error) {
	c, ok := f.w.classes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *c
	return &cp, nil
}

func (f classFake) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Class, error) {
	return f.FindByID(ctx, exec, id)
}

func (f classFake) ListTransferCandidates(ctx context.Context, courseID, excludeClassID string) ([]models.ClassOccupancy, error) {
	out := make([]models.ClassOccupancy, 0)
	for _, c := range f.w.classes {
		if c.CourseID != courseID || c.ID == excludeClassID || !c.Status.AcceptsTransfers() {
			continue
		}
		count, _ := enrollmentFake(f).CountActiveByClass(ctx, nil, c.ID)
		out = append(out, models.ClassOccupancy{Class: *c, EnrolledCount: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

type catalogFake struct{ w *timetableWorld }

func (f catalogFake) FindTimeSlot(ctx context.Context, id string) (*models.TimeSlot, error) {
	slot, ok := f.w.timeSlots[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &slot, nil
}

func (f catalogFake) ListTimeSlots(ctx context.Context, branchID string) ([]models.TimeSlot, error) {
	out := make([]models.TimeSlot, 0, len(f.w.timeSlots))
	for _, slot := range f.w.timeSlots {
		if slot.BranchID == branchID {
			out = append(out, slot)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}

func (f catalogFake) FindResource(ctx context.Context, id string) (*models.Resource, error) {
	r, ok := f.w.resources[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &r, nil
}

func (f catalogFake) ListResources(ctx context.Context, branchID string, types []models.ResourceType) ([]models.Resource, error) {
	out := make([]models.Resource, 0)
	for _, r := range f.w.resources {
		if r.BranchID != branchID {
			continue
		}
		for _, t := range types {
			if r.Type == t {
				out = append(out, r)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

type studentDirectoryFake struct{ w *timetableWorld }

func (f studentDirectoryFake) FindByID(ctx context.Context, id string) (*models.Student, error) {
	s, ok := f.w.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return s, nil
}

func (f studentDirectoryFake) FindByUserID(ctx context.Context, userID string) (*models.Student, error) {
	for _, s := range f.w.students {
		if s.UserID == userID {
			return s, nil
		}
	}
	return nil, sql.ErrNoRows
}

type teacherDirectoryFake struct{ w *timetableWorld }

func (f teacherDirectoryFake) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	t, ok := f.w.teachers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return t, nil
}

func (f teacherDirectoryFake) FindByUserID(ctx context.Context, userID string) (*models.Teacher, error) {
	for _, t := range f.w.teachers {
		if t.UserID == userID {
			return t, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f teacherDirectoryFake) ListActive(ctx context.Context, excludeIDs []string) ([]models.Teacher, error) {
	skip := map[string]struct{}{}
	for _, id := range excludeIDs {
		skip[id] = struct{}{}
	}
	out := make([]models.Teacher, 0)
	for _, t := range f.w.teachers {
		if _, excluded := skip[t.ID]; excluded || !t.Active {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type transferCounterFake struct{ w *timetableWorld }

func (f transferCounterFake) CountApprovedTransfers(ctx context.Context, exec sqlx.ExtContext, studentID, courseID string) (int, error) {
	return f.w.approvedTransfers[studentID+"|"+courseID], nil
}

type studentRequestFake struct {
	w         *timetableWorld
	createErr error
}

func (f *studentRequestFake) Create(ctx context.Context, exec sqlx.ExtContext, req *models.StudentRequest) error {
	if f.createErr != nil {
		return f.createErr
	}
	if req.ID == "" {
		req.ID = f.w.nextID("sreq")
	}
	cp := *req
	f.w.studentRequests[req.ID] = &cp
	return nil
}

func (f *studentRequestFake) FindByID(ctx context.Context, id string) (*models.StudentRequest, error) {
	r, ok := f.w.studentRequests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *r
	return &cp, nil
}

func (f *studentRequestFake) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.StudentRequest, error) {
	return f.FindByID(ctx, id)
}

func (f *studentRequestFake) List(ctx context.Context, filter models.StudentRequestFilter) ([]models.StudentRequest, error) {
	out := make([]models.StudentRequest, 0)
	for _, r := range f.w.studentRequests {
		if filter.StudentID != "" && r.StudentID != filter.StudentID {
			continue
		}
		if filter.Type != "" && r.Type != filter.Type {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *studentRequestFake) ExistsOpen(ctx context.Context, key models.OpenStudentRequestKey) (bool, error) {
	for _, r := range f.w.studentRequests {
		if r.StudentID != key.StudentID || r.Type != key.Type || !r.Status.Open() {
			continue
		}
		if key.CurrentClassID != "" && derefString(r.CurrentClassID) == key.CurrentClassID {
			return true, nil
		}
		if key.TargetSessionID != "" && derefString(r.TargetSessionID) == key.TargetSessionID {
			return true, nil
		}
	}
	return false, nil
}

func (f *studentRequestFake) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, params repository.UpdateStudentRequestStatusParams) error {
	r, ok := f.w.studentRequests[params.ID]
	if !ok || r.Status != params.From {
		return sql.ErrNoRows
	}
	r.Status = params.To
	if params.DecidedBy != nil {
		r.DecidedBy = params.DecidedBy
	}
	if params.DecidedAt != nil {
		r.DecidedAt = params.DecidedAt
	}
	if params.RejectionReason != nil {
		r.RejectionReason = params.RejectionReason
	}
	if params.Note != nil {
		r.Note = params.Note
	}
	if params.TargetSessionID != nil {
		r.TargetSessionID = params.TargetSessionID
	}
	if params.MakeupSessionID != nil {
		r.MakeupSessionID = params.MakeupSessionID
	}
	if params.TargetClassID != nil {
		r.TargetClassID = params.TargetClassID
	}
	if params.TransferTier != nil {
		r.TransferTier = params.TransferTier
	}
	return nil
}

type teacherRequestFake struct{ w *timetableWorld }

// openTeacherRequest mirrors uq_teacher_requests_open.
func openTeacherRequest(status models.RequestStatus) bool {
	return status == models.RequestStatusPending || status == models.RequestStatusWaitingConfirm
}

func (f teacherRequestFake) violatesOpenIndex(id, sessionID string, requestType models.TeacherRequestType, status models.RequestStatus) error {
	if !openTeacherRequest(status) {
		return nil
	}
	for _, r := range f.w.teacherRequests {
		if r.ID != id && r.SessionID == sessionID && r.Type == requestType && openTeacherRequest(r.Status) {
			return &pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint \"uq_teacher_requests_open\""}
		}
	}
	return nil
}

func (f teacherRequestFake) Create(ctx context.Context, exec sqlx.ExtContext, req *models.TeacherRequest) error {
	if req.ID == "" {
		req.ID = f.w.nextID("treq")
	}
	if err := f.violatesOpenIndex(req.ID, req.SessionID, req.Type, req.Status); err != nil {
		return err
	}
	cp := *req
	f.w.teacherRequests[req.ID] = &cp
	return nil
}

func (f teacherRequestFake) FindByID(ctx context.Context, id string) (*models.TeacherRequest, error) {
	r, ok := f.w.teacherRequests[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *r
	return &cp, nil
}

func (f teacherRequestFake) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TeacherRequest, error) {
	return f.FindByID(ctx, id)
}

func (f teacherRequestFake) List(ctx context.Context, filter models.TeacherRequestFilter) ([]models.TeacherRequest, error) {
	out := make([]models.TeacherRequest, 0)
	for _, r := range f.w.teacherRequests {
		if filter.InvolvingTeacherID != "" && r.TeacherID != filter.InvolvingTeacherID && derefString(r.ReplacementTeacherID) != filter.InvolvingTeacherID {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f teacherRequestFake) ExistsOpen(ctx context.Context, sessionID string, requestType models.TeacherRequestType) (bool, error) {
	for _, r := range f.w.teacherRequests {
		if r.SessionID == sessionID && r.Type == requestType && openTeacherRequest(r.Status) {
			return true, nil
		}
	}
	return false, nil
}

func (f teacherRequestFake) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, params repository.UpdateTeacherRequestStatusParams) error {
	r, ok := f.w.teacherRequests[params.ID]
	if !ok || r.Status != params.From {
		return sql.ErrNoRows
	}
	if err := f.violatesOpenIndex(r.ID, r.SessionID, r.Type, params.To); err != nil {
		return err
	}
	r.Status = params.To
	switch {
	case params.ClearReplacement:
		r.ReplacementTeacherID = nil
	case params.ReplacementTeacherID != nil:
		r.ReplacementTeacherID = params.ReplacementTeacherID
	}
	if params.NewResourceID != nil {
		r.NewResourceID = params.NewResourceID
	}
	if params.NewSessionID != nil {
		r.NewSessionID = params.NewSessionID
	}
	if params.Note != nil {
		r.Note = params.Note
	}
	if params.RejectionReason != nil {
		r.RejectionReason = params.RejectionReason
	}
	if params.DecidedBy != nil {
		r.DecidedBy = params.DecidedBy
	}
	if params.DecidedAt != nil {
		r.DecidedAt = params.DecidedAt
	}
	return nil
}

type auditFake struct{ w *timetableWorld }

func (f auditFake) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	f.w.audits = append(f.w.audits, *log)
	return nil
}

// sqlmockTx hands out real *sqlx.Tx values backed by sqlmock; the fakes ignore them.
type sqlmockTx struct {
	db *sqlx.DB
}

func (p sqlmockTx) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return p.db.BeginTxx(ctx, opts)
}

func newSQLMockTx(t *testing.T) (sqlmockTx, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlmockTx{db: sqlx.NewDb(db, "sqlmock")}, mock
}

// timetableFixture wires every service over one world.
type timetableFixture struct {
	w         *timetableWorld
	mock      sqlmock.Sqlmock
	metrics   *MetricsService
	conflicts *ConflictDetector
	executor  *TimetableExecutor
	students  *StudentRequestService
	teachers  *TeacherRequestService
	transfers *TransferService
	suggest   *ScheduleSuggestionService
	requests  *studentRequestFake
}

func newTimetableFixture(t *testing.T, w *timetableWorld) *timetableFixture {
	t.Helper()
	tx, mock := newSQLMockTx(t)
	metrics := NewMetricsService()
	guard := NewCapacityGuard(20, 1)
	policy := RequestPolicy{ReasonMinLength: 10, AbsenceLookbackDays: 7}
	sessions := sessionFake{w}
	conflicts := NewConflictDetector(sessions, metrics, nil)
	requests := &studentRequestFake{w: w}
	executor := NewTimetableExecutor(tx, TimetableExecutorDeps{
		Sessions:        sessions,
		TeachingSlots:   teachingSlotFake{w},
		Resources:       sessionResourceFake{w},
		StudentSessions: studentSessionFake{w},
		Enrollments:     enrollmentFake{w},
		Classes:         classFake{w},
		Catalog:         catalogFake{w},
		Transfers:       transferCounterFake{w},
		Conflicts:       conflicts,
		Metrics:         metrics,
	}, guard, 0, nil)

	return &timetableFixture{
		w:         w,
		mock:      mock,
		metrics:   metrics,
		conflicts: conflicts,
		executor:  executor,
		requests:  requests,
		students: NewStudentRequestService(StudentRequestDeps{
			Requests:        requests,
			Students:        studentDirectoryFake{w},
			Sessions:        sessions,
			StudentSessions: studentSessionFake{w},
			Enrollments:     enrollmentFake{w},
			Classes:         classFake{w},
			Transfers:       transferCounterFake{w},
		}, executor, guard, policy, nil,
			WithStudentRequestClock(fixtureClock),
			WithStudentRequestMetrics(metrics),
			WithStudentRequestAudit(auditFake{w}),
		),
		teachers: NewTeacherRequestService(TeacherRequestDeps{
			Requests:      teacherRequestFake{w},
			Teachers:      teacherDirectoryFake{w},
			Sessions:      sessions,
			TeachingSlots: teachingSlotFake{w},
			Resources:     sessionResourceFake{w},
			Catalog:       catalogFake{w},
			Conflicts:     conflicts,
		}, executor, policy, nil,
			WithTeacherRequestClock(fixtureClock),
			WithTeacherRequestMetrics(metrics),
			WithTeacherRequestAudit(auditFake{w}),
		),
		transfers: NewTransferService(studentDirectoryFake{w}, enrollmentFake{w}, classFake{w}, sessions, transferCounterFake{w}, guard, nil,
			WithTransferClock(fixtureClock),
		),
		suggest: NewScheduleSuggestionService(sessions, teachingSlotFake{w}, studentSessionFake{w}, catalogFake{w}, teacherDirectoryFake{w}, conflicts, nil, 0, nil),
	}
}

func (f *timetableFixture) expectCommit() {
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
}

func (f *timetableFixture) expectRollback() {
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
}

func staffClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "user-staff", Role: models.RoleAcademicAffair}
}

func studentClaims(userID string) *models.JWTClaims {
	return &models.JWTClaims{UserID: userID, Role: models.RoleStudent}
}

func teacherClaims(userID string) *models.JWTClaims {
	return &models.JWTClaims{UserID: userID, Role: models.RoleTeacher}
}
