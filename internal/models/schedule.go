package models

import "time"

// SessionStatus tracks a concrete class meeting.
type SessionStatus string

const (
	SessionStatusPlanned   SessionStatus = "PLANNED"
	SessionStatusDone      SessionStatus = "DONE"
	SessionStatusCancelled SessionStatus = "CANCELLED"
)

// Session is one scheduled occurrence of a course session for a class.
type Session struct {
	ID              string        `db:"id" json:"id"`
	ClassID         string        `db:"class_id" json:"classId"`
	CourseSessionID string        `db:"course_session_id" json:"courseSessionId"`
	TimeSlotID      string        `db:"time_slot_id" json:"timeSlotId"`
	Date            time.Time     `db:"date" json:"date"`
	Status          SessionStatus `db:"status" json:"status"`
	CreatedAt       time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updatedAt"`
}

// SessionDetail is the read projection assembled for workflow checks.
type SessionDetail struct {
	Session
	CourseID         string   `db:"course_id" json:"courseId"`
	CourseCode       string   `db:"course_code" json:"courseCode"`
	CourseSequence   int      `db:"course_sequence" json:"courseSequence"`
	CourseTopic      string   `db:"course_topic" json:"courseTopic"`
	BranchID         string   `db:"branch_id" json:"branchId"`
	ClassMaxCapacity int      `db:"class_max_capacity" json:"classMaxCapacity"`
	Modality         Modality `db:"modality" json:"modality"`
	StartTime        string   `db:"start_time" json:"startTime"`
	EndTime          string   `db:"end_time" json:"endTime"`
}

// TeachingSlotStatus is the teacher assignment lifecycle, independent of the session's.
type TeachingSlotStatus string

const (
	TeachingSlotScheduled   TeachingSlotStatus = "SCHEDULED"
	TeachingSlotOnLeave     TeachingSlotStatus = "ON_LEAVE"
	TeachingSlotSubstituted TeachingSlotStatus = "SUBSTITUTED"
	TeachingSlotCancelled   TeachingSlotStatus = "CANCELLED"
)

// Occupies reports whether the teacher is actually expected in the room.
func (s TeachingSlotStatus) Occupies() bool {
	return s == TeachingSlotScheduled || s == TeachingSlotSubstituted
}

// TeachingSlot assigns one teacher to one session.
type TeachingSlot struct {
	SessionID string             `db:"session_id" json:"sessionId"`
	TeacherID string             `db:"teacher_id" json:"teacherId"`
	Status    TeachingSlotStatus `db:"status" json:"status"`
}

// SessionResource binds a room or virtual link to a session.
type SessionResource struct {
	ID         string `db:"id" json:"id"`
	SessionID  string `db:"session_id" json:"sessionId"`
	ResourceID string `db:"resource_id" json:"resourceId"`
}

// ResourceType distinguishes physical rooms from virtual links.
type ResourceType string

const (
	ResourceTypeRoom    ResourceType = "ROOM"
	ResourceTypeVirtual ResourceType = "VIRTUAL"
)

// Resource is a bookable room or meeting link.
type Resource struct {
	ID       string       `db:"id" json:"id"`
	BranchID string       `db:"branch_id" json:"branchId"`
	Code     string       `db:"code" json:"code"`
	Name     string       `db:"name" json:"name"`
	Type     ResourceType `db:"resource_type" json:"resourceType"`
	Capacity int          `db:"capacity" json:"capacity"`
}

// TimeSlot is a branch-level teaching period template.
type TimeSlot struct {
	ID        string `db:"id" json:"id"`
	BranchID  string `db:"branch_id" json:"branchId"`
	Name      string `db:"name" json:"name"`
	StartTime string `db:"start_time" json:"startTime"`
	EndTime   string `db:"end_time" json:"endTime"`
}

// CourseSessionProgress is one curriculum unit a class has already covered.
type CourseSessionProgress struct {
	SessionID       string        `db:"session_id" json:"sessionId"`
	CourseSessionID string        `db:"course_session_id" json:"courseSessionId"`
	Sequence        int           `db:"sequence" json:"sequence"`
	Topic           string        `db:"topic" json:"topic"`
	Date            time.Time     `db:"date" json:"date"`
	Status          SessionStatus `db:"status" json:"status"`
}

// AttendanceStatus is a student's attendance mark for one session.
type AttendanceStatus string

const (
	AttendancePlanned AttendanceStatus = "PLANNED"
	AttendancePresent AttendanceStatus = "PRESENT"
	AttendanceAbsent  AttendanceStatus = "ABSENT"
)

// StudentSession links a student to a session they are expected to attend.
type StudentSession struct {
	StudentID         string           `db:"student_id" json:"studentId"`
	SessionID         string           `db:"session_id" json:"sessionId"`
	AttendanceStatus  AttendanceStatus `db:"attendance_status" json:"attendanceStatus"`
	IsMakeup          bool             `db:"is_makeup" json:"isMakeup"`
	OriginalSessionID *string          `db:"original_session_id" json:"originalSessionId,omitempty"`
	Note              *string          `db:"note" json:"note,omitempty"`
}

// Booking is an occupancy fact used by the conflict detector.
type Booking struct {
	SessionID  string    `db:"session_id" json:"sessionId"`
	ClassID    string    `db:"class_id" json:"classId"`
	TeacherID  string    `db:"teacher_id" json:"teacherId,omitempty"`
	ResourceID string    `db:"resource_id" json:"resourceId,omitempty"`
	TimeSlotID string    `db:"time_slot_id" json:"timeSlotId"`
	Date       time.Time `db:"date" json:"date"`
	StartTime  string    `db:"start_time" json:"startTime"`
	EndTime    string    `db:"end_time" json:"endTime"`
}

// ScheduleConflict describes an existing booking that collides with a candidate.
type ScheduleConflict struct {
	SessionID  string    `json:"sessionId"`
	ClassID    string    `json:"classId"`
	TeacherID  string    `json:"teacherId,omitempty"`
	ResourceID string    `json:"resourceId,omitempty"`
	TimeSlotID string    `json:"timeSlotId"`
	Date       time.Time `json:"date"`
	Dimension  string    `json:"dimension"`
}

// ScheduleConflictError is returned when a candidate collides with an existing booking.
type ScheduleConflictError struct {
	Type     string           `json:"type"`
	Message  string           `json:"message"`
	Conflict ScheduleConflict `json:"conflict"`
}

// Error implements the error interface for conflict errors.
func (e *ScheduleConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

// BookingFilter narrows occupancy lookups for one calendar date.
type BookingFilter struct {
	Date       time.Time
	TeacherID  string
	ResourceID string
	ClassID    string
	BranchID   string
}
