package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusEnrolled    EnrollmentStatus = "ENROLLED"
	EnrollmentStatusTransferred EnrollmentStatus = "TRANSFERRED"
	EnrollmentStatusDropped     EnrollmentStatus = "DROPPED"
	EnrollmentStatusCompleted   EnrollmentStatus = "COMPLETED"
)

// Enrollment captures a student's membership in a class.
type Enrollment struct {
	ID            string           `db:"id" json:"id"`
	StudentID     string           `db:"student_id" json:"studentId"`
	ClassID       string           `db:"class_id" json:"classId"`
	Status        EnrollmentStatus `db:"status" json:"status"`
	EnrolledAt    time.Time        `db:"enrolled_at" json:"enrolledAt"`
	JoinSessionID *string          `db:"join_session_id" json:"joinSessionId,omitempty"`
	LeftSessionID *string          `db:"left_session_id" json:"leftSessionId,omitempty"`
	LeftAt        *time.Time       `db:"left_at" json:"leftAt,omitempty"`
}

// EnrollmentDetail enriches Enrollment with class facts used by transfer checks.
type EnrollmentDetail struct {
	Enrollment
	ClassCode   string      `db:"class_code" json:"classCode"`
	ClassName   string      `db:"class_name" json:"className"`
	CourseID    string      `db:"course_id" json:"courseId"`
	BranchID    string      `db:"branch_id" json:"branchId"`
	Modality    Modality    `db:"modality" json:"modality"`
	ClassStatus ClassStatus `db:"class_status" json:"classStatus"`
}
