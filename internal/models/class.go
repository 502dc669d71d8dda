package models

import "time"

// Modality is how a class is delivered.
type Modality string

const (
	ModalityOffline Modality = "OFFLINE"
	ModalityOnline  Modality = "ONLINE"
	ModalityHybrid  Modality = "HYBRID"
)

// ClassStatus tracks the class lifecycle.
type ClassStatus string

const (
	ClassStatusDraft     ClassStatus = "DRAFT"
	ClassStatusScheduled ClassStatus = "SCHEDULED"
	ClassStatusOngoing   ClassStatus = "ONGOING"
	ClassStatusCompleted ClassStatus = "COMPLETED"
	ClassStatusCancelled ClassStatus = "CANCELLED"
)

// AcceptsTransfers reports whether students may still move into the class.
func (s ClassStatus) AcceptsTransfers() bool {
	return s == ClassStatusScheduled || s == ClassStatusOngoing
}

// Class is a cohort of students following one course at one branch.
type Class struct {
	ID          string      `db:"id" json:"id"`
	Code        string      `db:"code" json:"code"`
	Name        string      `db:"name" json:"name"`
	CourseID    string      `db:"course_id" json:"courseId"`
	BranchID    string      `db:"branch_id" json:"branchId"`
	Modality    Modality    `db:"modality" json:"modality"`
	MaxCapacity int         `db:"max_capacity" json:"maxCapacity"`
	Status      ClassStatus `db:"status" json:"status"`
	StartDate   *time.Time  `db:"start_date" json:"startDate,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updatedAt"`
}

// ClassOccupancy pairs a class with its current enrolled headcount.
type ClassOccupancy struct {
	Class
	EnrolledCount int `db:"enrolled_count" json:"enrolledCount"`
}

// AvailableSeats never goes below zero.
func (c ClassOccupancy) AvailableSeats() int {
	if c.EnrolledCount >= c.MaxCapacity {
		return 0
	}
	return c.MaxCapacity - c.EnrolledCount
}
