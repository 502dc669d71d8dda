package models

import (
	"fmt"
	"time"
)

// TeacherRequestType enumerates teacher exception requests.
type TeacherRequestType string

const (
	TeacherRequestSwap           TeacherRequestType = "SWAP"
	TeacherRequestReschedule     TeacherRequestType = "RESCHEDULE"
	TeacherRequestModalityChange TeacherRequestType = "MODALITY_CHANGE"
)

// Valid reports whether the type is one of the supported values.
func (t TeacherRequestType) Valid() bool {
	switch t {
	case TeacherRequestSwap, TeacherRequestReschedule, TeacherRequestModalityChange:
		return true
	}
	return false
}

// SwapDeclinedMarker is appended to the note when a replacement declines.
func SwapDeclinedMarker(teacherID string) string {
	return fmt.Sprintf("DECLINED_BY_TEACHER_ID_%s", teacherID)
}

// TeacherRequest is the persisted envelope of a teacher request.
type TeacherRequest struct {
	ID                   string             `db:"id" json:"id"`
	TeacherID            string             `db:"teacher_id" json:"teacherId"`
	SessionID            string             `db:"session_id" json:"sessionId"`
	Type                 TeacherRequestType `db:"request_type" json:"requestType"`
	Status               RequestStatus      `db:"status" json:"status"`
	ReplacementTeacherID *string            `db:"replacement_teacher_id" json:"replacementTeacherId,omitempty"`
	NewDate              *time.Time         `db:"new_date" json:"newDate,omitempty"`
	NewTimeSlotID        *string            `db:"new_time_slot_id" json:"newTimeSlotId,omitempty"`
	NewResourceID        *string            `db:"new_resource_id" json:"newResourceId,omitempty"`
	NewSessionID         *string            `db:"new_session_id" json:"newSessionId,omitempty"`
	RequestReason        string             `db:"request_reason" json:"requestReason"`
	Note                 *string            `db:"note" json:"note,omitempty"`
	RejectionReason      *string            `db:"rejection_reason" json:"rejectionReason,omitempty"`
	SubmittedAt          time.Time          `db:"submitted_at" json:"submittedAt"`
	DecidedBy            *string            `db:"decided_by" json:"decidedBy,omitempty"`
	DecidedAt            *time.Time         `db:"decided_at" json:"decidedAt,omitempty"`
}

// TeacherRequestPayload is the type-specific part of a teacher request.
type TeacherRequestPayload interface {
	RequestType() TeacherRequestType
}

// SwapPayload hands the session to another teacher; the replacement may be chosen later by staff.
type SwapPayload struct {
	ReplacementTeacherID string
}

// ReschedulePayload moves the session to a new date and time slot.
type ReschedulePayload struct {
	NewDate       time.Time
	NewTimeSlotID string
	NewResourceID string
}

// ModalityPayload rebinds the session to another room or virtual link.
type ModalityPayload struct {
	NewResourceID string
}

func (SwapPayload) RequestType() TeacherRequestType       { return TeacherRequestSwap }
func (ReschedulePayload) RequestType() TeacherRequestType { return TeacherRequestReschedule }
func (ModalityPayload) RequestType() TeacherRequestType   { return TeacherRequestModalityChange }

// Payload rebuilds the tagged payload from the stored columns.
func (r *TeacherRequest) Payload() TeacherRequestPayload {
	switch r.Type {
	case TeacherRequestSwap:
		return SwapPayload{ReplacementTeacherID: deref(r.ReplacementTeacherID)}
	case TeacherRequestReschedule:
		p := ReschedulePayload{NewTimeSlotID: deref(r.NewTimeSlotID), NewResourceID: deref(r.NewResourceID)}
		if r.NewDate != nil {
			p.NewDate = *r.NewDate
		}
		return p
	case TeacherRequestModalityChange:
		return ModalityPayload{NewResourceID: deref(r.NewResourceID)}
	}
	return nil
}

// ApplyPayload copies payload references onto the envelope columns.
func (r *TeacherRequest) ApplyPayload(p TeacherRequestPayload) {
	r.Type = p.RequestType()
	switch v := p.(type) {
	case SwapPayload:
		r.ReplacementTeacherID = optional(v.ReplacementTeacherID)
	case ReschedulePayload:
		date := v.NewDate
		r.NewDate = &date
		r.NewTimeSlotID = optional(v.NewTimeSlotID)
		r.NewResourceID = optional(v.NewResourceID)
	case ModalityPayload:
		r.NewResourceID = optional(v.NewResourceID)
	}
}

// TeacherRequestFilter constrains listing queries.
type TeacherRequestFilter struct {
	TeacherID            string
	ReplacementTeacherID string
	// InvolvingTeacherID matches requests filed by or assigned to the teacher.
	InvolvingTeacherID string
	SessionID          string
	Type               TeacherRequestType
	Status             []RequestStatus
	Limit              int
	Offset             int
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
