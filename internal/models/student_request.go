package models

import "time"

// StudentRequestType enumerates student exception requests.
type StudentRequestType string

const (
	StudentRequestAbsence  StudentRequestType = "ABSENCE"
	StudentRequestMakeup   StudentRequestType = "MAKEUP"
	StudentRequestTransfer StudentRequestType = "TRANSFER"
)

// Valid reports whether the type is one of the supported values.
func (t StudentRequestType) Valid() bool {
	switch t {
	case StudentRequestAbsence, StudentRequestMakeup, StudentRequestTransfer:
		return true
	}
	return false
}

// TransferTier classifies who may drive a transfer.
type TransferTier string

const (
	TransferTierSelfService   TransferTier = "SELF_SERVICE"
	TransferTierStaffApproval TransferTier = "STAFF_APPROVAL"
)

// StudentRequest is the persisted envelope of a student request.
type StudentRequest struct {
	ID              string             `db:"id" json:"id"`
	StudentID       string             `db:"student_id" json:"studentId"`
	Type            StudentRequestType `db:"request_type" json:"requestType"`
	Status          RequestStatus      `db:"status" json:"status"`
	TargetSessionID *string            `db:"target_session_id" json:"targetSessionId,omitempty"`
	MakeupSessionID *string            `db:"makeup_session_id" json:"makeupSessionId,omitempty"`
	CurrentClassID  *string            `db:"current_class_id" json:"currentClassId,omitempty"`
	TargetClassID   *string            `db:"target_class_id" json:"targetClassId,omitempty"`
	EffectiveDate   *time.Time         `db:"effective_date" json:"effectiveDate,omitempty"`
	TransferTier    *TransferTier      `db:"transfer_tier" json:"transferTier,omitempty"`
	RequestReason   string             `db:"request_reason" json:"requestReason"`
	Note            *string            `db:"note" json:"note,omitempty"`
	RejectionReason *string            `db:"rejection_reason" json:"rejectionReason,omitempty"`
	SubmittedBy     string             `db:"submitted_by" json:"submittedBy"`
	SubmittedAt     time.Time          `db:"submitted_at" json:"submittedAt"`
	DecidedBy       *string            `db:"decided_by" json:"decidedBy,omitempty"`
	DecidedAt       *time.Time         `db:"decided_at" json:"decidedAt,omitempty"`
}

// StudentRequestPayload is the type-specific part of a student request.
type StudentRequestPayload interface {
	RequestType() StudentRequestType
}

// AbsencePayload excuses the student from one planned session.
type AbsencePayload struct {
	TargetSessionID string
}

// MakeupPayload books the student into another session covering the same course session.
type MakeupPayload struct {
	TargetSessionID string
	MakeupSessionID string
}

// TransferPayload moves the student's enrollment to a sibling class from EffectiveDate on.
type TransferPayload struct {
	CurrentClassID string
	TargetClassID  string
	EffectiveDate  time.Time
}

func (AbsencePayload) RequestType() StudentRequestType  { return StudentRequestAbsence }
func (MakeupPayload) RequestType() StudentRequestType   { return StudentRequestMakeup }
func (TransferPayload) RequestType() StudentRequestType { return StudentRequestTransfer }

// Payload rebuilds the tagged payload from the stored columns.
func (r *StudentRequest) Payload() StudentRequestPayload {
	switch r.Type {
	case StudentRequestAbsence:
		return AbsencePayload{TargetSessionID: deref(r.TargetSessionID)}
	case StudentRequestMakeup:
		return MakeupPayload{TargetSessionID: deref(r.TargetSessionID), MakeupSessionID: deref(r.MakeupSessionID)}
	case StudentRequestTransfer:
		p := TransferPayload{CurrentClassID: deref(r.CurrentClassID), TargetClassID: deref(r.TargetClassID)}
		if r.EffectiveDate != nil {
			p.EffectiveDate = *r.EffectiveDate
		}
		return p
	}
	return nil
}

// ApplyPayload copies payload references onto the envelope columns.
func (r *StudentRequest) ApplyPayload(p StudentRequestPayload) {
	r.Type = p.RequestType()
	switch v := p.(type) {
	case AbsencePayload:
		r.TargetSessionID = &v.TargetSessionID
	case MakeupPayload:
		r.TargetSessionID = &v.TargetSessionID
		r.MakeupSessionID = &v.MakeupSessionID
	case TransferPayload:
		r.CurrentClassID = &v.CurrentClassID
		r.TargetClassID = &v.TargetClassID
		date := v.EffectiveDate
		r.EffectiveDate = &date
	}
}

// StudentRequestFilter constrains listing queries.
type StudentRequestFilter struct {
	StudentID string
	Type      StudentRequestType
	Status    []RequestStatus
	Limit     int
	Offset    int
}

// OpenStudentRequestKey identifies the equivalence class for duplicate detection.
type OpenStudentRequestKey struct {
	StudentID       string
	Type            StudentRequestType
	TargetSessionID string
	CurrentClassID  string
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
