package dto

import (
	"strings"

	"github.com/noah-isme/tc-schedule-api/internal/models"
	appErrors "github.com/noah-isme/tc-schedule-api/pkg/errors"
)

// SubmitStudentRequest is the submission payload for absence, makeup and transfer requests.
type SubmitStudentRequest struct {
	// StudentID is only honoured for staff submitting on behalf of a student.
	StudentID             string                    `json:"studentId"`
	RequestType           models.StudentRequestType `json:"requestType" validate:"required,oneof=ABSENCE MAKEUP TRANSFER"`
	TargetSessionID       string                    `json:"targetSessionId"`
	MakeupSessionID       string                    `json:"makeupSessionId"`
	CurrentClassID        string                    `json:"currentClassId"`
	TargetClassID         string                    `json:"targetClassId"`
	EffectiveDate         string                    `json:"effectiveDate" validate:"omitempty,datetime=2006-01-02"`
	RequestReason         string                    `json:"requestReason" validate:"required"`
	Note                  string                    `json:"note"`
	AllowCapacityOverride bool                      `json:"allowCapacityOverride"`
	OverrideReason        string                    `json:"overrideReason"`
}

// Payload builds the typed payload, failing with INVALID_INPUT on missing references.
func (r SubmitStudentRequest) Payload() (models.StudentRequestPayload, error) {
	switch r.RequestType {
	case models.StudentRequestAbsence:
		if strings.TrimSpace(r.TargetSessionID) == "" {
			return nil, appErrors.Clone(appErrors.ErrInvalidInput, "targetSessionId is required for ABSENCE")
		}
		return models.AbsencePayload{TargetSessionID: r.TargetSessionID}, nil
	case models.StudentRequestMakeup:
		if strings.TrimSpace(r.TargetSessionID) == "" || strings.TrimSpace(r.MakeupSessionID) == "" {
			return nil, appErrors.Clone(appErrors.ErrInvalidInput, "targetSessionId and makeupSessionId are required for MAKEUP")
		}
		return models.MakeupPayload{TargetSessionID: r.TargetSessionID, MakeupSessionID: r.MakeupSessionID}, nil
	case models.StudentRequestTransfer:
		if strings.TrimSpace(r.CurrentClassID) == "" || strings.TrimSpace(r.TargetClassID) == "" || strings.TrimSpace(r.EffectiveDate) == "" {
			return nil, appErrors.Clone(appErrors.ErrInvalidInput, "currentClassId, targetClassId and effectiveDate are required for TRANSFER")
		}
		date, err := ParseDate(r.EffectiveDate)
		if err != nil {
			return nil, err
		}
		return models.TransferPayload{CurrentClassID: r.CurrentClassID, TargetClassID: r.TargetClassID, EffectiveDate: date}, nil
	}
	return nil, appErrors.Clone(appErrors.ErrInvalidInput, "unsupported request type")
}

// ApproveStudentRequest lets staff override the student's choice and capacity.
type ApproveStudentRequest struct {
	MakeupSessionID       string `json:"makeupSessionId"`
	TargetClassID         string `json:"targetClassId"`
	Note                  string `json:"note"`
	AllowCapacityOverride bool   `json:"allowCapacityOverride"`
	OverrideReason        string `json:"overrideReason"`
}
