package dto

import (
	"strings"

	"github.com/noah-isme/tc-schedule-api/internal/models"
	appErrors "github.com/noah-isme/tc-schedule-api/pkg/errors"
)

// CreateTeacherRequest is the submission payload for swap, reschedule and modality change.
type CreateTeacherRequest struct {
	SessionID            string                    `json:"sessionId" validate:"required"`
	RequestType          models.TeacherRequestType `json:"requestType" validate:"required,oneof=SWAP RESCHEDULE MODALITY_CHANGE"`
	ReplacementTeacherID string                    `json:"replacementTeacherId"`
	NewDate              string                    `json:"newDate" validate:"omitempty,datetime=2006-01-02"`
	NewTimeSlotID        string                    `json:"newTimeSlotId"`
	NewResourceID        string                    `json:"newResourceId"`
	RequestReason        string                    `json:"requestReason" validate:"required"`
	Note                 string                    `json:"note"`
}

// Payload builds the typed payload, failing with INVALID_INPUT on missing references.
func (r CreateTeacherRequest) Payload() (models.TeacherRequestPayload, error) {
	switch r.RequestType {
	case models.TeacherRequestSwap:
		return models.SwapPayload{ReplacementTeacherID: strings.TrimSpace(r.ReplacementTeacherID)}, nil
	case models.TeacherRequestReschedule:
		if strings.TrimSpace(r.NewDate) == "" || strings.TrimSpace(r.NewTimeSlotID) == "" {
			return nil, appErrors.Clone(appErrors.ErrInvalidInput, "newDate and newTimeSlotId are required for RESCHEDULE")
		}
		date, err := ParseDate(r.NewDate)
		if err != nil {
			return nil, err
		}
		return models.ReschedulePayload{NewDate: date, NewTimeSlotID: r.NewTimeSlotID, NewResourceID: strings.TrimSpace(r.NewResourceID)}, nil
	case models.TeacherRequestModalityChange:
		if strings.TrimSpace(r.NewResourceID) == "" {
			return nil, appErrors.Clone(appErrors.ErrInvalidInput, "newResourceId is required for MODALITY_CHANGE")
		}
		return models.ModalityPayload{NewResourceID: r.NewResourceID}, nil
	}
	return nil, appErrors.Clone(appErrors.ErrInvalidInput, "unsupported request type")
}

// ApproveTeacherRequest carries optional staff overrides.
type ApproveTeacherRequest struct {
	ReplacementTeacherID string `json:"replacementTeacherId"`
	NewResourceID        string `json:"newResourceId"`
	Note                 string `json:"note"`
}

// DeclineSwapRequest is sent by the designated replacement.
type DeclineSwapRequest struct {
	Reason string `json:"reason" validate:"required"`
}
