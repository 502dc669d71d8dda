package dto

import (
	"strings"
	"time"

	"github.com/noah-isme/tc-schedule-api/internal/models"
	appErrors "github.com/noah-isme/tc-schedule-api/pkg/errors"
)

// DateLayout is the calendar date format accepted on the wire.
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD value as a UTC midnight.
func ParseDate(value string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(value), time.UTC)
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrInvalidInput, "date must use YYYY-MM-DD")
	}
	return t, nil
}

// RejectRequest carries the staff decision reason.
type RejectRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// RequestListQuery mirrors supported listing filters shared by both workflows.
type RequestListQuery struct {
	Type   string
	Status []models.RequestStatus
	Limit  int
	Offset int
}

// ParseStatuses splits a comma separated status list.
func ParseStatuses(raw string) []models.RequestStatus {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]models.RequestStatus, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			out = append(out, models.RequestStatus(p))
		}
	}
	return out
}
