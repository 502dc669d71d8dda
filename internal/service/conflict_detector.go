package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/tc-schedule-api/internal/models"
	appErrors "github.com/noah-isme/tc-schedule-api/pkg/errors"
)

// Conflict dimensions.
const (
	ConflictDimensionResource = "RESOURCE"
	ConflictDimensionTeacher  = "TEACHER"
	ConflictDimensionClass    = "CLASS"
)

var conflictMessages = map[string]string{
	ConflictDimensionResource: "resource already booked for this slot",
	ConflictDimensionTeacher:  "teacher already scheduled for this slot",
	ConflictDimensionClass:    "class already has a session in this slot",
}

// ConflictCandidate is a prospective occupancy. Empty teacher, resource or class
// fields are not checked.
type ConflictCandidate struct {
	Date       time.Time
	TimeSlotID string
	StartTime  string
	EndTime    string
	TeacherID  string
	ResourceID string
	ClassID    string
	// IgnoreSessionIDs excludes the session being moved from its own check.
	IgnoreSessionIDs []string
}

func (c ConflictCandidate) ignores(sessionID string) bool {
	for _, id := range c.IgnoreSessionIDs {
		if id == sessionID {
			return true
		}
	}
	return false
}

// FindConflict returns the first active booking that collides with the candidate.
// Resource collisions are reported before teacher and class collisions.
func FindConflict(candidate ConflictCandidate, bookings []models.Booking) *models.ScheduleConflict {
	checks := []struct {
		dimension string
		match     func(models.Booking) bool
	}{
		{ConflictDimensionResource, func(b models.Booking) bool {
			return candidate.ResourceID != "" && b.ResourceID == candidate.ResourceID
		}},
		{ConflictDimensionTeacher, func(b models.Booking) bool {
			return candidate.TeacherID != "" && b.TeacherID == candidate.TeacherID
		}},
		{ConflictDimensionClass, func(b models.Booking) bool {
			return candidate.ClassID != "" && b.ClassID == candidate.ClassID
		}},
	}
	for _, check := range checks {
		for _, booking := range bookings {
			if candidate.ignores(booking.SessionID) || !overlaps(candidate, booking) {
				continue
			}
			if check.match(booking) {
				return &models.ScheduleConflict{
					SessionID:  booking.SessionID,
					ClassID:    booking.ClassID,
					TeacherID:  booking.TeacherID,
					ResourceID: booking.ResourceID,
					TimeSlotID: booking.TimeSlotID,
					Date:       booking.Date,
					Dimension:  check.dimension,
				}
			}
		}
	}
	return nil
}

// overlaps compares clock ranges when both sides carry them and falls back to time slot identity.
func overlaps(candidate ConflictCandidate, booking models.Booking) bool {
	if !sameDay(candidate.Date, booking.Date) {
		return false
	}
	cStart, okCS := clockMinutes(candidate.StartTime)
	cEnd, okCE := clockMinutes(candidate.EndTime)
	bStart, okBS := clockMinutes(booking.StartTime)
	bEnd, okBE := clockMinutes(booking.EndTime)
	if okCS && okCE && okBS && okBE {
		return cStart < bEnd && bStart < cEnd
	}
	return candidate.TimeSlotID != "" && candidate.TimeSlotID == booking.TimeSlotID
}

// clockMinutes parses HH:MM or HH:MM:SS into minutes after midnight.
func clockMinutes(value string) (int, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if idx := strings.Index(value, "T"); idx >= 0 {
		value = value[idx+1:]
	}
	parts := strings.Split(value, ":")
	if len(parts) < 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, false
	}
	return h*60 + m, true
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func wrapConflict(conflict models.ScheduleConflict) error {
	message := conflictMessages[conflict.Dimension]
	domainErr := &models.ScheduleConflictError{Type: conflict.Dimension, Message: message, Conflict: conflict}
	return appErrors.Wrap(domainErr, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status, fmt.Sprintf("schedule conflict: %s", message))
}

type bookingLister interface {
	ListBookings(ctx context.Context, exec sqlx.ExtContext, filter models.BookingFilter) ([]models.Booking, error)
}

// ConflictDetector loads occupancy and checks candidates against it.
type ConflictDetector struct {
	bookings bookingLister
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewConflictDetector constructs the detector.
func NewConflictDetector(bookings bookingLister, metrics *MetricsService, logger *zap.Logger) *ConflictDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictDetector{bookings: bookings, metrics: metrics, logger: logger}
}

// Check fails with SCHEDULE_CONFLICT when any requested dimension is already occupied.
// Pass the open transaction as exec to see rows locked by the caller.
func (d *ConflictDetector) Check(ctx context.Context, exec sqlx.ExtContext, candidate ConflictCandidate) error {
	filters := make([]models.BookingFilter, 0, 3)
	if candidate.ResourceID != "" {
		filters = append(filters, models.BookingFilter{Date: candidate.Date, ResourceID: candidate.ResourceID})
	}
	if candidate.TeacherID != "" {
		filters = append(filters, models.BookingFilter{Date: candidate.Date, TeacherID: candidate.TeacherID})
	}
	if candidate.ClassID != "" {
		filters = append(filters, models.BookingFilter{Date: candidate.Date, ClassID: candidate.ClassID})
	}
	for _, filter := range filters {
		bookings, err := d.bookings.ListBookings(ctx, exec, filter)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check schedule conflicts")
		}
		if conflict := FindConflict(candidate, bookings); conflict != nil {
			d.metrics.RecordConflict(conflict.Dimension)
			d.logger.Info("schedule conflict detected",
				zap.String("dimension", conflict.Dimension),
				zap.String("session_id", conflict.SessionID),
				zap.Time("date", candidate.Date),
			)
			return wrapConflict(*conflict)
		}
	}
	return nil
}

// Bookings exposes the raw occupancy for advisory lookups.
func (d *ConflictDetector) Bookings(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	bookings, err := d.bookings.ListBookings(ctx, nil, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load bookings")
	}
	return bookings, nil
}

// SessionMove places an existing session at a new date and time slot.
type SessionMove struct {
	SessionID  string
	ClassID    string
	TeacherIDs []string
	ResourceID string
	Date       time.Time
	Slot       models.TimeSlot
}

// CheckMove checks the session's class, resource and every teacher at the new position,
// ignoring the session's own current booking.
func (d *ConflictDetector) CheckMove(ctx context.Context, exec sqlx.ExtContext, move SessionMove) error {
	base := ConflictCandidate{
		Date:             move.Date,
		TimeSlotID:       move.Slot.ID,
		StartTime:        move.Slot.StartTime,
		EndTime:          move.Slot.EndTime,
		IgnoreSessionIDs: []string{move.SessionID},
	}
	placement := base
	placement.ResourceID = move.ResourceID
	placement.ClassID = move.ClassID
	if err := d.Check(ctx, exec, placement); err != nil {
		return err
	}
	for _, teacherID := range move.TeacherIDs {
		candidate := base
		candidate.TeacherID = teacherID
		if err := d.Check(ctx, exec, candidate); err != nil {
			return err
		}
	}
	return nil
}

func occupyingTeachers(slots []models.TeachingSlot) []string {
	ids := make([]string, 0, len(slots))
	for _, slot := range slots {
		if slot.Status.Occupies() {
			ids = append(ids, slot.TeacherID)
		}
	}
	return ids
}
