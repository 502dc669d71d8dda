package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/tc-schedule-api/internal/models"
	"github.com/noah-isme/tc-schedule-api/internal/repository"
	appErrors "github.com/noah-isme/tc-schedule-api/pkg/errors"
)

type sessionStore interface {
	FindDetail(ctx context.Context, exec sqlx.ExtContext, id string) (*models.SessionDetail, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Session, error)
	FindPlannedByClassAndDate(ctx context.Context, exec sqlx.ExtContext, classID string, date time.Time) (*models.Session, error)
	ListProgress(ctx context.Context, classID string, asOf time.Time) ([]models.CourseSessionProgress, error)
	Create(ctx context.Context, exec sqlx.ExtContext, session *models.Session) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.SessionStatus) error
	LockBookingKeys(ctx context.Context, exec sqlx.ExtContext, keys []string) error
}

type teachingSlotStore interface {
	ListBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string) ([]models.TeachingSlot, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, sessionID, teacherID string, status models.TeachingSlotStatus) error
	Upsert(ctx context.Context, exec sqlx.ExtContext, slot models.TeachingSlot) error
	MoveToSession(ctx context.Context, exec sqlx.ExtContext, fromSessionID, toSessionID string) error
}

type sessionResourceStore interface {
	FindBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string) (*models.SessionResource, error)
	ReplaceForSession(ctx context.Context, exec sqlx.ExtContext, sessionID, resourceID string) error
	DeleteBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string) error
}

type studentSessionStore interface {
	Find(ctx context.Context, exec sqlx.ExtContext, studentID, sessionID string) (*models.StudentSession, error)
	Lock(ctx context.Context, exec sqlx.ExtContext, studentID, sessionID string) (*models.StudentSession, error)
	CountBySession(ctx context.Context, exec sqlx.ExtContext, sessionID string) (int, error)
	MarkAttendance(ctx context.Context, exec sqlx.ExtContext, studentID, sessionID string, status models.AttendanceStatus, note string) error
	Create(ctx context.Context, exec sqlx.ExtContext, row *models.StudentSession) error
	MoveToSession(ctx context.Context, exec sqlx.ExtContext, fromSessionID, toSessionID string) error
	DeletePlannedFrom(ctx context.Context, exec sqlx.ExtContext, studentID, classID string, from time.Time) (int64, error)
	CreateForClassFrom(ctx context.Context, exec sqlx.ExtContext, studentID, classID string, from time.Time) (int64, error)
}

type enrollmentStore interface {
	ListActiveByStudent(ctx context.Context, studentID string) ([]models.EnrollmentDetail, error)
	FindActive(ctx context.Context, exec sqlx.ExtContext, studentID, classID string) (*models.Enrollment, error)
	CountActiveByClass(ctx context.Context, exec sqlx.ExtContext, classID string) (int, error)
	Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error
	Close(ctx context.Context, exec sqlx.ExtContext, id string, status models.EnrollmentStatus, leftSessionID *string, leftAt time.Time) error
}

type classStore interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Class, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Class, error)
	ListTransferCandidates(ctx context.Context, courseID, excludeClassID string) ([]models.ClassOccupancy, error)
}

type catalogStore interface {
	FindTimeSlot(ctx context.Context, id string) (*models.TimeSlot, error)
	ListTimeSlots(ctx context.Context, branchID string) ([]models.TimeSlot, error)
	FindResource(ctx context.Context, id string) (*models.Resource, error)
	ListResources(ctx context.Context, branchID string, types []models.ResourceType) ([]models.Resource, error)
}

type studentDirectory interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
	FindByUserID(ctx context.Context, userID string) (*models.Student, error)
}

type teacherDirectory interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
	FindByUserID(ctx context.Context, userID string) (*models.Teacher, error)
	ListActive(ctx context.Context, excludeIDs []string) ([]models.Teacher, error)
}

type transferCounter interface {
	CountApprovedTransfers(ctx context.Context, exec sqlx.ExtContext, studentID, courseID string) (int, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// RequestPolicy holds the tunables shared by both workflows.
type RequestPolicy struct {
	ReasonMinLength     int
	AbsenceLookbackDays int
}

func (p RequestPolicy) withDefaults() RequestPolicy {
	if p.ReasonMinLength <= 0 {
		p.ReasonMinLength = 10
	}
	if p.AbsenceLookbackDays < 0 {
		p.AbsenceLookbackDays = 0
	}
	return p
}

func (p RequestPolicy) checkReason(reason string) error {
	if len([]rune(strings.TrimSpace(reason))) < p.ReasonMinLength {
		return appErrors.BusinessRule(appErrors.CodeBusinessRule,
			fmt.Sprintf("Request reason must be at least %d characters", p.ReasonMinLength))
	}
	return nil
}

// lookupError maps a repository read failure to NOT_FOUND or INTERNAL_ERROR.
func lookupError(err error, notFound, failure string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, failure)
}

func internalError(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

// ensureTransition rejects any status change missing from the transition table.
func ensureTransition(kind models.RequestKind, from, to models.RequestStatus, event models.RequestEvent) error {
	if !models.CanTransition(kind, from, to, event) {
		return appErrors.Clone(appErrors.ErrInvalidStatus,
			fmt.Sprintf("cannot %s a request in status %s", strings.ToLower(strings.ReplaceAll(string(event), "_", " ")), from))
	}
	return nil
}

// statusUpdateError maps a lost compare-and-set to INVALID_STATUS and a collision on
// an open-request index to DUPLICATE_REQUEST.
func statusUpdateError(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrInvalidStatus, "request status changed concurrently")
	}
	if repository.IsUniqueViolation(err) {
		return appErrors.Clone(appErrors.ErrDuplicateRequest, "another open request already exists for the same target")
	}
	return internalError(err, message)
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func isPastDate(date, now time.Time) bool {
	return dateOnly(date).Before(dateOnly(now))
}

func optionalString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	v := strings.TrimSpace(value)
	return &v
}

func appendNote(existing *string, line string) string {
	if existing == nil || strings.TrimSpace(*existing) == "" {
		return line
	}
	return strings.TrimRight(*existing, "\n") + "\n" + line
}

func emitAudit(ctx context.Context, audit auditLogger, logger *zap.Logger, source string, log *models.AuditLog) {
	if audit == nil || log == nil {
		return
	}
	log.IPAddress = "system"
	log.UserAgent = source
	if err := audit.CreateAuditLog(ctx, log); err != nil {
		logger.Warn("failed to persist audit log", zap.String("action", log.Action), zap.Error(err))
	}
}

func isStaff(actor *models.JWTClaims) bool {
	return actor != nil && actor.Role.IsStaff()
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func auditPayload(v interface{}) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}

// Cache key prefixes for advisory reads.
const (
	transferOptionsCachePrefix = "transfer:options:"
	suggestionCachePrefix      = "suggest:"
)

// invalidateAdvisoryCaches drops cached advisory reads after the timetable changed.
func invalidateAdvisoryCaches(ctx context.Context, cache *CacheService) {
	for _, prefix := range []string{transferOptionsCachePrefix, suggestionCachePrefix} {
		_ = cache.Invalidate(ctx, prefix+"*")
	}
}
