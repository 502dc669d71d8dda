package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tc-schedule-api/internal/models"
	appErrors "github.com/noah-isme/tc-schedule-api/pkg/errors"
)

const (
	reasonNoActiveEnrollment = "Student has no active enrollment"
	reasonQuotaExhausted     = "Transfer quota exhausted for all enrolled courses"
)

// TransferService answers read-only transfer questions: eligibility and ranked options.
type TransferService struct {
	students    studentDirectory
	enrollments enrollmentStore
	classes     classStore
	sessions    sessionStore
	transfers   transferCounter
	guard       CapacityGuard
	cache       *CacheService
	cacheTTL    time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// TransferServiceOption configures optional collaborators.
type TransferServiceOption func(*TransferService)

// WithTransferCache caches option lists for ttl.
func WithTransferCache(cache *CacheService, ttl time.Duration) TransferServiceOption {
	return func(s *TransferService) {
		s.cache = cache
		s.cacheTTL = ttl
	}
}

// WithTransferClock overrides the time source.
func WithTransferClock(now func() time.Time) TransferServiceOption {
	return func(s *TransferService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewTransferService constructs the service.
func NewTransferService(students studentDirectory, enrollments enrollmentStore, classes classStore, sessions sessionStore, transfers transferCounter, guard CapacityGuard, logger *zap.Logger, opts ...TransferServiceOption) *TransferService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &TransferService{
		students:    students,
		enrollments: enrollments,
		classes:     classes,
		sessions:    sessions,
		transfers:   transfers,
		guard:       guard,
		logger:      logger,
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// GetTransferEligibility reports per-enrollment quota usage and whether any transfer is possible.
func (s *TransferService) GetTransferEligibility(ctx context.Context, studentID string, actor *models.JWTClaims) (*models.TransferEligibility, error) {
	if err := s.authorize(ctx, studentID, actor); err != nil {
		return nil, err
	}
	enrollments, err := s.enrollments.ListActiveByStudent(ctx, studentID)
	if err != nil {
		return nil, internalError(err, "failed to load enrollments")
	}
	result := &models.TransferEligibility{StudentID: studentID, Enrollments: make([]models.EnrollmentQuota, 0, len(enrollments))}
	if len(enrollments) == 0 {
		result.Reason = reasonNoActiveEnrollment
		return result, nil
	}
	for _, e := range enrollments {
		used, err := s.transfers.CountApprovedTransfers(ctx, nil, studentID, e.CourseID)
		if err != nil {
			return nil, internalError(err, "failed to count approved transfers")
		}
		quota := models.EnrollmentQuota{
			EnrollmentID:  e.ID,
			ClassID:       e.ClassID,
			ClassCode:     e.ClassCode,
			CourseID:      e.CourseID,
			TransfersUsed: used,
			TransferQuota: s.guard.TransferQuotaPerCourse,
			CanTransfer:   s.guard.RemainingTransfers(used) > 0,
		}
		if quota.CanTransfer {
			result.Eligible = true
		}
		result.Enrollments = append(result.Enrollments, quota)
	}
	if !result.Eligible {
		result.Reason = reasonQuotaExhausted
	}
	return result, nil
}

// GetTransferOptions lists sibling classes of the current class with seats and content gap.
func (s *TransferService) GetTransferOptions(ctx context.Context, studentID, currentClassID string, actor *models.JWTClaims) ([]models.TransferOption, error) {
	if currentClassID == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidInput, "currentClassId is required")
	}
	if err := s.authorize(ctx, studentID, actor); err != nil {
		return nil, err
	}
	cacheKey := fmt.Sprintf("%s%s:%s", transferOptionsCachePrefix, studentID, currentClassID)
	var cached []models.TransferOption
	if hit, _ := s.cache.Get(ctx, cacheKey, &cached); hit {
		return cached, nil
	}

	current, err := s.classes.FindByID(ctx, nil, currentClassID)
	if err != nil {
		return nil, lookupError(err, "current class not found", "failed to load current class")
	}
	candidates, err := s.classes.ListTransferCandidates(ctx, current.CourseID, current.ID)
	if err != nil {
		return nil, internalError(err, "failed to load transfer candidates")
	}
	asOf := dateOnly(s.now())
	currentProgress, err := s.sessions.ListProgress(ctx, current.ID, asOf)
	if err != nil {
		return nil, internalError(err, "failed to load class progress")
	}

	options := make([]models.TransferOption, 0, len(candidates))
	for _, c := range candidates {
		targetProgress, err := s.sessions.ListProgress(ctx, c.ID, asOf)
		if err != nil {
			return nil, internalError(err, "failed to load class progress")
		}
		available := c.AvailableSeats()
		options = append(options, models.TransferOption{
			ClassID:        c.ID,
			ClassCode:      c.Code,
			ClassName:      c.Name,
			BranchID:       c.BranchID,
			Modality:       c.Modality,
			Status:         c.Status,
			MaxCapacity:    c.MaxCapacity,
			EnrolledCount:  c.EnrolledCount,
			AvailableSlots: available,
			CanTransfer:    available > 0,
			Tier:           transferTier(*current, c.Class),
			ContentGap:     AnalyzeContentGap(currentProgress, targetProgress),
		})
	}
	_ = s.cache.Set(ctx, cacheKey, options, s.cacheTTL)
	return options, nil
}

// authorize lets staff query anyone and students only themselves.
func (s *TransferService) authorize(ctx context.Context, studentID string, actor *models.JWTClaims) error {
	if isStaff(actor) {
		if _, err := s.students.FindByID(ctx, studentID); err != nil {
			return lookupError(err, "student not found", "failed to load student")
		}
		return nil
	}
	if actor == nil || actor.Role != models.RoleStudent {
		return appErrors.Clone(appErrors.ErrForbidden, "not allowed to view transfer data")
	}
	student, err := s.students.FindByUserID(ctx, actor.UserID)
	if err != nil {
		return lookupError(err, "student not found", "failed to resolve student")
	}
	if student.ID != studentID {
		return appErrors.Clone(appErrors.ErrForbidden, "students may only view their own transfer data")
	}
	return nil
}
