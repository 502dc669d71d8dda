package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/tc-schedule-api/internal/dto"
	"github.com/noah-isme/tc-schedule-api/internal/models"
	"github.com/noah-isme/tc-schedule-api/internal/repository"
	appErrors "github.com/noah-isme/tc-schedule-api/pkg/errors"
)

type studentRequestStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, req *models.StudentRequest) error
	FindByID(ctx context.Context, id string) (*models.StudentRequest, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.StudentRequest, error)
	List(ctx context.Context, filter models.StudentRequestFilter) ([]models.StudentRequest, error)
	ExistsOpen(ctx context.Context, key models.OpenStudentRequestKey) (bool, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, params repository.UpdateStudentRequestStatusParams) error
}

// StudentRequestDeps groups the stores read by the student workflow.
type StudentRequestDeps struct {
	Requests        studentRequestStore
	Students        studentDirectory
	Sessions        sessionStore
	StudentSessions studentSessionStore
	Enrollments     enrollmentStore
	Classes         classStore
	Transfers       transferCounter
}

// studentSubmission carries one submission through its type rule.
type studentSubmission struct {
	request  *models.StudentRequest
	payload  models.StudentRequestPayload
	onBehalf bool
	override CapacityOverride
}

// studentRequestRule pairs the submission checks of a request type with its approval mutation.
type studentRequestRule struct {
	prepare func(ctx context.Context, sub *studentSubmission) error
	approve func(ctx context.Context, exec sqlx.ExtContext, req *models.StudentRequest, override CapacityOverride) error
}

// StudentRequestService runs the absence, makeup and transfer workflow.
type StudentRequestService struct {
	requests        studentRequestStore
	students        studentDirectory
	sessions        sessionStore
	studentSessions studentSessionStore
	enrollments     enrollmentStore
	classes         classStore
	transfers       transferCounter
	executor        *TimetableExecutor
	guard           CapacityGuard
	policy          RequestPolicy
	cache           *CacheService
	metrics         *MetricsService
	audit           auditLogger
	validator       *validator.Validate
	logger          *zap.Logger
	now             func() time.Time
	rules           map[models.StudentRequestType]studentRequestRule
}

// StudentRequestServiceOption configures optional collaborators.
type StudentRequestServiceOption func(*StudentRequestService)

// WithStudentRequestClock overrides the time source.
func WithStudentRequestClock(now func() time.Time) StudentRequestServiceOption {
	return func(s *StudentRequestService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithStudentRequestCache wires advisory cache invalidation.
func WithStudentRequestCache(cache *CacheService) StudentRequestServiceOption {
	return func(s *StudentRequestService) {
		s.cache = cache
	}
}

// WithStudentRequestMetrics wires transition counters.
func WithStudentRequestMetrics(metrics *MetricsService) StudentRequestServiceOption {
	return func(s *StudentRequestService) {
		s.metrics = metrics
	}
}

// WithStudentRequestAudit wires the audit trail.
func WithStudentRequestAudit(audit auditLogger) StudentRequestServiceOption {
	return func(s *StudentRequestService) {
		s.audit = audit
	}
}

// WithStudentRequestValidator overrides the struct validator.
func WithStudentRequestValidator(v *validator.Validate) StudentRequestServiceOption {
	return func(s *StudentRequestService) {
		if v != nil {
			s.validator = v
		}
	}
}

// NewStudentRequestService constructs the workflow service.
func NewStudentRequestService(deps StudentRequestDeps, executor *TimetableExecutor, guard CapacityGuard, policy RequestPolicy, logger *zap.Logger, opts ...StudentRequestServiceOption) *StudentRequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &StudentRequestService{
		requests:        deps.Requests,
		students:        deps.Students,
		sessions:        deps.Sessions,
		studentSessions: deps.StudentSessions,
		enrollments:     deps.Enrollments,
		classes:         deps.Classes,
		transfers:       deps.Transfers,
		executor:        executor,
		guard:           guard,
		policy:          policy.withDefaults(),
		validator:       validator.New(),
		logger:          logger,
		now:             time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	svc.rules = map[models.StudentRequestType]studentRequestRule{
		models.StudentRequestAbsence:  {prepare: svc.prepareAbsence, approve: svc.approveAbsence},
		models.StudentRequestMakeup:   {prepare: svc.prepareMakeup, approve: svc.approveMakeup},
		models.StudentRequestTransfer: {prepare: svc.prepareTransfer, approve: svc.approveTransfer},
	}
	return svc
}

// Submit validates and stores a new request. Staff may submit on behalf of a student;
// an on-behalf makeup is approved and executed immediately.
func (s *StudentRequestService) Submit(ctx context.Context, req dto.SubmitStudentRequest, actor *models.JWTClaims) (*models.StudentRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payload")
	}
	if err := s.policy.checkReason(req.RequestReason); err != nil {
		return nil, err
	}
	payload, err := req.Payload()
	if err != nil {
		return nil, err
	}
	studentID, err := s.resolveSubmitter(ctx, req.StudentID, actor)
	if err != nil {
		return nil, err
	}

	onBehalf := isStaff(actor)
	request := &models.StudentRequest{
		StudentID:     studentID,
		Status:        models.RequestStatusPending,
		RequestReason: strings.TrimSpace(req.RequestReason),
		Note:          optionalString(req.Note),
		SubmittedBy:   actor.UserID,
		SubmittedAt:   s.now().UTC(),
	}
	request.ApplyPayload(payload)

	sub := &studentSubmission{request: request, payload: payload, onBehalf: onBehalf}
	if onBehalf && req.AllowCapacityOverride {
		sub.override = CapacityOverride{Allow: true, Reason: req.OverrideReason}
	}
	rule, ok := s.rules[request.Type]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidInput, "unsupported request type")
	}
	if err := rule.prepare(ctx, sub); err != nil {
		return nil, err
	}

	exists, err := s.requests.ExistsOpen(ctx, openKey(request))
	if err != nil {
		return nil, internalError(err, "failed to check open requests")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrDuplicateRequest, fmt.Sprintf("an open %s request already exists", request.Type))
	}

	autoApprove := onBehalf && request.Type == models.StudentRequestMakeup
	if autoApprove {
		decidedAt := s.now().UTC()
		decidedBy := actor.UserID
		request.Status = models.RequestStatusApproved
		request.DecidedBy = &decidedBy
		request.DecidedAt = &decidedAt
		err = s.executor.Run(ctx, func(exec sqlx.ExtContext) error {
			if err := s.requests.Create(ctx, exec, request); err != nil {
				return err
			}
			return rule.approve(ctx, exec, request, sub.override)
		})
	} else {
		err = s.requests.Create(ctx, nil, request)
	}
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrDuplicateRequest, fmt.Sprintf("an open %s request already exists", request.Type))
		}
		return nil, internalError(err, "failed to create student request")
	}

	s.metrics.RecordRequestTransition(string(models.RequestKindStudent), string(request.Type), "NEW", string(request.Status))
	s.recordAudit(ctx, actor, models.AuditActionRequestSubmit, request)
	if autoApprove {
		s.invalidateAdvisory(ctx)
	}
	s.logger.Info("student request submitted",
		zap.String("request_id", request.ID),
		zap.String("type", string(request.Type)),
		zap.String("to", string(request.Status)),
		zap.String("actor", actor.UserID),
		zap.Bool("on_behalf", onBehalf),
	)
	return request, nil
}

func (s *StudentRequestService) resolveSubmitter(ctx context.Context, studentID string, actor *models.JWTClaims) (string, error) {
	switch {
	case actor.Role == models.RoleStudent:
		student, err := s.resolveStudent(ctx, actor)
		if err != nil {
			return "", err
		}
		return student.ID, nil
	case isStaff(actor):
		if strings.TrimSpace(studentID) == "" {
			return "", appErrors.Clone(appErrors.ErrInvalidInput, "studentId is required when submitting on behalf of a student")
		}
		student, err := s.students.FindByID(ctx, studentID)
		if err != nil {
			return "", lookupError(err, "student not found", "failed to load student")
		}
		return student.ID, nil
	}
	return "", appErrors.Clone(appErrors.ErrForbidden, "only students or academic staff may submit student requests")
}

func (s *StudentRequestService) resolveStudent(ctx context.Context, actor *models.JWTClaims) (*models.Student, error) {
	student, err := s.students.FindByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "no student profile is linked to this account")
		}
		return nil, internalError(err, "failed to resolve student")
	}
	return student, nil
}

func openKey(req *models.StudentRequest) models.OpenStudentRequestKey {
	key := models.OpenStudentRequestKey{StudentID: req.StudentID, Type: req.Type}
	switch req.Type {
	case models.StudentRequestTransfer:
		key.CurrentClassID = derefString(req.CurrentClassID)
	default:
		key.TargetSessionID = derefString(req.TargetSessionID)
	}
	return key
}

func (s *StudentRequestService) prepareAbsence(ctx context.Context, sub *studentSubmission) error {
	payload := sub.payload.(models.AbsencePayload)
	studentID := sub.request.StudentID
	detail, err := s.sessions.FindDetail(ctx, nil, payload.TargetSessionID)
	if err != nil {
		return lookupError(err, "session not found", "failed to load session")
	}
	if err := s.ensureScheduled(ctx, studentID, detail); err != nil {
		return err
	}

	now := s.now()
	if sub.onBehalf && s.policy.AbsenceLookbackDays > 0 {
		earliest := dateOnly(now).AddDate(0, 0, -s.policy.AbsenceLookbackDays)
		if detail.Status == models.SessionStatusCancelled {
			return appErrors.BusinessRule(appErrors.CodeBusinessRule, "Session has been cancelled")
		}
		if dateOnly(detail.Date).Before(earliest) {
			return appErrors.BusinessRule(appErrors.CodePastSession,
				fmt.Sprintf("Session is older than the %d day look-back window", s.policy.AbsenceLookbackDays))
		}
		return nil
	}
	if detail.Status != models.SessionStatusPlanned || isPastDate(detail.Date, now) {
		return appErrors.BusinessRule(appErrors.CodePastSession, "Absence can only be requested for upcoming planned sessions")
	}
	return nil
}

// ensureScheduled checks the session belongs to the student's active schedule.
func (s *StudentRequestService) ensureScheduled(ctx context.Context, studentID string, detail *models.SessionDetail) error {
	row, err := s.studentSessions.Find(ctx, nil, studentID, detail.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.BusinessRule(appErrors.CodeBusinessRule, "Session is not part of the student's schedule")
		}
		return internalError(err, "failed to load student session")
	}
	if row.IsMakeup {
		return nil
	}
	if _, err := s.enrollments.FindActive(ctx, nil, studentID, detail.ClassID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.BusinessRule(appErrors.CodeBusinessRule, "Student is not actively enrolled in the session's class")
		}
		return internalError(err, "failed to load enrollment")
	}
	return nil
}

func (s *StudentRequestService) approveAbsence(ctx context.Context, exec sqlx.ExtContext, req *models.StudentRequest, _ CapacityOverride) error {
	return s.executor.ApplyAbsence(ctx, exec, req.StudentID, derefString(req.TargetSessionID))
}

func (s *StudentRequestService) prepareMakeup(ctx context.Context, sub *studentSubmission) error {
	payload := sub.payload.(models.MakeupPayload)
	studentID := sub.request.StudentID
	target, err := s.studentSessions.Find(ctx, nil, studentID, payload.TargetSessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.BusinessRule(appErrors.CodeBusinessRule, "Session is not part of the student's schedule")
		}
		return internalError(err, "failed to load student session")
	}
	if target.AttendanceStatus != models.AttendanceAbsent {
		return appErrors.BusinessRule(appErrors.CodeBusinessRule, "Can only makeup absent sessions")
	}
	missed, err := s.sessions.FindDetail(ctx, nil, payload.TargetSessionID)
	if err != nil {
		return lookupError(err, "session not found", "failed to load session")
	}
	makeup, err := s.sessions.FindDetail(ctx, nil, payload.MakeupSessionID)
	if err != nil {
		return lookupError(err, "makeup session not found", "failed to load makeup session")
	}
	if err := validateMakeupSession(missed, makeup, s.now()); err != nil {
		return err
	}
	if _, err := s.studentSessions.Find(ctx, nil, studentID, makeup.ID); err == nil {
		return appErrors.BusinessRule(appErrors.CodeBusinessRule, "Student is already booked into the makeup session")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return internalError(err, "failed to load student session")
	}
	count, err := s.studentSessions.CountBySession(ctx, nil, makeup.ID)
	if err != nil {
		return internalError(err, "failed to count session students")
	}
	return s.guard.CheckSeat(count, makeup.ClassMaxCapacity, sub.override, appErrors.CodeBusinessRule, "Makeup session is full")
}

func validateMakeupSession(missed, makeup *models.SessionDetail, now time.Time) error {
	switch {
	case missed.ID == makeup.ID:
		return appErrors.BusinessRule(appErrors.CodeBusinessRule, "Makeup session must differ from the missed session")
	case missed.CourseSessionID != makeup.CourseSessionID:
		return appErrors.BusinessRule(appErrors.CodeBusinessRule, "Makeup session must cover the same course session")
	case makeup.Status != models.SessionStatusPlanned:
		return appErrors.BusinessRule(appErrors.CodeBusinessRule, "Makeup session is not planned")
	case isPastDate(makeup.Date, now):
		return appErrors.BusinessRule(appErrors.CodePastSession, "Makeup session is in the past")
	}
	return nil
}

func (s *StudentRequestService) approveMakeup(ctx context.Context, exec sqlx.ExtContext, req *models.StudentRequest, override CapacityOverride) error {
	missed, err := s.sessions.FindDetail(ctx, exec, derefString(req.TargetSessionID))
	if err != nil {
		return lookupError(err, "session not found", "failed to load session")
	}
	makeup, err := s.sessions.FindDetail(ctx, exec, derefString(req.MakeupSessionID))
	if err != nil {
		return lookupError(err, "makeup session not found", "failed to load makeup session")
	}
	if err := validateMakeupSession(missed, makeup, s.now()); err != nil {
		return err
	}
	return s.executor.ApplyMakeup(ctx, exec, MakeupExecution{
		StudentID:       req.StudentID,
		TargetSessionID: missed.ID,
		MakeupSessionID: makeup.ID,
		Override:        override,
	})
}

func (s *StudentRequestService) prepareTransfer(ctx context.Context, sub *studentSubmission) error {
	payload := sub.payload.(models.TransferPayload)
	studentID := sub.request.StudentID
	current, err := s.classes.FindByID(ctx, nil, payload.CurrentClassID)
	if err != nil {
		return lookupError(err, "current class not found", "failed to load current class")
	}
	target, err := s.classes.FindByID(ctx, nil, payload.TargetClassID)
	if err != nil {
		return lookupError(err, "target class not found", "failed to load target class")
	}
	if _, err := s.enrollments.FindActive(ctx, nil, studentID, current.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.BusinessRule(appErrors.CodeInvalidTransfer, "Student is not enrolled in the current class")
		}
		return internalError(err, "failed to load enrollment")
	}
	if err := validateTransferTarget(*current, *target); err != nil {
		return err
	}
	if isPastDate(payload.EffectiveDate, s.now()) {
		return appErrors.BusinessRule(appErrors.CodePastEffectiveDate, "Effective date cannot be in the past")
	}
	join, err := s.sessions.FindPlannedByClassAndDate(ctx, nil, target.ID, payload.EffectiveDate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.BusinessRule(appErrors.CodeNoSessionOnDate, "Target class has no scheduled session on the effective date")
		}
		return internalError(err, "failed to load target session")
	}
	enrolled, err := s.enrollments.CountActiveByClass(ctx, nil, target.ID)
	if err != nil {
		return internalError(err, "failed to count target class enrollments")
	}
	if err := s.guard.CheckSeat(enrolled, target.MaxCapacity, sub.override, appErrors.CodeInvalidTransfer, "Target class is full"); err != nil {
		return err
	}
	used, err := s.transfers.CountApprovedTransfers(ctx, nil, studentID, current.CourseID)
	if err != nil {
		return internalError(err, "failed to count approved transfers")
	}
	if err := s.guard.CheckTransferQuota(used); err != nil {
		return err
	}

	tier := transferTier(*current, *target)
	if tier == models.TransferTierStaffApproval && !sub.onBehalf {
		return appErrors.BusinessRule(appErrors.CodeRequiresAAApproval,
			"Transfers across branches or modalities must be submitted by academic affairs")
	}
	sub.request.TransferTier = &tier
	joinID := join.ID
	sub.request.TargetSessionID = &joinID
	return nil
}

func (s *StudentRequestService) approveTransfer(ctx context.Context, exec sqlx.ExtContext, req *models.StudentRequest, override CapacityOverride) error {
	if req.EffectiveDate == nil {
		return appErrors.Clone(appErrors.ErrInvalidInput, "transfer request has no effective date")
	}
	if isPastDate(*req.EffectiveDate, s.now()) {
		return appErrors.BusinessRule(appErrors.CodePastEffectiveDate, "Effective date cannot be in the past")
	}
	join, err := s.executor.ApplyTransfer(ctx, exec, TransferExecution{
		StudentID:      req.StudentID,
		CurrentClassID: derefString(req.CurrentClassID),
		TargetClassID:  derefString(req.TargetClassID),
		EffectiveDate:  *req.EffectiveDate,
		Override:       override,
	})
	if err != nil {
		return err
	}
	joinID := join.ID
	req.TargetSessionID = &joinID
	return nil
}

// reassessTransfer recomputes the tier and content gap for a target class chosen by
// staff at approval. A gap is recorded on the request note.
func (s *StudentRequestService) reassessTransfer(ctx context.Context, exec sqlx.ExtContext, req *models.StudentRequest) error {
	current, err := s.classes.FindByID(ctx, exec, derefString(req.CurrentClassID))
	if err != nil {
		return lookupError(err, "current class not found", "failed to load current class")
	}
	target, err := s.classes.FindByID(ctx, exec, derefString(req.TargetClassID))
	if err != nil {
		return lookupError(err, "target class not found", "failed to load target class")
	}
	tier := transferTier(*current, *target)
	req.TransferTier = &tier

	asOf := dateOnly(s.now())
	currentProgress, err := s.sessions.ListProgress(ctx, current.ID, asOf)
	if err != nil {
		return internalError(err, "failed to load class progress")
	}
	targetProgress, err := s.sessions.ListProgress(ctx, target.ID, asOf)
	if err != nil {
		return internalError(err, "failed to load class progress")
	}
	gap := AnalyzeContentGap(currentProgress, targetProgress)
	if gap.Level != models.ContentGapNone {
		note := appendNote(req.Note, fmt.Sprintf("Content gap %s against %s: %d missed sessions. %s", gap.Level, target.Code, gap.MissedCount, gap.Recommendation))
		req.Note = &note
	}
	s.logger.Info("transfer target overridden at approval",
		zap.String("request_id", req.ID),
		zap.String("target_class", target.ID),
		zap.String("tier", string(tier)),
		zap.String("gap", string(gap.Level)),
	)
	return nil
}

// Approve executes the request's timetable change and marks it APPROVED in one transaction.
func (s *StudentRequestService) Approve(ctx context.Context, id string, req dto.ApproveStudentRequest, actor *models.JWTClaims) (*models.StudentRequest, error) {
	if !isStaff(actor) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only academic staff may approve student requests")
	}
	existing, err := s.requests.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "student request not found", "failed to load student request")
	}
	if err := ensureTransition(models.RequestKindStudent, existing.Status, models.RequestStatusApproved, models.EventApprove); err != nil {
		return nil, err
	}

	override := CapacityOverride{Allow: req.AllowCapacityOverride, Reason: req.OverrideReason}
	var approved *models.StudentRequest
	err = s.executor.Run(ctx, func(exec sqlx.ExtContext) error {
		locked, err := s.requests.LockByID(ctx, exec, id)
		if err != nil {
			return lookupError(err, "student request not found", "failed to lock student request")
		}
		if err := ensureTransition(models.RequestKindStudent, locked.Status, models.RequestStatusApproved, models.EventApprove); err != nil {
			return err
		}
		params := repository.UpdateStudentRequestStatusParams{ID: locked.ID, From: locked.Status, To: models.RequestStatusApproved}
		retarget := false
		switch locked.Type {
		case models.StudentRequestMakeup:
			if v := optionalString(req.MakeupSessionID); v != nil {
				locked.MakeupSessionID = v
				params.MakeupSessionID = v
			}
		case models.StudentRequestTransfer:
			if v := optionalString(req.TargetClassID); v != nil && *v != derefString(locked.TargetClassID) {
				locked.TargetClassID = v
				params.TargetClassID = v
				retarget = true
			}
		}
		rule, ok := s.rules[locked.Type]
		if !ok {
			return appErrors.Clone(appErrors.ErrInvalidInput, "unsupported request type")
		}
		if err := rule.approve(ctx, exec, locked, override); err != nil {
			return err
		}
		if locked.Type == models.StudentRequestTransfer {
			if retarget {
				if err := s.reassessTransfer(ctx, exec, locked); err != nil {
					return err
				}
				params.TransferTier = locked.TransferTier
				params.Note = locked.Note
			}
			params.TargetSessionID = locked.TargetSessionID
		}

		decidedAt := s.now().UTC()
		decidedBy := actor.UserID
		params.DecidedBy = &decidedBy
		params.DecidedAt = &decidedAt
		if strings.TrimSpace(req.Note) != "" {
			note := appendNote(locked.Note, strings.TrimSpace(req.Note))
			params.Note = &note
			locked.Note = &note
		}
		if err := s.requests.UpdateStatus(ctx, exec, params); err != nil {
			return statusUpdateError(err, "failed to approve student request")
		}
		locked.Status = models.RequestStatusApproved
		locked.DecidedBy = &decidedBy
		locked.DecidedAt = &decidedAt
		approved = locked
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterDecision(ctx, actor, models.AuditActionRequestApprove, existing.Status, approved)
	s.invalidateAdvisory(ctx)
	return approved, nil
}

// Reject closes a PENDING request without touching the timetable.
func (s *StudentRequestService) Reject(ctx context.Context, id string, req dto.RejectRequest, actor *models.JWTClaims) (*models.StudentRequest, error) {
	if !isStaff(actor) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only academic staff may reject student requests")
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidInput, "rejection reason is required")
	}
	existing, err := s.requests.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "student request not found", "failed to load student request")
	}
	if err := ensureTransition(models.RequestKindStudent, existing.Status, models.RequestStatusRejected, models.EventReject); err != nil {
		return nil, err
	}
	decidedAt := s.now().UTC()
	decidedBy := actor.UserID
	if err := s.requests.UpdateStatus(ctx, nil, repository.UpdateStudentRequestStatusParams{
		ID:              existing.ID,
		From:            existing.Status,
		To:              models.RequestStatusRejected,
		DecidedBy:       &decidedBy,
		DecidedAt:       &decidedAt,
		RejectionReason: &reason,
	}); err != nil {
		return nil, statusUpdateError(err, "failed to reject student request")
	}
	from := existing.Status
	existing.Status = models.RequestStatusRejected
	existing.DecidedBy = &decidedBy
	existing.DecidedAt = &decidedAt
	existing.RejectionReason = &reason
	s.afterDecision(ctx, actor, models.AuditActionRequestReject, from, existing)
	return existing, nil
}

// Cancel lets the owning student withdraw a PENDING request.
func (s *StudentRequestService) Cancel(ctx context.Context, id string, actor *models.JWTClaims) (*models.StudentRequest, error) {
	if actor == nil || actor.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owning student may cancel a request")
	}
	student, err := s.resolveStudent(ctx, actor)
	if err != nil {
		return nil, err
	}
	existing, err := s.requests.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "student request not found", "failed to load student request")
	}
	if existing.StudentID != student.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owning student may cancel a request")
	}
	if err := ensureTransition(models.RequestKindStudent, existing.Status, models.RequestStatusCancelled, models.EventCancel); err != nil {
		return nil, err
	}
	if err := s.requests.UpdateStatus(ctx, nil, repository.UpdateStudentRequestStatusParams{
		ID:   existing.ID,
		From: existing.Status,
		To:   models.RequestStatusCancelled,
	}); err != nil {
		return nil, statusUpdateError(err, "failed to cancel student request")
	}
	from := existing.Status
	existing.Status = models.RequestStatusCancelled
	s.afterDecision(ctx, actor, models.AuditActionRequestCancel, from, existing)
	return existing, nil
}

// List returns the caller's own requests, or all requests for staff.
func (s *StudentRequestService) List(ctx context.Context, query dto.RequestListQuery, actor *models.JWTClaims) ([]models.StudentRequest, error) {
	filter := models.StudentRequestFilter{
		Type:   models.StudentRequestType(strings.ToUpper(strings.TrimSpace(query.Type))),
		Status: query.Status,
		Limit:  query.Limit,
		Offset: query.Offset,
	}
	switch {
	case isStaff(actor):
	case actor != nil && actor.Role == models.RoleStudent:
		student, err := s.resolveStudent(ctx, actor)
		if err != nil {
			return nil, err
		}
		filter.StudentID = student.ID
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to list student requests")
	}
	requests, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, internalError(err, "failed to list student requests")
	}
	return requests, nil
}

// Get returns one request visible to the caller.
func (s *StudentRequestService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.StudentRequest, error) {
	request, err := s.requests.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "student request not found", "failed to load student request")
	}
	if isStaff(actor) {
		return request, nil
	}
	if actor == nil || actor.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view this request")
	}
	student, err := s.resolveStudent(ctx, actor)
	if err != nil {
		return nil, err
	}
	if request.StudentID != student.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view this request")
	}
	return request, nil
}

func (s *StudentRequestService) afterDecision(ctx context.Context, actor *models.JWTClaims, action string, from models.RequestStatus, req *models.StudentRequest) {
	s.metrics.RecordRequestTransition(string(models.RequestKindStudent), string(req.Type), string(from), string(req.Status))
	s.recordAudit(ctx, actor, action, req)
	s.logger.Info("student request transitioned",
		zap.String("request_id", req.ID),
		zap.String("type", string(req.Type)),
		zap.String("from", string(from)),
		zap.String("to", string(req.Status)),
		zap.String("actor", actor.UserID),
	)
}

func (s *StudentRequestService) recordAudit(ctx context.Context, actor *models.JWTClaims, action string, req *models.StudentRequest) {
	userID := actor.UserID
	resourceID := req.ID
	emitAudit(ctx, s.audit, s.logger, "student-request-service", &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   models.AuditResourceStudentRequest,
		ResourceID: &resourceID,
		NewValues:  auditPayload(req),
	})
}

func (s *StudentRequestService) invalidateAdvisory(ctx context.Context) {
	invalidateAdvisoryCaches(ctx, s.cache)
}
