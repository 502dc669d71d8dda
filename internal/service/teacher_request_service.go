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

type teacherRequestStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, req *models.TeacherRequest) error
	FindByID(ctx context.Context, id string) (*models.TeacherRequest, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TeacherRequest, error)
	List(ctx context.Context, filter models.TeacherRequestFilter) ([]models.TeacherRequest, error)
	ExistsOpen(ctx context.Context, sessionID string, requestType models.TeacherRequestType) (bool, error)
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, params repository.UpdateTeacherRequestStatusParams) error
}

// TeacherRequestDeps groups the stores read by the teacher workflow.
type TeacherRequestDeps struct {
	Requests      teacherRequestStore
	Teachers      teacherDirectory
	Sessions      sessionStore
	TeachingSlots teachingSlotStore
	Resources     sessionResourceStore
	Catalog       catalogStore
	Conflicts     *ConflictDetector
}

// TeacherRequestService runs the swap, reschedule and modality change workflow,
// including the swap confirmation handshake.
type TeacherRequestService struct {
	requests  teacherRequestStore
	teachers  teacherDirectory
	sessions  sessionStore
	slots     teachingSlotStore
	resources sessionResourceStore
	catalog   catalogStore
	conflicts *ConflictDetector
	executor  *TimetableExecutor
	policy    RequestPolicy
	cache     *CacheService
	metrics   *MetricsService
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// TeacherRequestServiceOption configures optional collaborators.
type TeacherRequestServiceOption func(*TeacherRequestService)

// WithTeacherRequestClock overrides the time source.
func WithTeacherRequestClock(now func() time.Time) TeacherRequestServiceOption {
	return func(s *TeacherRequestService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTeacherRequestCache wires advisory cache invalidation.
func WithTeacherRequestCache(cache *CacheService) TeacherRequestServiceOption {
	return func(s *TeacherRequestService) {
		s.cache = cache
	}
}

// WithTeacherRequestMetrics wires transition counters.
func WithTeacherRequestMetrics(metrics *MetricsService) TeacherRequestServiceOption {
	return func(s *TeacherRequestService) {
		s.metrics = metrics
	}
}

// WithTeacherRequestAudit wires the audit trail.
func WithTeacherRequestAudit(audit auditLogger) TeacherRequestServiceOption {
	return func(s *TeacherRequestService) {
		s.audit = audit
	}
}

// NewTeacherRequestService constructs the workflow service.
func NewTeacherRequestService(deps TeacherRequestDeps, executor *TimetableExecutor, policy RequestPolicy, logger *zap.Logger, opts ...TeacherRequestServiceOption) *TeacherRequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &TeacherRequestService{
		requests:  deps.Requests,
		teachers:  deps.Teachers,
		sessions:  deps.Sessions,
		slots:     deps.TeachingSlots,
		resources: deps.Resources,
		catalog:   deps.Catalog,
		conflicts: deps.Conflicts,
		executor:  executor,
		policy:    policy.withDefaults(),
		validator: validator.New(),
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Create files a request for a session the calling teacher is assigned to.
func (s *TeacherRequestService) Create(ctx context.Context, req dto.CreateTeacherRequest, actor *models.JWTClaims) (*models.TeacherRequest, error) {
	if actor == nil || actor.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only teachers may create teacher requests")
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
	teacher, err := s.resolveTeacher(ctx, actor)
	if err != nil {
		return nil, err
	}
	detail, err := s.sessions.FindDetail(ctx, nil, req.SessionID)
	if err != nil {
		return nil, lookupError(err, "session not found", "failed to load session")
	}
	teachingSlots, err := s.slots.ListBySession(ctx, nil, detail.ID)
	if err != nil {
		return nil, internalError(err, "failed to load teaching slots")
	}
	if !assignedTo(teachingSlots, teacher.ID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "teacher is not assigned to this session")
	}
	if detail.Status != models.SessionStatusPlanned || isPastDate(detail.Date, s.now()) {
		return nil, appErrors.BusinessRule(appErrors.CodePastSession, "Requests can only be filed for upcoming planned sessions")
	}
	exists, err := s.requests.ExistsOpen(ctx, detail.ID, payload.RequestType())
	if err != nil {
		return nil, internalError(err, "failed to check open requests")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrDuplicateRequest, fmt.Sprintf("an open %s request already exists for this session", payload.RequestType()))
	}

	switch p := payload.(type) {
	case models.ModalityPayload:
		err = s.validateModality(ctx, detail, p.NewResourceID)
	case models.ReschedulePayload:
		err = s.validateReschedule(ctx, detail, teachingSlots, p)
	case models.SwapPayload:
		if p.ReplacementTeacherID != "" {
			err = s.validateReplacement(ctx, detail, teacher.ID, p.ReplacementTeacherID)
		}
	}
	if err != nil {
		return nil, err
	}

	request := &models.TeacherRequest{
		TeacherID:     teacher.ID,
		SessionID:     detail.ID,
		Status:        models.RequestStatusPending,
		RequestReason: strings.TrimSpace(req.RequestReason),
		Note:          optionalString(req.Note),
		SubmittedAt:   s.now().UTC(),
	}
	request.ApplyPayload(payload)
	if err := s.requests.Create(ctx, nil, request); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrDuplicateRequest, fmt.Sprintf("an open %s request already exists for this session", request.Type))
		}
		return nil, internalError(err, "failed to create teacher request")
	}

	s.metrics.RecordRequestTransition(string(models.RequestKindTeacher), string(request.Type), "NEW", string(request.Status))
	s.recordAudit(ctx, actor, models.AuditActionRequestSubmit, request)
	s.logger.Info("teacher request created",
		zap.String("request_id", request.ID),
		zap.String("type", string(request.Type)),
		zap.String("session_id", request.SessionID),
		zap.String("actor", actor.UserID),
	)
	return request, nil
}

func assignedTo(slots []models.TeachingSlot, teacherID string) bool {
	for _, slot := range slots {
		if slot.TeacherID == teacherID && slot.Status.Occupies() {
			return true
		}
	}
	return false
}

func (s *TeacherRequestService) resolveTeacher(ctx context.Context, actor *models.JWTClaims) (*models.Teacher, error) {
	teacher, err := s.teachers.FindByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "no teacher profile is linked to this account")
		}
		return nil, internalError(err, "failed to resolve teacher")
	}
	return teacher, nil
}

func (s *TeacherRequestService) validateModality(ctx context.Context, detail *models.SessionDetail, resourceID string) error {
	resource, err := s.catalog.FindResource(ctx, resourceID)
	if err != nil {
		return lookupError(err, "resource not found", "failed to load resource")
	}
	if resource.BranchID != detail.BranchID {
		return appErrors.BusinessRule(appErrors.CodeBusinessRule, "Resource belongs to another branch")
	}
	current, err := s.resources.FindBySession(ctx, nil, detail.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return internalError(err, "failed to load session resource")
	}
	if current != nil && current.ResourceID == resource.ID {
		return appErrors.BusinessRule(appErrors.CodeBusinessRule, "Session already uses this resource")
	}
	return s.conflicts.Check(ctx, nil, ConflictCandidate{
		Date:             detail.Date,
		TimeSlotID:       detail.TimeSlotID,
		StartTime:        detail.StartTime,
		EndTime:          detail.EndTime,
		ResourceID:       resource.ID,
		IgnoreSessionIDs: []string{detail.ID},
	})
}

func (s *TeacherRequestService) validateReschedule(ctx context.Context, detail *models.SessionDetail, teachingSlots []models.TeachingSlot, p models.ReschedulePayload) error {
	if isPastDate(p.NewDate, s.now()) {
		return appErrors.BusinessRule(appErrors.CodePastSession, "New date cannot be in the past")
	}
	slot, err := s.catalog.FindTimeSlot(ctx, p.NewTimeSlotID)
	if err != nil {
		return lookupError(err, "time slot not found", "failed to load time slot")
	}
	if sameDay(p.NewDate, detail.Date) && slot.ID == detail.TimeSlotID {
		return appErrors.BusinessRule(appErrors.CodeBusinessRule, "New schedule must differ from the current one")
	}
	resourceID := p.NewResourceID
	if resourceID != "" {
		resource, err := s.catalog.FindResource(ctx, resourceID)
		if err != nil {
			return lookupError(err, "resource not found", "failed to load resource")
		}
		if resource.BranchID != detail.BranchID {
			return appErrors.BusinessRule(appErrors.CodeBusinessRule, "Resource belongs to another branch")
		}
	} else {
		current, err := s.resources.FindBySession(ctx, nil, detail.ID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return internalError(err, "failed to load session resource")
		}
		if current != nil {
			resourceID = current.ResourceID
		}
	}
	return s.conflicts.CheckMove(ctx, nil, SessionMove{
		SessionID:  detail.ID,
		ClassID:    detail.ClassID,
		TeacherIDs: occupyingTeachers(teachingSlots),
		ResourceID: resourceID,
		Date:       p.NewDate,
		Slot:       *slot,
	})
}

func (s *TeacherRequestService) validateReplacement(ctx context.Context, detail *models.SessionDetail, requesterID, replacementID string) error {
	if replacementID == requesterID {
		return appErrors.Clone(appErrors.ErrInvalidInput, "replacement teacher must differ from the requester")
	}
	replacement, err := s.teachers.FindByID(ctx, replacementID)
	if err != nil {
		return lookupError(err, "replacement teacher not found", "failed to load replacement teacher")
	}
	if !replacement.Active {
		return appErrors.BusinessRule(appErrors.CodeBusinessRule, "Replacement teacher is inactive")
	}
	return s.conflicts.Check(ctx, nil, ConflictCandidate{
		Date:             detail.Date,
		TimeSlotID:       detail.TimeSlotID,
		StartTime:        detail.StartTime,
		EndTime:          detail.EndTime,
		TeacherID:        replacement.ID,
		IgnoreSessionIDs: []string{detail.ID},
	})
}

// Approve decides a PENDING request. RESCHEDULE and MODALITY_CHANGE are executed at once;
// SWAP only records the replacement and waits for that teacher's confirmation.
func (s *TeacherRequestService) Approve(ctx context.Context, id string, req dto.ApproveTeacherRequest, actor *models.JWTClaims) (*models.TeacherRequest, error) {
	if !isStaff(actor) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only academic staff may approve teacher requests")
	}
	existing, err := s.requests.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "teacher request not found", "failed to load teacher request")
	}
	if existing.Type == models.TeacherRequestSwap {
		return s.assignReplacement(ctx, existing, req, actor)
	}
	if err := ensureTransition(models.RequestKindTeacher, existing.Status, models.RequestStatusApproved, models.EventApprove); err != nil {
		return nil, err
	}

	var approved *models.TeacherRequest
	err = s.executor.Run(ctx, func(exec sqlx.ExtContext) error {
		locked, err := s.requests.LockByID(ctx, exec, id)
		if err != nil {
			return lookupError(err, "teacher request not found", "failed to lock teacher request")
		}
		if err := ensureTransition(models.RequestKindTeacher, locked.Status, models.RequestStatusApproved, models.EventApprove); err != nil {
			return err
		}
		decidedAt := s.now().UTC()
		decidedBy := actor.UserID
		params := repository.UpdateTeacherRequestStatusParams{
			ID:        locked.ID,
			From:      locked.Status,
			To:        models.RequestStatusApproved,
			DecidedBy: &decidedBy,
			DecidedAt: &decidedAt,
		}

		switch p := locked.Payload().(type) {
		case models.ModalityPayload:
			resourceID := p.NewResourceID
			if v := optionalString(req.NewResourceID); v != nil {
				resourceID = *v
				params.NewResourceID = v
				locked.NewResourceID = v
			}
			if resourceID == "" {
				return appErrors.Clone(appErrors.ErrInvalidInput, "newResourceId is required for MODALITY_CHANGE")
			}
			if err := s.executor.ApplyModalityChange(ctx, exec, locked.SessionID, resourceID); err != nil {
				return err
			}
		case models.ReschedulePayload:
			if v := optionalString(req.NewResourceID); v != nil {
				p.NewResourceID = *v
				params.NewResourceID = v
				locked.NewResourceID = v
			}
			next, err := s.executor.ApplyReschedule(ctx, exec, RescheduleExecution{
				SessionID:     locked.SessionID,
				NewDate:       p.NewDate,
				NewTimeSlotID: p.NewTimeSlotID,
				NewResourceID: p.NewResourceID,
				Today:         s.now(),
			})
			if err != nil {
				return err
			}
			nextID := next.ID
			params.NewSessionID = &nextID
			locked.NewSessionID = &nextID
		default:
			return appErrors.Clone(appErrors.ErrInvalidInput, "unsupported request type")
		}

		if strings.TrimSpace(req.Note) != "" {
			note := appendNote(locked.Note, strings.TrimSpace(req.Note))
			params.Note = &note
			locked.Note = &note
		}
		if err := s.requests.UpdateStatus(ctx, exec, params); err != nil {
			return statusUpdateError(err, "failed to approve teacher request")
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
	s.afterTransition(ctx, actor, models.AuditActionRequestApprove, existing.Status, approved)
	invalidateAdvisoryCaches(ctx, s.cache)
	return approved, nil
}

// assignReplacement moves a PENDING swap to WAITING_CONFIRM without touching teaching slots.
func (s *TeacherRequestService) assignReplacement(ctx context.Context, existing *models.TeacherRequest, req dto.ApproveTeacherRequest, actor *models.JWTClaims) (*models.TeacherRequest, error) {
	if err := ensureTransition(models.RequestKindTeacher, existing.Status, models.RequestStatusWaitingConfirm, models.EventAssignSwap); err != nil {
		return nil, err
	}
	replacementID := strings.TrimSpace(req.ReplacementTeacherID)
	if replacementID == "" {
		replacementID = derefString(existing.ReplacementTeacherID)
	}
	if replacementID == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidInput, "a replacement teacher is required to approve a swap")
	}
	detail, err := s.sessions.FindDetail(ctx, nil, existing.SessionID)
	if err != nil {
		return nil, lookupError(err, "session not found", "failed to load session")
	}
	if err := s.validateReplacement(ctx, detail, existing.TeacherID, replacementID); err != nil {
		return nil, err
	}

	decidedBy := actor.UserID
	params := repository.UpdateTeacherRequestStatusParams{
		ID:                   existing.ID,
		From:                 existing.Status,
		To:                   models.RequestStatusWaitingConfirm,
		ReplacementTeacherID: &replacementID,
		DecidedBy:            &decidedBy,
	}
	if strings.TrimSpace(req.Note) != "" {
		note := appendNote(existing.Note, strings.TrimSpace(req.Note))
		params.Note = &note
		existing.Note = &note
	}
	if err := s.requests.UpdateStatus(ctx, nil, params); err != nil {
		return nil, statusUpdateError(err, "failed to assign swap replacement")
	}
	from := existing.Status
	existing.Status = models.RequestStatusWaitingConfirm
	existing.ReplacementTeacherID = &replacementID
	existing.DecidedBy = &decidedBy
	s.afterTransition(ctx, actor, models.AuditActionSwapAssign, from, existing)
	return existing, nil
}

// Reject closes a PENDING request without touching the timetable.
func (s *TeacherRequestService) Reject(ctx context.Context, id string, req dto.RejectRequest, actor *models.JWTClaims) (*models.TeacherRequest, error) {
	if !isStaff(actor) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only academic staff may reject teacher requests")
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidInput, "rejection reason is required")
	}
	existing, err := s.requests.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "teacher request not found", "failed to load teacher request")
	}
	if err := ensureTransition(models.RequestKindTeacher, existing.Status, models.RequestStatusRejected, models.EventReject); err != nil {
		return nil, err
	}
	decidedAt := s.now().UTC()
	decidedBy := actor.UserID
	if err := s.requests.UpdateStatus(ctx, nil, repository.UpdateTeacherRequestStatusParams{
		ID:              existing.ID,
		From:            existing.Status,
		To:              models.RequestStatusRejected,
		RejectionReason: &reason,
		DecidedBy:       &decidedBy,
		DecidedAt:       &decidedAt,
	}); err != nil {
		return nil, statusUpdateError(err, "failed to reject teacher request")
	}
	from := existing.Status
	existing.Status = models.RequestStatusRejected
	existing.RejectionReason = &reason
	existing.DecidedBy = &decidedBy
	existing.DecidedAt = &decidedAt
	s.afterTransition(ctx, actor, models.AuditActionRequestReject, from, existing)
	return existing, nil
}

// ConfirmSwap is called by the designated replacement. It swaps the teaching slots and
// approves the request in one transaction.
func (s *TeacherRequestService) ConfirmSwap(ctx context.Context, id string, actor *models.JWTClaims) (*models.TeacherRequest, error) {
	teacher, existing, err := s.loadForReplacement(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if err := ensureTransition(models.RequestKindTeacher, existing.Status, models.RequestStatusApproved, models.EventConfirmSwap); err != nil {
		return nil, err
	}

	var confirmed *models.TeacherRequest
	err = s.executor.Run(ctx, func(exec sqlx.ExtContext) error {
		locked, err := s.requests.LockByID(ctx, exec, id)
		if err != nil {
			return lookupError(err, "teacher request not found", "failed to lock teacher request")
		}
		if derefString(locked.ReplacementTeacherID) != teacher.ID {
			return appErrors.Clone(appErrors.ErrForbidden, "only the designated replacement may confirm this swap")
		}
		if err := ensureTransition(models.RequestKindTeacher, locked.Status, models.RequestStatusApproved, models.EventConfirmSwap); err != nil {
			return err
		}
		if err := s.executor.ApplySwap(ctx, exec, locked.SessionID, locked.TeacherID, teacher.ID); err != nil {
			return err
		}
		decidedAt := s.now().UTC()
		if err := s.requests.UpdateStatus(ctx, exec, repository.UpdateTeacherRequestStatusParams{
			ID:        locked.ID,
			From:      locked.Status,
			To:        models.RequestStatusApproved,
			DecidedAt: &decidedAt,
		}); err != nil {
			return statusUpdateError(err, "failed to confirm swap")
		}
		locked.Status = models.RequestStatusApproved
		locked.DecidedAt = &decidedAt
		confirmed = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.afterTransition(ctx, actor, models.AuditActionSwapConfirm, existing.Status, confirmed)
	invalidateAdvisoryCaches(ctx, s.cache)
	return confirmed, nil
}

// DeclineSwap returns the request to PENDING, clears the replacement and marks the note
// so staff can pick someone else.
func (s *TeacherRequestService) DeclineSwap(ctx context.Context, id string, req dto.DeclineSwapRequest, actor *models.JWTClaims) (*models.TeacherRequest, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, appErrors.Clone(appErrors.ErrInvalidInput, "decline reason is required")
	}
	teacher, existing, err := s.loadForReplacement(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	if err := ensureTransition(models.RequestKindTeacher, existing.Status, models.RequestStatusPending, models.EventDeclineSwap); err != nil {
		return nil, err
	}
	note := appendNote(existing.Note, models.SwapDeclinedMarker(teacher.ID)+": "+reason)
	if err := s.requests.UpdateStatus(ctx, nil, repository.UpdateTeacherRequestStatusParams{
		ID:               existing.ID,
		From:             existing.Status,
		To:               models.RequestStatusPending,
		ClearReplacement: true,
		Note:             &note,
	}); err != nil {
		return nil, statusUpdateError(err, "failed to decline swap")
	}
	from := existing.Status
	existing.Status = models.RequestStatusPending
	existing.ReplacementTeacherID = nil
	existing.Note = &note
	s.afterTransition(ctx, actor, models.AuditActionSwapDecline, from, existing)
	return existing, nil
}

// loadForReplacement resolves the calling teacher and checks they are the swap's replacement.
func (s *TeacherRequestService) loadForReplacement(ctx context.Context, id string, actor *models.JWTClaims) (*models.Teacher, *models.TeacherRequest, error) {
	if actor == nil || actor.Role != models.RoleTeacher {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "only the designated replacement teacher may respond to a swap")
	}
	teacher, err := s.resolveTeacher(ctx, actor)
	if err != nil {
		return nil, nil, err
	}
	existing, err := s.requests.FindByID(ctx, id)
	if err != nil {
		return nil, nil, lookupError(err, "teacher request not found", "failed to load teacher request")
	}
	if existing.Type != models.TeacherRequestSwap {
		return nil, nil, appErrors.Clone(appErrors.ErrInvalidStatus, "request is not a swap")
	}
	if derefString(existing.ReplacementTeacherID) != teacher.ID {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "only the designated replacement teacher may respond to a swap")
	}
	return teacher, existing, nil
}

// List returns requests filed by or assigned to the calling teacher, or all requests for staff.
func (s *TeacherRequestService) List(ctx context.Context, query dto.RequestListQuery, actor *models.JWTClaims) ([]models.TeacherRequest, error) {
	filter := models.TeacherRequestFilter{
		Type:   models.TeacherRequestType(strings.ToUpper(strings.TrimSpace(query.Type))),
		Status: query.Status,
		Limit:  query.Limit,
		Offset: query.Offset,
	}
	switch {
	case isStaff(actor):
	case actor != nil && actor.Role == models.RoleTeacher:
		teacher, err := s.resolveTeacher(ctx, actor)
		if err != nil {
			return nil, err
		}
		filter.InvolvingTeacherID = teacher.ID
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to list teacher requests")
	}
	requests, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, internalError(err, "failed to list teacher requests")
	}
	return requests, nil
}

// Get returns one request visible to the caller.
func (s *TeacherRequestService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.TeacherRequest, error) {
	request, err := s.requests.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "teacher request not found", "failed to load teacher request")
	}
	if isStaff(actor) {
		return request, nil
	}
	if actor == nil || actor.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view this request")
	}
	teacher, err := s.resolveTeacher(ctx, actor)
	if err != nil {
		return nil, err
	}
	if request.TeacherID != teacher.ID && derefString(request.ReplacementTeacherID) != teacher.ID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not allowed to view this request")
	}
	return request, nil
}

func (s *TeacherRequestService) afterTransition(ctx context.Context, actor *models.JWTClaims, action string, from models.RequestStatus, req *models.TeacherRequest) {
	s.metrics.RecordRequestTransition(string(models.RequestKindTeacher), string(req.Type), string(from), string(req.Status))
	s.recordAudit(ctx, actor, action, req)
	s.logger.Info("teacher request transitioned",
		zap.String("request_id", req.ID),
		zap.String("type", string(req.Type)),
		zap.String("from", string(from)),
		zap.String("to", string(req.Status)),
		zap.String("actor", actor.UserID),
	)
}

func (s *TeacherRequestService) recordAudit(ctx context.Context, actor *models.JWTClaims, action string, req *models.TeacherRequest) {
	userID := actor.UserID
	resourceID := req.ID
	emitAudit(ctx, s.audit, s.logger, "teacher-request-service", &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   models.AuditResourceTeacherRequest,
		ResourceID: &resourceID,
		NewValues:  auditPayload(req),
	})
}
