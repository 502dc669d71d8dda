package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/tc-schedule-api/internal/models"
	appErrors "github.com/noah-isme/tc-schedule-api/pkg/errors"
)

// ScheduleSuggestionService offers advisory, lock-free lookups that help a teacher fill in
// a reschedule, modality change or swap request. Results may be stale by submission time.
type ScheduleSuggestionService struct {
	sessions        sessionStore
	slots           teachingSlotStore
	studentSessions studentSessionStore
	catalog         catalogStore
	teachers        teacherDirectory
	conflicts       *ConflictDetector
	cache           *CacheService
	cacheTTL        time.Duration
	logger          *zap.Logger
}

// NewScheduleSuggestionService constructs the service.
func NewScheduleSuggestionService(sessions sessionStore, slots teachingSlotStore, studentSessions studentSessionStore, catalog catalogStore, teachers teacherDirectory, conflicts *ConflictDetector, cache *CacheService, cacheTTL time.Duration, logger *zap.Logger) *ScheduleSuggestionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleSuggestionService{
		sessions:        sessions,
		slots:           slots,
		studentSessions: studentSessions,
		catalog:         catalog,
		teachers:        teachers,
		conflicts:       conflicts,
		cache:           cache,
		cacheTTL:        cacheTTL,
		logger:          logger,
	}
}

// SuggestSlots lists the branch's time slots on date where the session's teachers and class are free.
func (s *ScheduleSuggestionService) SuggestSlots(ctx context.Context, sessionID string, date time.Time, actor *models.JWTClaims) ([]models.TimeSlot, error) {
	detail, teachingSlots, _, err := s.loadSession(ctx, sessionID, actor)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%sslots:%s:%s", suggestionCachePrefix, sessionID, dateOnly(date).Format("2006-01-02"))
	var cached []models.TimeSlot
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}

	timeSlots, err := s.catalog.ListTimeSlots(ctx, detail.BranchID)
	if err != nil {
		return nil, internalError(err, "failed to load time slots")
	}
	teacherIDs := occupyingTeachers(teachingSlots)
	bookings := make([]models.Booking, 0)
	for _, teacherID := range teacherIDs {
		rows, err := s.conflicts.Bookings(ctx, models.BookingFilter{Date: date, TeacherID: teacherID})
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, rows...)
	}
	classRows, err := s.conflicts.Bookings(ctx, models.BookingFilter{Date: date, ClassID: detail.ClassID})
	if err != nil {
		return nil, err
	}
	bookings = append(bookings, classRows...)

	free := make([]models.TimeSlot, 0, len(timeSlots))
	for _, slot := range timeSlots {
		if sameDay(date, detail.Date) && slot.ID == detail.TimeSlotID {
			continue
		}
		base := ConflictCandidate{
			Date:             date,
			TimeSlotID:       slot.ID,
			StartTime:        slot.StartTime,
			EndTime:          slot.EndTime,
			ClassID:          detail.ClassID,
			IgnoreSessionIDs: []string{detail.ID},
		}
		if FindConflict(base, bookings) != nil {
			continue
		}
		busy := false
		for _, teacherID := range teacherIDs {
			candidate := base
			candidate.ClassID = ""
			candidate.TeacherID = teacherID
			if FindConflict(candidate, bookings) != nil {
				busy = true
				break
			}
		}
		if !busy {
			free = append(free, slot)
		}
	}
	_ = s.cache.Set(ctx, key, free, s.cacheTTL)
	return free, nil
}

// modalityResourceTypes maps a class modality to the resource types that can host it.
func modalityResourceTypes(modality models.Modality) []models.ResourceType {
	switch modality {
	case models.ModalityOnline:
		return []models.ResourceType{models.ResourceTypeVirtual}
	case models.ModalityHybrid:
		return []models.ResourceType{models.ResourceTypeRoom, models.ResourceTypeVirtual}
	default:
		return []models.ResourceType{models.ResourceTypeRoom}
	}
}

// SuggestResources lists free resources for the session at date and time slot. Rooms must
// seat the session's booked students. Empty date or timeSlotID fall back to the session's own.
func (s *ScheduleSuggestionService) SuggestResources(ctx context.Context, sessionID string, date *time.Time, timeSlotID string, actor *models.JWTClaims) ([]models.Resource, error) {
	detail, _, _, err := s.loadSession(ctx, sessionID, actor)
	if err != nil {
		return nil, err
	}
	at := detail.Date
	if date != nil {
		at = *date
	}
	slot := models.TimeSlot{ID: detail.TimeSlotID, StartTime: detail.StartTime, EndTime: detail.EndTime}
	if strings.TrimSpace(timeSlotID) != "" {
		found, err := s.catalog.FindTimeSlot(ctx, timeSlotID)
		if err != nil {
			return nil, lookupError(err, "time slot not found", "failed to load time slot")
		}
		slot = *found
	}
	key := fmt.Sprintf("%sresources:%s:%s:%s", suggestionCachePrefix, sessionID, dateOnly(at).Format("2006-01-02"), slot.ID)
	var cached []models.Resource
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}

	resources, err := s.catalog.ListResources(ctx, detail.BranchID, modalityResourceTypes(detail.Modality))
	if err != nil {
		return nil, internalError(err, "failed to load resources")
	}
	seated, err := s.studentSessions.CountBySession(ctx, nil, detail.ID)
	if err != nil {
		return nil, internalError(err, "failed to count session students")
	}
	bookings, err := s.conflicts.Bookings(ctx, models.BookingFilter{Date: at, BranchID: detail.BranchID})
	if err != nil {
		return nil, err
	}

	free := make([]models.Resource, 0, len(resources))
	for _, resource := range resources {
		if resource.Type == models.ResourceTypeRoom && resource.Capacity > 0 && resource.Capacity < seated {
			continue
		}
		candidate := ConflictCandidate{
			Date:             at,
			TimeSlotID:       slot.ID,
			StartTime:        slot.StartTime,
			EndTime:          slot.EndTime,
			ResourceID:       resource.ID,
			IgnoreSessionIDs: []string{detail.ID},
		}
		if FindConflict(candidate, bookings) == nil {
			free = append(free, resource)
		}
	}
	_ = s.cache.Set(ctx, key, free, s.cacheTTL)
	return free, nil
}

// SuggestSwapCandidates ranks active teachers other than the session's own: free at the
// session's slot first, then those whose skills name the course, then by name.
func (s *ScheduleSuggestionService) SuggestSwapCandidates(ctx context.Context, sessionID string, actor *models.JWTClaims) ([]models.SwapCandidate, error) {
	detail, teachingSlots, requesterID, err := s.loadSession(ctx, sessionID, actor)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%sswap:%s:%s", suggestionCachePrefix, sessionID, requesterID)
	var cached []models.SwapCandidate
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return cached, nil
	}

	exclude := make([]string, 0, len(teachingSlots)+1)
	for _, slot := range teachingSlots {
		exclude = append(exclude, slot.TeacherID)
	}
	if requesterID != "" {
		exclude = append(exclude, requesterID)
	}
	teachers, err := s.teachers.ListActive(ctx, exclude)
	if err != nil {
		return nil, internalError(err, "failed to load teachers")
	}
	bookings, err := s.conflicts.Bookings(ctx, models.BookingFilter{Date: detail.Date})
	if err != nil {
		return nil, err
	}

	candidates := make([]models.SwapCandidate, 0, len(teachers))
	for _, teacher := range teachers {
		candidate := models.SwapCandidate{Teacher: teacher, Available: true, SkillMatch: teacher.HasSkill(detail.CourseCode)}
		check := ConflictCandidate{
			Date:             detail.Date,
			TimeSlotID:       detail.TimeSlotID,
			StartTime:        detail.StartTime,
			EndTime:          detail.EndTime,
			TeacherID:        teacher.ID,
			IgnoreSessionIDs: []string{detail.ID},
		}
		for {
			conflict := FindConflict(check, bookings)
			if conflict == nil {
				break
			}
			candidate.Available = false
			candidate.ConflictIDs = append(candidate.ConflictIDs, conflict.SessionID)
			check.IgnoreSessionIDs = append(check.IgnoreSessionIDs, conflict.SessionID)
		}
		candidates = append(candidates, candidate)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Available != b.Available {
			return a.Available
		}
		if a.SkillMatch != b.SkillMatch {
			return a.SkillMatch
		}
		return a.Teacher.FullName < b.Teacher.FullName
	})
	_ = s.cache.Set(ctx, key, candidates, s.cacheTTL)
	return candidates, nil
}

// loadSession returns the session with its teaching slots after checking the caller may
// plan around it. For a teacher it also returns their teacher id.
func (s *ScheduleSuggestionService) loadSession(ctx context.Context, sessionID string, actor *models.JWTClaims) (*models.SessionDetail, []models.TeachingSlot, string, error) {
	if actor == nil || (!isStaff(actor) && actor.Role != models.RoleTeacher) {
		return nil, nil, "", appErrors.Clone(appErrors.ErrForbidden, "not allowed to request schedule suggestions")
	}
	detail, err := s.sessions.FindDetail(ctx, nil, sessionID)
	if err != nil {
		return nil, nil, "", lookupError(err, "session not found", "failed to load session")
	}
	teachingSlots, err := s.slots.ListBySession(ctx, nil, sessionID)
	if err != nil {
		return nil, nil, "", internalError(err, "failed to load teaching slots")
	}
	if isStaff(actor) {
		return detail, teachingSlots, "", nil
	}
	teacher, err := s.teachers.FindByUserID(ctx, actor.UserID)
	if err != nil {
		return nil, nil, "", lookupError(err, "teacher not found", "failed to resolve teacher")
	}
	for _, slot := range teachingSlots {
		if slot.TeacherID == teacher.ID {
			return detail, teachingSlots, teacher.ID, nil
		}
	}
	return nil, nil, "", appErrors.Clone(appErrors.ErrForbidden, "teacher is not assigned to this session")
}
