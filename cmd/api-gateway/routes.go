package main

import (
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/tc-schedule-api/internal/handler"
	internalmiddleware "github.com/noah-isme/tc-schedule-api/internal/middleware"
	"github.com/noah-isme/tc-schedule-api/internal/models"
	"github.com/noah-isme/tc-schedule-api/internal/repository"
	"github.com/noah-isme/tc-schedule-api/internal/service"
	"github.com/noah-isme/tc-schedule-api/pkg/config"
)

type requestHandlers struct {
	students *handler.StudentRequestHandler
	teachers *handler.TeacherRequestHandler
	planning *handler.PlanningHandler
}

func buildRequestHandlers(db *sqlx.DB, cfg *config.Config, cacheSvc *service.CacheService, metrics *service.MetricsService, audit *service.AuditDispatcher, logr *zap.Logger) requestHandlers {
	studentRequests := repository.NewStudentRequestRepository(db)
	teacherRequests := repository.NewTeacherRequestRepository(db)
	sessions := repository.NewSessionRepository(db)
	teachingSlots := repository.NewTeachingSlotRepository(db)
	sessionResources := repository.NewSessionResourceRepository(db)
	studentSessions := repository.NewStudentSessionRepository(db)
	enrollments := repository.NewEnrollmentRepository(db)
	classes := repository.NewClassRepository(db)
	students := repository.NewStudentRepository(db)
	teachers := repository.NewTeacherRepository(db)
	catalog := repository.NewCatalogRepository(db)

	guard := service.NewCapacityGuard(cfg.Requests.OverrideReasonMinLength, cfg.Requests.TransferQuotaPerCourse)
	policy := service.RequestPolicy{
		ReasonMinLength:     cfg.Requests.ReasonMinLength,
		AbsenceLookbackDays: cfg.Requests.AbsenceLookbackDays,
	}
	conflicts := service.NewConflictDetector(sessions, metrics, logr.Named("conflicts"))
	executor := service.NewTimetableExecutor(db, service.TimetableExecutorDeps{
		Sessions:        sessions,
		TeachingSlots:   teachingSlots,
		Resources:       sessionResources,
		StudentSessions: studentSessions,
		Enrollments:     enrollments,
		Classes:         classes,
		Catalog:         catalog,
		Transfers:       studentRequests,
		Conflicts:       conflicts,
		Metrics:         metrics,
	}, guard, cfg.Requests.LockTimeout, logr.Named("executor"))

	studentSvc := service.NewStudentRequestService(service.StudentRequestDeps{
		Requests:        studentRequests,
		Students:        students,
		Sessions:        sessions,
		StudentSessions: studentSessions,
		Enrollments:     enrollments,
		Classes:         classes,
		Transfers:       studentRequests,
	}, executor, guard, policy, logr.Named("student_requests"),
		service.WithStudentRequestCache(cacheSvc),
		service.WithStudentRequestMetrics(metrics),
		service.WithStudentRequestAudit(audit),
	)
	teacherSvc := service.NewTeacherRequestService(service.TeacherRequestDeps{
		Requests:      teacherRequests,
		Teachers:      teachers,
		Sessions:      sessions,
		TeachingSlots: teachingSlots,
		Resources:     sessionResources,
		Catalog:       catalog,
		Conflicts:     conflicts,
	}, executor, policy, logr.Named("teacher_requests"),
		service.WithTeacherRequestCache(cacheSvc),
		service.WithTeacherRequestMetrics(metrics),
		service.WithTeacherRequestAudit(audit),
	)
	transferSvc := service.NewTransferService(students, enrollments, classes, sessions, studentRequests, guard, logr.Named("transfers"),
		service.WithTransferCache(cacheSvc, cfg.Requests.SuggestionCacheTTL),
	)
	suggestionSvc := service.NewScheduleSuggestionService(sessions, teachingSlots, studentSessions, catalog, teachers, conflicts,
		cacheSvc, cfg.Requests.SuggestionCacheTTL, logr.Named("suggestions"))

	return requestHandlers{
		students: handler.NewStudentRequestHandler(studentSvc),
		teachers: handler.NewTeacherRequestHandler(teacherSvc),
		planning: handler.NewPlanningHandler(transferSvc, suggestionSvc),
	}
}

func registerRequestRoutes(api *gin.RouterGroup, h requestHandlers) {
	staff := internalmiddleware.RequireStaff()
	studentOrStaff := internalmiddleware.RequireStaff(models.RoleStudent)
	teacherOrStaff := internalmiddleware.RequireStaff(models.RoleTeacher)
	teacherOnly := internalmiddleware.RequireRoles(models.RoleTeacher)

	studentRequests := api.Group("/student-requests")
	studentRequests.POST("", studentOrStaff, h.students.Submit)
	studentRequests.GET("", studentOrStaff, h.students.List)
	studentRequests.GET("/:id", studentOrStaff, h.students.Get)
	studentRequests.POST("/:id/approve", staff, h.students.Approve)
	studentRequests.POST("/:id/reject", staff, h.students.Reject)
	studentRequests.POST("/:id/cancel", internalmiddleware.RequireRoles(models.RoleStudent), h.students.Cancel)

	students := api.Group("/students/:studentId")
	students.GET("/transfer-eligibility", studentOrStaff, h.planning.TransferEligibility)
	students.GET("/transfer-options", studentOrStaff, h.planning.TransferOptions)

	teacherRequests := api.Group("/teacher-requests")
	teacherRequests.POST("", teacherOnly, h.teachers.Create)
	teacherRequests.GET("", teacherOrStaff, h.teachers.List)
	teacherRequests.GET("/:id", teacherOrStaff, h.teachers.Get)
	teacherRequests.POST("/:id/approve", staff, h.teachers.Approve)
	teacherRequests.POST("/:id/reject", staff, h.teachers.Reject)
	teacherRequests.POST("/:id/confirm", teacherOnly, h.teachers.Confirm)
	teacherRequests.POST("/:id/decline", teacherOnly, h.teachers.Decline)

	sessions := api.Group("/sessions/:sessionId")
	sessions.GET("/suggested-slots", teacherOrStaff, h.planning.SuggestedSlots)
	sessions.GET("/suggested-resources", teacherOrStaff, h.planning.SuggestedResources)
	sessions.GET("/swap-candidates", teacherOrStaff, h.planning.SwapCandidates)
}
