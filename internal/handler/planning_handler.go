package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tc-schedule-api/internal/dto"
	"github.com/noah-isme/tc-schedule-api/internal/models"
	appErrors "github.com/noah-isme/tc-schedule-api/pkg/errors"
	"github.com/noah-isme/tc-schedule-api/pkg/response"
)

type transferAdvisor interface {
	GetTransferEligibility(ctx context.Context, studentID string, actor *models.JWTClaims) (*models.TransferEligibility, error)
	GetTransferOptions(ctx context.Context, studentID, currentClassID string, actor *models.JWTClaims) ([]models.TransferOption, error)
}

type scheduleAdvisor interface {
	SuggestSlots(ctx context.Context, sessionID string, date time.Time, actor *models.JWTClaims) ([]models.TimeSlot, error)
	SuggestResources(ctx context.Context, sessionID string, date *time.Time, timeSlotID string, actor *models.JWTClaims) ([]models.Resource, error)
	SuggestSwapCandidates(ctx context.Context, sessionID string, actor *models.JWTClaims) ([]models.SwapCandidate, error)
}

// PlanningHandler exposes the read-only advisory endpoints used before filing a request.
type PlanningHandler struct {
	transfers transferAdvisor
	schedule  scheduleAdvisor
}

// NewPlanningHandler builds a new handler.
func NewPlanningHandler(transfers transferAdvisor, schedule scheduleAdvisor) *PlanningHandler {
	return &PlanningHandler{transfers: transfers, schedule: schedule}
}

// TransferEligibility godoc
// @Summary Check whether a student may request a transfer
// @Tags Transfers
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/transfer-eligibility [get]
func (h *PlanningHandler) TransferEligibility(c *gin.Context) {
	result, err := h.transfers.GetTransferEligibility(c.Request.Context(), c.Param("studentId"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// TransferOptions godoc
// @Summary List sibling classes a student could transfer into
// @Tags Transfers
// @Produce json
// @Param studentId path string true "Student ID"
// @Param currentClassId query string true "Current class ID"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/transfer-options [get]
func (h *PlanningHandler) TransferOptions(c *gin.Context) {
	options, err := h.transfers.GetTransferOptions(c.Request.Context(), c.Param("studentId"), c.Query("currentClassId"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, options, nil)
}

// SuggestedSlots godoc
// @Summary List free time slots for rescheduling a session
// @Tags Suggestions
// @Produce json
// @Param sessionId path string true "Session ID"
// @Param date query string true "Target date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /sessions/{sessionId}/suggested-slots [get]
func (h *PlanningHandler) SuggestedSlots(c *gin.Context) {
	raw := strings.TrimSpace(c.Query("date"))
	if raw == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrInvalidInput, "date is required"))
		return
	}
	date, err := dto.ParseDate(raw)
	if err != nil {
		response.Error(c, err)
		return
	}
	slots, err := h.schedule.SuggestSlots(c.Request.Context(), c.Param("sessionId"), date, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// SuggestedResources godoc
// @Summary List free rooms or virtual links for a session
// @Tags Suggestions
// @Produce json
// @Param sessionId path string true "Session ID"
// @Param date query string false "Date (defaults to the session date)"
// @Param timeSlotId query string false "Time slot (defaults to the session slot)"
// @Success 200 {object} response.Envelope
// @Router /sessions/{sessionId}/suggested-resources [get]
func (h *PlanningHandler) SuggestedResources(c *gin.Context) {
	var date *time.Time
	if raw := strings.TrimSpace(c.Query("date")); raw != "" {
		parsed, err := dto.ParseDate(raw)
		if err != nil {
			response.Error(c, err)
			return
		}
		date = &parsed
	}
	resources, err := h.schedule.SuggestResources(c.Request.Context(), c.Param("sessionId"), date, c.Query("timeSlotId"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resources, nil)
}

// SwapCandidates godoc
// @Summary Rank teachers who could take over a session
// @Tags Suggestions
// @Produce json
// @Param sessionId path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /sessions/{sessionId}/swap-candidates [get]
func (h *PlanningHandler) SwapCandidates(c *gin.Context) {
	candidates, err := h.schedule.SuggestSwapCandidates(c.Request.Context(), c.Param("sessionId"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, candidates, nil)
}
