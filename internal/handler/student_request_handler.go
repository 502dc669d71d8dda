package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tc-schedule-api/internal/dto"
	"github.com/noah-isme/tc-schedule-api/internal/models"
	"github.com/noah-isme/tc-schedule-api/pkg/response"
)

type studentRequestService interface {
	Submit(ctx context.Context, req dto.SubmitStudentRequest, actor *models.JWTClaims) (*models.StudentRequest, error)
	Approve(ctx context.Context, id string, req dto.ApproveStudentRequest, actor *models.JWTClaims) (*models.StudentRequest, error)
	Reject(ctx context.Context, id string, req dto.RejectRequest, actor *models.JWTClaims) (*models.StudentRequest, error)
	Cancel(ctx context.Context, id string, actor *models.JWTClaims) (*models.StudentRequest, error)
	List(ctx context.Context, query dto.RequestListQuery, actor *models.JWTClaims) ([]models.StudentRequest, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.StudentRequest, error)
}

// StudentRequestHandler exposes the absence, makeup and transfer request endpoints.
type StudentRequestHandler struct {
	service studentRequestService
}

// NewStudentRequestHandler builds a new handler.
func NewStudentRequestHandler(service studentRequestService) *StudentRequestHandler {
	return &StudentRequestHandler{service: service}
}

// Submit godoc
// @Summary Submit an absence, makeup or transfer request
// @Tags Student Requests
// @Accept json
// @Produce json
// @Param payload body dto.SubmitStudentRequest true "Request payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /student-requests [post]
func (h *StudentRequestHandler) Submit(c *gin.Context) {
	var req dto.SubmitStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid student request payload"))
		return
	}
	created, err := h.service.Submit(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// List godoc
// @Summary List student requests
// @Tags Student Requests
// @Produce json
// @Param type query string false "ABSENCE, MAKEUP or TRANSFER"
// @Param status query string false "Comma separated statuses"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /student-requests [get]
func (h *StudentRequestHandler) List(c *gin.Context) {
	query, page := listQueryFromContext(c)
	items, err := h.service.List(c.Request.Context(), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil, map[string]interface{}{"page": page, "limit": query.Limit})
}

// Get godoc
// @Summary Get a student request
// @Tags Student Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /student-requests/{id} [get]
func (h *StudentRequestHandler) Get(c *gin.Context) {
	item, err := h.service.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Approve godoc
// @Summary Approve a pending student request and apply it to the timetable
// @Tags Student Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.ApproveStudentRequest false "Staff overrides"
// @Success 200 {object} response.Envelope
// @Router /student-requests/{id}/approve [post]
func (h *StudentRequestHandler) Approve(c *gin.Context) {
	var req dto.ApproveStudentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, bindError(err, "invalid approval payload"))
			return
		}
	}
	item, err := h.service.Approve(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Reject godoc
// @Summary Reject a pending student request
// @Tags Student Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.RejectRequest true "Rejection reason"
// @Success 200 {object} response.Envelope
// @Router /student-requests/{id}/reject [post]
func (h *StudentRequestHandler) Reject(c *gin.Context) {
	var req dto.RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid rejection payload"))
		return
	}
	item, err := h.service.Reject(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Cancel godoc
// @Summary Cancel an own pending request
// @Tags Student Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /student-requests/{id}/cancel [post]
func (h *StudentRequestHandler) Cancel(c *gin.Context) {
	item, err := h.service.Cancel(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}
