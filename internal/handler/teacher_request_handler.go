package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tc-schedule-api/internal/dto"
	"github.com/noah-isme/tc-schedule-api/internal/models"
	"github.com/noah-isme/tc-schedule-api/pkg/response"
)

type teacherRequestService interface {
	Create(ctx context.Context, req dto.CreateTeacherRequest, actor *models.JWTClaims) (*models.TeacherRequest, error)
	Approve(ctx context.Context, id string, req dto.ApproveTeacherRequest, actor *models.JWTClaims) (*models.TeacherRequest, error)
	Reject(ctx context.Context, id string, req dto.RejectRequest, actor *models.JWTClaims) (*models.TeacherRequest, error)
	ConfirmSwap(ctx context.Context, id string, actor *models.JWTClaims) (*models.TeacherRequest, error)
	DeclineSwap(ctx context.Context, id string, req dto.DeclineSwapRequest, actor *models.JWTClaims) (*models.TeacherRequest, error)
	List(ctx context.Context, query dto.RequestListQuery, actor *models.JWTClaims) ([]models.TeacherRequest, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.TeacherRequest, error)
}

// TeacherRequestHandler exposes swap, reschedule and modality change endpoints.
type TeacherRequestHandler struct {
	service teacherRequestService
}

// NewTeacherRequestHandler builds a new handler.
func NewTeacherRequestHandler(service teacherRequestService) *TeacherRequestHandler {
	return &TeacherRequestHandler{service: service}
}

// Create godoc
// @Summary File a swap, reschedule or modality change request
// @Tags Teacher Requests
// @Accept json
// @Produce json
// @Param payload body dto.CreateTeacherRequest true "Request payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /teacher-requests [post]
func (h *TeacherRequestHandler) Create(c *gin.Context) {
	var req dto.CreateTeacherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid teacher request payload"))
		return
	}
	created, err := h.service.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// List godoc
// @Summary List teacher requests
// @Tags Teacher Requests
// @Produce json
// @Param type query string false "SWAP, RESCHEDULE or MODALITY_CHANGE"
// @Param status query string false "Comma separated statuses"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /teacher-requests [get]
func (h *TeacherRequestHandler) List(c *gin.Context) {
	query, page := listQueryFromContext(c)
	items, err := h.service.List(c.Request.Context(), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil, map[string]interface{}{"page": page, "limit": query.Limit})
}

// Get godoc
// @Summary Get a teacher request
// @Tags Teacher Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /teacher-requests/{id} [get]
func (h *TeacherRequestHandler) Get(c *gin.Context) {
	item, err := h.service.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Approve godoc
// @Summary Approve a pending teacher request
// @Description Reschedule and modality change are applied at once; a swap moves to WAITING_CONFIRM.
// @Tags Teacher Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.ApproveTeacherRequest false "Staff overrides"
// @Success 200 {object} response.Envelope
// @Router /teacher-requests/{id}/approve [post]
func (h *TeacherRequestHandler) Approve(c *gin.Context) {
	var req dto.ApproveTeacherRequest
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
// @Summary Reject a pending teacher request
// @Tags Teacher Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.RejectRequest true "Rejection reason"
// @Success 200 {object} response.Envelope
// @Router /teacher-requests/{id}/reject [post]
func (h *TeacherRequestHandler) Reject(c *gin.Context) {
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

// Confirm godoc
// @Summary Confirm a swap as the designated replacement
// @Tags Teacher Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /teacher-requests/{id}/confirm [post]
func (h *TeacherRequestHandler) Confirm(c *gin.Context) {
	item, err := h.service.ConfirmSwap(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Decline godoc
// @Summary Decline a swap as the designated replacement
// @Tags Teacher Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.DeclineSwapRequest true "Decline reason"
// @Success 200 {object} response.Envelope
// @Router /teacher-requests/{id}/decline [post]
func (h *TeacherRequestHandler) Decline(c *gin.Context) {
	var req dto.DeclineSwapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid decline payload"))
		return
	}
	item, err := h.service.DeclineSwap(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}
