package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tc-schedule-api/internal/dto"
	"github.com/noah-isme/tc-schedule-api/internal/middleware"
	"github.com/noah-isme/tc-schedule-api/internal/models"
	appErrors "github.com/noah-isme/tc-schedule-api/pkg/errors"
)

const (
	defaultPageSize = 20
	maxPageSize     = 200
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.Actor(c)
}

// listQueryFromContext reads type, status, page and limit query parameters.
func listQueryFromContext(c *gin.Context) (dto.RequestListQuery, int) {
	page := 1
	if v, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil && v > 0 {
		page = v
	}
	size := defaultPageSize
	if v, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize))); err == nil && v > 0 {
		size = v
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return dto.RequestListQuery{
		Type:   c.Query("type"),
		Status: dto.ParseStatuses(c.Query("status")),
		Limit:  size,
		Offset: (page - 1) * size,
	}, page
}

func bindError(err error, message string) error {
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message)
}
