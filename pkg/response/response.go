package response

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tc-schedule-api/internal/models"
	appErrors "github.com/noah-isme/tc-schedule-api/pkg/errors"
	"github.com/noah-isme/tc-schedule-api/pkg/middleware/requestid"
)

// StartedAtKey holds the request start time on the gin context.
const StartedAtKey = "response_started_at"

// Envelope represents the common response contract.
type Envelope struct {
	Data       interface{}            `json:"data,omitempty"`
	Error      *appErrors.Error       `json:"error,omitempty"`
	Pagination *models.Pagination     `json:"pagination,omitempty"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
}

// JSON sends a success response with optional pagination metadata.
func JSON(c *gin.Context, status int, data interface{}, pagination *models.Pagination, meta ...map[string]interface{}) {
	noStore(c)
	envelope := Envelope{Data: data, Pagination: pagination}
	if len(meta) > 0 && meta[0] != nil {
		envelope.Meta = meta[0]
	}
	envelope.Meta = withRequestMeta(c, envelope.Meta)
	c.JSON(status, envelope)
}

// Created responds with HTTP 201 Created.
func Created(c *gin.Context, data interface{}) {
	JSON(c, http.StatusCreated, data, nil)
}

// Error sends an error response converting the error to the common structure.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	noStore(c)
	c.JSON(appErr.Status, Envelope{Error: appErr, Meta: withRequestMeta(c, nil)})
}

func noStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
}

func withRequestMeta(c *gin.Context, meta map[string]interface{}) map[string]interface{} {
	started, ok := c.Get(StartedAtKey)
	reqID := requestid.Value(c)
	if !ok && reqID == "" {
		return meta
	}
	if meta == nil {
		meta = map[string]interface{}{}
	}
	if t, isTime := started.(time.Time); ok && isTime {
		meta["processingTimeMs"] = time.Since(t).Milliseconds()
	}
	if reqID != "" {
		meta["requestId"] = reqID
	}
	return meta
}
