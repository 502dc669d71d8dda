package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tc-schedule-api/internal/dto"
	"github.com/noah-isme/tc-schedule-api/internal/middleware"
	"github.com/noah-isme/tc-schedule-api/internal/models"
	appErrors "github.com/noah-isme/tc-schedule-api/pkg/errors"
)

type studentRequestServiceStub struct {
	submitted *dto.SubmitStudentRequest
	approved  *dto.ApproveStudentRequest
	query     dto.RequestListQuery
	actor     *models.JWTClaims
	resp      *models.StudentRequest
	err       error
}

func (s *studentRequestServiceStub) Submit(ctx context.Context, req dto.SubmitStudentRequest, actor *models.JWTClaims) (*models.StudentRequest, error) {
	s.submitted = &req
	s.actor = actor
	return s.resp, s.err
}

func (s *studentRequestServiceStub) Approve(ctx context.Context, id string, req dto.ApproveStudentRequest, actor *models.JWTClaims) (*models.StudentRequest, error) {
	s.approved = &req
	return s.resp, s.err
}

func (s *studentRequestServiceStub) Reject(ctx context.Context, id string, req dto.RejectRequest, actor *models.JWTClaims) (*models.StudentRequest, error) {
	return s.resp, s.err
}

func (s *studentRequestServiceStub) Cancel(ctx context.Context, id string, actor *models.JWTClaims) (*models.StudentRequest, error) {
	return s.resp, s.err
}

func (s *studentRequestServiceStub) List(ctx context.Context, query dto.RequestListQuery, actor *models.JWTClaims) ([]models.StudentRequest, error) {
	s.query = query
	if s.resp == nil {
		return nil, s.err
	}
	return []models.StudentRequest{*s.resp}, s.err
}

func (s *studentRequestServiceStub) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.StudentRequest, error) {
	return s.resp, s.err
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newRequestContext(method, target string, body []byte, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var req *http.Request
	if body != nil {
		req, _ = http.NewRequest(method, target, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, _ = http.NewRequest(method, target, nil)
	}
	c.Request = req
	if claims != nil {
		c.Set(middleware.ContextActorKey, claims)
	}
	return c, w
}

func TestStudentRequestHandlerSubmit(t *testing.T) {
	svc := &studentRequestServiceStub{resp: &models.StudentRequest{ID: "req-1", Status: models.RequestStatusPending}}
	h := NewStudentRequestHandler(svc)
	claims := &models.JWTClaims{UserID: "user-1", Role: models.RoleStudent}
	c, w := newRequestContext(http.MethodPost, "/student-requests", []byte(`{"requestType":"ABSENCE","targetSessionId":"s-1","requestReason":"Family wedding out of town"}`), claims)

	h.Submit(c)

	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, svc.submitted)
	assert.Equal(t, models.StudentRequestAbsence, svc.submitted.RequestType)
	assert.Equal(t, "s-1", svc.submitted.TargetSessionID)
	assert.Same(t, claims, svc.actor)
}

func TestStudentRequestHandlerSubmitBadJSON(t *testing.T) {
	h := NewStudentRequestHandler(&studentRequestServiceStub{})
	c, w := newRequestContext(http.MethodPost, "/student-requests", []byte(`{"requestType":`), nil)

	h.Submit(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, appErrors.ErrValidation.Code, body.Error.Code)
}

func TestStudentRequestHandlerErrorStatus(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"duplicate", appErrors.Clone(appErrors.ErrDuplicateRequest, "already open"), http.StatusConflict, "DUPLICATE_REQUEST"},
		{"capacity", appErrors.BusinessRule(appErrors.CodeCapacityExceeded, "full"), http.StatusUnprocessableEntity, appErrors.CodeCapacityExceeded},
		{"lock", appErrors.Clone(appErrors.ErrLockTimeout, "busy"), http.StatusServiceUnavailable, "LOCK_TIMEOUT"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewStudentRequestHandler(&studentRequestServiceStub{err: tc.err})
			c, w := newRequestContext(http.MethodPost, "/student-requests", []byte(`{}`), nil)

			h.Submit(c)

			require.Equal(t, tc.status, w.Code)
			var body errorBody
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tc.code, body.Error.Code)
		})
	}
}

func TestStudentRequestHandlerListQuery(t *testing.T) {
	svc := &studentRequestServiceStub{resp: &models.StudentRequest{ID: "req-1"}}
	h := NewStudentRequestHandler(svc)
	c, w := newRequestContext(http.MethodGet, "/student-requests?type=MAKEUP&status=pending,approved&page=3&limit=10", nil, nil)

	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "MAKEUP", svc.query.Type)
	assert.Equal(t, []models.RequestStatus{models.RequestStatusPending, models.RequestStatusApproved}, svc.query.Status)
	assert.Equal(t, 10, svc.query.Limit)
	assert.Equal(t, 20, svc.query.Offset)
}

func TestStudentRequestHandlerApproveWithoutBody(t *testing.T) {
	svc := &studentRequestServiceStub{resp: &models.StudentRequest{ID: "req-1", Status: models.RequestStatusApproved}}
	h := NewStudentRequestHandler(svc)
	c, w := newRequestContext(http.MethodPost, "/student-requests/req-1/approve", nil, nil)
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}

	h.Approve(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.approved)
	assert.False(t, svc.approved.AllowCapacityOverride)
}

type teacherRequestServiceStub struct {
	approved *dto.ApproveTeacherRequest
	declined *dto.DeclineSwapRequest
	resp     *models.TeacherRequest
	err      error
}

func (s *teacherRequestServiceStub) Create(ctx context.Context, req dto.CreateTeacherRequest, actor *models.JWTClaims) (*models.TeacherRequest, error) {
	return s.resp, s.err
}

func (s *teacherRequestServiceStub) Approve(ctx context.Context, id string, req dto.ApproveTeacherRequest, actor *models.JWTClaims) (*models.TeacherRequest, error) {
	s.approved = &req
	return s.resp, s.err
}

func (s *teacherRequestServiceStub) Reject(ctx context.Context, id string, req dto.RejectRequest, actor *models.JWTClaims) (*models.TeacherRequest, error) {
	return s.resp, s.err
}

func (s *teacherRequestServiceStub) ConfirmSwap(ctx context.Context, id string, actor *models.JWTClaims) (*models.TeacherRequest, error) {
	return s.resp, s.err
}

func (s *teacherRequestServiceStub) DeclineSwap(ctx context.Context, id string, req dto.DeclineSwapRequest, actor *models.JWTClaims) (*models.TeacherRequest, error) {
	s.declined = &req
	return s.resp, s.err
}

func (s *teacherRequestServiceStub) List(ctx context.Context, query dto.RequestListQuery, actor *models.JWTClaims) ([]models.TeacherRequest, error) {
	return nil, s.err
}

func (s *teacherRequestServiceStub) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.TeacherRequest, error) {
	return s.resp, s.err
}

func TestTeacherRequestHandlerApproveWithReplacement(t *testing.T) {
	svc := &teacherRequestServiceStub{resp: &models.TeacherRequest{ID: "req-1", Status: models.RequestStatusWaitingConfirm}}
	h := NewTeacherRequestHandler(svc)
	c, w := newRequestContext(http.MethodPost, "/teacher-requests/req-1/approve", []byte(`{"replacementTeacherId":"t-3"}`), nil)

	h.Approve(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.approved)
	assert.Equal(t, "t-3", svc.approved.ReplacementTeacherID)
}

func TestTeacherRequestHandlerDecline(t *testing.T) {
	svc := &teacherRequestServiceStub{resp: &models.TeacherRequest{ID: "req-1", Status: models.RequestStatusPending}}
	h := NewTeacherRequestHandler(svc)
	c, w := newRequestContext(http.MethodPost, "/teacher-requests/req-1/decline", []byte(`{"reason":"Out of town"}`), nil)

	h.Decline(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Out of town", svc.declined.Reason)
}

func TestTeacherRequestHandlerConfirmForbidden(t *testing.T) {
	h := NewTeacherRequestHandler(&teacherRequestServiceStub{err: appErrors.Clone(appErrors.ErrForbidden, "not the replacement")})
	c, w := newRequestContext(http.MethodPost, "/teacher-requests/req-1/confirm", nil, nil)

	h.Confirm(c)

	require.Equal(t, http.StatusForbidden, w.Code)
}

type planningStub struct {
	date        time.Time
	resDate     *time.Time
	timeSlotID  string
	currentID   string
	slots       []models.TimeSlot
	resources   []models.Resource
	eligibility *models.TransferEligibility
}

func (s *planningStub) GetTransferEligibility(ctx context.Context, studentID string, actor *models.JWTClaims) (*models.TransferEligibility, error) {
	return s.eligibility, nil
}

func (s *planningStub) GetTransferOptions(ctx context.Context, studentID, currentClassID string, actor *models.JWTClaims) ([]models.TransferOption, error) {
	s.currentID = currentClassID
	return []models.TransferOption{}, nil
}

func (s *planningStub) SuggestSlots(ctx context.Context, sessionID string, date time.Time, actor *models.JWTClaims) ([]models.TimeSlot, error) {
	s.date = date
	return s.slots, nil
}

func (s *planningStub) SuggestResources(ctx context.Context, sessionID string, date *time.Time, timeSlotID string, actor *models.JWTClaims) ([]models.Resource, error) {
	s.resDate = date
	s.timeSlotID = timeSlotID
	return s.resources, nil
}

func (s *planningStub) SuggestSwapCandidates(ctx context.Context, sessionID string, actor *models.JWTClaims) ([]models.SwapCandidate, error) {
	return nil, nil
}

func TestPlanningHandlerSuggestedSlotsDate(t *testing.T) {
	stub := &planningStub{slots: []models.TimeSlot{{ID: "slot-pm"}}}
	h := NewPlanningHandler(stub, stub)

	c, w := newRequestContext(http.MethodGet, "/sessions/s-1/suggested-slots", nil, nil)
	h.SuggestedSlots(c)
	require.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newRequestContext(http.MethodGet, "/sessions/s-1/suggested-slots?date=03-04-2026", nil, nil)
	h.SuggestedSlots(c)
	require.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newRequestContext(http.MethodGet, "/sessions/s-1/suggested-slots?date=2026-03-04", nil, nil)
	h.SuggestedSlots(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), stub.date)
}

func TestPlanningHandlerSuggestedResourcesDefaults(t *testing.T) {
	stub := &planningStub{}
	h := NewPlanningHandler(stub, stub)

	c, w := newRequestContext(http.MethodGet, "/sessions/s-1/suggested-resources", nil, nil)
	h.SuggestedResources(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, stub.resDate)
	assert.Empty(t, stub.timeSlotID)

	c, w = newRequestContext(http.MethodGet, "/sessions/s-1/suggested-resources?date=2026-03-05&timeSlotId=slot-eve", nil, nil)
	h.SuggestedResources(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, stub.resDate)
	assert.Equal(t, "slot-eve", stub.timeSlotID)
}

func TestPlanningHandlerTransferOptions(t *testing.T) {
	stub := &planningStub{}
	h := NewPlanningHandler(stub, stub)
	c, w := newRequestContext(http.MethodGet, "/students/stu-1/transfer-options?currentClassId=class-a", nil, nil)

	h.TransferOptions(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "class-a", stub.currentID)
}
