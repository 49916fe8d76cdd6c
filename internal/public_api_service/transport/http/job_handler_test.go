package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	jobapp "github.com/orderpilot/dispatch_services/internal/job_service/app"
	"github.com/orderpilot/dispatch_services/internal/job_service/domain"
	"github.com/orderpilot/dispatch_services/internal/public_api_service/middleware"
)

type MockJobService struct {
	mock.Mock
}

func (m *MockJobService) Create(ctx context.Context, ownerID uuid.UUID, actionType domain.ActionType, actionData json.RawMessage, clientRequestID, traceID string) (*domain.Job, bool, error) {
	args := m.Called(ctx, ownerID, actionType, actionData, clientRequestID, traceID)
	job, _ := args.Get(0).(*domain.Job)
	return job, args.Bool(1), args.Error(2)
}

func (m *MockJobService) Get(ctx context.Context, jobID, callerID uuid.UUID) (*domain.Job, error) {
	args := m.Called(ctx, jobID, callerID)
	job, _ := args.Get(0).(*domain.Job)
	return job, args.Error(1)
}

func (m *MockJobService) Confirm(ctx context.Context, jobID, callerID uuid.UUID, traceID string) (*domain.CASResult, error) {
	args := m.Called(ctx, jobID, callerID, traceID)
	res, _ := args.Get(0).(*domain.CASResult)
	return res, args.Error(1)
}

func (m *MockJobService) Cancel(ctx context.Context, jobID, callerID uuid.UUID, traceID string) (*domain.CASResult, error) {
	args := m.Called(ctx, jobID, callerID, traceID)
	res, _ := args.Get(0).(*domain.CASResult)
	return res, args.Error(1)
}

func (m *MockJobService) Reopen(ctx context.Context, jobID, callerID uuid.UUID, traceID string) (*domain.CASResult, error) {
	args := m.Called(ctx, jobID, callerID, traceID)
	res, _ := args.Get(0).(*domain.CASResult)
	return res, args.Error(1)
}

func (m *MockJobService) Dispatch(ctx context.Context, jobID, callerID uuid.UUID, traceID string) (*jobapp.DispatchResult, error) {
	args := m.Called(ctx, jobID, callerID, traceID)
	res, _ := args.Get(0).(*jobapp.DispatchResult)
	return res, args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newJobTestRouter mounts the handler behind a stub auth layer that injects a
// fixed caller identity.
func newJobTestRouter(svc JobService, caller uuid.UUID) http.Handler {
	handler := NewJobHandler(svc, testLogger(), validator.New())
	r := chi.NewRouter()
	r.Route("/v1/jobs", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				ctx := context.WithValue(req.Context(), middleware.AuthenticatedUserContextKey, middleware.AuthenticatedUser{ID: caller})
				next.ServeHTTP(w, req.WithContext(ctx))
			})
		})
		handler.Routes(r)
	})
	return r
}

func sampleJob(ownerID uuid.UUID) *domain.Job {
	now := time.Now().UTC()
	return &domain.Job{
		ID:          uuid.New(),
		OwnerUserID: ownerID,
		ActionType:  domain.ActionTypeFoodOrder,
		ActionData:  json.RawMessage(`{"merchant":{"name":"Corner Deli","address":"+15559990000"}}`),
		Status:      domain.StatusCollecting,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestCreateJob_Created(t *testing.T) {
	callerID := uuid.New()
	job := sampleJob(callerID)

	mockSvc := new(MockJobService)
	mockSvc.On("Create", mock.Anything, callerID, domain.ActionTypeFoodOrder, mock.Anything, "req-1", mock.Anything).
		Return(job, true, nil)

	router := newJobTestRouter(mockSvc, callerID)
	body := `{"action_type":"food_order","action_data":{"merchant":{"address":"+15559990000"}},"client_request_id":"req-1"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	var resp JobResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, job.ID.String(), resp.ID)
	assert.Equal(t, string(domain.StatusCollecting), resp.Status)
	mockSvc.AssertExpectations(t)
}

func TestCreateJob_IdempotentReplayReturns200(t *testing.T) {
	callerID := uuid.New()
	job := sampleJob(callerID)

	mockSvc := new(MockJobService)
	mockSvc.On("Create", mock.Anything, callerID, mock.Anything, mock.Anything, "req-1", mock.Anything).
		Return(job, false, nil)

	router := newJobTestRouter(mockSvc, callerID)
	body := `{"action_type":"food_order","client_request_id":"req-1"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestCreateJob_MissingActionTypeRejected(t *testing.T) {
	callerID := uuid.New()
	mockSvc := new(MockJobService)

	router := newJobTestRouter(mockSvc, callerID)
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	mockSvc.AssertNotCalled(t, "Create")
}

func TestGetJob_NotFound(t *testing.T) {
	callerID := uuid.New()
	jobID := uuid.New()

	mockSvc := new(MockJobService)
	mockSvc.On("Get", mock.Anything, jobID, callerID).Return(nil, domain.ErrJobNotFound)

	router := newJobTestRouter(mockSvc, callerID)
	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/"+jobID.String(), nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetJob_ForbiddenForNonOwner(t *testing.T) {
	callerID := uuid.New()
	jobID := uuid.New()

	mockSvc := new(MockJobService)
	mockSvc.On("Get", mock.Anything, jobID, callerID).
		Return(nil, &domain.ForbiddenError{JobID: jobID, UserID: callerID})

	router := newJobTestRouter(mockSvc, callerID)
	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/"+jobID.String(), nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestGetJob_InvalidIDRejected(t *testing.T) {
	callerID := uuid.New()
	mockSvc := new(MockJobService)

	router := newJobTestRouter(mockSvc, callerID)
	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/not-a-uuid", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	mockSvc.AssertNotCalled(t, "Get")
}

func TestConfirmJob_Success(t *testing.T) {
	callerID := uuid.New()
	jobID := uuid.New()

	mockSvc := new(MockJobService)
	mockSvc.On("Confirm", mock.Anything, jobID, callerID, mock.Anything).
		Return(&domain.CASResult{PreviousStatus: domain.StatusDispatched, NewStatus: domain.StatusConfirmed}, nil)

	router := newJobTestRouter(mockSvc, callerID)
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/"+jobID.String()+"/confirm", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp TransitionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, string(domain.StatusConfirmed), resp.Status)
	assert.Equal(t, string(domain.StatusDispatched), resp.PreviousStatus)
	assert.False(t, resp.WasIdempotent)
}

func TestConfirmJob_ConflictCarriesExpectedAndActual(t *testing.T) {
	callerID := uuid.New()
	jobID := uuid.New()

	mockSvc := new(MockJobService)
	mockSvc.On("Confirm", mock.Anything, jobID, callerID, mock.Anything).
		Return(nil, &domain.CASConflictError{JobID: jobID, Expected: domain.StatusDispatched, Actual: domain.StatusCancelled})

	router := newJobTestRouter(mockSvc, callerID)
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/"+jobID.String()+"/confirm", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusConflict, rr.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, string(domain.StatusDispatched), resp.Expected)
	assert.Equal(t, string(domain.StatusCancelled), resp.Actual)
}

func TestConfirmJob_InvalidTransitionRejected(t *testing.T) {
	callerID := uuid.New()
	jobID := uuid.New()

	mockSvc := new(MockJobService)
	mockSvc.On("Confirm", mock.Anything, jobID, callerID, mock.Anything).
		Return(nil, &domain.InvalidTransitionError{From: domain.StatusCollecting, To: domain.StatusConfirmed})

	router := newJobTestRouter(mockSvc, callerID)
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/"+jobID.String()+"/confirm", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestConfirmJob_MissingEvidenceConflicts(t *testing.T) {
	callerID := uuid.New()
	jobID := uuid.New()

	mockSvc := new(MockJobService)
	mockSvc.On("Confirm", mock.Anything, jobID, callerID, mock.Anything).
		Return(nil, domain.ErrMissingEvidence)

	router := newJobTestRouter(mockSvc, callerID)
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/"+jobID.String()+"/confirm", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestDispatchJob_Success(t *testing.T) {
	callerID := uuid.New()
	jobID := uuid.New()

	mockSvc := new(MockJobService)
	mockSvc.On("Dispatch", mock.Anything, jobID, callerID, mock.Anything).
		Return(&jobapp.DispatchResult{ProviderMessageID: "SM123"}, nil)

	router := newJobTestRouter(mockSvc, callerID)
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/"+jobID.String()+"/dispatch", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp DispatchResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "SM123", resp.ProviderMessageID)
}

func TestDispatchJob_SendFailureIsBadGateway(t *testing.T) {
	callerID := uuid.New()
	jobID := uuid.New()

	mockSvc := new(MockJobService)
	mockSvc.On("Dispatch", mock.Anything, jobID, callerID, mock.Anything).
		Return(nil, &domain.DispatchSendError{JobID: jobID, Err: assert.AnError})

	router := newJobTestRouter(mockSvc, callerID)
	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/"+jobID.String()+"/dispatch", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestJobEndpoints_UnauthenticatedRejected(t *testing.T) {
	handler := NewJobHandler(new(MockJobService), testLogger(), validator.New())
	r := chi.NewRouter()
	r.Route("/v1/jobs", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/"+uuid.NewString(), nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
