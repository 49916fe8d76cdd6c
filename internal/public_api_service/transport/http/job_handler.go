package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chi_middleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	jobapp "github.com/orderpilot/dispatch_services/internal/job_service/app"
	"github.com/orderpilot/dispatch_services/internal/job_service/domain"
	"github.com/orderpilot/dispatch_services/internal/public_api_service/middleware"
)

// JobService is the slice of the job application service the handler needs.
type JobService interface {
	Create(ctx context.Context, ownerID uuid.UUID, actionType domain.ActionType, actionData json.RawMessage, clientRequestID, traceID string) (*domain.Job, bool, error)
	Get(ctx context.Context, jobID, callerID uuid.UUID) (*domain.Job, error)
	Confirm(ctx context.Context, jobID, callerID uuid.UUID, traceID string) (*domain.CASResult, error)
	Cancel(ctx context.Context, jobID, callerID uuid.UUID, traceID string) (*domain.CASResult, error)
	Reopen(ctx context.Context, jobID, callerID uuid.UUID, traceID string) (*domain.CASResult, error)
	Dispatch(ctx context.Context, jobID, callerID uuid.UUID, traceID string) (*jobapp.DispatchResult, error)
}

type JobHandler struct {
	svc      JobService
	logger   *slog.Logger
	validate *validator.Validate
}

func NewJobHandler(svc JobService, logger *slog.Logger, validate *validator.Validate) *JobHandler {
	return &JobHandler{
		svc:      svc,
		logger:   logger.With("handler", "jobs"),
		validate: validate,
	}
}

// Routes mounts the job endpoints. The caller wraps them in auth middleware.
func (h *JobHandler) Routes(r chi.Router) {
	r.Post("/", h.CreateJob)
	r.Get("/{jobID}", h.GetJob)
	r.Post("/{jobID}/confirm", h.ConfirmJob)
	r.Post("/{jobID}/dispatch", h.DispatchJob)
	r.Post("/{jobID}/cancel", h.CancelJob)
	r.Post("/{jobID}/reopen", h.ReopenJob)
}

func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	caller, ok := middleware.UserFromContext(ctx)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.validate.StructCtx(ctx, req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, created, err := h.svc.Create(ctx, caller.ID, domain.ActionType(req.ActionType), req.ActionData, req.ClientRequestID, chi_middleware.GetReqID(ctx))
	if err != nil {
		logger.WarnContext(ctx, "job create rejected", "error", err)
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	respondJSON(w, status, toJobResponse(job))
}

func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, jobID, ok := h.callerAndJobID(w, r)
	if !ok {
		return
	}

	job, err := h.svc.Get(ctx, jobID, caller.ID)
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toJobResponse(job))
}

func (h *JobHandler) ConfirmJob(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Confirm)
}

func (h *JobHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Cancel)
}

func (h *JobHandler) ReopenJob(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Reopen)
}

func (h *JobHandler) DispatchJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, jobID, ok := h.callerAndJobID(w, r)
	if !ok {
		return
	}

	res, err := h.svc.Dispatch(ctx, jobID, caller.ID, chi_middleware.GetReqID(ctx))
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, DispatchResponse{
		JobID:             jobID.String(),
		ProviderMessageID: res.ProviderMessageID,
		WasIdempotent:     res.WasIdempotent,
	})
}

type transitionFunc func(ctx context.Context, jobID, callerID uuid.UUID, traceID string) (*domain.CASResult, error)

func (h *JobHandler) transition(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
	ctx := r.Context()
	caller, jobID, ok := h.callerAndJobID(w, r)
	if !ok {
		return
	}

	res, err := fn(ctx, jobID, caller.ID, chi_middleware.GetReqID(ctx))
	if err != nil {
		h.respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, TransitionResponse{
		JobID:          jobID.String(),
		PreviousStatus: string(res.PreviousStatus),
		Status:         string(res.NewStatus),
		WasIdempotent:  res.WasIdempotent,
	})
}

func (h *JobHandler) callerAndJobID(w http.ResponseWriter, r *http.Request) (middleware.AuthenticatedUser, uuid.UUID, bool) {
	caller, ok := middleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return middleware.AuthenticatedUser{}, uuid.Nil, false
	}
	jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid job id")
		return middleware.AuthenticatedUser{}, uuid.Nil, false
	}
	return caller, jobID, true
}

// respondDomainError maps the domain error taxonomy onto HTTP status codes.
func (h *JobHandler) respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	var (
		conflict  *domain.CASConflictError
		invalid   *domain.InvalidTransitionError
		forbidden *domain.ForbiddenError
		sendErr   *domain.DispatchSendError
	)
	switch {
	case errors.Is(err, domain.ErrJobNotFound):
		respondError(w, http.StatusNotFound, "job not found")
	case errors.As(err, &forbidden):
		respondError(w, http.StatusForbidden, "job belongs to another user")
	case errors.As(err, &conflict):
		logger.WarnContext(ctx, "status precondition failed", "error", err)
		respondJSON(w, http.StatusConflict, ErrorResponse{
			Error:    "status changed concurrently, re-read and retry",
			Expected: string(conflict.Expected),
			Actual:   string(conflict.Actual),
		})
	case errors.As(err, &invalid):
		respondJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:    "invalid status transition",
			Expected: string(invalid.From),
			Actual:   string(invalid.To),
		})
	case errors.As(err, &sendErr):
		logger.ErrorContext(ctx, "dispatch send failed", "error", err)
		respondError(w, http.StatusBadGateway, "external send failed, job remains retryable")
	case errors.Is(err, domain.ErrMissingEvidence):
		respondError(w, http.StatusConflict, "cannot confirm without dispatch evidence")
	case errors.Is(err, domain.ErrMissingMerchantTarget):
		respondError(w, http.StatusBadRequest, "job carries no merchant target")
	default:
		logger.ErrorContext(ctx, "unhandled error", "error", err)
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}
