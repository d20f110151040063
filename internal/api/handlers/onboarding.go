package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/meyoo/platform/internal/api/dto"
	"github.com/meyoo/platform/internal/api/middleware"
	"github.com/meyoo/platform/internal/onboarding"
)

type OnboardingHandler struct {
	onboardingService *onboarding.Service
}

func NewOnboardingHandler(onboardingService *onboarding.Service) *OnboardingHandler {
	return &OnboardingHandler{onboardingService: onboardingService}
}

// Status returns the caller's onboarding progress. A JSON null body means
// onboarding has not started (no organization or no record yet).
func (h *OnboardingHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	status, err := h.onboardingService.GetStatus(r.Context(), userID)
	if err != nil {
		writeOnboardingError(w, err)
		return
	}
	if status == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	resp := dto.OnboardingStatusResponse{
		Step:        status.Progress.Step,
		TotalSteps:  h.onboardingService.Steps(),
		Percent:     status.Percent,
		IsCompleted: status.Progress.IsCompleted,
		StartedAt:   status.Progress.StartedAt.UnixMilli(),
	}
	if status.Progress.CompletedAt != nil {
		ts := status.Progress.CompletedAt.UnixMilli()
		resp.CompletedAt = &ts
	}
	if status.Organization != nil {
		resp.OrgName = status.Organization.Name
		resp.OrgImage = status.Organization.Image
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *OnboardingHandler) Advance(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req dto.AdvanceStepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	nextStep, err := h.onboardingService.Advance(r.Context(), userID, req.Step)
	if err != nil {
		writeOnboardingError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AdvanceStepResponse{Ok: true, NextStep: nextStep})
}

func (h *OnboardingHandler) Complete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	if err := h.onboardingService.Complete(r.Context(), userID); err != nil {
		writeOnboardingError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Onboarding completed"})
}

func (h *OnboardingHandler) Skip(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	if err := h.onboardingService.Skip(r.Context(), userID); err != nil {
		writeOnboardingError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Onboarding skipped"})
}

func (h *OnboardingHandler) Reset(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	if err := h.onboardingService.Reset(r.Context(), userID); err != nil {
		writeOnboardingError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Onboarding reset"})
}

func writeOnboardingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, onboarding.ErrUserNotFound),
		errors.Is(err, onboarding.ErrOrganizationNotFound),
		errors.Is(err, onboarding.ErrRecordNotFound):
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, onboarding.ErrInvalidStep):
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Internal server error"})
	}
}
