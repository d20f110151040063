package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/meyoo/platform/internal/api/dto"
	"github.com/meyoo/platform/internal/api/middleware"
	"github.com/meyoo/platform/internal/database/models"
	"github.com/meyoo/platform/internal/organizations"
)

type OrganizationHandler struct {
	orgService *organizations.Service
}

func NewOrganizationHandler(orgService *organizations.Service) *OrganizationHandler {
	return &OrganizationHandler{orgService: orgService}
}

func (h *OrganizationHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req dto.CreateOrganizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	orgID, err := h.orgService.Create(r.Context(), userID, req.Name, req.Image)
	if err != nil {
		writeOrgError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.CreateOrganizationResponse{OrganizationID: orgID.String()})
}

func (h *OrganizationHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req dto.UpdateOrganizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	if err := h.orgService.Update(r.Context(), userID, req.Name, req.Image); err != nil {
		writeOrgError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Organization updated"})
}

func (h *OrganizationHandler) Current(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	org, err := h.orgService.Get(r.Context(), userID)
	if err != nil {
		writeOrgError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, organizationDTO(org))
}

func (h *OrganizationHandler) Members(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	members, err := h.orgService.Members(r.Context(), userID)
	if err != nil {
		writeOrgError(w, err)
		return
	}

	out := make([]dto.MemberDTO, 0, len(members))
	for i := range members {
		out = append(out, memberDTO(&members[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func organizationDTO(org *models.Organization) dto.OrganizationDTO {
	members := make([]string, 0, len(org.Members))
	for _, id := range org.Members {
		members = append(members, id.String())
	}
	return dto.OrganizationDTO{
		ID:          org.ID.String(),
		Name:        org.Name,
		Slug:        org.Slug,
		Image:       org.Image,
		OwnerID:     org.OwnerID.String(),
		Members:     members,
		MemberCount: len(org.Members),
	}
}

func memberDTO(user *models.User) dto.MemberDTO {
	out := dto.MemberDTO{
		ID:     user.ID.String(),
		Email:  user.Email,
		Name:   user.Name,
		Image:  user.Image,
		Role:   string(user.Role),
		Status: string(user.Status),
	}
	if user.LastLoginAt != nil {
		ts := user.LastLoginAt.UnixMilli()
		out.LastLoginAt = &ts
	}
	return out
}

// writeOrgError maps organization sentinel errors onto HTTP statuses. All
// roster and provisioning handlers share it.
func writeOrgError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, organizations.ErrOrganizationNotFound),
		errors.Is(err, organizations.ErrUserNotFound),
		errors.Is(err, organizations.ErrMemberNotFound):
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, organizations.ErrPermissionDenied),
		errors.Is(err, organizations.ErrNotInOrganization),
		errors.Is(err, organizations.ErrSelfRemoval),
		errors.Is(err, organizations.ErrSelfRoleChange),
		errors.Is(err, organizations.ErrCannotRemoveAdmin):
		writeJSON(w, http.StatusForbidden, dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, organizations.ErrAlreadyActive),
		errors.Is(err, organizations.ErrAlreadyElsewhere):
		writeJSON(w, http.StatusConflict, dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, organizations.ErrValidation):
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Internal server error"})
	}
}
