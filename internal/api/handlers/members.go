package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/meyoo/platform/internal/api/dto"
	"github.com/meyoo/platform/internal/api/middleware"
	"github.com/meyoo/platform/internal/database/models"
	"github.com/meyoo/platform/internal/organizations"
)

type MemberHandler struct {
	orgService *organizations.Service
}

func NewMemberHandler(orgService *organizations.Service) *MemberHandler {
	return &MemberHandler{orgService: orgService}
}

func (h *MemberHandler) Invite(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req dto.InviteMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	invitedID, err := h.orgService.Invite(r.Context(), userID, organizations.InviteInput{
		Email: req.Email,
		Role:  models.Role(req.Role),
		Name:  req.Name,
	})
	if err != nil {
		writeOrgError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.InviteMemberResponse{Ok: true, UserID: invitedID.String()})
}

func (h *MemberHandler) InviteBatch(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req dto.InviteBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	entries := make([]organizations.BatchEntry, 0, len(req.Members))
	for _, m := range req.Members {
		entries = append(entries, organizations.BatchEntry{
			Email: m.Email,
			Role:  models.Role(m.Role),
			Name:  m.Name,
		})
	}

	result, err := h.orgService.InviteBatch(r.Context(), userID, entries)
	if err != nil {
		writeOrgError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *MemberHandler) Remove(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	targetID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid member ID"})
		return
	}

	if err := h.orgService.RemoveMember(r.Context(), userID, targetID); err != nil {
		writeOrgError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Member removed"})
}

func (h *MemberHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	targetID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid member ID"})
		return
	}

	var req dto.UpdateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid request body"})
		return
	}

	if errs := req.Validate(); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Validation failed", Details: errs})
		return
	}

	if err := h.orgService.ChangeRole(r.Context(), userID, targetID, models.Role(req.Role)); err != nil {
		writeOrgError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Role updated"})
}
