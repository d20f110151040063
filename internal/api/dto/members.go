package dto

import (
	"github.com/meyoo/platform/internal/api/validation"
	"github.com/meyoo/platform/internal/database/models"
)

type InviteMemberRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	Name  string `json:"name,omitempty"`
}

func (r InviteMemberRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if r.Email == "" {
		errors["email"] = "Email is required"
	} else if !validation.IsValidEmail(r.Email) {
		errors["email"] = "Email is invalid"
	}
	switch models.Role(r.Role) {
	case models.RoleManager, models.RoleMember:
	default:
		errors["role"] = "Role must be manager or member"
	}

	return errors
}

type InviteMemberResponse struct {
	Ok     bool   `json:"ok"`
	UserID string `json:"user_id,omitempty"`
}

type InviteBatchRequest struct {
	Members []InviteMemberRequest `json:"members"`
}

func (r InviteBatchRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if len(r.Members) == 0 {
		errors["members"] = "At least one member is required"
	}

	return errors
}

type UpdateRoleRequest struct {
	Role string `json:"role"`
}

func (r UpdateRoleRequest) Validate() map[string]string {
	errors := make(map[string]string)

	if !models.Role(r.Role).Valid() {
		errors["role"] = "Invalid role"
	}

	return errors
}

type MemberDTO struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	Image       string `json:"image,omitempty"`
	Role        string `json:"role"`
	Status      string `json:"status"`
	LastLoginAt *int64 `json:"last_login_at,omitempty"`
}
