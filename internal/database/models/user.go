package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is an organization- or platform-level role.
type Role string

const (
	RoleAdmin      Role = "admin" // organization owner/admin
	RoleManager    Role = "manager"
	RoleMember     Role = "member"
	RoleSuperAdmin Role = "super_admin" // platform-level
	RoleOps        Role = "ops"         // platform-level
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleMember, RoleSuperAdmin, RoleOps:
		return true
	}
	return false
}

// IsAdmin reports whether the role carries organization admin rights.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r.IsPlatform()
}

// IsPlatform reports whether the role is a platform-level role that spans
// organizations.
func (r Role) IsPlatform() bool {
	return r == RoleSuperAdmin || r == RoleOps
}

// Status is a user lifecycle state.
type Status string

const (
	StatusActive    Status = "active"
	StatusInvited   Status = "invited"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
	StatusDeleted   Status = "deleted"
	StatusExpired   Status = "expired"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInvited, StatusInactive, StatusSuspended, StatusDeleted, StatusExpired:
		return true
	}
	return false
}

type User struct {
	Base
	// Email is unique among surviving rows; the reconciler may briefly
	// hold a second row for the same address mid-merge, so uniqueness is
	// enforced by reconciliation rather than an index.
	Email           string     `gorm:"index;not null" json:"email"`
	PasswordHash    string     `json:"-"` // empty for OAuth/OTP-only accounts
	Name            string     `json:"name"`
	Image           string     `json:"image,omitempty"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`

	OrganizationID uuid.UUID `gorm:"type:uuid;index" json:"organization_id"`
	Role           Role      `gorm:"type:varchar(32);default:'member'" json:"role"`
	Status         Status    `gorm:"type:varchar(32);index;default:'active'" json:"status"`
	IsOnboarded    bool      `gorm:"default:false" json:"is_onboarded"`

	// Invitation fields, meaningful only while Status == StatusInvited.
	InvitedByID     *uuid.UUID `gorm:"type:uuid" json:"invited_by_id,omitempty"`
	InvitedAt       *time.Time `json:"invited_at,omitempty"`
	InviteExpiresAt *time.Time `gorm:"index" json:"invite_expires_at,omitempty"`

	LoginCount  int        `gorm:"default:0" json:"login_count"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`

	// Relationships
	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"organization,omitempty"`
}

func (User) TableName() string {
	return "users"
}

// HasOrganization reports whether the user is attached to an organization.
func (u *User) HasOrganization() bool {
	return u.OrganizationID != uuid.Nil
}

// InviteExpired reports whether the user is an invited user whose invite
// lapsed before the given instant.
func (u *User) InviteExpired(now time.Time) bool {
	return u.Status == StatusInvited && u.InviteExpiresAt != nil && u.InviteExpiresAt.Before(now)
}
