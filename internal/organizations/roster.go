package organizations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/meyoo/platform/internal/api/validation"
	"github.com/meyoo/platform/internal/database"
	"github.com/meyoo/platform/internal/database/models"
	"github.com/meyoo/platform/internal/tasks"
	"gorm.io/gorm"
)

// AddMemberTx appends userID to the organization's member list inside the
// caller's transaction. Idempotent: already-present members are left alone.
// The organization is re-read under the transaction so concurrent appends
// don't clobber each other.
func AddMemberTx(tx *gorm.DB, orgID, userID uuid.UUID) error {
	var org models.Organization
	if err := tx.First(&org, orgID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrOrganizationNotFound
		}
		return err
	}
	if org.HasMember(userID) {
		return nil
	}
	org.Members = append(org.Members, userID)
	return tx.Save(&org).Error
}

// RemoveMemberTx filters userID out of the organization's member list inside
// the caller's transaction. Missing organizations and absent members are
// both no-ops.
func RemoveMemberTx(tx *gorm.DB, orgID, userID uuid.UUID) error {
	var org models.Organization
	if err := tx.First(&org, orgID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	kept := make(models.UUIDArray, 0, len(org.Members))
	for _, id := range org.Members {
		if id != userID {
			kept = append(kept, id)
		}
	}
	if len(kept) == len(org.Members) {
		return nil
	}
	org.Members = kept
	return tx.Save(&org).Error
}

// AddMember is the standalone form of AddMemberTx.
func (s *Service) AddMember(ctx context.Context, orgID, userID uuid.UUID) error {
	return database.Transact(ctx, s.db, func(tx *gorm.DB) error {
		return AddMemberTx(tx, orgID, userID)
	})
}

// RemoveMember detaches target from the caller's organization: out of the
// member list, organization reference cleared, status set inactive.
func (s *Service) RemoveMember(ctx context.Context, callerID, targetID uuid.UUID) error {
	return database.Transact(ctx, s.db, func(tx *gorm.DB) error {
		caller, err := s.requireAdmin(tx, callerID)
		if err != nil {
			return err
		}

		var target models.User
		if err := tx.First(&target, targetID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMemberNotFound
			}
			return err
		}

		if target.ID == caller.ID {
			return ErrSelfRemoval
		}
		if !caller.Role.IsPlatform() && target.OrganizationID != caller.OrganizationID {
			return ErrNotInOrganization
		}
		if target.Role == models.RoleAdmin && !caller.Role.IsPlatform() {
			return ErrCannotRemoveAdmin
		}

		orgID := target.OrganizationID
		target.OrganizationID = uuid.Nil
		target.Status = models.StatusInactive
		target.InvitedByID = nil
		target.InvitedAt = nil
		target.InviteExpiresAt = nil
		if err := tx.Save(&target).Error; err != nil {
			return err
		}

		if orgID != uuid.Nil {
			return RemoveMemberTx(tx, orgID, target.ID)
		}
		return nil
	})
}

// ChangeRole updates a member's role. Promotion to the admin role is
// reserved for platform-level callers.
func (s *Service) ChangeRole(ctx context.Context, callerID, targetID uuid.UUID, newRole models.Role) error {
	if !newRole.Valid() || newRole.IsPlatform() {
		return errors.Join(ErrValidation, fmt.Errorf("invalid role %q", newRole))
	}

	return database.Transact(ctx, s.db, func(tx *gorm.DB) error {
		caller, err := s.requireAdmin(tx, callerID)
		if err != nil {
			return err
		}

		var target models.User
		if err := tx.First(&target, targetID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMemberNotFound
			}
			return err
		}

		if target.ID == caller.ID {
			return ErrSelfRoleChange
		}
		if !caller.Role.IsPlatform() && target.OrganizationID != caller.OrganizationID {
			return ErrNotInOrganization
		}
		if newRole == models.RoleAdmin && !caller.Role.IsPlatform() {
			return ErrPermissionDenied
		}

		target.Role = newRole
		return tx.Save(&target).Error
	})
}

// InviteInput is one invitation request.
type InviteInput struct {
	Email string
	Role  models.Role
	Name  string
}

// Invite adds an invited-status user to the caller's organization and
// schedules the invitation email. Re-inviting a pending or lapsed invitee
// refreshes its role and expiry instead of duplicating it.
func (s *Service) Invite(ctx context.Context, inviterID uuid.UUID, input InviteInput) (uuid.UUID, error) {
	email := NormalizeEmail(input.Email)
	if !validation.IsValidEmail(email) {
		return uuid.Nil, errors.Join(ErrValidation, fmt.Errorf("invalid email %q", input.Email))
	}
	if input.Role != models.RoleManager && input.Role != models.RoleMember {
		return uuid.Nil, errors.Join(ErrValidation, fmt.Errorf("invalid invite role %q", input.Role))
	}

	var (
		invitedID uuid.UUID
		orgName   string
	)
	err := database.Transact(ctx, s.db, func(tx *gorm.DB) error {
		inviter, err := s.requireAdmin(tx, inviterID)
		if err != nil {
			return err
		}

		var org models.Organization
		if err := tx.First(&org, inviter.OrganizationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrganizationNotFound
			}
			return err
		}
		orgName = org.Name

		now := time.Now()
		expiry := now.Add(s.inviteExpiry)

		var existing models.User
		err = tx.Where("email = ?", email).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			invited := models.User{
				Email:           email,
				Name:            inviteName(input.Name, email),
				OrganizationID:  org.ID,
				Role:            input.Role,
				Status:          models.StatusInvited,
				InvitedByID:     &inviter.ID,
				InvitedAt:       &now,
				InviteExpiresAt: &expiry,
			}
			if err := tx.Create(&invited).Error; err != nil {
				return err
			}
			invitedID = invited.ID
			return AddMemberTx(tx, org.ID, invited.ID)

		case err != nil:
			return err

		case existing.OrganizationID == org.ID &&
			(existing.Status == models.StatusInvited || existing.Status == models.StatusExpired):
			// Pending or lapsed invite for this organization: refresh the
			// clock instead of duplicating.
			existing.Role = input.Role
			existing.Status = models.StatusInvited
			existing.InvitedByID = &inviter.ID
			existing.InvitedAt = &now
			existing.InviteExpiresAt = &expiry
			if existing.Name == "" {
				existing.Name = inviteName(input.Name, email)
			}
			invitedID = existing.ID
			return tx.Save(&existing).Error

		case existing.OrganizationID == org.ID:
			return ErrAlreadyActive

		case existing.HasOrganization():
			return ErrAlreadyElsewhere

		default:
			// Known account with no organization: attach it as invited.
			existing.OrganizationID = org.ID
			existing.Role = input.Role
			existing.Status = models.StatusInvited
			existing.InvitedByID = &inviter.ID
			existing.InvitedAt = &now
			existing.InviteExpiresAt = &expiry
			if err := tx.Save(&existing).Error; err != nil {
				return err
			}
			invitedID = existing.ID
			return AddMemberTx(tx, org.ID, existing.ID)
		}
	})
	if err != nil {
		return uuid.Nil, err
	}

	s.enqueueInviteEmail(invitedID, email, orgName)
	return invitedID, nil
}

// BatchEntry is one member of an InviteBatch request.
type BatchEntry struct {
	Email string
	Role  models.Role
	Name  string
}

// BatchFailure reports one entry that could not be invited.
type BatchFailure struct {
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

// BatchResult summarizes an InviteBatch call.
type BatchResult struct {
	Invited int            `json:"invited"`
	Failed  []BatchFailure `json:"failed"`
}

// InviteBatch applies Invite per entry, continuing past individual
// failures. Partial failure is expected and reported, never fatal.
func (s *Service) InviteBatch(ctx context.Context, inviterID uuid.UUID, entries []BatchEntry) (*BatchResult, error) {
	result := &BatchResult{Failed: []BatchFailure{}}
	for _, entry := range entries {
		_, err := s.Invite(ctx, inviterID, InviteInput{
			Email: entry.Email,
			Role:  entry.Role,
			Name:  entry.Name,
		})
		if err != nil {
			result.Failed = append(result.Failed, BatchFailure{
				Email:  NormalizeEmail(entry.Email),
				Reason: err.Error(),
			})
			continue
		}
		result.Invited++
	}
	return result, nil
}

// NormalizeEmail lower-cases and trims an address for lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) requireAdmin(tx *gorm.DB, callerID uuid.UUID) (*models.User, error) {
	var caller models.User
	if err := tx.First(&caller, callerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if !caller.HasOrganization() {
		return nil, ErrOrganizationNotFound
	}
	if !caller.Role.IsAdmin() {
		return nil, ErrPermissionDenied
	}
	return &caller, nil
}

func (s *Service) enqueueInviteEmail(userID uuid.UUID, email, orgName string) {
	if s.queue == nil {
		s.logger.Warn("queue disabled, skipping invite email", "email", email)
		return
	}
	task, err := tasks.NewInviteEmailTask(tasks.InviteEmailPayload{
		UserID:           userID,
		Email:            email,
		OrganizationName: orgName,
	})
	if err != nil {
		s.logger.Error("failed to build invite email task", "error", err)
		return
	}
	if _, err := s.queue.Enqueue(task); err != nil {
		s.logger.Error("failed to enqueue invite email", "email", email, "error", err)
	}
}

func inviteName(name, email string) string {
	if name != "" {
		return name
	}
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}
