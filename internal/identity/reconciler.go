package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/meyoo/platform/internal/database"
	"github.com/meyoo/platform/internal/database/models"
	"github.com/meyoo/platform/internal/organizations"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrInviteExpired = errors.New("invitation has expired")
)

// Profile carries the attributes the auth provider learned about the caller
// during authentication.
type Profile struct {
	Email         string
	Name          string
	Image         string
	EmailVerified bool
}

// Reconciler maps each real person to exactly one surviving user row. It
// runs after every successful authentication and classifies the caller as a
// new signup, a returning login, an invited member activating, or a
// duplicate account merging in from a second auth identity.
type Reconciler struct {
	db              *gorm.DB
	logger          *slog.Logger
	slugMaxAttempts int
	onboardingSteps int
}

func NewReconciler(db *gorm.DB, logger *slog.Logger, slugMaxAttempts, onboardingSteps int) *Reconciler {
	if onboardingSteps <= 0 {
		onboardingSteps = 3
	}
	return &Reconciler{
		db:              db,
		logger:          logger,
		slugMaxAttempts: slugMaxAttempts,
		onboardingSteps: onboardingSteps,
	}
}

// Reconcile resolves the caller identity against existing records and
// returns the surviving user ID. Safe to call repeatedly for the same login
// event: the returning-login path only refreshes counters, and the merge
// paths tolerate the superseded record already being gone when two logins
// race.
func (r *Reconciler) Reconcile(ctx context.Context, callerID uuid.UUID, profile Profile) (uuid.UUID, error) {
	email := organizations.NormalizeEmail(profile.Email)

	err := database.Transact(ctx, r.db, func(tx *gorm.DB) error {
		var caller models.User
		if err := tx.First(&caller, callerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		existing, err := findOtherUserByEmail(tx, email, callerID)
		if err != nil {
			return err
		}

		switch {
		case existing == nil && !caller.HasOrganization():
			return r.handleNewUser(ctx, tx, &caller, profile)
		case existing == nil:
			return r.handleReturningUser(tx, &caller, profile)
		case existing.Status == models.StatusInvited:
			return r.handleInvitedActivation(tx, &caller, existing, profile)
		case existing.Status == models.StatusExpired:
			// A lapsed invite the sweep already marked. It must never
			// merge in as an active account; the admin has to re-invite.
			return ErrInviteExpired
		default:
			return r.handleDuplicateMerge(tx, &caller, existing, profile)
		}
	})
	if err != nil {
		return uuid.Nil, err
	}
	return callerID, nil
}

// handleNewUser is the first-signup path: activate the caller and provision
// a default organization with an onboarding record at step 1.
func (r *Reconciler) handleNewUser(ctx context.Context, tx *gorm.DB, caller *models.User, profile Profile) error {
	now := time.Now()

	applyProfile(caller, profile, now)
	caller.Status = models.StatusActive
	caller.IsOnboarded = false
	caller.LoginCount = 1
	caller.LastLoginAt = &now

	orgName := "My Organization"
	slugBase := "org"
	if caller.Name != "" {
		orgName = fmt.Sprintf("%s's Organization", caller.Name)
		slugBase = caller.Name
	}

	slug, err := organizations.GenerateSlug(ctx, tx, slugBase, uuid.Nil, r.slugMaxAttempts)
	if err != nil {
		return err
	}

	org := models.Organization{
		OwnerID: caller.ID,
		Name:    orgName,
		Slug:    slug,
		Members: models.UUIDArray{caller.ID},
	}
	if err := tx.Create(&org).Error; err != nil {
		return err
	}

	caller.OrganizationID = org.ID
	caller.Role = models.RoleAdmin
	if err := tx.Save(caller).Error; err != nil {
		return err
	}

	r.logger.Info("provisioned default organization",
		"user_id", caller.ID, "organization_id", org.ID, "slug", slug)

	return tx.Create(&models.OnboardingProgress{
		UserID:         caller.ID,
		OrganizationID: org.ID,
		Step:           1,
		StartedAt:      now,
	}).Error
}

// handleReturningUser refreshes login counters and patches newer profile
// attributes. No records are created.
func (r *Reconciler) handleReturningUser(tx *gorm.DB, caller *models.User, profile Profile) error {
	now := time.Now()
	applyProfile(caller, profile, now)
	caller.LoginCount++
	caller.LastLoginAt = &now
	return tx.Save(caller).Error
}

// handleInvitedActivation transfers the invited record's organization and
// role onto the caller, pre-completes onboarding (an admin already set the
// organization up, so invited members skip the wizard) and deletes the
// superseded invited record.
func (r *Reconciler) handleInvitedActivation(tx *gorm.DB, caller, invited *models.User, profile Profile) error {
	now := time.Now()

	if invited.InviteExpired(now) {
		return ErrInviteExpired
	}

	applyProfile(caller, profile, now)
	caller.OrganizationID = invited.OrganizationID
	caller.Role = invited.Role
	caller.Status = models.StatusActive
	caller.IsOnboarded = true
	caller.LoginCount = 1
	caller.LastLoginAt = &now
	caller.CreatedAt = invited.CreatedAt
	if err := tx.Save(caller).Error; err != nil {
		return err
	}

	if invited.HasOrganization() {
		var progress models.OnboardingProgress
		err := tx.Where("user_id = ? AND organization_id = ?", caller.ID, invited.OrganizationID).
			First(&progress).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if err := tx.Create(&models.OnboardingProgress{
				UserID:         caller.ID,
				OrganizationID: invited.OrganizationID,
				Step:           r.onboardingSteps,
				IsCompleted:    true,
				StartedAt:      now,
				CompletedAt:    &now,
			}).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		if err := organizations.AddMemberTx(tx, invited.OrganizationID, caller.ID); err != nil {
			return err
		}
		if err := organizations.RemoveMemberTx(tx, invited.OrganizationID, invited.ID); err != nil {
			return err
		}
	}

	return r.deleteSuperseded(tx, invited)
}

// handleDuplicateMerge folds a second auth identity for an already-active
// email into the caller: organization, role and onboarded flag move over,
// onboarding records are re-pointed, and the superseded record is removed.
func (r *Reconciler) handleDuplicateMerge(tx *gorm.DB, caller, existing *models.User, profile Profile) error {
	now := time.Now()

	applyProfile(caller, profile, now)
	caller.OrganizationID = existing.OrganizationID
	caller.Role = existing.Role
	if caller.Role == "" {
		caller.Role = models.RoleMember
	}
	caller.Status = models.StatusActive
	caller.IsOnboarded = existing.IsOnboarded
	caller.LoginCount = existing.LoginCount + 1
	caller.LastLoginAt = &now
	caller.CreatedAt = existing.CreatedAt
	if caller.PasswordHash == "" {
		caller.PasswordHash = existing.PasswordHash
	}
	if err := tx.Save(caller).Error; err != nil {
		return err
	}

	if existing.HasOrganization() {
		if err := migrateOnboarding(tx, existing.ID, caller.ID, existing.OrganizationID); err != nil {
			return err
		}
		if err := organizations.AddMemberTx(tx, existing.OrganizationID, caller.ID); err != nil {
			return err
		}
		if err := organizations.RemoveMemberTx(tx, existing.OrganizationID, existing.ID); err != nil {
			return err
		}
	}

	return r.deleteSuperseded(tx, existing)
}

// deleteSuperseded removes a merged-away record. A zero-row delete means a
// concurrent reconciliation got there first, which counts as success.
func (r *Reconciler) deleteSuperseded(tx *gorm.DB, user *models.User) error {
	res := tx.Delete(&models.User{}, user.ID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		r.logger.Info("superseded user already removed", "user_id", user.ID)
	}
	return nil
}

// migrateOnboarding re-points the superseded user's progress record at the
// survivor. When the survivor already has one for the organization, the
// superseded record is dropped instead to keep one row per pair.
func migrateOnboarding(tx *gorm.DB, fromUserID, toUserID, orgID uuid.UUID) error {
	var existing models.OnboardingProgress
	err := tx.Where("user_id = ? AND organization_id = ?", toUserID, orgID).
		First(&existing).Error
	if err == nil {
		return tx.Where("user_id = ? AND organization_id = ?", fromUserID, orgID).
			Delete(&models.OnboardingProgress{}).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	return tx.Model(&models.OnboardingProgress{}).
		Where("user_id = ? AND organization_id = ?", fromUserID, orgID).
		Update("user_id", toUserID).Error
}

// findOtherUserByEmail returns the first user with the address other than
// the caller, or nil.
func findOtherUserByEmail(tx *gorm.DB, email string, excludeID uuid.UUID) (*models.User, error) {
	if email == "" {
		return nil, nil
	}
	var user models.User
	err := tx.Where("email = ? AND id != ?", email, excludeID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// applyProfile patches newer profile attributes onto the user: name and
// avatar only when unset or changed, the verification timestamp only when
// newly confirmed.
func applyProfile(user *models.User, profile Profile, now time.Time) {
	if profile.Name != "" && user.Name != profile.Name {
		user.Name = profile.Name
	}
	if profile.Image != "" && user.Image != profile.Image {
		user.Image = profile.Image
	}
	if profile.EmailVerified && user.EmailVerifiedAt == nil {
		user.EmailVerifiedAt = &now
	}
}
