package organizations

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/meyoo/platform/internal/database"
	"github.com/meyoo/platform/internal/database/models"
	"github.com/meyoo/platform/internal/onboarding"
	"gorm.io/gorm"
)

// Service provisions organizations and keeps their member rosters
// consistent with each user's organization reference.
type Service struct {
	db              *gorm.DB
	onboarding      *onboarding.Service
	queue           *asynq.Client // nil when background delivery is disabled
	logger          *slog.Logger
	slugMaxAttempts int
	inviteExpiry    time.Duration
}

func NewService(db *gorm.DB, ob *onboarding.Service, queue *asynq.Client, logger *slog.Logger, slugMaxAttempts int, inviteExpiry time.Duration) *Service {
	if inviteExpiry <= 0 {
		inviteExpiry = 7 * 24 * time.Hour
	}
	return &Service{
		db:              db,
		onboarding:      ob,
		queue:           queue,
		logger:          logger,
		slugMaxAttempts: slugMaxAttempts,
		inviteExpiry:    inviteExpiry,
	}
}

// Create provisions the organization owned by ownerID. When the owner
// already references a live organization the call turns into an update of
// that organization instead; a reference to a vanished organization is
// cleared and creation proceeds.
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, name, image string) (uuid.UUID, error) {
	if strings.TrimSpace(name) == "" {
		return uuid.Nil, errors.Join(ErrValidation, errors.New("name is required"))
	}

	var orgID uuid.UUID
	err := database.Transact(ctx, s.db, func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, ownerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		if user.HasOrganization() {
			var existing models.Organization
			err := tx.First(&existing, user.OrganizationID).Error
			switch {
			case err == nil:
				id, uerr := s.updateExisting(ctx, tx, &user, &existing, name, image)
				orgID = id
				return uerr
			case errors.Is(err, gorm.ErrRecordNotFound):
				// Stale reference from a prior partial failure. Heal it and
				// fall through to creation.
				s.logger.Warn("clearing stale organization reference",
					"user_id", user.ID, "organization_id", user.OrganizationID)
				user.OrganizationID = uuid.Nil
				if err := tx.Save(&user).Error; err != nil {
					return err
				}
			default:
				return err
			}
		}

		slug, err := GenerateSlug(ctx, tx, name, uuid.Nil, s.slugMaxAttempts)
		if err != nil {
			return err
		}

		org := models.Organization{
			OwnerID: user.ID,
			Name:    name,
			Image:   image,
			Slug:    slug,
			Members: models.UUIDArray{user.ID},
		}
		if err := tx.Create(&org).Error; err != nil {
			return err
		}
		orgID = org.ID

		user.OrganizationID = org.ID
		user.Role = models.RoleAdmin
		user.Status = models.StatusActive
		if err := tx.Save(&user).Error; err != nil {
			return err
		}

		// Organization creation is the first wizard step, so the progress
		// record lands on the step after it.
		return s.ensureOnboarding(tx, user.ID, org.ID, 2)
	})
	if err != nil {
		return uuid.Nil, err
	}
	return orgID, nil
}

// Update renames or re-images the caller's organization. The slug is
// regenerated only when the name actually changes, keeping the current slug
// out of the uniqueness probe.
func (s *Service) Update(ctx context.Context, callerID uuid.UUID, name, image *string) error {
	return database.Transact(ctx, s.db, func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, callerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		if !user.HasOrganization() {
			return ErrOrganizationNotFound
		}

		var org models.Organization
		if err := tx.First(&org, user.OrganizationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrganizationNotFound
			}
			return err
		}

		if org.OwnerID != user.ID && !user.Role.IsAdmin() {
			return ErrPermissionDenied
		}

		if name != nil && *name != org.Name {
			if strings.TrimSpace(*name) == "" {
				return errors.Join(ErrValidation, errors.New("name is required"))
			}
			slug, err := GenerateSlug(ctx, tx, *name, org.ID, s.slugMaxAttempts)
			if err != nil {
				return err
			}
			org.Name = *name
			org.Slug = slug
		}
		if image != nil {
			org.Image = *image
		}

		return tx.Save(&org).Error
	})
}

// Get returns the caller's organization, or nil when the caller has none.
func (s *Service) Get(ctx context.Context, callerID uuid.UUID) (*models.Organization, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, callerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if !user.HasOrganization() {
		return nil, nil
	}

	var org models.Organization
	if err := s.db.WithContext(ctx).First(&org, user.OrganizationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &org, nil
}

// Members lists the users attached to the caller's organization.
func (s *Service) Members(ctx context.Context, callerID uuid.UUID) ([]models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, callerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if !user.HasOrganization() {
		return nil, ErrOrganizationNotFound
	}

	var members []models.User
	if err := s.db.WithContext(ctx).
		Where("organization_id = ?", user.OrganizationID).
		Order("created_at asc").
		Find(&members).Error; err != nil {
		return nil, err
	}
	return members, nil
}

// updateExisting handles Create calls from owners that already have a live
// organization: a rename/re-image gated on ownership or admin role.
func (s *Service) updateExisting(ctx context.Context, tx *gorm.DB, user *models.User, org *models.Organization, name, image string) (uuid.UUID, error) {
	if org.OwnerID != user.ID && !user.Role.IsAdmin() {
		return uuid.Nil, ErrPermissionDenied
	}

	if name != org.Name {
		slug, err := GenerateSlug(ctx, tx, name, org.ID, s.slugMaxAttempts)
		if err != nil {
			return uuid.Nil, err
		}
		org.Name = name
		org.Slug = slug
	}
	if image != "" {
		org.Image = image
	}
	if err := tx.Save(org).Error; err != nil {
		return uuid.Nil, err
	}

	// Make sure a progress record exists, but never advance the step from
	// an update.
	if err := s.ensureOnboarding(tx, user.ID, org.ID, 0); err != nil {
		return uuid.Nil, err
	}
	return org.ID, nil
}

// ensureOnboarding finds or creates the progress record for the pair. A
// non-zero step moves an existing, uncompleted record forward to that step;
// new records start there directly (or at 1 when step is zero).
func (s *Service) ensureOnboarding(tx *gorm.DB, userID, orgID uuid.UUID, step int) error {
	var progress models.OnboardingProgress
	err := tx.Where("user_id = ? AND organization_id = ?", userID, orgID).
		First(&progress).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		start := step
		if start < 1 {
			start = 1
		}
		return tx.Create(&models.OnboardingProgress{
			UserID:         userID,
			OrganizationID: orgID,
			Step:           start,
			StartedAt:      time.Now(),
		}).Error
	}
	if err != nil {
		return err
	}

	if step > progress.Step && !progress.IsCompleted {
		progress.Step = step
		return tx.Save(&progress).Error
	}
	return nil
}
