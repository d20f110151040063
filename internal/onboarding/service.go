package onboarding

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/meyoo/platform/internal/database"
	"github.com/meyoo/platform/internal/database/models"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrRecordNotFound       = errors.New("onboarding record not found")
	ErrInvalidStep          = errors.New("step out of range")
)

// Service owns the per-(user, organization) onboarding progress record and
// its transitions. Steps run 1..steps; completion is terminal except via
// Reset.
type Service struct {
	db     *gorm.DB
	steps  int
	logger *slog.Logger
}

func NewService(db *gorm.DB, steps int, logger *slog.Logger) *Service {
	if steps <= 0 {
		steps = 3
	}
	return &Service{db: db, steps: steps, logger: logger}
}

// Steps returns the configured number of wizard steps.
func (s *Service) Steps() int {
	return s.steps
}

// Status is the read model returned to callers.
type Status struct {
	Progress     *models.OnboardingProgress `json:"progress"`
	Organization *models.Organization       `json:"organization"`
	Percent      int                        `json:"percent"`
}

// GetStatus returns the caller's onboarding progress, or nil when the user
// has no organization or no progress record yet.
func (s *Service) GetStatus(ctx context.Context, userID uuid.UUID) (*Status, error) {
	user, err := s.getUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if !user.HasOrganization() {
		return nil, nil
	}

	var progress models.OnboardingProgress
	err = s.db.WithContext(ctx).
		Where("user_id = ? AND organization_id = ?", userID, user.OrganizationID).
		First(&progress).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var org models.Organization
	if err := s.db.WithContext(ctx).First(&org, user.OrganizationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	percent := progress.Step * 100 / s.steps
	if progress.IsCompleted {
		percent = 100
	}

	return &Status{Progress: &progress, Organization: &org, Percent: percent}, nil
}

// Advance moves the record to the given step. Reaching the final step also
// completes onboarding and marks the user onboarded. It fails with
// ErrRecordNotFound when no record exists yet; only Skip and Reset self-heal.
func (s *Service) Advance(ctx context.Context, userID uuid.UUID, step int) (nextStep *int, err error) {
	if step < 1 || step > s.steps {
		return nil, ErrInvalidStep
	}

	err = database.Transact(ctx, s.db, func(tx *gorm.DB) error {
		user, org, err := s.requireOrganization(ctx, tx, userID)
		if err != nil {
			return err
		}

		var progress models.OnboardingProgress
		if err := tx.Where("user_id = ? AND organization_id = ?", userID, org.ID).
			First(&progress).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRecordNotFound
			}
			return err
		}

		if step < progress.Step {
			s.logger.Warn("onboarding step regression",
				"user_id", userID, "from", progress.Step, "to", step)
		}

		progress.Step = step
		if step >= s.steps {
			return s.finish(tx, &progress, user)
		}
		return tx.Save(&progress).Error
	})
	if err != nil {
		return nil, err
	}

	if step < s.steps {
		next := step + 1
		nextStep = &next
	}
	return nextStep, nil
}

// Complete force-finishes onboarding. Idempotent.
func (s *Service) Complete(ctx context.Context, userID uuid.UUID) error {
	return database.Transact(ctx, s.db, func(tx *gorm.DB) error {
		user, org, err := s.requireOrganization(ctx, tx, userID)
		if err != nil {
			return err
		}

		var progress models.OnboardingProgress
		if err := tx.Where("user_id = ? AND organization_id = ?", userID, org.ID).
			First(&progress).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRecordNotFound
			}
			return err
		}

		return s.finish(tx, &progress, user)
	})
}

// Skip completes onboarding without walking the steps. Unlike Advance and
// Complete it self-heals: a missing record is created pre-completed, and a
// user with no organization at all still gets the onboarded flag.
func (s *Service) Skip(ctx context.Context, userID uuid.UUID) error {
	return database.Transact(ctx, s.db, func(tx *gorm.DB) error {
		user, err := s.getUser(ctx, tx, userID)
		if err != nil {
			return err
		}

		if !user.HasOrganization() {
			user.IsOnboarded = true
			return tx.Save(user).Error
		}

		now := time.Now()
		var progress models.OnboardingProgress
		err = tx.Where("user_id = ? AND organization_id = ?", userID, user.OrganizationID).
			First(&progress).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			progress = models.OnboardingProgress{
				UserID:         userID,
				OrganizationID: user.OrganizationID,
				Step:           s.steps,
				IsCompleted:    true,
				StartedAt:      now,
				CompletedAt:    &now,
			}
			if err := tx.Create(&progress).Error; err != nil {
				return err
			}
			user.IsOnboarded = true
			return tx.Save(user).Error
		}
		if err != nil {
			return err
		}

		return s.finish(tx, &progress, user)
	})
}

// Reset returns the record to step 1 and flips the user's onboarded flag
// back off, so an admin can redo setup. A missing record is recreated.
func (s *Service) Reset(ctx context.Context, userID uuid.UUID) error {
	return database.Transact(ctx, s.db, func(tx *gorm.DB) error {
		user, org, err := s.requireOrganization(ctx, tx, userID)
		if err != nil {
			return err
		}

		now := time.Now()
		var progress models.OnboardingProgress
		err = tx.Where("user_id = ? AND organization_id = ?", userID, org.ID).
			First(&progress).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			progress = models.OnboardingProgress{
				UserID:         userID,
				OrganizationID: org.ID,
			}
		} else if err != nil {
			return err
		}

		progress.Step = 1
		progress.IsCompleted = false
		progress.CompletedAt = nil
		progress.StartedAt = now
		if err := tx.Save(&progress).Error; err != nil {
			return err
		}

		user.IsOnboarded = false
		return tx.Save(user).Error
	})
}

func (s *Service) finish(tx *gorm.DB, progress *models.OnboardingProgress, user *models.User) error {
	progress.Step = s.steps
	progress.IsCompleted = true
	if progress.CompletedAt == nil {
		now := time.Now()
		progress.CompletedAt = &now
	}
	if err := tx.Save(progress).Error; err != nil {
		return err
	}

	user.IsOnboarded = true
	return tx.Save(user).Error
}

func (s *Service) getUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*models.User, error) {
	var user models.User
	if err := tx.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Service) requireOrganization(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*models.User, *models.Organization, error) {
	user, err := s.getUser(ctx, tx, userID)
	if err != nil {
		return nil, nil, err
	}
	if !user.HasOrganization() {
		return nil, nil, ErrOrganizationNotFound
	}

	var org models.Organization
	if err := tx.WithContext(ctx).First(&org, user.OrganizationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrOrganizationNotFound
		}
		return nil, nil, err
	}
	return user, &org, nil
}
