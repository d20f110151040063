package models

import (
	"time"

	"github.com/google/uuid"
)

// OnboardingProgress tracks the setup wizard for one (user, organization)
// pair. Exactly one row exists per pair.
type OnboardingProgress struct {
	Base
	UserID         uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_onboarding_user_org;not null" json:"user_id"`
	OrganizationID uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_onboarding_user_org;not null" json:"organization_id"`

	Step        int        `gorm:"default:1" json:"step"`
	IsCompleted bool       `gorm:"default:false" json:"is_completed"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (OnboardingProgress) TableName() string {
	return "onboarding_progress"
}
