package models

import "github.com/google/uuid"

type Organization struct {
	Base
	OwnerID uuid.UUID `gorm:"type:uuid;index;not null" json:"owner_id"`
	Name    string    `gorm:"not null" json:"name"`
	Image   string    `json:"image,omitempty"`
	Slug    string    `gorm:"uniqueIndex;not null" json:"slug"`

	// Members mirrors the set of users whose OrganizationID points here.
	// The owner is always present.
	Members UUIDArray `gorm:"type:uuid[]" json:"members"`

	// Relationships
	Users []User `gorm:"foreignKey:OrganizationID" json:"-"`
}

func (Organization) TableName() string {
	return "organizations"
}

// HasMember reports whether the given user is in the members list.
func (o *Organization) HasMember(userID uuid.UUID) bool {
	for _, id := range o.Members {
		if id == userID {
			return true
		}
	}
	return false
}
