package models

import "github.com/google/uuid"

// Profile holds the public-facing part of an account. Exactly one row per
// user; Name mirrors users.name and is kept in sync inside the same
// transaction whenever the user is renamed. EmailPublic is unique only among
// non-empty values, so any number of profiles may leave it cleared.
type Profile struct {
	BaseModel
	UserID      uuid.UUID `json:"userId" gorm:"type:uuid;uniqueIndex;not null"`
	Name        string    `json:"name" gorm:"type:varchar(100);uniqueIndex;not null"`
	Avatar      *string   `json:"avatar,omitempty" gorm:"type:text"`
	FirstName   *string   `json:"firstName,omitempty" gorm:"type:varchar(100)"`
	LastName    *string   `json:"lastName,omitempty" gorm:"type:varchar(100)"`
	EmailPublic string    `json:"emailPublic" gorm:"type:varchar(255);not null;default:'';uniqueIndex:idx_profiles_public_email,where:email_public <> ''"`
	Phone       *string   `json:"phone,omitempty" gorm:"type:varchar(30)"`
	Bio         *string   `json:"bio,omitempty" gorm:"type:text"`
}

func (Profile) TableName() string {
	return "profiles"
}
