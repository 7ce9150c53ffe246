package models

import (
	"time"

	"github.com/google/uuid"
)

type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderGitHub Provider = "github"
	ProviderOIDC   Provider = "oidc"
)

// LinkedAccount ties a local user to an external identity provider. A user
// may link several providers; each (provider, provider_user_id) pair exists
// at most once.
type LinkedAccount struct {
	BaseModel
	UserID         uuid.UUID  `json:"userId" gorm:"type:uuid;not null;index"`
	Provider       Provider   `json:"provider" gorm:"type:varchar(20);not null;uniqueIndex:idx_provider_account"`
	ProviderUserID string     `json:"providerUserId" gorm:"type:varchar(255);not null;uniqueIndex:idx_provider_account"`
	Email          string     `json:"email" gorm:"type:varchar(255)"`
	AccessToken    string     `json:"-" gorm:"type:text"`
	RefreshToken   string     `json:"-" gorm:"type:text"`
	Scope          string     `json:"scope" gorm:"type:varchar(500)"`
	TokenExpiresAt *time.Time `json:"-"`
	ProfileData    string     `json:"-" gorm:"type:text"` // raw provider profile, JSON
}

func (LinkedAccount) TableName() string {
	return "linked_accounts"
}
