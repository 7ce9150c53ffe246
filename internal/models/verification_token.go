package models

import "time"

type TokenPurpose string

const (
	TokenPurposeEmailVerify   TokenPurpose = "email_verify"
	TokenPurposePasswordReset TokenPurpose = "password_reset"
)

// VerificationToken is a single-use, time-limited token mailed to an email
// address for verification or password reset. Hash-stored like sessions.
type VerificationToken struct {
	BaseModel
	Identifier string       `json:"identifier" gorm:"type:varchar(255);not null;index"`
	TokenHash  string       `json:"-" gorm:"type:varchar(64);uniqueIndex;not null"`
	Purpose    TokenPurpose `json:"purpose" gorm:"type:varchar(20);not null"`
	ExpiresAt  time.Time    `json:"expiresAt" gorm:"not null"`
	ConsumedAt *time.Time   `json:"consumedAt,omitempty"`
}

func (VerificationToken) TableName() string {
	return "verification_tokens"
}

func (v *VerificationToken) Usable(now time.Time) bool {
	return v.ConsumedAt == nil && now.Before(v.ExpiresAt)
}
