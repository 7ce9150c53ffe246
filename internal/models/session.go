package models

import (
	"time"

	"github.com/google/uuid"
)

// Session backs the opaque cookie token. Only the SHA-256 hash of the token
// is stored; the raw value exists solely in the client cookie.
type Session struct {
	BaseModel
	TokenHash string    `json:"-" gorm:"type:varchar(64);uniqueIndex;not null"`
	ExpiresAt time.Time `json:"expiresAt" gorm:"not null;index"`
	IPAddress string    `json:"ipAddress" gorm:"type:varchar(45)"`
	UserAgent string    `json:"userAgent" gorm:"type:varchar(500)"`
	UserID    uuid.UUID `json:"userId" gorm:"type:uuid;not null;index"`
}

func (Session) TableName() string {
	return "sessions"
}

func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
