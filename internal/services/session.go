package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/userdesk/backend/internal/models"
	"github.com/userdesk/backend/pkg/utils"
	"gorm.io/gorm"
)

var ErrSessionInvalid = errors.New("session invalid or expired")

// SessionService owns the persisted session rows behind the opaque cookie
// token.
type SessionService struct {
	DB  *gorm.DB
	TTL time.Duration
}

func NewSessionService(db *gorm.DB, ttl time.Duration) *SessionService {
	return &SessionService{DB: db, TTL: ttl}
}

// Create issues a new session for user and returns the raw token destined
// for the cookie. The stored row only holds the hash.
func (s *SessionService) Create(ctx context.Context, user *models.User, ip, userAgent string) (string, *models.Session, error) {
	token, err := utils.GenerateOpaqueToken()
	if err != nil {
		return "", nil, err
	}

	session := models.Session{
		TokenHash: utils.HashToken(token),
		ExpiresAt: time.Now().Add(s.TTL),
		IPAddress: ip,
		UserAgent: userAgent,
		UserID:    user.ID,
	}

	if err := s.DB.WithContext(ctx).Create(&session).Error; err != nil {
		return "", nil, err
	}

	return token, &session, nil
}

// Resolve maps a raw cookie token to its user. Expired rows are removed on
// sight so the table does not accumulate garbage; live rows get a sliding
// expiry, throttled to one write per half TTL.
func (s *SessionService) Resolve(ctx context.Context, token string) (*models.User, *models.Session, error) {
	if token == "" {
		return nil, nil, ErrSessionInvalid
	}

	var session models.Session
	err := s.DB.WithContext(ctx).First(&session, "token_hash = ?", utils.HashToken(token)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrSessionInvalid
		}
		return nil, nil, err
	}

	now := time.Now()
	if session.Expired(now) {
		_ = s.DB.WithContext(ctx).Delete(&session).Error
		return nil, nil, ErrSessionInvalid
	}

	if session.ExpiresAt.Sub(now) < s.TTL/2 {
		refreshed := now.Add(s.TTL)
		if err := s.DB.WithContext(ctx).Model(&session).
			Update("expires_at", refreshed).Error; err == nil {
			session.ExpiresAt = refreshed
		}
	}

	var user models.User
	if err := s.DB.WithContext(ctx).First(&user, "id = ?", session.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrSessionInvalid
		}
		return nil, nil, err
	}

	return &user, &session, nil
}

// Revoke removes the session behind the given raw token (sign-out).
func (s *SessionService) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.DB.WithContext(ctx).
		Delete(&models.Session{}, "token_hash = ?", utils.HashToken(token)).Error
}

// RevokeAllForUser removes every session of a user, used after password
// resets and account deactivation.
func (s *SessionService) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	return s.DB.WithContext(ctx).
		Delete(&models.Session{}, "user_id = ?", userID).Error
}
