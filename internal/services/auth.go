package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/userdesk/backend/internal/models"
	"github.com/userdesk/backend/pkg/logger"
	"github.com/userdesk/backend/pkg/utils"
	"gorm.io/gorm"
)

var (
	ErrNameTaken          = errors.New("username already exists")
	ErrEmailTaken         = errors.New("email already in use")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailNotVerified   = errors.New("email address is not verified")
	ErrUserInactive       = errors.New("account is deactivated")
	ErrTokenInvalid       = errors.New("token invalid or expired")
)

const (
	verifyTokenTTL = 24 * time.Hour
	resetTokenTTL  = time.Hour
)

// AuthService handles credential sign-up/sign-in and the email token flows.
type AuthService struct {
	DB      *gorm.DB
	Mailer  *Mailer
	BaseURL string
}

func NewAuthService(db *gorm.DB, mailer *Mailer, baseURL string) *AuthService {
	return &AuthService{DB: db, Mailer: mailer, BaseURL: baseURL}
}

// NameTaken reports whether any user other than excludeID already holds the
// name. Sign-up and rename share this check.
func (s *AuthService) NameTaken(ctx context.Context, name string, excludeID uuid.UUID) (bool, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("name = ? AND id <> ?", name, excludeID).
		Count(&count).Error
	return count > 0, err
}

// EmailTaken is the same discipline against users.email.
func (s *AuthService) EmailTaken(ctx context.Context, email string, excludeID uuid.UUID) (bool, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("email = ? AND id <> ?", email, excludeID).
		Count(&count).Error
	return count > 0, err
}

// PublicEmailTaken checks profiles.email_public, ignoring the caller's own
// row. Empty values are never a conflict.
func (s *AuthService) PublicEmailTaken(ctx context.Context, email string, excludeUserID uuid.UUID) (bool, error) {
	if email == "" {
		return false, nil
	}
	var count int64
	err := s.DB.WithContext(ctx).Model(&models.Profile{}).
		Where("email_public = ? AND user_id <> ?", email, excludeUserID).
		Count(&count).Error
	return count > 0, err
}

// SignUp creates the user and its profile in one transaction, then mails a
// verification link. The profile insert is create-if-absent so a retried
// sign-up does not fail on its own half-finished state.
func (s *AuthService) SignUp(ctx context.Context, name, email, password string) (*models.User, error) {
	if taken, err := s.NameTaken(ctx, name, uuid.Nil); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrNameTaken
	}
	if taken, err := s.EmailTaken(ctx, email, uuid.Nil); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrEmailTaken
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := models.User{
		Name:         name,
		Email:        email,
		Active:       true,
		Role:         models.UserRoleUser,
		PasswordHash: hash,
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		profile := models.Profile{UserID: user.ID, Name: user.Name}
		return tx.Where("user_id = ?", user.ID).FirstOrCreate(&profile).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrNameTaken
		}
		return nil, err
	}

	if err := s.IssueVerification(ctx, &user); err != nil {
		logger.Warn("signup_verification_mail_failed", map[string]interface{}{
			"user_id": user.ID.String(),
			"error":   err.Error(),
		})
	}

	logger.Info("user_registered", map[string]interface{}{
		"user_id": user.ID.String(),
		"name":    user.Name,
	})

	return &user, nil
}

// SignIn validates credentials and the account gates. It never reveals which
// part of the credential pair was wrong.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*models.User, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).First(&user, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.HasPassword() || !utils.CheckPassword(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	if !user.EmailVerified {
		return nil, ErrEmailNotVerified
	}
	if !user.Active {
		return nil, ErrUserInactive
	}

	return &user, nil
}

// IssueVerification creates a fresh email-verification token and mails it.
func (s *AuthService) IssueVerification(ctx context.Context, user *models.User) error {
	token, err := s.issueToken(ctx, user.Email, models.TokenPurposeEmailVerify, verifyTokenTTL)
	if err != nil {
		return err
	}
	return s.Mailer.SendVerificationEmail(user.Email, s.BaseURL+"/verify-email?token="+token)
}

// VerifyEmail consumes a verification token and marks the account verified.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (*models.User, error) {
	record, err := s.consumeToken(ctx, token, models.TokenPurposeEmailVerify)
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := s.DB.WithContext(ctx).First(&user, "email = ?", record.Identifier).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}

	if err := s.DB.WithContext(ctx).Model(&user).Update("email_verified", true).Error; err != nil {
		return nil, err
	}
	user.EmailVerified = true

	return &user, nil
}

// RequestPasswordReset mails a reset link. An unknown address is silently
// accepted so the endpoint cannot be used to probe for accounts.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	var user models.User
	if err := s.DB.WithContext(ctx).First(&user, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	token, err := s.issueToken(ctx, user.Email, models.TokenPurposePasswordReset, resetTokenTTL)
	if err != nil {
		return err
	}
	return s.Mailer.SendPasswordResetEmail(user.Email, s.BaseURL+"/reset-password?token="+token)
}

// ResetPassword consumes a reset token and replaces the password.
func (s *AuthService) ResetPassword(ctx context.Context, token, password string) (*models.User, error) {
	record, err := s.consumeToken(ctx, token, models.TokenPurposePasswordReset)
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := s.DB.WithContext(ctx).First(&user, "email = ?", record.Identifier).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, err
	}
	if err := s.DB.WithContext(ctx).Model(&user).Update("password_hash", hash).Error; err != nil {
		return nil, err
	}

	return &user, nil
}

// ChangePassword is the signed-in variant and requires the current password.
func (s *AuthService) ChangePassword(ctx context.Context, user *models.User, oldPassword, newPassword string) error {
	if !user.HasPassword() || !utils.CheckPassword(oldPassword, user.PasswordHash) {
		return ErrInvalidCredentials
	}

	hash, err := utils.HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.DB.WithContext(ctx).Model(user).Update("password_hash", hash).Error
}

func (s *AuthService) issueToken(ctx context.Context, identifier string, purpose models.TokenPurpose, ttl time.Duration) (string, error) {
	token, err := utils.GenerateOpaqueToken()
	if err != nil {
		return "", err
	}

	record := models.VerificationToken{
		Identifier: identifier,
		TokenHash:  utils.HashToken(token),
		Purpose:    purpose,
		ExpiresAt:  time.Now().Add(ttl),
	}
	if err := s.DB.WithContext(ctx).Create(&record).Error; err != nil {
		return "", err
	}

	return token, nil
}

func (s *AuthService) consumeToken(ctx context.Context, token string, purpose models.TokenPurpose) (*models.VerificationToken, error) {
	var record models.VerificationToken
	err := s.DB.WithContext(ctx).
		First(&record, "token_hash = ? AND purpose = ?", utils.HashToken(token), purpose).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, err
	}

	if !record.Usable(time.Now()) {
		return nil, ErrTokenInvalid
	}

	now := time.Now()
	if err := s.DB.WithContext(ctx).Model(&record).Update("consumed_at", &now).Error; err != nil {
		return nil, err
	}

	return &record, nil
}
