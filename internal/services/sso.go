package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/userdesk/backend/internal/models"
	"github.com/userdesk/backend/pkg/logger"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

// SSOService turns provider profiles into local accounts and keeps the
// linked_accounts table current.
type SSOService struct {
	DB *gorm.DB
}

func NewSSOService(db *gorm.DB) *SSOService {
	return &SSOService{DB: db}
}

// SSOProfile is what every provider's userinfo response is normalized to.
type SSOProfile struct {
	Provider       models.Provider
	ProviderUserID string
	Email          string
	Name           string
	AvatarURL      *string
	EmailVerified  bool
	RawProfile     map[string]interface{}
}

// FindOrCreateUser resolves an SSO profile to a local user: by linked
// account first, then by email, creating user+profile when neither exists.
func (s *SSOService) FindOrCreateUser(ctx context.Context, profile *SSOProfile, token *oauth2.Token) (*models.User, error) {
	if profile.Email == "" {
		return nil, errors.New("provider returned no email address")
	}

	var linked models.LinkedAccount
	err := s.DB.WithContext(ctx).
		First(&linked, "provider = ? AND provider_user_id = ?", profile.Provider, profile.ProviderUserID).Error
	if err == nil {
		var user models.User
		if err := s.DB.WithContext(ctx).First(&user, "id = ?", linked.UserID).Error; err != nil {
			return nil, err
		}
		s.refreshLinkedTokens(ctx, &linked, token)
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var user models.User
	err = s.DB.WithContext(ctx).First(&user, "email = ?", profile.Email).Error
	if err == nil {
		if err := s.LinkAccount(ctx, user.ID, profile, token); err != nil {
			logger.Warn("sso_link_account_failed", map[string]interface{}{
				"user_id":  user.ID.String(),
				"provider": string(profile.Provider),
				"error":    err.Error(),
			})
		}
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	name, err := s.availableName(ctx, profile)
	if err != nil {
		return nil, err
	}

	user = models.User{
		Name:          name,
		Email:         profile.Email,
		EmailVerified: profile.EmailVerified,
		Active:        true,
		Role:          models.UserRoleUser,
		Image:         profile.AvatarURL,
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		profileRow := models.Profile{
			UserID: user.ID,
			Name:   user.Name,
			Avatar: profile.AvatarURL,
		}
		return tx.Where("user_id = ?", user.ID).FirstOrCreate(&profileRow).Error
	})
	if err != nil {
		return nil, err
	}

	if err := s.LinkAccount(ctx, user.ID, profile, token); err != nil {
		logger.Warn("sso_create_linked_account_failed", map[string]interface{}{
			"user_id":  user.ID.String(),
			"provider": string(profile.Provider),
			"error":    err.Error(),
		})
	}

	logger.Info("sso_user_created", map[string]interface{}{
		"user_id":  user.ID.String(),
		"email":    user.Email,
		"provider": string(profile.Provider),
	})

	return &user, nil
}

// LinkAccount records the external credential for an existing user.
func (s *SSOService) LinkAccount(ctx context.Context, userID uuid.UUID, profile *SSOProfile, token *oauth2.Token) error {
	linked := models.LinkedAccount{
		UserID:         userID,
		Provider:       profile.Provider,
		ProviderUserID: profile.ProviderUserID,
		Email:          profile.Email,
	}
	if token != nil {
		linked.AccessToken = token.AccessToken
		linked.RefreshToken = token.RefreshToken
		if !token.Expiry.IsZero() {
			expiry := token.Expiry
			linked.TokenExpiresAt = &expiry
		}
	}
	profileJSON, _ := json.Marshal(profile.RawProfile)
	linked.ProfileData = string(profileJSON)

	err := s.DB.WithContext(ctx).Create(&linked).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil
	}
	return err
}

func (s *SSOService) GetLinkedAccounts(ctx context.Context, userID uuid.UUID) ([]models.LinkedAccount, error) {
	var accounts []models.LinkedAccount
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).Find(&accounts).Error
	return accounts, err
}

func (s *SSOService) refreshLinkedTokens(ctx context.Context, linked *models.LinkedAccount, token *oauth2.Token) {
	if token == nil {
		return
	}
	updates := map[string]interface{}{"access_token": token.AccessToken}
	if token.RefreshToken != "" {
		updates["refresh_token"] = token.RefreshToken
	}
	if !token.Expiry.IsZero() {
		updates["token_expires_at"] = token.Expiry
	}
	if err := s.DB.WithContext(ctx).Model(linked).Updates(updates).Error; err != nil {
		logger.Warn("sso_token_refresh_failed", map[string]interface{}{
			"linked_account_id": linked.ID.String(),
		})
	}
}

// availableName derives a display name from the provider profile, suffixing
// until it does not collide with an existing user.
func (s *SSOService) availableName(ctx context.Context, profile *SSOProfile) (string, error) {
	base := strings.ToLower(strings.TrimSpace(profile.Name))
	if base == "" {
		base = strings.SplitN(profile.Email, "@", 2)[0]
	}
	base = sanitizeName(base)
	if base == "" {
		base = "user"
	}

	candidate := base
	for i := 0; i < 20; i++ {
		var count int64
		if err := s.DB.WithContext(ctx).Model(&models.User{}).
			Where("name = ?", candidate).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i+1)
	}
	return "", errors.New("could not derive an available username")
}

func sanitizeName(value string) string {
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-._")
}
