package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/userdesk/backend/internal/config"
	"github.com/userdesk/backend/internal/models"
	"github.com/userdesk/backend/pkg/logger"
	"golang.org/x/oauth2"
	github "golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
)

// OAuthProviderService knows how to talk to the configured identity
// providers. The generic OIDC provider is resolved once via discovery.
type OAuthProviderService struct {
	Cfg *config.Config

	mu           sync.Mutex
	oidcProvider *oidc.Provider
}

func NewOAuthProviderService(cfg *config.Config) *OAuthProviderService {
	return &OAuthProviderService{Cfg: cfg}
}

type OAuthState struct {
	Provider  string    `json:"provider"`
	Nonce     string    `json:"nonce"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *OAuthProviderService) GetOAuthConfig(ctx context.Context, provider string) (*oauth2.Config, string, error) {
	switch strings.ToLower(provider) {
	case "google":
		if !s.Cfg.SSO.Google.Enabled {
			return nil, "", errors.New("google oauth is not enabled")
		}
		return &oauth2.Config{
			ClientID:     s.Cfg.SSO.Google.ClientID,
			ClientSecret: s.Cfg.SSO.Google.ClientSecret,
			RedirectURL:  s.Cfg.SSO.Google.RedirectURL,
			Scopes:       strings.Split(s.Cfg.SSO.Google.Scopes, ","),
			Endpoint:     google.Endpoint,
		}, "google", nil

	case "github":
		if !s.Cfg.SSO.GitHub.Enabled {
			return nil, "", errors.New("github oauth is not enabled")
		}
		return &oauth2.Config{
			ClientID:     s.Cfg.SSO.GitHub.ClientID,
			ClientSecret: s.Cfg.SSO.GitHub.ClientSecret,
			RedirectURL:  s.Cfg.SSO.GitHub.RedirectURL,
			Scopes:       strings.Split(s.Cfg.SSO.GitHub.Scopes, ","),
			Endpoint:     github.Endpoint,
		}, "github", nil

	case "oidc":
		if !s.Cfg.SSO.OIDC.Enabled {
			return nil, "", errors.New("oidc is not enabled")
		}
		oidcProvider, err := s.discoverOIDC(ctx)
		if err != nil {
			return nil, "", err
		}
		return &oauth2.Config{
			ClientID:     s.Cfg.SSO.OIDC.ClientID,
			ClientSecret: s.Cfg.SSO.OIDC.ClientSecret,
			RedirectURL:  s.Cfg.SSO.OIDC.RedirectURL,
			Scopes:       strings.Split(s.Cfg.SSO.OIDC.Scopes, ","),
			Endpoint:     oidcProvider.Endpoint(),
		}, "oidc", nil

	default:
		return nil, "", errors.New("unknown oauth provider: " + provider)
	}
}

func (s *OAuthProviderService) discoverOIDC(ctx context.Context) (*oidc.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.oidcProvider != nil {
		return s.oidcProvider, nil
	}

	provider, err := oidc.NewProvider(ctx, s.Cfg.SSO.OIDC.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery failed: %w", err)
	}
	s.oidcProvider = provider
	return provider, nil
}

// GenerateState produces the anti-forgery state carried through the
// authorization redirect, base64-encoded JSON with a short expiry.
func (s *OAuthProviderService) GenerateState(provider string) (string, error) {
	nonceBytes := make([]byte, 32)
	if _, err := rand.Read(nonceBytes); err != nil {
		return "", err
	}

	state := OAuthState{
		Provider:  provider,
		Nonce:     base64.URLEncoding.EncodeToString(nonceBytes),
		ExpiresAt: time.Now().Add(10 * time.Minute),
	}

	raw, err := json.Marshal(state)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(raw), nil
}

// ValidateState decodes the returned state and checks provider and expiry.
func (s *OAuthProviderService) ValidateState(encoded, provider string) error {
	raw, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return errors.New("invalid state")
	}

	var state OAuthState
	if err := json.Unmarshal(raw, &state); err != nil {
		return errors.New("invalid state")
	}
	if state.Provider != provider {
		return errors.New("state provider mismatch")
	}
	if time.Now().After(state.ExpiresAt) {
		return errors.New("state expired")
	}
	return nil
}

func (s *OAuthProviderService) ExchangeCode(ctx context.Context, provider string, code string) (*oauth2.Token, error) {
	oauthCfg, _, err := s.GetOAuthConfig(ctx, provider)
	if err != nil {
		return nil, err
	}

	token, err := oauthCfg.Exchange(ctx, code)
	if err != nil {
		logger.Warn("oauth_exchange_failed", map[string]interface{}{
			"provider": provider,
			"error":    err.Error(),
		})
		return nil, errors.New("failed to exchange code for token")
	}

	return token, nil
}

func (s *OAuthProviderService) GetUserInfo(ctx context.Context, provider string, token *oauth2.Token) (*SSOProfile, error) {
	switch strings.ToLower(provider) {
	case "google":
		return s.getGoogleUserInfo(ctx, token)
	case "github":
		return s.getGitHubUserInfo(ctx, token)
	case "oidc":
		return s.getOIDCUserInfo(ctx, token)
	default:
		return nil, errors.New("unknown provider: " + provider)
	}
}

func (s *OAuthProviderService) getGoogleUserInfo(ctx context.Context, token *oauth2.Token) (*SSOProfile, error) {
	oauthCfg, _, err := s.GetOAuthConfig(ctx, "google")
	if err != nil {
		return nil, err
	}
	client := oauthCfg.Client(ctx, token)

	resp, err := client.Get("https://www.googleapis.com/oauth2/v2/userinfo")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("google api returned status %d: %s", resp.StatusCode, string(body))
	}

	var data struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
		VerifiedEmail bool   `json:"verified_email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}

	return &SSOProfile{
		Provider:       models.ProviderGoogle,
		ProviderUserID: data.ID,
		Email:          strings.ToLower(data.Email),
		Name:           data.Name,
		AvatarURL:      optionalString(data.Picture),
		EmailVerified:  data.VerifiedEmail,
		RawProfile: map[string]interface{}{
			"id":      data.ID,
			"email":   data.Email,
			"name":    data.Name,
			"picture": data.Picture,
		},
	}, nil
}

func (s *OAuthProviderService) getGitHubUserInfo(ctx context.Context, token *oauth2.Token) (*SSOProfile, error) {
	oauthCfg, _, err := s.GetOAuthConfig(ctx, "github")
	if err != nil {
		return nil, err
	}
	client := oauthCfg.Client(ctx, token)

	resp, err := client.Get("https://api.github.com/user")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("github api returned status %d: %s", resp.StatusCode, string(body))
	}

	var data struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}

	email := data.Email
	if email == "" {
		email, err = s.getGitHubPrimaryEmail(ctx, client)
		if err != nil {
			return nil, err
		}
	}

	return &SSOProfile{
		Provider:       models.ProviderGitHub,
		ProviderUserID: fmt.Sprintf("%d", data.ID),
		Email:          strings.ToLower(email),
		Name:           data.Login,
		AvatarURL:      optionalString(data.AvatarURL),
		EmailVerified:  true,
		RawProfile: map[string]interface{}{
			"id":    data.ID,
			"login": data.Login,
			"name":  data.Name,
			"email": email,
		},
	}, nil
}

// getGitHubPrimaryEmail handles accounts with a private profile email.
func (s *OAuthProviderService) getGitHubPrimaryEmail(ctx context.Context, client *http.Client) (string, error) {
	resp, err := client.Get("https://api.github.com/user/emails")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("github emails api returned status %d", resp.StatusCode)
	}

	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&emails); err != nil {
		return "", err
	}

	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}
	return "", errors.New("no verified primary email on github account")
}

func (s *OAuthProviderService) getOIDCUserInfo(ctx context.Context, token *oauth2.Token) (*SSOProfile, error) {
	provider, err := s.discoverOIDC(ctx)
	if err != nil {
		return nil, err
	}

	userInfo, err := provider.UserInfo(ctx, oauth2.StaticTokenSource(token))
	if err != nil {
		return nil, err
	}

	var claims struct {
		Name          string `json:"name"`
		Picture       string `json:"picture"`
		EmailVerified bool   `json:"email_verified"`
	}
	_ = userInfo.Claims(&claims)

	return &SSOProfile{
		Provider:       models.ProviderOIDC,
		ProviderUserID: userInfo.Subject,
		Email:          strings.ToLower(userInfo.Email),
		Name:           claims.Name,
		AvatarURL:      optionalString(claims.Picture),
		EmailVerified:  claims.EmailVerified,
		RawProfile: map[string]interface{}{
			"sub":   userInfo.Subject,
			"email": userInfo.Email,
			"name":  claims.Name,
		},
	}, nil
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
