package handlers

import (
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/userdesk/backend/internal/config"
	"github.com/userdesk/backend/internal/middleware"
	"github.com/userdesk/backend/internal/services"
	"github.com/userdesk/backend/pkg/logger"
	"github.com/userdesk/backend/pkg/utils"
	"gorm.io/gorm"
)

type SSOHandler struct {
	DB           *gorm.DB
	Cfg          *config.Config
	SSOService   *services.SSOService
	OAuthService *services.OAuthProviderService
	Sessions     *services.SessionService
	Cookies      *middleware.AuthMiddleware
}

func NewSSOHandler(db *gorm.DB, cfg *config.Config, sessions *services.SessionService, cookies *middleware.AuthMiddleware) *SSOHandler {
	return &SSOHandler{
		DB:           db,
		Cfg:          cfg,
		SSOService:   services.NewSSOService(db),
		OAuthService: services.NewOAuthProviderService(cfg),
		Sessions:     sessions,
		Cookies:      cookies,
	}
}

// GetLoginRedirect hands the client the provider's authorization URL.
func (h *SSOHandler) GetLoginRedirect(c *fiber.Ctx) error {
	provider := c.Params("provider")

	oauthCfg, providerName, err := h.OAuthService.GetOAuthConfig(c.Context(), provider)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, err.Error())
	}

	state, err := h.OAuthService.GenerateState(providerName)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating state")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"url": oauthCfg.AuthCodeURL(state),
	})
}

// HandleOAuthCallback finishes the provider round trip: exchange the code,
// resolve or create the local user, start a session, and bounce back to the
// frontend. A viewer who is already signed in gets the account linked
// instead of a fresh sign-in.
func (h *SSOHandler) HandleOAuthCallback(c *fiber.Ctx) error {
	provider := c.Params("provider")
	code := c.Query("code")
	state := c.Query("state")
	frontendURL := h.Cfg.Server.FrontendURL

	if code == "" {
		return c.Redirect(frontendURL + "/sign-in?error=" + url.QueryEscape("authorization code is required"))
	}
	if err := h.OAuthService.ValidateState(state, provider); err != nil {
		return c.Redirect(frontendURL + "/sign-in?error=" + url.QueryEscape(err.Error()))
	}

	token, err := h.OAuthService.ExchangeCode(c.Context(), provider, code)
	if err != nil {
		return c.Redirect(frontendURL + "/sign-in?error=" + url.QueryEscape(err.Error()))
	}

	profile, err := h.OAuthService.GetUserInfo(c.Context(), provider, token)
	if err != nil {
		return c.Redirect(frontendURL + "/sign-in?error=" + url.QueryEscape(err.Error()))
	}

	if viewer := middleware.GetCurrentUser(c); viewer != nil {
		if err := h.SSOService.LinkAccount(c.Context(), viewer.ID, profile, token); err != nil {
			return c.Redirect(frontendURL + "/profile?error=" + url.QueryEscape("failed linking account"))
		}
		return c.Redirect(frontendURL + "/profile?linked=" + url.QueryEscape(provider))
	}

	user, err := h.SSOService.FindOrCreateUser(c.Context(), profile, token)
	if err != nil {
		return c.Redirect(frontendURL + "/sign-in?error=" + url.QueryEscape(err.Error()))
	}

	if !user.Active {
		return c.Redirect(frontendURL + "/sign-in?error=" + url.QueryEscape("account is deactivated"))
	}

	sessionToken, _, err := h.Sessions.Create(c.Context(), user, c.IP(), c.Get("User-Agent"))
	if err != nil {
		return c.Redirect(frontendURL + "/sign-in?error=" + url.QueryEscape("failed creating session"))
	}
	h.Cookies.SetSessionCookie(c, sessionToken)

	logger.InfoWithUser(user.ID.String(), "sso_login_success", map[string]interface{}{
		"provider": provider,
	})

	return c.Redirect(frontendURL + "/")
}
