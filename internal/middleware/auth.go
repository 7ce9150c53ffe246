package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/userdesk/backend/internal/config"
	"github.com/userdesk/backend/internal/models"
	"github.com/userdesk/backend/internal/services"
	"github.com/userdesk/backend/pkg/logger"
	"github.com/userdesk/backend/pkg/utils"
	"gorm.io/gorm"
)

const currentUserKey = "currentUser"

// AuthMiddleware resolves the viewer for every request: the session cookie
// first, a Bearer JWT as the API-client fallback. Handlers never see a raw
// token, only the resolved user.
type AuthMiddleware struct {
	DB       *gorm.DB
	Sessions *services.SessionService
	Cookie   config.SessionConfig
}

func NewAuthMiddleware(db *gorm.DB, sessions *services.SessionService, cookie config.SessionConfig) *AuthMiddleware {
	return &AuthMiddleware{DB: db, Sessions: sessions, Cookie: cookie}
}

func CORS(frontendURL string) fiber.Handler {
	return cors.New(cors.Config{
		AllowOrigins:     frontendURL,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowCredentials: true,
	})
}

// LoadViewer stores the resolved viewer in locals when a usable credential
// is present; it never rejects the request itself.
func (a *AuthMiddleware) LoadViewer(c *fiber.Ctx) error {
	if user := a.resolveViewer(c); user != nil {
		c.Locals(currentUserKey, user)
		c.Locals("userID", user.ID.String())
	}
	return c.Next()
}

// RequireAuth rejects requests without a resolved viewer. The client is
// expected to navigate to the sign-in page.
func (a *AuthMiddleware) RequireAuth(c *fiber.Ctx) error {
	if GetCurrentUser(c) == nil {
		return utils.ErrorRedirect(c, fiber.StatusUnauthorized, "authentication required", "/sign-in")
	}
	return c.Next()
}

// RequireActive blocks deactivated accounts from everything but sign-out.
func (a *AuthMiddleware) RequireActive(c *fiber.Ctx) error {
	user := GetCurrentUser(c)
	if user != nil && !user.Active {
		return utils.Error(c, fiber.StatusForbidden, "account is deactivated")
	}
	return c.Next()
}

func (a *AuthMiddleware) resolveViewer(c *fiber.Ctx) *models.User {
	if token := c.Cookies(a.Cookie.CookieName); token != "" {
		user, _, err := a.Sessions.Resolve(c.Context(), token)
		if err == nil {
			return user
		}
		a.ClearSessionCookie(c)
	}

	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return nil
	}

	tokenString := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
	if tokenString == authHeader || tokenString == "" {
		logger.Warn("jwt_invalid_format", map[string]interface{}{
			"ip":   c.IP(),
			"path": c.Path(),
		})
		return nil
	}

	userID, err := utils.ValidateToken(tokenString)
	if err != nil {
		logger.Warn("jwt_validation_failed", map[string]interface{}{
			"ip":    c.IP(),
			"path":  c.Path(),
			"error": err.Error(),
		})
		return nil
	}

	var user models.User
	if err := a.DB.First(&user, "id = ?", userID).Error; err != nil {
		logger.Warn("jwt_user_not_found", map[string]interface{}{
			"ip":      c.IP(),
			"path":    c.Path(),
			"user_id": userID.String(),
		})
		return nil
	}

	return &user
}

// SetSessionCookie writes the opaque token cookie after sign-in.
func (a *AuthMiddleware) SetSessionCookie(c *fiber.Ctx, token string) {
	c.Cookie(&fiber.Cookie{
		Name:     a.Cookie.CookieName,
		Value:    token,
		MaxAge:   int(a.Cookie.TTL.Seconds()),
		HTTPOnly: true,
		Secure:   a.Cookie.CookieSecure,
		SameSite: fiber.CookieSameSiteLaxMode,
		Path:     "/",
	})
}

func (a *AuthMiddleware) ClearSessionCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     a.Cookie.CookieName,
		Value:    "",
		MaxAge:   -1,
		HTTPOnly: true,
		Secure:   a.Cookie.CookieSecure,
		SameSite: fiber.CookieSameSiteLaxMode,
		Path:     "/",
	})
}

// SessionToken returns the raw cookie value, used only by sign-out to revoke
// the right row.
func (a *AuthMiddleware) SessionToken(c *fiber.Ctx) string {
	return c.Cookies(a.Cookie.CookieName)
}

func AdminOnly(c *fiber.Ctx) error {
	user := GetCurrentUser(c)
	if user == nil {
		return utils.ErrorRedirect(c, fiber.StatusUnauthorized, "authentication required", "/sign-in")
	}
	if !user.IsAdmin() {
		return utils.Error(c, fiber.StatusForbidden, "Not authorized")
	}
	return c.Next()
}

func GetCurrentUser(c *fiber.Ctx) *models.User {
	value := c.Locals(currentUserKey)
	if value == nil {
		return nil
	}
	user, ok := value.(*models.User)
	if !ok {
		return nil
	}
	return user
}
