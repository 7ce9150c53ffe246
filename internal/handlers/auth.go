package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/userdesk/backend/internal/middleware"
	"github.com/userdesk/backend/internal/models"
	"github.com/userdesk/backend/internal/services"
	"github.com/userdesk/backend/pkg/logger"
	"github.com/userdesk/backend/pkg/utils"
	"gorm.io/gorm"
)

type AuthHandler struct {
	DB       *gorm.DB
	Auth     *services.AuthService
	Sessions *services.SessionService
	Cookies  *middleware.AuthMiddleware
}

func NewAuthHandler(db *gorm.DB, auth *services.AuthService, sessions *services.SessionService, cookies *middleware.AuthMiddleware) *AuthHandler {
	return &AuthHandler{DB: db, Auth: auth, Sessions: sessions, Cookies: cookies}
}

type registerRequest struct {
	Name            string `json:"name" validate:"required,min=2,max=100"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8"`
	PasswordConfirm string `json:"passwordConfirm" validate:"required"`
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if !parseBody(c, &req) {
		return nil
	}

	req.Name = strings.ToLower(strings.TrimSpace(req.Name))
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if req.PasswordConfirm != req.Password {
		return utils.FieldError(c, fiber.StatusBadRequest, "passwordConfirm", "Passwords don't match")
	}

	user, err := h.Auth.SignUp(c.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrNameTaken):
			return utils.FieldError(c, fiber.StatusConflict, "name", "Username already exists!")
		case errors.Is(err, services.ErrEmailTaken):
			return utils.FieldError(c, fiber.StatusConflict, "email", "Email already in use!")
		default:
			logger.Error("register_failed", err, map[string]interface{}{"email": req.Email})
			return utils.Error(c, fiber.StatusInternalServerError, "An error has occurred while creating the user.")
		}
	}

	return utils.Flash(c, fiber.StatusCreated, utils.FlashSuccess,
		"You are now registered and need to verify your email before logging in.", user)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if !parseBody(c, &req) {
		return nil
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	user, err := h.Auth.SignIn(c.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidCredentials):
			logger.Warn("login_failed", map[string]interface{}{"email": req.Email, "ip": c.IP()})
			return utils.Error(c, fiber.StatusUnauthorized, "invalid credentials")
		case errors.Is(err, services.ErrEmailNotVerified):
			return utils.Error(c, fiber.StatusForbidden, "email address is not verified")
		case errors.Is(err, services.ErrUserInactive):
			return utils.Error(c, fiber.StatusForbidden, "account is deactivated")
		default:
			return utils.Error(c, fiber.StatusInternalServerError, "An error has occurred while logging in.")
		}
	}

	sessionToken, _, err := h.Sessions.Create(c.Context(), user, c.IP(), c.Get("User-Agent"))
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed creating session")
	}
	h.Cookies.SetSessionCookie(c, sessionToken)

	// Bearer token for clients that cannot hold a cookie
	jwtToken, err := utils.GenerateToken(user)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed generating token")
	}

	logger.InfoWithUser(user.ID.String(), "user_login", map[string]interface{}{
		"email": user.Email,
		"ip":    c.IP(),
	})

	return utils.Flash(c, fiber.StatusOK, utils.FlashInfo, "You successfully logged in.", fiber.Map{
		"user":  user,
		"token": jwtToken,
	})
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if token := h.Cookies.SessionToken(c); token != "" {
		if err := h.Sessions.Revoke(c.Context(), token); err != nil {
			logger.Warn("logout_revoke_failed", map[string]interface{}{"error": err.Error()})
		}
	}
	h.Cookies.ClearSessionCookie(c)

	return utils.Flash(c, fiber.StatusOK, utils.FlashInfo, "You are signed out.", nil)
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	var profile models.Profile
	if err := h.DB.First(&profile, "user_id = ?", user.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// integrity violation: a user must always have a profile
			return utils.ErrorRedirect(c, fiber.StatusNotFound, "profile missing", "/users")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching profile")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"user": user, "profile": profile})
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=8"`
}

func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	var req changePasswordRequest
	if !parseBody(c, &req) {
		return nil
	}

	user := middleware.GetCurrentUser(c)
	if err := h.Auth.ChangePassword(c.Context(), user, req.OldPassword, req.NewPassword); err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			return utils.FieldError(c, fiber.StatusBadRequest, "oldPassword", "current password is incorrect")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed changing password")
	}

	if err := h.Sessions.RevokeAllForUser(c.Context(), user.ID); err != nil {
		logger.Warn("password_change_session_revoke_failed", map[string]interface{}{
			"user_id": user.ID.String(),
		})
	}
	h.Cookies.ClearSessionCookie(c)

	return utils.Flash(c, fiber.StatusOK, utils.FlashSuccess, "Password updated. Please sign in again.", nil)
}

type verifyEmailRequest struct {
	Token string `json:"token" validate:"required"`
}

func (h *AuthHandler) VerifyEmail(c *fiber.Ctx) error {
	var req verifyEmailRequest
	if !parseBody(c, &req) {
		return nil
	}

	user, err := h.Auth.VerifyEmail(c.Context(), req.Token)
	if err != nil {
		if errors.Is(err, services.ErrTokenInvalid) {
			return utils.Error(c, fiber.StatusBadRequest, "verification link is invalid or expired")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed verifying email")
	}

	logger.InfoWithUser(user.ID.String(), "email_verified", map[string]interface{}{
		"email": user.Email,
	})

	return utils.Flash(c, fiber.StatusOK, utils.FlashSuccess, "Email verified. You can sign in now.", nil)
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (h *AuthHandler) ForgotPassword(c *fiber.Ctx) error {
	var req forgotPasswordRequest
	if !parseBody(c, &req) {
		return nil
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if err := h.Auth.RequestPasswordReset(c.Context(), req.Email); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed requesting password reset")
	}

	// same response whether or not the address exists
	return utils.Flash(c, fiber.StatusOK, utils.FlashInfo,
		"If the address exists, a reset link is on its way.", nil)
}

type resetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var req resetPasswordRequest
	if !parseBody(c, &req) {
		return nil
	}

	user, err := h.Auth.ResetPassword(c.Context(), req.Token, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrTokenInvalid) {
			return utils.Error(c, fiber.StatusBadRequest, "reset link is invalid or expired")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed resetting password")
	}

	if err := h.Sessions.RevokeAllForUser(c.Context(), user.ID); err != nil {
		logger.Warn("reset_session_revoke_failed", map[string]interface{}{
			"user_id": user.ID.String(),
		})
	}

	return utils.Flash(c, fiber.StatusOK, utils.FlashSuccess, "Password updated. Please sign in.", nil)
}
