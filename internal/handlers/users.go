package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/userdesk/backend/internal/middleware"
	"github.com/userdesk/backend/internal/models"
	"github.com/userdesk/backend/internal/services"
	"github.com/userdesk/backend/pkg/logger"
	"github.com/userdesk/backend/pkg/utils"
	"gorm.io/gorm"
)

type UsersHandler struct {
	DB       *gorm.DB
	Access   *services.AccessService
	Auth     *services.AuthService
	Sessions *services.SessionService
	Audit    *services.AuditService
}

func NewUsersHandler(db *gorm.DB, access *services.AccessService, auth *services.AuthService, sessions *services.SessionService, audit *services.AuditService) *UsersHandler {
	return &UsersHandler{DB: db, Access: access, Auth: auth, Sessions: sessions, Audit: audit}
}

// directoryEntry is the projection shown on the directory page: account
// fields joined with the profile's display fields.
type directoryEntry struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Active      bool            `json:"active"`
	Role        models.UserRole `json:"role"`
	Image       *string         `json:"image"`
	CreatedAt   time.Time       `json:"createdAt"`
	Avatar      *string         `json:"avatar"`
	FirstName   *string         `json:"firstName"`
	LastName    *string         `json:"lastName"`
	EmailPublic *string         `json:"emailPublic"`
}

// List returns every user ordered by name. LEFT JOIN so a user whose profile
// row is missing still shows up instead of silently disappearing.
func (h *UsersHandler) List(c *fiber.Ctx) error {
	var entries []directoryEntry
	err := h.DB.Table("users").
		Select("users.id, users.name, users.active, users.role, users.image, users.created_at, " +
			"profiles.avatar, profiles.first_name, profiles.last_name, profiles.email_public").
		Joins("LEFT JOIN profiles ON profiles.user_id = users.id").
		Order("users.name ASC").
		Scan(&entries).Error
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing users")
	}

	return utils.Success(c, fiber.StatusOK, entries)
}

func (h *UsersHandler) Get(c *fiber.Ctx) error {
	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorRedirect(c, fiber.StatusNotFound, "user not found", "/users")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching user")
	}

	var profile models.Profile
	if err := h.DB.First(&profile, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// invariant: profile should exist; the detail page is unusable without it
			return utils.ErrorRedirect(c, fiber.StatusNotFound, "profile missing", "/users")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching profile")
	}

	return utils.Success(c, fiber.StatusOK, fiber.Map{"user": user, "profile": profile})
}

type renameRequest struct {
	Name string `json:"name" validate:"required,min=2,max=100"`
}

// Rename changes the display name and the profile's mirrored copy in one
// transaction.
func (h *UsersHandler) Rename(c *fiber.Ctx) error {
	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var req renameRequest
	if !parseBody(c, &req) {
		return nil
	}
	req.Name = strings.ToLower(strings.TrimSpace(req.Name))

	viewer := middleware.GetCurrentUser(c)
	if !h.Access.CanMutate(viewer, userID, services.FieldName) {
		return utils.Error(c, fiber.StatusForbidden, "Not authorized")
	}

	target, done := h.loadTarget(c, userID)
	if done {
		return nil
	}

	if target.Name == req.Name {
		// renaming to the current name is a no-op, not a conflict
		return utils.Flash(c, fiber.StatusOK, utils.FlashSuccess, "Username updated.", target)
	}

	if taken, err := h.Auth.NameTaken(c.Context(), req.Name, userID); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking username")
	} else if taken {
		return utils.FieldError(c, fiber.StatusConflict, "name", "Username already exists!")
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.User{}).Where("id = ?", userID).
			Update("name", req.Name).Error; err != nil {
			return err
		}
		return tx.Model(&models.Profile{}).Where("user_id = ?", userID).
			Update("name", req.Name).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return utils.FieldError(c, fiber.StatusConflict, "name", "Username already exists!")
		}
		logger.Error("rename_failed", err, map[string]interface{}{"user_id": userID.String()})
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating username")
	}

	target.Name = req.Name
	return utils.Flash(c, fiber.StatusOK, utils.FlashSuccess, "Username updated.", target)
}

type changeEmailRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// ChangeEmail updates the account email. The address must be re-verified, so
// the verified flag drops and a fresh verification mail goes out.
func (h *UsersHandler) ChangeEmail(c *fiber.Ctx) error {
	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var req changeEmailRequest
	if !parseBody(c, &req) {
		return nil
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	viewer := middleware.GetCurrentUser(c)
	if !h.Access.CanMutate(viewer, userID, services.FieldEmail) {
		return utils.Error(c, fiber.StatusForbidden, "Not authorized")
	}

	target, done := h.loadTarget(c, userID)
	if done {
		return nil
	}

	if target.Email == req.Email {
		return utils.Flash(c, fiber.StatusOK, utils.FlashSuccess, "Email updated.", target)
	}

	if taken, err := h.Auth.EmailTaken(c.Context(), req.Email, userID); err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed checking email")
	} else if taken {
		return utils.FieldError(c, fiber.StatusConflict, "email", "Email already in use!")
	}

	updates := map[string]interface{}{"email": req.Email, "email_verified": false}
	if err := h.DB.Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return utils.FieldError(c, fiber.StatusConflict, "email", "Email already in use!")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating email")
	}

	target.Email = req.Email
	target.EmailVerified = false
	if err := h.Auth.IssueVerification(c.Context(), target); err != nil {
		logger.Warn("email_change_verification_failed", map[string]interface{}{
			"user_id": userID.String(),
		})
	}

	return utils.Flash(c, fiber.StatusOK, utils.FlashSuccess, "Email updated.", target)
}

type publicEmailRequest struct {
	EmailPublic string `json:"emailPublic" validate:"omitempty,email"`
}

// ChangePublicEmail sets or clears the profile's public contact address.
// Empty always succeeds; a non-empty value must not belong to another
// profile.
func (h *UsersHandler) ChangePublicEmail(c *fiber.Ctx) error {
	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var req publicEmailRequest
	if !parseBody(c, &req) {
		return nil
	}
	req.EmailPublic = strings.ToLower(strings.TrimSpace(req.EmailPublic))

	viewer := middleware.GetCurrentUser(c)
	if !h.Access.CanMutate(viewer, userID, services.FieldEmailPublic) {
		return utils.Error(c, fiber.StatusForbidden, "Not authorized")
	}

	if _, done := h.loadTarget(c, userID); done {
		return nil
	}

	if req.EmailPublic != "" {
		if taken, err := h.Auth.PublicEmailTaken(c.Context(), req.EmailPublic, userID); err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed checking public email")
		} else if taken {
			return utils.FieldError(c, fiber.StatusConflict, "emailPublic", "Email already in use!")
		}
	}

	result := h.DB.Model(&models.Profile{}).Where("user_id = ?", userID).
		Update("email_public", req.EmailPublic)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return utils.FieldError(c, fiber.StatusConflict, "emailPublic", "Email already in use!")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating public email")
	}
	if result.RowsAffected == 0 {
		return utils.ErrorRedirect(c, fiber.StatusNotFound, "profile missing", "/users")
	}

	return utils.Flash(c, fiber.StatusOK, utils.FlashSuccess, "Public email updated.", nil)
}

type activeRequest struct {
	Active *bool `json:"active" validate:"required"`
}

func (h *UsersHandler) SetActive(c *fiber.Ctx) error {
	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var req activeRequest
	if !parseBody(c, &req) {
		return nil
	}

	viewer := middleware.GetCurrentUser(c)
	if !h.Access.CanMutate(viewer, userID, services.FieldActive) {
		return utils.Error(c, fiber.StatusForbidden, "Not authorized")
	}

	target, done := h.loadTarget(c, userID)
	if done {
		return nil
	}

	if err := h.DB.Model(&models.User{}).Where("id = ?", userID).
		Update("active", *req.Active).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating user")
	}

	if !*req.Active {
		if err := h.Sessions.RevokeAllForUser(c.Context(), userID); err != nil {
			logger.Warn("deactivate_session_revoke_failed", map[string]interface{}{
				"user_id": userID.String(),
			})
		}
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &viewer.ID,
		Action:       "user.set_active",
		ResourceType: "user",
		ResourceID:   &target.ID,
		Details:      map[string]interface{}{"active": *req.Active},
		IPAddress:    c.IP(),
	})

	return utils.Flash(c, fiber.StatusOK, utils.FlashSuccess, "User updated.", nil)
}

type roleRequest struct {
	Role models.UserRole `json:"role" validate:"required,oneof=USER REDACTEUR ADMIN"`
}

func (h *UsersHandler) SetRole(c *fiber.Ctx) error {
	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	var req roleRequest
	if !parseBody(c, &req) {
		return nil
	}

	viewer := middleware.GetCurrentUser(c)
	if !h.Access.CanMutate(viewer, userID, services.FieldRole) {
		return utils.Error(c, fiber.StatusForbidden, "Not authorized")
	}

	target, done := h.loadTarget(c, userID)
	if done {
		return nil
	}

	if err := h.DB.Model(&models.User{}).Where("id = ?", userID).
		Update("role", req.Role).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating user")
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &viewer.ID,
		Action:       "user.set_role",
		ResourceType: "user",
		ResourceID:   &target.ID,
		Details:      map[string]interface{}{"role": string(req.Role)},
		IPAddress:    c.IP(),
	})

	return utils.Flash(c, fiber.StatusOK, utils.FlashSuccess, "User updated.", nil)
}

// Delete removes the user and everything hanging off it. The dependent rows
// are deleted in the same transaction rather than trusting the database
// cascade alone.
func (h *UsersHandler) Delete(c *fiber.Ctx) error {
	userID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	viewer := middleware.GetCurrentUser(c)
	if !h.Access.CanMutate(viewer, userID, services.FieldDelete) {
		return utils.Error(c, fiber.StatusForbidden, "Not authorized")
	}

	target, done := h.loadTarget(c, userID)
	if done {
		return nil
	}

	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.Session{}, "user_id = ?", userID).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.LinkedAccount{}, "user_id = ?", userID).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.VerificationToken{}, "identifier = ?", target.Email).Error; err != nil {
			return err
		}
		if err := tx.Delete(&models.Profile{}, "user_id = ?", userID).Error; err != nil {
			return err
		}
		return tx.Delete(&models.User{}, "id = ?", userID).Error
	})
	if err != nil {
		logger.Error("user_delete_failed", err, map[string]interface{}{"user_id": userID.String()})
		return utils.Error(c, fiber.StatusInternalServerError, "failed deleting user")
	}

	h.Audit.LogAsync(services.AuditEntry{
		UserID:       &viewer.ID,
		Action:       "user.delete",
		ResourceType: "user",
		ResourceID:   &target.ID,
		Details:      map[string]interface{}{"name": target.Name},
		IPAddress:    c.IP(),
	})

	return utils.Flash(c, fiber.StatusOK, utils.FlashSuccess, "User deleted!", nil)
}

// loadTarget fetches the user a mutation applies to. When it writes a
// response itself (missing user, storage failure) it reports done=true.
func (h *UsersHandler) loadTarget(c *fiber.Ctx, userID uuid.UUID) (*models.User, bool) {
	var user models.User
	if err := h.DB.First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			_ = utils.ErrorRedirect(c, fiber.StatusNotFound, "user not found", "/users")
			return nil, true
		}
		_ = utils.Error(c, fiber.StatusInternalServerError, "failed fetching user")
		return nil, true
	}
	return &user, false
}
