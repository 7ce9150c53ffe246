package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/userdesk/backend/internal/middleware"
	"github.com/userdesk/backend/internal/models"
	"github.com/userdesk/backend/internal/services"
	"github.com/userdesk/backend/pkg/utils"
	"gorm.io/gorm"
)

// ProfileHandler covers the self-service profile fields that carry no
// uniqueness constraints.
type ProfileHandler struct {
	DB  *gorm.DB
	SSO *services.SSOService
}

func NewProfileHandler(db *gorm.DB, sso *services.SSOService) *ProfileHandler {
	return &ProfileHandler{DB: db, SSO: sso}
}

type updateProfileRequest struct {
	FirstName *string `json:"firstName" validate:"omitempty,max=100"`
	LastName  *string `json:"lastName" validate:"omitempty,max=100"`
	Phone     *string `json:"phone" validate:"omitempty,max=30"`
	Bio       *string `json:"bio" validate:"omitempty,max=2000"`
	Avatar    *string `json:"avatar" validate:"omitempty,max=500"`
}

// Update applies a partial edit to the viewer's own profile. A nil field is
// left alone; an empty string clears the column.
func (h *ProfileHandler) Update(c *fiber.Ctx) error {
	var req updateProfileRequest
	if !parseBody(c, &req) {
		return nil
	}

	viewer := middleware.GetCurrentUser(c)

	updates := map[string]interface{}{}
	applyOptional(updates, "first_name", req.FirstName)
	applyOptional(updates, "last_name", req.LastName)
	applyOptional(updates, "phone", req.Phone)
	applyOptional(updates, "bio", req.Bio)
	applyOptional(updates, "avatar", req.Avatar)

	if len(updates) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "no valid fields to update")
	}

	result := h.DB.Model(&models.Profile{}).Where("user_id = ?", viewer.ID).Updates(updates)
	if result.Error != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating profile")
	}
	if result.RowsAffected == 0 {
		return utils.ErrorRedirect(c, fiber.StatusNotFound, "profile missing", "/users")
	}

	var profile models.Profile
	if err := h.DB.First(&profile, "user_id = ?", viewer.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorRedirect(c, fiber.StatusNotFound, "profile missing", "/users")
		}
		return utils.Error(c, fiber.StatusInternalServerError, "failed fetching profile")
	}

	return utils.Flash(c, fiber.StatusOK, utils.FlashSuccess, "Profile updated.", profile)
}

func (h *ProfileHandler) LinkedAccounts(c *fiber.Ctx) error {
	viewer := middleware.GetCurrentUser(c)

	accounts, err := h.SSO.GetLinkedAccounts(c.Context(), viewer.ID)
	if err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing linked accounts")
	}

	return utils.Success(c, fiber.StatusOK, accounts)
}

func applyOptional(updates map[string]interface{}, column string, value *string) {
	if value == nil {
		return
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		updates[column] = nil
		return
	}
	updates[column] = trimmed
}
