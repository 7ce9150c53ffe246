package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/userdesk/backend/internal/models"
)

func testUser(role models.UserRole) *models.User {
	return &models.User{
		BaseModel: models.BaseModel{ID: uuid.New()},
		Role:      role,
	}
}

func TestAccessService_CanView(t *testing.T) {
	access := NewAccessService()

	if access.CanView(nil) {
		t.Error("unauthenticated viewer must not see the directory")
	}
	if !access.CanView(testUser(models.UserRoleUser)) {
		t.Error("any authenticated viewer may see the directory")
	}
}

func TestAccessService_CanMutate(t *testing.T) {
	access := NewAccessService()
	admin := testUser(models.UserRoleAdmin)
	member := testUser(models.UserRoleUser)
	redacteur := testUser(models.UserRoleRedacteur)
	otherID := uuid.New()

	tests := []struct {
		name     string
		viewer   *models.User
		targetID uuid.UUID
		field    UserField
		want     bool
	}{
		{"unauthenticated denied", nil, otherID, FieldName, false},
		{"self may rename", member, member.ID, FieldName, true},
		{"self may change email", member, member.ID, FieldEmail, true},
		{"self may change public email", member, member.ID, FieldEmailPublic, true},
		{"self may edit profile", member, member.ID, FieldProfile, true},
		{"self may not change own role", member, member.ID, FieldRole, false},
		{"self may not toggle own active flag", member, member.ID, FieldActive, false},
		{"self may not delete own account", member, member.ID, FieldDelete, false},
		{"other user may not rename", member, otherID, FieldName, false},
		{"redacteur has no admin powers", redacteur, otherID, FieldRole, false},
		{"admin may change any role", admin, otherID, FieldRole, true},
		{"admin may toggle any active flag", admin, otherID, FieldActive, true},
		{"admin may delete any user", admin, otherID, FieldDelete, true},
		{"admin may not rename others", admin, otherID, FieldName, false},
		{"admin may rename self", admin, admin.ID, FieldName, true},
		{"unknown field denied", admin, otherID, UserField("password_hash"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := access.CanMutate(tt.viewer, tt.targetID, tt.field); got != tt.want {
				t.Errorf("CanMutate(%v, %s) = %v, want %v", tt.viewer, tt.field, got, tt.want)
			}
		})
	}
}
