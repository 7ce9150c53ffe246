package services

import (
	"github.com/google/uuid"
	"github.com/userdesk/backend/internal/models"
)

// Relationship is what a viewer must be to the target of a mutation.
type Relationship string

const (
	RelationshipSelf          Relationship = "self"
	RelationshipAdmin         Relationship = "admin"
	RelationshipAuthenticated Relationship = "authenticated"
)

// UserField names a mutable aspect of a user record.
type UserField string

const (
	FieldName        UserField = "name"
	FieldEmail       UserField = "email"
	FieldEmailPublic UserField = "email_public"
	FieldProfile     UserField = "profile"
	FieldActive      UserField = "active"
	FieldRole        UserField = "role"
	FieldDelete      UserField = "delete"
)

// fieldPolicy is the single authorization table every mutation consults.
// Keeping it in one place stops the per-handler checks from drifting apart.
var fieldPolicy = map[UserField]Relationship{
	FieldName:        RelationshipSelf,
	FieldEmail:       RelationshipSelf,
	FieldEmailPublic: RelationshipSelf,
	FieldProfile:     RelationshipSelf,
	FieldActive:      RelationshipAdmin,
	FieldRole:        RelationshipAdmin,
	FieldDelete:      RelationshipAdmin,
}

type AccessService struct{}

func NewAccessService() *AccessService {
	return &AccessService{}
}

// CanView gates the directory and detail pages: any authenticated viewer may
// read them.
func (a *AccessService) CanView(viewer *models.User) bool {
	return viewer != nil
}

// CanMutate decides whether viewer may change the given field of the target
// user. Unknown fields are denied.
func (a *AccessService) CanMutate(viewer *models.User, targetID uuid.UUID, field UserField) bool {
	if viewer == nil {
		return false
	}

	required, known := fieldPolicy[field]
	if !known {
		return false
	}

	switch required {
	case RelationshipAdmin:
		return viewer.IsAdmin()
	case RelationshipSelf:
		return viewer.ID == targetID
	case RelationshipAuthenticated:
		return true
	default:
		return false
	}
}
