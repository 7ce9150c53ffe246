package models

type UserRole string

const (
	UserRoleUser      UserRole = "USER"
	UserRoleRedacteur UserRole = "REDACTEUR"
	UserRoleAdmin     UserRole = "ADMIN"
)

// ValidRole reports whether value is one of the three known roles.
func ValidRole(value UserRole) bool {
	switch value {
	case UserRoleUser, UserRoleRedacteur, UserRoleAdmin:
		return true
	default:
		return false
	}
}

type User struct {
	BaseModel
	Name           string          `json:"name" gorm:"type:varchar(100);uniqueIndex;not null"`
	Email          string          `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	EmailVerified  bool            `json:"emailVerified" gorm:"not null;default:false"`
	Active         bool            `json:"active" gorm:"not null;default:true"`
	Role           UserRole        `json:"role" gorm:"type:varchar(20);not null;default:'USER'"`
	Image          *string         `json:"image,omitempty" gorm:"type:text"`
	PasswordHash   string          `json:"-" gorm:"type:text;not null;default:''"`
	Profile        *Profile        `json:"profile,omitempty" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Sessions       []Session       `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	LinkedAccounts []LinkedAccount `json:"linkedAccounts,omitempty" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

func (User) TableName() string {
	return "users"
}

func (u *User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}

// HasPassword is false for accounts created through an OAuth provider that
// never set a local password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}
