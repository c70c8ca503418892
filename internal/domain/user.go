package domain

import (
	"fmt"
	"strings"
	"time"
)

// Role is a closed enum; ParseRole is the only way in from the outside.
type Role string

const (
	RoleUser       Role = "USER"
	RoleAdmin      Role = "ADMIN"
	RoleSuperAdmin Role = "SUPER_ADMIN"
)

func ParseRole(s string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleUser:
		return RoleUser, nil
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleSuperAdmin:
		return RoleSuperAdmin, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSuperAdmin:
		return true
	default:
		return false
	}
}

type User struct {
	ID              UserID     `gorm:"type:uuid;primaryKey" db:"id" json:"id"`
	Email           string     `gorm:"type:citext;uniqueIndex:ux_users_email" db:"email" json:"email"`
	DisplayName     string     `gorm:"type:text" db:"display_name" json:"displayName,omitempty"`
	PasswordHash    string     `gorm:"type:text" db:"password_hash" json:"-"`
	Role            Role       `gorm:"type:text;not null;default:USER" db:"role" json:"role"`
	EmailVerified   bool       `gorm:"not null;default:false" db:"email_verified" json:"emailVerified"`
	EmailVerifiedAt *time.Time `db:"email_verified_at" json:"emailVerifiedAt,omitempty"`
	MfaEnabled      bool       `gorm:"not null;default:true" db:"mfa_enabled" json:"mfaEnabled"`
	CreatedAt       time.Time  `gorm:"not null" db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time  `gorm:"not null" db:"updated_at" json:"updatedAt"`
}

func (User) TableName() string { return "users" }

// HasPassword reports whether the user can authenticate with a local
// credential at all. OAuth-only accounts have no hash.
func (u *User) HasPassword() bool { return u.PasswordHash != "" }

// LinkedAccount binds an external identity provider account to a local user.
// A given (provider, provider_account_id) pair maps to exactly one user and
// is immutable after creation.
type LinkedAccount struct {
	Provider          Provider  `gorm:"type:text;primaryKey" db:"provider" json:"provider"`
	ProviderAccountID string    `gorm:"type:text;primaryKey" db:"provider_account_id" json:"providerAccountId"`
	UserID            UserID    `gorm:"type:uuid;index" db:"user_id" json:"userId"`
	CreatedAt         time.Time `gorm:"not null" db:"created_at" json:"createdAt"`
}

func (LinkedAccount) TableName() string { return "linked_accounts" }
