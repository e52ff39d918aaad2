package models

import (
	"time"

	"gorm.io/datatypes"
)

// Register modes recorded in User.Misc["register_mode"].
const (
	RegisterModeEmail    = "email"
	RegisterModeGoogle   = "google"
	RegisterModeFacebook = "facebook"

	MiscRegisterMode = "register_mode"
	MiscGoogleID     = "google_id"
	MiscFacebookID   = "facebook_id"
)

type User struct {
	ID              uint              `gorm:"primaryKey" json:"id"`
	Email           string            `gorm:"size:255;not null;uniqueIndex" json:"email"`
	HashedPassword  *string           `gorm:"size:255" json:"-"`
	Name            string            `gorm:"size:255" json:"name,omitempty"`
	Picture         string            `gorm:"size:1024" json:"picture,omitempty"`
	MobileEncrypted datatypes.JSON    `gorm:"column:mobile_encrypted" json:"-"`
	Mobile          *string           `gorm:"-" json:"mobile,omitempty"`
	Misc            datatypes.JSONMap `json:"misc,omitempty"`
	IsActive        bool              `gorm:"not null;default:true" json:"is_active"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// HasPassword reports whether the account can sign in with a password.
func (u *User) HasPassword() bool {
	return u.HashedPassword != nil && *u.HashedPassword != ""
}

// RegisterMode returns the mode the account was first registered with.
func (u *User) RegisterMode() string {
	if u.Misc == nil {
		return ""
	}
	mode, _ := u.Misc[MiscRegisterMode].(string)
	return mode
}

// IsSocialOnly reports whether the account was created by a social login and
// has never had a password set.
func (u *User) IsSocialOnly() bool {
	mode := u.RegisterMode()
	return !u.HasPassword() && (mode == RegisterModeGoogle || mode == RegisterModeFacebook)
}
