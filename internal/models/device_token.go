package models

import "time"

// DeviceToken is a push target registered for a user. Rows are append-only;
// registering the same token twice yields two rows.
type DeviceToken struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"not null;index" json:"user_id"`
	DeviceToken string    `gorm:"size:512;not null" json:"device_token"`
	Platform    string    `gorm:"size:32" json:"platform,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
