package models

import "time"

const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

type Notification struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	UserID         uint      `gorm:"not null;index" json:"user_id"`
	Title          string    `gorm:"size:255" json:"title"`
	Message        string    `gorm:"type:text" json:"message"`
	Status         string    `gorm:"size:16;not null;index" json:"status"`
	NotificationID *string   `gorm:"size:255" json:"notification_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
