package models

import "time"

type WhatsAppMessage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	ToNumber  string    `gorm:"size:32;not null" json:"to_number"`
	Message   string    `gorm:"type:text" json:"message"`
	Status    string    `gorm:"size:16;not null" json:"status"`
	MessageID *string   `gorm:"size:255;index" json:"message_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (WhatsAppMessage) TableName() string {
	return "whatsapp_messages"
}
