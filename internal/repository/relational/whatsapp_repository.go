package relational

import (
	"context"
	"fmt"

	"auth-notify-service/internal/models"

	"gorm.io/gorm"
)

type whatsAppRepository struct {
	db *gorm.DB
}

func (r *whatsAppRepository) Create(ctx context.Context, message *models.WhatsAppMessage) error {
	if err := r.db.WithContext(ctx).Create(message).Error; err != nil {
		return fmt.Errorf("failed to log whatsapp message: %w", err)
	}
	return nil
}

func (r *whatsAppRepository) GetByMessageID(ctx context.Context, messageID string) (*models.WhatsAppMessage, error) {
	var message models.WhatsAppMessage
	if err := r.db.WithContext(ctx).Where("message_id = ?", messageID).First(&message).Error; err != nil {
		return nil, notFound(err)
	}
	return &message, nil
}

func (r *whatsAppRepository) List(ctx context.Context, skip, limit int) ([]models.WhatsAppMessage, error) {
	skip, limit = page(skip, limit)
	var messages []models.WhatsAppMessage
	if err := r.db.WithContext(ctx).Order("id DESC").Offset(skip).Limit(limit).Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("failed to list whatsapp messages: %w", err)
	}
	return messages, nil
}
