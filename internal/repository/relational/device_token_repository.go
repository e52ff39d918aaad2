package relational

import (
	"context"
	"fmt"

	"auth-notify-service/internal/models"

	"gorm.io/gorm"
)

type deviceTokenRepository struct {
	db *gorm.DB
}

func (r *deviceTokenRepository) Create(ctx context.Context, token *models.DeviceToken) error {
	if err := r.db.WithContext(ctx).Create(token).Error; err != nil {
		return fmt.Errorf("failed to register device token: %w", err)
	}
	return nil
}

// ListByUser returns every token registered for the user in registration order.
func (r *deviceTokenRepository) ListByUser(ctx context.Context, userID uint) ([]models.DeviceToken, error) {
	var tokens []models.DeviceToken
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&tokens).Error; err != nil {
		return nil, fmt.Errorf("failed to list device tokens: %w", err)
	}
	return tokens, nil
}
