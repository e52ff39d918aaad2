package relational

import (
	"context"
	"fmt"

	"auth-notify-service/internal/models"

	"gorm.io/gorm"
)

type notificationRepository struct {
	db *gorm.DB
}

func (r *notificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	if err := r.db.WithContext(ctx).Create(notification).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (r *notificationRepository) GetByID(ctx context.Context, id uint) (*models.Notification, error) {
	var notification models.Notification
	if err := r.db.WithContext(ctx).First(&notification, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &notification, nil
}

func (r *notificationRepository) UpdateOutcome(ctx context.Context, id uint, status string, notificationID *string) error {
	res := r.db.WithContext(ctx).Model(&models.Notification{}).Where("id = ?", id).
		Updates(map[string]interface{}{"status": status, "notification_id": notificationID})
	if res.Error != nil {
		return fmt.Errorf("failed to update notification %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *notificationRepository) ListByUser(ctx context.Context, userID uint, skip, limit int) ([]models.Notification, error) {
	skip, limit = page(skip, limit)
	var notifications []models.Notification
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("id DESC").Offset(skip).Limit(limit).Find(&notifications).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, nil
}
