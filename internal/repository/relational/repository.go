package relational

import (
	"context"
	"errors"

	"auth-notify-service/internal/models"

	"gorm.io/gorm"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateEmail = errors.New("email already registered")
)

// UserRepository is the User Directory's persistence contract.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context, skip, limit int) ([]models.User, error)
	Create(ctx context.Context, user *models.User) error
	Save(ctx context.Context, user *models.User) error
}

type DeviceTokenRepository interface {
	Create(ctx context.Context, token *models.DeviceToken) error
	ListByUser(ctx context.Context, userID uint) ([]models.DeviceToken, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	GetByID(ctx context.Context, id uint) (*models.Notification, error)
	UpdateOutcome(ctx context.Context, id uint, status string, notificationID *string) error
	ListByUser(ctx context.Context, userID uint, skip, limit int) ([]models.Notification, error)
}

type WhatsAppRepository interface {
	Create(ctx context.Context, message *models.WhatsAppMessage) error
	GetByMessageID(ctx context.Context, messageID string) (*models.WhatsAppMessage, error)
	List(ctx context.Context, skip, limit int) ([]models.WhatsAppMessage, error)
}

// Store bundles the repositories bound to one gorm handle. A Store built on
// a dedicated connection scopes every repository to that connection.
type Store struct {
	db            *gorm.DB
	Users         UserRepository
	Devices       DeviceTokenRepository
	Notifications NotificationRepository
	Messages      WhatsAppRepository
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:            db,
		Users:         &userRepository{db: db},
		Devices:       &deviceTokenRepository{db: db},
		Notifications: &notificationRepository{db: db},
		Messages:      &whatsAppRepository{db: db},
	}
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

// WithConnection runs fn against a Store pinned to a single dedicated
// connection, released when fn returns.
func (s *Store) WithConnection(ctx context.Context, fn func(store *Store) error) error {
	return s.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		return fn(NewStore(conn))
	})
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func page(skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	return skip, limit
}
