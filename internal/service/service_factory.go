package service

import (
	"sync"
	"time"

	"auth-notify-service/internal/encryption"
	"auth-notify-service/internal/hashing"
	"auth-notify-service/internal/messaging"
	"auth-notify-service/internal/notification"
	"auth-notify-service/internal/queue"
	"auth-notify-service/internal/repository/relational"
	"auth-notify-service/internal/token"

	"go.uber.org/zap"
)

// Dependencies are the shared collaborators the services are built from.
// Queue and Results may be nil.
type Dependencies struct {
	Store          *relational.Store
	Hasher         *hashing.Hasher
	Tokens         *token.Service
	Encryption     *encryption.EncryptionManager
	Google         GoogleVerifier
	Facebook       FacebookVerifier
	Notifications  *notification.Dispatcher
	WhatsApp       *messaging.Dispatcher
	Queue          queue.Enqueuer
	Results        queue.ResultStore
	WhatsAppWindow time.Duration
}

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	deps   Dependencies
	logger *zap.Logger

	mu                  sync.Mutex
	userService         *UserService
	notificationService *NotificationService
	whatsAppService     *WhatsAppService
	taskService         *TaskService
}

// NewServiceFactory creates a new service factory
func NewServiceFactory(deps Dependencies, logger *zap.Logger) *ServiceFactory {
	return &ServiceFactory{deps: deps, logger: logger}
}

// UserService returns the user service instance (singleton)
func (f *ServiceFactory) UserService() *UserService {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.userService == nil {
		f.userService = NewUserService(
			f.deps.Store.Users,
			f.deps.Hasher,
			f.deps.Tokens,
			f.deps.Encryption,
			f.deps.Google,
			f.deps.Facebook,
			f.logger,
		)
	}
	return f.userService
}

func (f *ServiceFactory) NotificationService() *NotificationService {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.notificationService == nil {
		f.notificationService = NewNotificationService(f.deps.Store, f.deps.Notifications, f.deps.Queue, f.logger)
	}
	return f.notificationService
}

func (f *ServiceFactory) WhatsAppService() *WhatsAppService {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.whatsAppService == nil {
		f.whatsAppService = NewWhatsAppService(f.deps.Store, f.deps.WhatsApp, f.deps.Queue, f.deps.WhatsAppWindow, f.logger)
	}
	return f.whatsAppService
}

func (f *ServiceFactory) TaskService() *TaskService {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.taskService == nil {
		f.taskService = NewTaskService(f.deps.Results)
	}
	return f.taskService
}

// RegisterTasks binds the task handlers to a worker.
func (f *ServiceFactory) RegisterTasks(w *queue.Worker) {
	w.Register(queue.TaskSendMobileNotification, f.NotificationService().HandleMobileNotificationTask)
	w.Register(queue.TaskSendWhatsAppMessage, f.WhatsAppService().HandleWhatsAppTask)
}

// Cleanup cleans up all services
func (f *ServiceFactory) Cleanup() {
	if f.deps.Encryption != nil {
		f.deps.Encryption.ClearCache()
	}
}
