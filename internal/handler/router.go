package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Handlers groups the route owners mounted by NewRouter.
type Handlers struct {
	Users         *UserHandler
	Notifications *NotificationHandler
	WhatsApp      *WhatsAppHandler
	Tasks         *TaskHandler
	Health        *HealthHandler
}

type RouterOptions struct {
	// RequireHTTPS rejects plain-HTTP requests with 426.
	RequireHTTPS   bool
	AllowedOrigins []string
}

// NewRouter creates and configures the Chi router with all middleware and routes
func NewRouter(h Handlers, auth Authenticator, opts RouterOptions, logger *zap.Logger) chi.Router {
	router := chi.NewRouter()

	if opts.RequireHTTPS {
		router.Use(requireHTTPS)
	}

	// Middleware stack
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(LoggerMiddleware(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"https://*"}
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	requireAuth := RequireAuth(auth, logger)

	if h.Health != nil {
		h.Health.RegisterRoutes(router)
	}
	h.Users.RegisterRoutes(router, requireAuth)
	h.Notifications.RegisterRoutes(router, requireAuth)
	h.WhatsApp.RegisterRoutes(router, requireAuth)
	h.Tasks.RegisterRoutes(router, requireAuth)

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"success":false,"error":"endpoint not found"}`))
	})

	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		_, _ = w.Write([]byte(`{"success":false,"error":"method not allowed"}`))
	})

	return router
}
